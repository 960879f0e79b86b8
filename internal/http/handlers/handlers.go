// Package handlers provides the HTTP handlers of the waitlist API.
//
// Endpoints:
//   - POST {base}/submit    (accept a submission)
//   - GET  {base}/download  (the store file as an attachment)
//   - GET  {base}/stats     (row count and file metadata, ETag support)
//
// Handlers are transport-thin: they decode input, call the services and map
// service errors to status codes.
package handlers

import (
	"context"

	"github.com/tbourn/go-waitlist-backend/internal/services"
)

// SubmissionService accepts waitlist submissions.
type SubmissionService interface {
	Submit(ctx context.Context, in services.SubmitInput, clientIP, idemKey string) (*services.Receipt, error)
}

// ExportService locates the committed store file.
type ExportService interface {
	Open(ctx context.Context) (services.Export, error)
}

// StatsService summarizes the store.
type StatsService interface {
	Stats(ctx context.Context) (services.Stats, error)
}

// Handlers groups the waitlist endpoints.
type Handlers struct {
	submitSvc SubmissionService
	exportSvc ExportService
	statsSvc  StatsService
}

// New constructs Handlers bound to the given services.
func New(submit SubmissionService, export ExportService, stats StatsService) *Handlers {
	return &Handlers{submitSvc: submit, exportSvc: export, statsSvc: stats}
}
