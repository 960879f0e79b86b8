package services

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/store"
)

// FileStore exposes the committed store file. Implemented by *store.Engine.
type FileStore interface {
	Stat() (store.Info, error)
	Rows(ctx context.Context) ([]domain.Record, error)
}

// Export describes the committed store file for download.
type Export struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// ExportService serves the store file verbatim.
type ExportService struct {
	Store FileStore
	// Name is the attachment filename offered to clients.
	Name string
}

// Open returns the committed store file, or ErrStoreNotFound if nothing has
// been stored yet. The file is replaced by rename, so a reader opening Path
// sees one complete version.
func (s *ExportService) Open(ctx context.Context) (Export, error) {
	if err := ctx.Err(); err != nil {
		return Export{}, err
	}
	info, err := s.Store.Stat()
	if errors.Is(err, store.ErrNotFound) {
		return Export{}, ErrStoreNotFound
	}
	if err != nil {
		return Export{}, err
	}
	name := s.Name
	if name == "" {
		name = "waitlist.xlsx"
	}
	return Export{Path: info.Path, Name: name, Size: info.Size, ModTime: info.ModTime}, nil
}
