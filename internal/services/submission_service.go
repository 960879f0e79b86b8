// Package services – SubmissionService
//
// This file implements SubmissionService, the entry point for waitlist
// submissions. It normalizes and validates the payload, resolves the client address to a
// coarse location (best effort), stamps the record and admits an append task
// to the serialization queue.
//
// The default contract acknowledges on admission, not on durability: an append
// that later fails is logged server-side and the submitter is not told. Set
// AwaitDurable to wait for the append result instead.
//
// Observability: Submit is OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
	"github.com/tbourn/go-waitlist-backend/internal/geo"
	"github.com/tbourn/go-waitlist-backend/internal/queue"
	"github.com/tbourn/go-waitlist-backend/internal/repo"
	"github.com/tbourn/go-waitlist-backend/internal/sheet"
)

const (
	// DefaultTimezone is the zone submission timestamps are rendered in.
	DefaultTimezone = "Asia/Kolkata"
	// DefaultTimestampLayout renders like the en-IN locale, e.g.
	// "17/10/2026, 3:04:05 pm".
	DefaultTimestampLayout = "2/1/2006, 3:04:05 pm"

	defaultIdempotencyTTL = 24 * time.Hour
)

// Appender persists one record. Implemented by *store.Engine.
type Appender interface {
	Append(ctx context.Context, rec domain.Record) error
}

// TaskQueue admits tasks for serialized execution. Implemented by
// *queue.Queue.
type TaskQueue interface {
	SubmitNamed(name string, task queue.Task) (<-chan error, error)
}

// SubmitInput is the decoded submission payload.
type SubmitInput struct {
	Email        string
	WhatsApp     string
	BusinessType string
	Challenge    string
}

// Receipt acknowledges an admitted submission.
type Receipt struct {
	// ID identifies the submission in logs and idempotency records.
	ID string
	// Queued is true once the append task has been admitted.
	Queued bool
	// Durable is true when the service waited for the append to commit.
	Durable bool
	// Replayed is true when the receipt came from an earlier request with
	// the same idempotency key and nothing new was enqueued.
	Replayed bool
}

// SubmissionService builds records and hands them to the append queue.
type SubmissionService struct {
	Store Appender
	Queue TaskQueue

	// Geo resolves client addresses; nil disables enrichment.
	Geo        geo.Resolver
	GeoTimeout time.Duration

	// Location and Layout control timestamp rendering.
	Location *time.Location
	Layout   string

	// AwaitDurable makes Submit wait for the append result.
	AwaitDurable bool

	// DB backs idempotency keys; nil disables them.
	DB             *gorm.DB
	IdempotencyTTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// NewSubmissionService constructs a SubmissionService with the default
// timestamp zone and layout. If the zone database lacks the default zone, UTC
// is used.
func NewSubmissionService(store Appender, q TaskQueue, r geo.Resolver) *SubmissionService {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	return &SubmissionService{
		Store:          store,
		Queue:          q,
		Geo:            r,
		GeoTimeout:     2 * time.Second,
		Location:       loc,
		Layout:         DefaultTimestampLayout,
		IdempotencyTTL: defaultIdempotencyTTL,
		Now:            time.Now,
	}
}

// Submit validates in, builds the record and admits its append task.
//
// With a non-empty idemKey and a configured DB, a key already seen within the
// TTL returns the original receipt with Replayed set and enqueues nothing.
// The key is reserved before admission and released if admission fails.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput, clientIP, idemKey string) (*Receipt, error) {
	tr := otel.Tracer("services/SubmissionService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Bool("idempotency.key_present", idemKey != ""),
			attribute.Bool("await_durable", s.AwaitDurable),
		),
	)
	defer span.End()

	in = normalizeInput(in)
	if in.Email == "" {
		return nil, ErrEmailRequired
	}
	if err := validateFields(in); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	idemKey = strings.TrimSpace(idemKey)
	useIdem := idemKey != "" && s.DB != nil
	if useIdem {
		prior, err := s.reserve(ctx, idemKey, id)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			span.SetAttributes(attribute.Bool("idempotency.replayed", true))
			return prior, nil
		}
	}
	span.SetAttributes(attribute.String("submission.id", id))

	rec := s.buildRecord(ctx, in, clientIP)

	done, err := s.Queue.SubmitNamed("append:"+id, func(ctx context.Context) error {
		return s.Store.Append(ctx, rec)
	})
	if err != nil {
		if useIdem {
			s.release(idemKey, id)
		}
		switch {
		case errors.Is(err, queue.ErrFull):
			return nil, ErrQueueBusy
		case errors.Is(err, queue.ErrClosed):
			return nil, ErrQueueClosed
		default:
			return nil, err
		}
	}

	receipt := &Receipt{ID: id, Queued: true}
	if !s.AwaitDurable {
		return receipt, nil
	}

	select {
	case err := <-done:
		if err != nil {
			if useIdem {
				s.release(idemKey, id)
			}
			return nil, fmt.Errorf("services: submission %s: %w", id, err)
		}
		receipt.Durable = true
		return receipt, nil
	case <-ctx.Done():
		// The task stays queued and will still run.
		return nil, ctx.Err()
	}
}

// reserve claims key for id. It returns a replay receipt when the key is
// already held.
func (s *SubmissionService) reserve(ctx context.Context, key, id string) (*Receipt, error) {
	now := s.now().UTC()
	if rec, err := repo.GetIdempotency(ctx, s.DB, key, now); err == nil {
		return &Receipt{ID: rec.SubmissionID, Queued: true, Replayed: true}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, key, id, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost a race with a concurrent request carrying the same key.
		rec, gerr := repo.GetIdempotency(ctx, s.DB, key, now)
		if gerr != nil {
			return nil, gerr
		}
		return &Receipt{ID: rec.SubmissionID, Queued: true, Replayed: true}, nil
	}
	return nil, err
}

// release drops a reservation whose submission was not stored.
func (s *SubmissionService) release(key, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := repo.DeleteIdempotency(ctx, s.DB, key, id); err != nil {
		log.Warn().Err(err).Str("submission_id", id).Msg("release idempotency key failed")
	}
}

// buildRecord resolves the client location and stamps the record.
func (s *SubmissionService) buildRecord(ctx context.Context, in SubmitInput, clientIP string) domain.Record {
	ip := normalizeIP(clientIP)
	loc := geo.UnknownLocation()
	if ip != domain.Unknown {
		loc = geo.ResolveOrDefault(ctx, s.Geo, ip, s.GeoTimeout)
	}

	return domain.Record{
		Email:        in.Email,
		WhatsApp:     in.WhatsApp,
		BusinessType: in.BusinessType,
		Challenge:    in.Challenge,
		Timestamp:    s.timestamp(),
		IP:           ip,
		City:         loc.City,
		Region:       loc.Region,
		Country:      loc.Country,
	}
}

func (s *SubmissionService) timestamp() string {
	zone := s.Location
	if zone == nil {
		zone = time.UTC
	}
	layout := s.Layout
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return s.now().In(zone).Format(layout)
}

func (s *SubmissionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// normalizeInput trims every field and NFC-normalizes them so visually equal
// text is stored identically.
func normalizeInput(in SubmitInput) SubmitInput {
	clean := func(v string) string { return norm.NFC.String(strings.TrimSpace(v)) }
	return SubmitInput{
		Email:        clean(in.Email),
		WhatsApp:     clean(in.WhatsApp),
		BusinessType: clean(in.BusinessType),
		Challenge:    clean(in.Challenge),
	}
}

// validateFields rejects values the store would otherwise have to alter:
// anything longer than a cell holds, and characters a cell cannot keep.
func validateFields(in SubmitInput) error {
	for _, f := range []struct{ name, v string }{
		{"email", in.Email},
		{"whatsapp", in.WhatsApp},
		{"businessType", in.BusinessType},
		{"challenge", in.Challenge},
	} {
		if utf8.RuneCountInString(f.v) > sheet.MaxCellRunes {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrFieldTooLong, f.name, sheet.MaxCellRunes)
		}
		if !storable(f.v) {
			return fmt.Errorf("%w: %s", ErrInvalidCharacters, f.name)
		}
	}
	return nil
}

// storable reports whether sheet.Sanitize would leave v unchanged apart from
// length.
func storable(v string) bool {
	if !utf8.ValidString(v) {
		return false
	}
	for _, r := range v {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return false
		}
	}
	return true
}

// normalizeIP returns the canonical form of addr, or domain.Unknown when addr
// is empty or not an IP address.
func normalizeIP(addr string) string {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return domain.Unknown
	}
	return ip.String()
}
