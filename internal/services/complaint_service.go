// Package services – ComplaintService
//
// This file implements the submission orchestrator. Each submission walks
//
//	Received → Validated → Classified → Persisted → Completed
//
// and drops to Failed from any non-terminal state. Validation happens before
// the classifier is called, nothing is written unless classification
// produced a valid analysis, and the change notification after the insert is
// best effort: its failure is logged and never fails the submission.
//
// Observability: public methods are OpenTelemetry-instrumented and every
// finished submission is counted by outcome.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-triage/internal/classifier"
	"github.com/tbourn/go-complaint-triage/internal/domain"
	"github.com/tbourn/go-complaint-triage/internal/metrics"
	"github.com/tbourn/go-complaint-triage/internal/notify"
	"github.com/tbourn/go-complaint-triage/internal/repo"
	"github.com/tbourn/go-complaint-triage/internal/utils"
)

// ComplaintRepo defines the persistence contract required by
// ComplaintService.
type ComplaintRepo interface {
	// CreateComplaint inserts one classified complaint.
	CreateComplaint(ctx context.Context, db *gorm.DB, in repo.NewComplaint) (*domain.Complaint, error)

	// ListComplaints returns every complaint, newest first.
	ListComplaints(ctx context.Context, db *gorm.DB) ([]domain.Complaint, error)

	// ListComplaintsPage returns up to limit complaints older than after.
	ListComplaintsPage(ctx context.Context, db *gorm.DB, after *repo.Cursor, limit int) ([]domain.Complaint, error)

	// GetComplaint fetches one complaint by id.
	GetComplaint(ctx context.Context, db *gorm.DB, id string) (*domain.Complaint, error)

	// ComplaintsStats returns the row count and newest created_at.
	ComplaintsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)

	GetIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, clientID, key, complaintID, reasoning string, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// ComplaintService runs submissions and serves reads of stored complaints.
type ComplaintService struct {
	// DB is the single storage handle, owned by the caller.
	DB *gorm.DB
	// Repo is the complaint repository.
	Repo ComplaintRepo
	// Classifier produces the analysis for validated text.
	Classifier classifier.Classifier
	// Notifier receives an insert event after each stored complaint. Nil
	// disables notifications.
	Notifier notify.Publisher

	// MaxTextRunes caps complaint length; 0 means unbounded.
	MaxTextRunes int
	// NotifyTimeout bounds the post-insert publish.
	NotifyTimeout time.Duration
	// IdempotencyTTL is how long a keyed submission can be replayed.
	IdempotencyTTL time.Duration

	// DefaultLimit and MaxLimit bound ListPage.
	DefaultLimit int
	MaxLimit     int

	// inflight collapses concurrent keyed submissions from one client.
	inflight singleflight.Group
}

// NewComplaintService constructs a ComplaintService with default limits.
func NewComplaintService(db *gorm.DB, r ComplaintRepo, c classifier.Classifier, n notify.Publisher) *ComplaintService {
	return &ComplaintService{
		DB:             db,
		Repo:           r,
		Classifier:     c,
		Notifier:       n,
		NotifyTimeout:  2 * time.Second,
		IdempotencyTTL: 24 * time.Hour,
		DefaultLimit:   50,
		MaxLimit:       500,
	}
}

// SubmitInput is the raw submission as received.
type SubmitInput struct {
	Text      string
	UserEmail *string
}

// Submission is the result of a completed submission. Analysis carries the
// classifier's reasoning, which is returned to the caller but not stored.
type Submission struct {
	Complaint *domain.Complaint
	Analysis  domain.Analysis
	Stage     Stage
	Trace     []Stage
	Replayed  bool
}

func (s *Submission) advance(to Stage) {
	s.Stage = to
	s.Trace = append(s.Trace, to)
}

// Submit validates, classifies, stores, and announces one complaint. On
// failure it returns a *SubmissionError and no complaint; nothing is
// persisted unless the insert itself succeeded.
func (s *ComplaintService) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Int("complaint.text_len", len(in.Text)),
			attribute.Bool("complaint.has_email", in.UserEmail != nil),
		),
	)
	defer span.End()

	sub := &Submission{Stage: StageReceived, Trace: []Stage{StageReceived}}

	fail := func(kind, outcome string, sentinel, err error) (*Submission, error) {
		se := &SubmissionError{Stage: sub.Stage, Kind: sentinel, Err: err}
		path := append(sub.Trace, StageFailed)
		ev := log.Error()
		if sentinel == ErrValidation {
			ev = log.Warn()
		}
		ev.Err(err).
			Str("kind", kind).
			Str("stage", string(sub.Stage)).
			Interface("trace", path).
			Msg("complaint submission failed")
		metrics.SubmissionsTotal.WithLabelValues(outcome).Inc()
		span.RecordError(se)
		span.SetStatus(codes.Error, kind)
		return nil, se
	}

	// Received → Validated
	text, err := ValidateComplaintText(in.Text, s.MaxTextRunes)
	if err != nil {
		return fail("validation", metrics.OutcomeValidation, ErrValidation, err)
	}
	email, err := NormalizeEmail(in.UserEmail)
	if err != nil {
		return fail("validation", metrics.OutcomeValidation, ErrValidation, err)
	}
	sub.advance(StageValidated)

	// Validated → Classified
	if s.Classifier == nil {
		return fail("classification", metrics.OutcomeClassification, ErrClassification,
			&classifier.Error{Message: "no classifier configured"})
	}
	a, err := s.Classifier.Classify(ctx, text)
	if err != nil {
		return fail("classification", metrics.OutcomeClassification, ErrClassification, err)
	}
	// Substitute classifiers are held to the same contract as the gateway.
	if verr := a.Validate(); verr != nil {
		return fail("classification", metrics.OutcomeClassification, ErrClassification,
			&classifier.Error{Message: "classifier returned an invalid analysis", Err: verr})
	}
	sub.Analysis = a
	sub.advance(StageClassified)
	span.SetAttributes(
		attribute.String("complaint.category", string(a.Category)),
		attribute.String("complaint.urgency", string(a.Urgency)),
		attribute.Int("complaint.priority", a.PriorityScore),
	)

	// Classified → Persisted
	c, err := s.Repo.CreateComplaint(ctx, s.DB, repo.NewComplaint{
		Text:      text,
		UserEmail: email,
		Analysis:  a,
	})
	if err != nil {
		return fail("store", metrics.OutcomeStore, ErrStore, err)
	}
	sub.Complaint = c
	sub.advance(StagePersisted)
	span.SetAttributes(attribute.String("complaint.id", c.ID))

	// Persisted → Completed
	s.announce(ctx, c)
	sub.advance(StageCompleted)

	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeCompleted).Inc()
	log.Info().
		Str("complaint_id", c.ID).
		Str("category", string(a.Category)).
		Str("urgency", string(a.Urgency)).
		Int("priority", a.PriorityScore).
		Msg("complaint stored")
	return sub, nil
}

// announce publishes the insert event. The request context's cancellation
// does not apply: the row is already committed.
func (s *ComplaintService) announce(ctx context.Context, c *domain.Complaint) {
	if s.Notifier == nil {
		return
	}
	nctx := context.WithoutCancel(ctx)
	if s.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(nctx, s.NotifyTimeout)
		defer cancel()
	}
	if err := s.Notifier.Publish(nctx, notify.Inserted(c.ID, c.CreatedAt)); err != nil {
		log.Warn().Err(err).Str("complaint_id", c.ID).Msg("change notification failed")
	}
}

// SubmitIdempotent behaves like Submit, except that a non-empty key makes the
// submission replayable: a retry from the same client with the same key
// returns the originally stored complaint without classifying again.
// Concurrent calls with the same key share one submission; when another
// instance stores the key first, its complaint is returned instead.
func (s *ComplaintService) SubmitIdempotent(ctx context.Context, clientID, key string, in SubmitInput) (*Submission, error) {
	if key == "" {
		return s.Submit(ctx, in)
	}
	if sub, ok := s.replay(ctx, clientID, key); ok {
		return sub, nil
	}

	// The shared run outlives any single caller's cancellation; the
	// classifier's own timeout still bounds it.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(clientID+"\x00"+key, func() (any, error) {
		if sub, ok := s.replay(fctx, clientID, key); ok {
			return sub, nil
		}
		sub, err := s.Submit(fctx, in)
		if err != nil {
			return nil, err
		}
		_, ierr := s.Repo.CreateIdempotency(fctx, s.DB, clientID, key, sub.Complaint.ID, sub.Analysis.Reasoning, 200, s.IdempotencyTTL)
		switch {
		case errors.Is(ierr, repo.ErrDuplicate):
			if won, ok := s.replay(fctx, clientID, key); ok {
				log.Warn().
					Str("complaint_id", sub.Complaint.ID).
					Str("kept_complaint_id", won.Complaint.ID).
					Msg("idempotency key stored concurrently; returning the stored complaint")
				return won, nil
			}
		case ierr != nil:
			log.Warn().Err(ierr).Str("complaint_id", sub.Complaint.ID).Msg("idempotency record not saved")
		}
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Submission), nil
}

// replay returns the stored result for (clientID, key), if any.
func (s *ComplaintService) replay(ctx context.Context, clientID, key string) (*Submission, bool) {
	rec, err := s.Repo.GetIdempotency(ctx, s.DB, clientID, key, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil, false
	}
	if rec == nil {
		return nil, false
	}
	c, err := s.Repo.GetComplaint(ctx, s.DB, rec.ComplaintID)
	if err != nil {
		log.Warn().Err(err).Str("complaint_id", rec.ComplaintID).Msg("idempotency record points at missing complaint")
		return nil, false
	}
	metrics.SubmissionsTotal.WithLabelValues(metrics.OutcomeReplayed).Inc()
	return &Submission{
		Complaint: c,
		Analysis: domain.Analysis{
			Category:      c.Category,
			Urgency:       c.Urgency,
			PriorityScore: c.PriorityScore,
			Reasoning:     rec.Reasoning,
		},
		Stage:    StageCompleted,
		Trace:    []Stage{StageReceived, StageCompleted},
		Replayed: true,
	}, true
}

// List returns every stored complaint, newest first.
func (s *ComplaintService) List(ctx context.Context) ([]domain.Complaint, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "List")
	defer span.End()

	items, err := s.Repo.ListComplaints(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return items, nil
}

// ListPage returns up to limit complaints after the cursor token, newest
// first, plus the token for the following page ("" on the last page).
// limit <= 0 uses DefaultLimit; values above MaxLimit are capped.
func (s *ComplaintService) ListPage(ctx context.Context, limit int, cursor string) ([]domain.Complaint, string, error) {
	tr := otel.Tracer("services/ComplaintService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("limit", limit),
			attribute.Bool("has_cursor", cursor != ""),
		),
	)
	defer span.End()

	limit = utils.ClampLimit(limit, s.DefaultLimit, s.MaxLimit)

	var after *repo.Cursor
	if cursor != "" {
		cur, err := repo.DecodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
		after = &cur
	}

	// Fetch one extra row to learn whether another page exists.
	fetch := 0
	if limit > 0 {
		fetch = limit + 1
	}
	items, err := s.Repo.ListComplaintsPage(ctx, s.DB, after, fetch)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStore, err)
	}
	next := ""
	if limit > 0 && len(items) > limit {
		items = items[:limit]
		next = repo.CursorOf(items[len(items)-1]).Encode()
	}
	return items, next, nil
}

// Get returns one complaint or ErrComplaintNotFound.
func (s *ComplaintService) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	c, err := s.Repo.GetComplaint(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrComplaintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return c, nil
}

// Stats returns the complaint count and newest creation time, used for
// conditional GETs.
func (s *ComplaintService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return s.Repo.ComplaintsStats(ctx, s.DB)
}

// GormComplaintRepo adapts the repo package's free functions to
// ComplaintRepo.
type GormComplaintRepo struct{}

func (GormComplaintRepo) CreateComplaint(ctx context.Context, db *gorm.DB, in repo.NewComplaint) (*domain.Complaint, error) {
	return repo.CreateComplaint(ctx, db, in)
}

func (GormComplaintRepo) ListComplaints(ctx context.Context, db *gorm.DB) ([]domain.Complaint, error) {
	return repo.ListComplaints(ctx, db)
}

func (GormComplaintRepo) ListComplaintsPage(ctx context.Context, db *gorm.DB, after *repo.Cursor, limit int) ([]domain.Complaint, error) {
	return repo.ListComplaintsPage(ctx, db, after, limit)
}

func (GormComplaintRepo) GetComplaint(ctx context.Context, db *gorm.DB, id string) (*domain.Complaint, error) {
	return repo.GetComplaint(ctx, db, id)
}

func (GormComplaintRepo) ComplaintsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.ComplaintsStats(ctx, db)
}

func (GormComplaintRepo) GetIdempotency(ctx context.Context, db *gorm.DB, clientID, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, clientID, key, now)
}

func (GormComplaintRepo) CreateIdempotency(ctx context.Context, db *gorm.DB, clientID, key, complaintID, reasoning string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, clientID, key, complaintID, reasoning, status, ttl)
}
