// Complaint HTTP handlers.
//
// This file exposes REST endpoints for complaints:
//   - POST   /complaints           (submit: validate, classify, store, notify)
//   - GET    /complaints           (list newest first; optional limit/cursor; ETag)
//   - GET    /complaints/{id}      (fetch one)
//
// Handlers are transport-thin: they bind input, call the complaint service,
// and translate results and failure kinds into HTTP responses.
package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-complaint-triage/internal/classifier"
	"github.com/tbourn/go-complaint-triage/internal/domain"
	"github.com/tbourn/go-complaint-triage/internal/http/middleware"
	"github.com/tbourn/go-complaint-triage/internal/notify"
	"github.com/tbourn/go-complaint-triage/internal/services"
	"github.com/tbourn/go-complaint-triage/internal/utils"
)

//
// Service contracts (context-aware)
//

// ComplaintService defines the complaint operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor ctx.
type ComplaintService interface {
	// SubmitIdempotent runs a submission; a non-empty key makes retries from
	// the same client replay the first result.
	SubmitIdempotent(ctx context.Context, clientID, key string, in services.SubmitInput) (*services.Submission, error)
	// List returns every complaint, newest first.
	List(ctx context.Context) ([]domain.Complaint, error)
	// ListPage returns up to limit complaints after cursor and the next cursor.
	ListPage(ctx context.Context, limit int, cursor string) ([]domain.Complaint, string, error)
	// Get returns one complaint or services.ErrComplaintNotFound.
	Get(ctx context.Context, id string) (*domain.Complaint, error)
	// Stats returns the complaint count and newest creation time.
	Stats(ctx context.Context) (int64, *time.Time, error)
}

//
// Handler wiring
//

// Handlers groups the complaint endpoints and the live change streams.
type Handlers struct {
	svc    ComplaintService
	events notify.Source

	// StreamBuffer is the per-connection event queue length.
	StreamBuffer int
	// KeepAlive is the interval between websocket pings and SSE heartbeats.
	KeepAlive time.Duration
	// CheckOrigin vets websocket upgrade requests; nil allows every origin.
	CheckOrigin func(*http.Request) bool
}

// New constructs Handlers bound to the complaint service and event source.
// events may be nil, in which case the stream endpoints answer 503.
func New(svc ComplaintService, events notify.Source) *Handlers {
	return &Handlers{
		svc:          svc,
		events:       events,
		StreamBuffer: notify.DefaultBuffer,
		KeepAlive:    30 * time.Second,
	}
}

//
// DTOs
//

// SubmitComplaintRequest is the JSON payload for submitting a complaint.
type SubmitComplaintRequest struct {
	// ComplaintText is the free-form complaint; required, non-blank.
	ComplaintText string `json:"complaint_text" example:"My package never arrived and I need it for an event tomorrow!"`
	// UserEmail optionally identifies the submitter.
	UserEmail *string `json:"user_email,omitempty" example:"jane@example.com"`
}

// SubmitComplaintResponse is returned for a stored complaint. Analysis
// includes the classifier's reasoning, which is not persisted.
type SubmitComplaintResponse struct {
	Success   bool              `json:"success" example:"true"`
	Complaint *domain.Complaint `json:"complaint"`
	Analysis  domain.Analysis   `json:"analysis"`
}

// ListComplaintsResponse wraps complaints, newest first. NextCursor is set
// when another page exists.
type ListComplaintsResponse struct {
	Complaints []domain.Complaint `json:"complaints"`
	NextCursor string             `json:"next_cursor,omitempty" example:"MTcyOTAwMDAwMDAwMDAwMDphYmM"`
}

//
// Helpers
//

// submissionFailure maps a submission error to status, code, and message.
// Classification failures expose only the classifier's client-safe message.
func submissionFailure(err error) (int, string, string) {
	cause := err
	var se *services.SubmissionError
	if errors.As(err, &se) {
		cause = se.Err
	}
	switch {
	case errors.Is(err, services.ErrValidation):
		if errors.Is(cause, services.ErrEmptyComplaint) {
			return http.StatusBadRequest, ErrCodeValidationFailed, "Complaint text is required"
		}
		return http.StatusBadRequest, ErrCodeValidationFailed, cause.Error()
	case errors.Is(err, services.ErrClassification):
		return http.StatusInternalServerError, ErrCodeClassificationFailed, classificationMessage(err)
	case errors.Is(err, services.ErrStore):
		return http.StatusInternalServerError, ErrCodeStoreFailed, "Database error: could not save complaint"
	default:
		return http.StatusInternalServerError, ErrCodeInternal, "Internal server error"
	}
}

func classificationMessage(err error) string {
	var ce *classifier.Error
	if !errors.As(err, &ce) || ce.Message == "" {
		return "Classification failed"
	}
	if ce.StatusCode > 0 {
		return fmt.Sprintf("Classification failed: %s (status %d)", ce.Message, ce.StatusCode)
	}
	return "Classification failed: " + ce.Message
}

// listETag hashes the encoded body so status changes made by external
// workflows invalidate cached lists as well as inserts.
func listETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `W/"complaints:` + hex.EncodeToString(sum[:8]) + `"`
}

//
// Handlers
//

// SubmitComplaint godoc
// @ID          submitComplaint
// @Summary     Submit a complaint
// @Description Validates the text, classifies it, stores the classified complaint, and notifies live subscribers. Send Idempotency-Key to make retries safe.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Replay key for safe retries"  example(2b7e1f0a-retry-1)
// @Param       body             body    handlers.SubmitComplaintRequest  true  "Complaint payload"
//
// @Success     200  {object}  handlers.SubmitComplaintResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Classification or storage failed"
// @Router      /complaints [post]
func (h *Handlers) SubmitComplaint(c *gin.Context) {
	var req SubmitComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	sub, err := h.svc.SubmitIdempotent(c.Request.Context(), middleware.ClientID(c), key, services.SubmitInput{
		Text:      req.ComplaintText,
		UserEmail: req.UserEmail,
	})
	if err != nil {
		status, code, msg := submissionFailure(err)
		if status >= http.StatusInternalServerError {
			middleware.LoggerFrom(c).Error().Err(err).Msg("submission failed")
		}
		fail(c, status, code, msg)
		return
	}

	if sub.Replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	ok(c, http.StatusOK, SubmitComplaintResponse{
		Success:   true,
		Complaint: sub.Complaint,
		Analysis:  sub.Analysis,
	})
}

// ListComplaints godoc
// @ID          listComplaints
// @Summary     List complaints
// @Description Returns complaints newest first. Without limit or cursor the full list is returned; with them, one page plus next_cursor. Supports weak ETag via If-None-Match.
// @Tags        Complaints
// @Produce     json
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"complaints:0a1b2c3d4e5f6071\")
// @Param       limit          query   int     false  "Page size"                   minimum(1)
// @Param       cursor         query   string  false  "Opaque cursor from next_cursor"
//
// @Success     200  {object} handlers.ListComplaintsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad limit or cursor"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /complaints [get]
func (h *Handlers) ListComplaints(c *gin.Context) {
	ctx := c.Request.Context()

	rawLimit := strings.TrimSpace(c.Query("limit"))
	cursor := strings.TrimSpace(c.Query("cursor"))
	limit := utils.AtoiDefault(rawLimit, -1)
	if rawLimit != "" && limit < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
		return
	}

	var (
		resp ListComplaintsResponse
		err  error
	)
	if rawLimit == "" && cursor == "" {
		resp.Complaints, err = h.svc.List(ctx)
	} else {
		resp.Complaints, resp.NextCursor, err = h.svc.ListPage(ctx, max(limit, 0), cursor)
	}
	switch {
	case errors.Is(err, services.ErrInvalidCursor):
		fail(c, http.StatusBadRequest, ErrCodeInvalidCursor, "invalid cursor")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list complaints")
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not encode response")
		return
	}
	etag := listETag(body)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GetComplaint godoc
// @ID          getComplaint
// @Summary     Get a complaint
// @Tags        Complaints
// @Produce     json
//
// @Param       id  path  string  true  "Complaint ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Complaint
// @Failure     400  {object} handlers.ErrorResponse "Bad id"
// @Failure     404  {object} handlers.ErrorResponse "Complaint not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /complaints/{id} [get]
func (h *Handlers) GetComplaint(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint id must be a UUID")
		return
	}

	cm, err := h.svc.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrComplaintNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "complaint not found")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load complaint")
		return
	}
	ok(c, http.StatusOK, cm)
}

// Health godoc
// @ID          health
// @Summary     Liveness and store readiness
// @Tags        System
// @Produce     json
// @Success     200  {object} map[string]any
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	n, newest, err := h.svc.Stats(ctx)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "store unavailable")
		return
	}
	body := gin.H{"status": "ok", "complaints": n}
	if newest != nil {
		body["newest_at"] = newest.UTC()
	}
	ok(c, http.StatusOK, body)
}
