package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-complaint-triage/internal/classifier"
	"github.com/tbourn/go-complaint-triage/internal/domain"
	"github.com/tbourn/go-complaint-triage/internal/http/middleware"
	"github.com/tbourn/go-complaint-triage/internal/services"
)

// ---------- stub service ----------

type stubComplaintSvc struct {
	submitFn func(ctx context.Context, clientID, key string, in services.SubmitInput) (*services.Submission, error)

	items    []domain.Complaint
	next     string
	listErr  error
	pageArgs []any

	getFn func(id string) (*domain.Complaint, error)

	statsN   int64
	statsErr error
}

func (s *stubComplaintSvc) SubmitIdempotent(ctx context.Context, clientID, key string, in services.SubmitInput) (*services.Submission, error) {
	return s.submitFn(ctx, clientID, key, in)
}

func (s *stubComplaintSvc) List(context.Context) ([]domain.Complaint, error) {
	s.pageArgs = nil
	return s.items, s.listErr
}

func (s *stubComplaintSvc) ListPage(_ context.Context, limit int, cursor string) ([]domain.Complaint, string, error) {
	s.pageArgs = []any{limit, cursor}
	return s.items, s.next, s.listErr
}

func (s *stubComplaintSvc) Get(_ context.Context, id string) (*domain.Complaint, error) {
	return s.getFn(id)
}

func (s *stubComplaintSvc) Stats(context.Context) (int64, *time.Time, error) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return s.statsN, &now, s.statsErr
}

func sampleComplaint() *domain.Complaint {
	return &domain.Complaint{
		ID:            uuid.NewString(),
		ComplaintText: "My package never arrived",
		Category:      domain.CategoryShipping,
		Urgency:       domain.UrgencyHigh,
		PriorityScore: 8,
		Status:        domain.StatusNew,
		CreatedAt:     time.Now().UTC(),
	}
}

func newComplaintRouter(svc ComplaintService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	h := New(svc, nil)
	r.POST("/complaints", h.SubmitComplaint)
	r.GET("/complaints", h.ListComplaints)
	r.GET("/complaints/:id", h.GetComplaint)
	r.GET("/health", h.Health)
	return r
}

func doJSON(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	if _, ok := m["error"].(string); !ok {
		t.Fatalf("error body must carry an error string: %s", w.Body.String())
	}
	return m
}

// ---------- submit ----------

func TestSubmitComplaint_Success(t *testing.T) {
	cm := sampleComplaint()
	email := "jane@example.com"
	cm.UserEmail = &email

	var gotIn services.SubmitInput
	var gotKey, gotClient string
	svc := &stubComplaintSvc{submitFn: func(_ context.Context, clientID, key string, in services.SubmitInput) (*services.Submission, error) {
		gotIn, gotKey, gotClient = in, key, clientID
		return &services.Submission{
			Complaint: cm,
			Analysis:  domain.Analysis{Category: cm.Category, Urgency: cm.Urgency, PriorityScore: 8, Reasoning: "late delivery"},
			Stage:     services.StageCompleted,
		}, nil
	}}
	r := newComplaintRouter(svc)

	w := doJSON(r, http.MethodPost, "/complaints",
		`{"complaint_text":"My package never arrived","user_email":"jane@example.com"}`,
		map[string]string{middleware.HeaderIdempotencyKey: "k-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if gotIn.Text != "My package never arrived" || gotIn.UserEmail == nil || *gotIn.UserEmail != email {
		t.Fatalf("service input not forwarded: %+v", gotIn)
	}
	if gotKey != "k-1" || !strings.HasPrefix(gotClient, "ip:") {
		t.Fatalf("idempotency args: key=%q client=%q", gotKey, gotClient)
	}
	if w.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("fresh submission must not be marked as replay")
	}

	var resp SubmitComplaintResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !resp.Success || resp.Complaint == nil || resp.Complaint.ID != cm.ID {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Analysis.Reasoning != "late delivery" || resp.Analysis.PriorityScore != 8 {
		t.Fatalf("analysis not returned: %+v", resp.Analysis)
	}
}

func TestSubmitComplaint_ReplayHeader(t *testing.T) {
	svc := &stubComplaintSvc{submitFn: func(context.Context, string, string, services.SubmitInput) (*services.Submission, error) {
		return &services.Submission{Complaint: sampleComplaint(), Replayed: true}, nil
	}}
	w := doJSON(newComplaintRouter(svc), http.MethodPost, "/complaints", `{"complaint_text":"x"}`, nil)
	if w.Code != http.StatusOK || w.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("status=%d replay header=%q", w.Code, w.Header().Get("Idempotent-Replayed"))
	}
}

func TestSubmitComplaint_InvalidJSON(t *testing.T) {
	called := false
	svc := &stubComplaintSvc{submitFn: func(context.Context, string, string, services.SubmitInput) (*services.Submission, error) {
		called = true
		return nil, nil
	}}
	w := doJSON(newComplaintRouter(svc), http.MethodPost, "/complaints", `{"complaint_text":`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
	if called {
		t.Fatalf("service must not run for malformed JSON")
	}
	if m := errorBody(t, w); m["code"] != ErrCodeBadRequest {
		t.Fatalf("code=%v", m["code"])
	}
}

func TestSubmitComplaint_FailureMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{
			name:    "empty text",
			err:     &services.SubmissionError{Stage: services.StageReceived, Kind: services.ErrValidation, Err: services.ErrEmptyComplaint},
			status:  http.StatusBadRequest,
			code:    ErrCodeValidationFailed,
			message: "Complaint text is required",
		},
		{
			name:    "bad email",
			err:     &services.SubmissionError{Stage: services.StageReceived, Kind: services.ErrValidation, Err: services.ErrInvalidEmail},
			status:  http.StatusBadRequest,
			code:    ErrCodeValidationFailed,
			message: services.ErrInvalidEmail.Error(),
		},
		{
			name: "classifier",
			err: &services.SubmissionError{Stage: services.StageValidated, Kind: services.ErrClassification,
				Err: &classifier.Error{StatusCode: 503, Message: "classifier unavailable",
					Err: errors.New("upstream body: invalid key sk-live-123")}},
			status:  http.StatusInternalServerError,
			code:    ErrCodeClassificationFailed,
			message: "Classification failed: classifier unavailable (status 503)",
		},
		{
			name: "classifier without message",
			err: &services.SubmissionError{Stage: services.StageValidated, Kind: services.ErrClassification,
				Err: &classifier.Error{Err: errors.New("dial tcp 10.0.0.7:443: connection refused")}},
			status:  http.StatusInternalServerError,
			code:    ErrCodeClassificationFailed,
			message: "Classification failed",
		},
		{
			name:    "store",
			err:     &services.SubmissionError{Stage: services.StageClassified, Kind: services.ErrStore, Err: errors.New("disk full")},
			status:  http.StatusInternalServerError,
			code:    ErrCodeStoreFailed,
			message: "Database error: could not save complaint",
		},
		{
			name:    "unknown",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			code:    ErrCodeInternal,
			message: "Internal server error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubComplaintSvc{submitFn: func(context.Context, string, string, services.SubmitInput) (*services.Submission, error) {
				return nil, tc.err
			}}
			w := doJSON(newComplaintRouter(svc), http.MethodPost, "/complaints", `{"complaint_text":"  "}`, nil)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			m := errorBody(t, w)
			if m["code"] != tc.code || m["error"] != tc.message {
				t.Fatalf("body=%v", m)
			}
			if body := w.Body.String(); strings.Contains(body, "sk-live") || strings.Contains(body, "10.0.0.7") {
				t.Fatalf("upstream detail leaked: %s", body)
			}
			if m["request_id"] == "" || m["request_id"] == nil {
				t.Fatalf("missing request_id: %v", m)
			}
		})
	}
}

// ---------- list ----------

func TestListComplaints_FullListAndETag(t *testing.T) {
	a, b := sampleComplaint(), sampleComplaint()
	svc := &stubComplaintSvc{items: []domain.Complaint{*a, *b}}
	r := newComplaintRouter(svc)

	w := doJSON(r, http.MethodGet, "/complaints", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if svc.pageArgs != nil {
		t.Fatalf("no paging params should use List, got ListPage%v", svc.pageArgs)
	}
	var resp ListComplaintsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Complaints) != 2 || resp.Complaints[0].ID != a.ID || resp.NextCursor != "" {
		t.Fatalf("unexpected list: %+v", resp)
	}
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"complaints:`) {
		t.Fatalf("etag=%q", etag)
	}

	w = doJSON(r, http.MethodGet, "/complaints", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// A status change alone must produce a new tag.
	svc.items[0].Status = domain.StatusResolved
	w = doJSON(r, http.MethodGet, "/complaints", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("expected fresh 200 after status change, got %d %q", w.Code, w.Header().Get("ETag"))
	}
}

func TestListComplaints_EmptyIsArray(t *testing.T) {
	svc := &stubComplaintSvc{items: []domain.Complaint{}}
	w := doJSON(newComplaintRouter(svc), http.MethodGet, "/complaints", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"complaints":[]`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestListComplaints_Paging(t *testing.T) {
	svc := &stubComplaintSvc{items: []domain.Complaint{*sampleComplaint()}, next: "tok-2"}
	r := newComplaintRouter(svc)

	w := doJSON(r, http.MethodGet, "/complaints?limit=1&cursor=tok-1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if len(svc.pageArgs) != 2 || svc.pageArgs[0] != 1 || svc.pageArgs[1] != "tok-1" {
		t.Fatalf("ListPage args=%v", svc.pageArgs)
	}
	var resp ListComplaintsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.NextCursor != "tok-2" {
		t.Fatalf("next_cursor=%q", resp.NextCursor)
	}

	// Cursor alone pages with the service default limit.
	w = doJSON(r, http.MethodGet, "/complaints?cursor=tok-1", "", nil)
	if w.Code != http.StatusOK || svc.pageArgs[0] != 0 {
		t.Fatalf("status=%d args=%v", w.Code, svc.pageArgs)
	}
}

func TestListComplaints_BadParams(t *testing.T) {
	svc := &stubComplaintSvc{}
	r := newComplaintRouter(svc)

	for _, q := range []string{"limit=0", "limit=-3", "limit=abc"} {
		w := doJSON(r, http.MethodGet, "/complaints?"+q, "", nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", q, w.Code)
		}
	}

	svc.listErr = services.ErrInvalidCursor
	w := doJSON(r, http.MethodGet, "/complaints?cursor=%25%25", "", nil)
	if w.Code != http.StatusBadRequest || errorBody(t, w)["code"] != ErrCodeInvalidCursor {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}

	svc.listErr = errors.New("db down")
	w = doJSON(r, http.MethodGet, "/complaints", "", nil)
	if w.Code != http.StatusInternalServerError || errorBody(t, w)["code"] != ErrCodeListFailed {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

// ---------- get + health ----------

func TestGetComplaint(t *testing.T) {
	cm := sampleComplaint()
	svc := &stubComplaintSvc{getFn: func(id string) (*domain.Complaint, error) {
		switch id {
		case cm.ID:
			return cm, nil
		case "00000000-0000-4000-8000-000000000001":
			return nil, errors.New("db down")
		}
		return nil, services.ErrComplaintNotFound
	}}
	r := newComplaintRouter(svc)

	w := doJSON(r, http.MethodGet, "/complaints/"+cm.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got domain.Complaint
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != cm.ID || got.Category != domain.CategoryShipping {
		t.Fatalf("unexpected complaint: %+v", got)
	}

	if w := doJSON(r, http.MethodGet, "/complaints/not-a-uuid", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/complaints/"+uuid.NewString(), "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/complaints/00000000-0000-4000-8000-000000000001", "", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("store failure status=%d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	svc := &stubComplaintSvc{statsN: 3}
	r := newComplaintRouter(svc)

	w := doJSON(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["complaints"] != float64(3) || body["newest_at"] == nil {
		t.Fatalf("body=%v", body)
	}

	svc.statsErr = errors.New("no table")
	if w := doJSON(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}
