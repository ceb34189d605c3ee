package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-complaint-triage/internal/http/middleware"
)

func serveEnvelope(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/complaints", h)

	req := httptest.NewRequest(http.MethodGet, "/complaints", nil)
	req.Header.Set(middleware.HeaderRequestID, "rid-env")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, &buf
}

func TestFail_Envelope(t *testing.T) {
	cases := []struct {
		status  int
		code    string
		msg     string
		wantLog bool
	}{
		{http.StatusBadRequest, ErrCodeValidationFailed, "Complaint text is required", false},
		{http.StatusNotFound, ErrCodeNotFound, "complaint not found", false},
		{http.StatusInternalServerError, ErrCodeInternal, "Failed to save complaint", true},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w, buf := serveEnvelope(t, func(c *gin.Context) {
				Fail(c, tc.status, tc.code, tc.msg)
			})

			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d", w.Code, tc.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode %q: %v", w.Body.String(), err)
			}
			if resp != (ErrorResponse{RequestID: "rid-env", Code: tc.code, Error: tc.msg}) {
				t.Fatalf("body = %+v", resp)
			}
			if logged := bytes.Contains(buf.Bytes(), []byte(`"message":"api error"`)); logged != tc.wantLog {
				t.Fatalf("logged = %v; want %v (%s)", logged, tc.wantLog, buf.String())
			}
		})
	}
}

func TestOK(t *testing.T) {
	w, _ := serveEnvelope(t, func(c *gin.Context) {
		ok(c, http.StatusOK, ListComplaintsResponse{Complaints: nil})
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, present := body["complaints"]; !present {
		t.Fatalf("complaints key missing: %s", w.Body.String())
	}
}
