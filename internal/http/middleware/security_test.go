package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, prep func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(SecurityHeaders(opt))
	r.GET("/complaints", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"complaints": []any{}}) })

	req := httptest.NewRequest(http.MethodGet, "/complaints", nil)
	if prep != nil {
		prep(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveSecurity(t, SecurityOptions{}, nil)
	h := w.Header()

	for name, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	} {
		if got := h.Get(name); got != want {
			t.Fatalf("%s = %q; want %q", name, got, want)
		}
	}
	for _, absent := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(absent) != "" {
			t.Fatalf("%s should not be set by default", absent)
		}
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != HeaderRequestID {
		t.Fatalf("expose headers = %q", got)
	}
}

func TestSecurityHeaders_PolicyNoStoreAndHSTS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, NoStore: true, EnablePolicy: true}
	w := serveSecurity(t, opt, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	h := w.Header()

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
	if got := h.Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true}

	if w := serveSecurity(t, opt, nil); w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS sent over plain HTTP")
	}
	w := serveSecurity(t, opt, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") })
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default HSTS via proxy = %q", got)
	}
}

func Test_exposeHeader(t *testing.T) {
	h := http.Header{}
	exposeHeader(h, "ETag")
	exposeHeader(h, "X-Request-ID")
	exposeHeader(h, "x-request-id")
	if got := h.Get("Access-Control-Expose-Headers"); got != "ETag, X-Request-ID" {
		t.Fatalf("expose = %q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(r) {
		t.Fatalf("plain request reported as HTTPS")
	}
	r.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(r) {
		t.Fatalf("forwarded proto ignored")
	}
	r.Header.Del("X-Forwarded-Proto")
	r.TLS = &tls.ConnectionState{}
	if !isHTTPS(r) {
		t.Fatalf("TLS request not HTTPS")
	}
}
