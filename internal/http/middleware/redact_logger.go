package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions tunes RedactingLogger. MaskHeaders adds header names (case
// insensitive) whose values are replaced wholesale; Authorization, Cookie,
// Set-Cookie, Apikey, and X-Client-Info are always masked.
type RedactOptions struct {
	MaskHeaders []string
}

const redactedValue = "[REDACTED]"

// scrubber removes personal data from free-form strings. Complaint text and
// user_email travel in the body, which is never logged; this covers what
// leaks into query strings and headers.
type scrubber struct {
	masked map[string]struct{}
	rules  []scrubRule
}

type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

func newScrubber(extra []string) *scrubber {
	s := &scrubber{
		masked: map[string]struct{}{
			"authorization": {},
			"cookie":        {},
			"set-cookie":    {},
			"apikey":        {},
			"x-client-info": {},
		},
		// UUIDs go first: the phone pattern would otherwise eat their digit runs.
		rules: []scrubRule{
			{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
			{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
			{regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`), "[REDACTED:phone]"},
		},
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			s.masked[h] = struct{}{}
		}
	}
	return s
}

func (s *scrubber) text(v string) string {
	for _, r := range s.rules {
		if v == "" {
			break
		}
		v = r.re.ReplaceAllString(v, r.repl)
	}
	return v
}

func (s *scrubber) headers(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := s.masked[strings.ToLower(k)]; ok {
			d.Str(k, redactedValue)
			continue
		}
		d.Str(k, s.text(strings.Join(vv, ", ")))
	}
	return d
}

// RedactingLogger is the access logger. It attaches a request-scoped logger
// (request_id, client_id, method, route) that handlers reach through
// LoggerFrom, then writes one line per request once the response is done:
// "http_request" for ordinary calls and "stream_closed" for websocket and
// SSE connections. Level follows the outcome: error for 5xx or recorded gin
// errors, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	scrub := newScrubber(opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()
		streaming := IsStreaming(c)

		lg := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("client_id", ClientID(c)).
			Str("method", c.Request.Method).
			Str("path", routeLabel(c)).
			Logger()
		c.Set(loggerKey, &lg)

		// Scrub before the handler runs; handlers may consume headers.
		query := truncate(scrub.text(c.Request.URL.RawQuery), maxQueryLogLength)
		hdrs := scrub.headers(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= http.StatusBadRequest:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}

		msg := "http_request"
		if streaming {
			msg = "stream_closed"
		}
		ev.
			Str("query", query).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Bool("stream", streaming).
			Dict("headers", hdrs).
			Msg(msg)
	}
}
