package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// ErrMalformedOutput is returned by ParseAnalysis when the model output is not
// a usable analysis.
var ErrMalformedOutput = errors.New("malformed classifier output")

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// rawAnalysis mirrors the wire shape. Pointers distinguish missing fields
// from zero values; unknown fields are ignored.
type rawAnalysis struct {
	Category      *string          `json:"category"`
	Urgency       *string          `json:"urgency"`
	PriorityScore *json.RawMessage `json:"priority_score"`
	Reasoning     *string          `json:"reasoning"`
}

// ParseAnalysis decodes model output into a validated analysis. The content
// may be bare JSON or wrapped in a markdown code fence. All four fields are
// required, category and urgency are matched case-insensitively and returned
// in canonical spelling, and priority_score must be an integer in range.
func ParseAnalysis(content string) (domain.Analysis, error) {
	content = strings.TrimSpace(content)

	raw, err := decodeRaw(content)
	if err != nil {
		m := jsonBlockRegex.FindStringSubmatch(content)
		if len(m) < 2 {
			return domain.Analysis{}, fmt.Errorf("%w: not JSON", ErrMalformedOutput)
		}
		if raw, err = decodeRaw(strings.TrimSpace(m[1])); err != nil {
			return domain.Analysis{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
	}

	switch {
	case raw.Category == nil:
		return domain.Analysis{}, missing("category")
	case raw.Urgency == nil:
		return domain.Analysis{}, missing("urgency")
	case raw.PriorityScore == nil:
		return domain.Analysis{}, missing("priority_score")
	case raw.Reasoning == nil:
		return domain.Analysis{}, missing("reasoning")
	}

	cat, ok := domain.ParseCategory(*raw.Category)
	if !ok {
		return domain.Analysis{}, fmt.Errorf("%w: unknown category %q", ErrMalformedOutput, *raw.Category)
	}
	urg, ok := domain.ParseUrgency(*raw.Urgency)
	if !ok {
		return domain.Analysis{}, fmt.Errorf("%w: unknown urgency %q", ErrMalformedOutput, *raw.Urgency)
	}
	score, err := integerScore(*raw.PriorityScore)
	if err != nil {
		return domain.Analysis{}, err
	}

	a := domain.Analysis{
		Category:      cat,
		Urgency:       urg,
		PriorityScore: score,
		Reasoning:     strings.TrimSpace(*raw.Reasoning),
	}
	if err := a.Validate(); err != nil {
		return domain.Analysis{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return a, nil
}

func decodeRaw(s string) (rawAnalysis, error) {
	var raw rawAnalysis
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	if err := dec.Decode(&raw); err != nil {
		return raw, err
	}
	// Trailing content after the object means the model added prose.
	if dec.More() {
		return raw, errors.New("trailing data after JSON object")
	}
	return raw, nil
}

// integerScore accepts 7 and 7.0 but rejects 7.5, quoted numbers such as
// "7", and out-of-range values.
func integerScore(raw json.RawMessage) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: priority_score: %v", ErrMalformedOutput, err)
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: priority_score %s is not a number", ErrMalformedOutput, raw)
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: priority_score %q is not an integer", ErrMalformedOutput, n.String())
	}
	if f < domain.MinPriority || f > domain.MaxPriority {
		return 0, fmt.Errorf("%w: priority_score %v outside %d-%d", ErrMalformedOutput, f, domain.MinPriority, domain.MaxPriority)
	}
	return int(f), nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing field %q", ErrMalformedOutput, field)
}
