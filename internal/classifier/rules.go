package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-complaint-triage/internal/domain"
	"github.com/tbourn/go-complaint-triage/internal/search"
)

//go:embed exemplars.md
var defaultExemplars string

//go:embed urgency.md
var defaultUrgencyCues string

var stopwords = []string{
	"a", "an", "and", "the", "i", "my", "me", "is", "it", "to", "of", "on",
	"in", "for", "was", "has", "have", "be", "or", "not", "no", "but", "with",
}

// basePriority is the starting score for each urgency level.
var basePriority = map[domain.Urgency]int{
	domain.UrgencyLow:      2,
	domain.UrgencyMedium:   5,
	domain.UrgencyHigh:     7,
	domain.UrgencyCritical: 9,
}

// Rules is an offline Classifier. Category comes from the labeled exemplar
// index; urgency from a second index of cue words; priority from urgency plus
// emphasis in the text. It never calls out to the network.
type Rules struct {
	categories search.Index
	urgency    search.Index
}

// NewRules builds a rules classifier from the given indices. A nil urgency
// index uses the built-in cue words.
func NewRules(categories, urgency search.Index) *Rules {
	if urgency == nil {
		urgency = mustIndex(defaultUrgencyCues, search.WithMinRunes(0))
	}
	return &Rules{categories: categories, urgency: urgency}
}

// NewDefaultRules uses the built-in exemplars.
func NewDefaultRules() *Rules {
	return NewRules(mustIndex(defaultExemplars, search.WithStopwords(stopwords)), nil)
}

// NewRulesFromMarkdown loads category exemplars from a labeled Markdown file.
func NewRulesFromMarkdown(path string) (*Rules, error) {
	idx, err := search.NewIndexFromMarkdown(path, search.WithStopwords(stopwords))
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		return nil, fmt.Errorf("rules: no exemplars in %s", path)
	}
	return NewRules(idx, nil), nil
}

func mustIndex(md string, opts ...search.Option) search.Index {
	idx, err := search.NewIndexFromReader(strings.NewReader(md), opts...)
	if err != nil {
		panic(err)
	}
	return idx
}

// Classify implements Classifier.
func (r *Rules) Classify(ctx context.Context, text string) (domain.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return domain.Analysis{}, &Error{Message: "classification cancelled", Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return domain.Analysis{}, &Error{Message: "nothing to classify", Err: ErrMalformedOutput}
	}

	cat := domain.CategoryOther
	var match string
	for _, ls := range r.categories.Rank(text) {
		if c, ok := domain.ParseCategory(ls.Label); ok {
			cat = c
			break
		}
	}
	if cat != domain.CategoryOther {
		for _, res := range r.categories.TopK(text, 5) {
			if res.Label == string(cat) {
				match = res.Snippet
				break
			}
		}
	}

	urg := domain.UrgencyLow
	if cat != domain.CategoryOther {
		urg = domain.UrgencyMedium
	}
	cues := 0
	for i, ls := range r.urgency.Rank(text) {
		u, ok := domain.ParseUrgency(ls.Label)
		if !ok {
			continue
		}
		if i == 0 {
			urg = maxUrgency(urg, u)
		}
		cues += ls.Hits
	}

	score := basePriority[urg]
	if strings.Count(text, "!") >= 2 || cues >= 3 {
		score++
	}
	if score > domain.MaxPriority {
		score = domain.MaxPriority
	}

	a := domain.Analysis{
		Category:      cat,
		Urgency:       urg,
		PriorityScore: score,
		Reasoning:     reasoning(cat, urg, match),
	}
	if err := a.Validate(); err != nil {
		return domain.Analysis{}, &Error{Message: "rules produced an invalid analysis", Err: err}
	}
	return a, nil
}

func maxUrgency(a, b domain.Urgency) domain.Urgency {
	if basePriority[b] > basePriority[a] {
		return b
	}
	return a
}

func reasoning(cat domain.Category, urg domain.Urgency, match string) string {
	var s string
	if match == "" {
		s = fmt.Sprintf("%s urgency, no category keywords matched", urg)
	} else {
		s = fmt.Sprintf("%s urgency, resembles %q", urg, match)
	}
	if cat != domain.CategoryOther {
		s = string(cat) + ": " + s
	}
	if utf8.RuneCountInString(s) > MaxReasoningRunes {
		s = string([]rune(s)[:MaxReasoningRunes])
	}
	return s
}
