// Package search provides a small, deterministic, concurrency-safe in-memory
// index of labeled exemplar texts. The offline complaint classifier uses it to
// find which category's exemplars a complaint most resembles.
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with case folding and optional stop words
//   - Immutable, read-only index after construction (safe for concurrent use)
//   - Deterministic scoring and sorting (stable order for ties)
//
// Scoring uses Jaccard similarity between the query token set and each
// exemplar's token set: score = |Q ∩ D| / |Q ∪ D|.
package search

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Doc is one exemplar text tagged with the label it illustrates.
type Doc struct {
	Label string
	Text  string
}

// Result is a ranked exemplar with its similarity score.
type Result struct {
	Label   string
	Snippet string
	Score   float64
}

// LabelScore is the summed similarity of all exemplars sharing a label.
type LabelScore struct {
	Label string
	Score float64
	Hits  int
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Rank(query string) []LabelScore
	Len() int
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minRunes  int
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{
		minRunes:  3,
		stopwords: nil,
		maxDocs:   0,
	}
}

// WithMinRunes drops exemplars shorter than n runes.
func WithMinRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = fold(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	label  string
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndexFromMarkdown builds an Index from a labeled Markdown file. See
// ParseLabeledMarkdown for the accepted layout.
func NewIndexFromMarkdown(path string, opts ...Option) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return &index{cfg: defaultConfig(), docs: nil}, err
	}
	return NewIndexFromReader(bytes.NewReader(b), opts...)
}

// NewIndexFromReader builds an Index from labeled Markdown provided by r.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	docs, err := ParseLabeledMarkdown(r)
	if err != nil {
		return &index{cfg: cfg, docs: nil}, err
	}
	return buildIndex(docs, cfg), nil
}

// NewIndex builds an Index directly from exemplars.
func NewIndex(docs []Doc, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(docs, cfg)
}

func buildIndex(in []Doc, cfg config) *index {
	docs := make([]doc, 0, len(in))
	for _, d := range in {
		t := strings.TrimSpace(normalizeWhitespace(d.Text))
		label := strings.TrimSpace(d.Label)
		if t == "" || label == "" {
			continue
		}
		if cfg.minRunes > 0 && utf8.RuneCountInString(t) < cfg.minRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{label: label, text: t, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

func (i *index) Len() int { return len(i.docs) }

type scored struct {
	label    string
	snippet  string
	score    float64
	lenRunes int
}

func (i *index) score(q string) []scored {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	var buf []scored
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + d.tLen - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			label:    d.label,
			snippet:  d.text,
			score:    float64(over) / union,
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	return buf
}

// TopK returns up to k best-matching exemplars by Jaccard similarity.
func (i *index) TopK(q string, k int) []Result {
	buf := i.score(q)
	if len(buf) == 0 {
		return nil
	}
	if k <= 0 {
		k = 3
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].snippet < buf[b].snippet
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Label: buf[n].label, Snippet: buf[n].snippet, Score: buf[n].score}
	}
	return out
}

// Rank sums exemplar scores per label and returns labels best first. Labels
// with no overlapping exemplar are omitted. Ties break on label name.
func (i *index) Rank(q string) []LabelScore {
	buf := i.score(q)
	if len(buf) == 0 {
		return nil
	}
	agg := make(map[string]*LabelScore)
	for _, s := range buf {
		ls, ok := agg[s.label]
		if !ok {
			ls = &LabelScore{Label: s.label}
			agg[s.label] = ls
		}
		ls.Score += s.score
		ls.Hits++
	}
	out := make([]LabelScore, 0, len(agg))
	for _, ls := range agg {
		out = append(out, *ls)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Label < out[b].Label
	})
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

var folder = cases.Fold()

// fold applies Unicode case folding on the NFKC form so that "Ｒｅｆｕｎｄ" and
// "refund" tokenize identically.
func fold(s string) string {
	return folder.String(norm.NFKC.String(s))
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(fold(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
