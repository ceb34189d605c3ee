package search

import (
	"bufio"
	"io"
	"strings"
)

// ParseLabeledMarkdown reads exemplars from Markdown laid out as
//
//	## Shipping
//	- package arrived late
//	| tracking | never updated |
//
// Any ATX heading sets the label for the lines that follow. Every non-empty
// line below a heading is one exemplar: list markers are stripped and table
// rows are flattened into a single line of their non-empty cells. Separator
// rows and lines before the first heading are ignored.
func ParseLabeledMarkdown(r io.Reader) ([]Doc, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		out   []Doc
		label string
	)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			label = strings.TrimSpace(strings.TrimLeft(line, "#"))
			continue
		}
		if label == "" {
			continue
		}

		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			if text, ok := flattenRow(line); ok {
				out = append(out, Doc{Label: label, Text: text})
			}
			continue
		}

		for _, m := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(line, m) {
				line = strings.TrimSpace(line[len(m):])
				break
			}
		}
		if line != "" {
			out = append(out, Doc{Label: label, Text: line})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// flattenRow joins the non-empty cells of a table row. It reports false for
// header separator rows such as "|---|:--:|".
func flattenRow(line string) (string, bool) {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	cleaned := make([]string, 0, len(cols))
	allSep := true
	for _, c := range cols {
		cell := strings.TrimSpace(c)
		if cell != "" {
			cleaned = append(cleaned, cell)
		}
		tmp := strings.NewReplacer(":", "", "-", "").Replace(cell)
		if strings.TrimSpace(tmp) != "" {
			allSep = false
		}
	}
	if allSep || len(cleaned) == 0 {
		return "", false
	}
	return strings.Join(cleaned, " "), true
}
