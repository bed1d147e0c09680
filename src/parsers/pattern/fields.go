package pattern

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/utils"
)

// amountPattern matches printed money values: cents are required unless a
// dollar sign is present, so box numbers are not mistaken for amounts.
const amountPattern = `\(?-?\$\s?(?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{2})?\)?-?|\(?-?(?:\d{1,3}(?:,\d{3})+|\d+)\.\d{2}\)?-?`

var (
	einRe        = regexp.MustCompile(`\b\d{2}-\d{7}\b`)
	spaceRe      = regexp.MustCompile(`[ \t\x{00a0}]+`)
	labelGapExpr = `[^\d$(\n]{0,40}\n?[^\d$(\n]{0,40}`
	glyphFolder  = strings.NewReplacer("\u2019", "'", "\u2010", "-", "\u2011", "-", "\u2013", "-", "\u2014", "-")
)

// normalizeLines keeps line structure but collapses horizontal whitespace.
func normalizeLines(raw string) string {
	raw = glyphFolder.Replace(strings.ReplaceAll(raw, "\r\n", "\n"))
	lines := strings.Split(raw, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(l, " "))
	}
	return strings.Join(lines, "\n")
}

// weighted tracks how much of a form was recognised. Missing a required
// field halves the score so the result cannot pass on the other fields.
type weighted struct {
	found, total float64
	missing      bool
}

func (w *weighted) add(weight float64, hit bool) {
	w.total += weight
	if hit {
		w.found += weight
	}
}

func (w weighted) confidence() float64 {
	if w.total == 0 {
		return 0
	}
	c := w.found / w.total
	if w.missing {
		c /= 2
	}
	return c
}

// amountRule finds the first amount printed after one of its labels.
type amountRule struct {
	weight   float64
	required bool
	labels   []*regexp.Regexp
	bare     []*regexp.Regexp
}

func newAmountRule(weight float64, labels ...string) amountRule {
	r := amountRule{weight: weight}
	for _, l := range labels {
		r.labels = append(r.labels, regexp.MustCompile(`(?i:`+l+`)`+labelGapExpr+`(`+amountPattern+`)`))
		r.bare = append(r.bare, regexp.MustCompile(`(?i:`+l+`)`))
	}
	return r
}

func (r amountRule) asRequired() amountRule {
	r.required = true
	return r
}

// apply stores the amount and scores the rule. A label with no readable
// amount next to it reads as zero and earns nothing.
func (r amountRule) apply(text string, w *weighted, dst *decimal.Decimal) {
	for _, re := range r.labels {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, err := utils.ParseAmount(m[1]); err == nil {
			*dst = v
			w.add(r.weight, true)
			return
		}
	}
	*dst = decimal.Zero
	w.add(r.weight, false)
	if r.required {
		w.missing = true
	}
}

type labelSpan struct {
	start, end int
}

// labelSpans returns the non-overlapping label matches of rules in line,
// left to right.
func labelSpans(line string, rules []amountRule) []labelSpan {
	var spans []labelSpan
	for _, r := range rules {
		for _, re := range r.bare {
			for _, loc := range re.FindAllStringIndex(line, -1) {
				spans = append(spans, labelSpan{loc[0], loc[1]})
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	out := spans[:0]
	for _, sp := range spans {
		if len(out) > 0 && sp.start < out[len(out)-1].end {
			continue
		}
		out = append(out, sp)
	}
	return out
}

// unfoldLabelRows rewrites lines that carry two or more box labels (the
// two-column form layout) so every label sits on its own line with its
// amount. Labels without an inline amount take the amounts of the following
// line by column order when the counts agree; otherwise they are left bare
// so they cannot pick up a neighbouring box's value.
func unfoldLabelRows(text string, rules []amountRule) string {
	lines := strings.Split(text, "
")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		spans := labelSpans(line, rules)
		if len(spans) < 2 {
			out = append(out, line)
			continue
		}

		if prefix := strings.TrimSpace(line[:spans[0].start]); strings.IndexFunc(prefix, unicode.IsLetter) >= 0 {
			out = append(out, prefix)
		}
		var inline []string
		var bare []labelSpan
		for k, sp := range spans {
			end := len(line)
			if k+1 < len(spans) {
				end = spans[k+1].start
			}
			if amountRe.MatchString(line[sp.end:end]) {
				inline = append(inline, strings.TrimSpace(line[sp.start:end]))
			} else {
				bare = append(bare, sp)
			}
		}
		out = append(out, inline...)
		if len(bare) == 0 {
			continue
		}

		var values []string
		if i+1 < len(lines) && len(labelSpans(lines[i+1], rules)) == 0 {
			values = amountRe.FindAllString(lines[i+1], -1)
		}
		if len(values) != len(bare) {
			for _, sp := range bare {
				out = append(out, line[sp.start:sp.end], "")
			}
			continue
		}
		if rest := strings.TrimSpace(spaceRe.ReplaceAllString(amountRe.ReplaceAllString(lines[i+1], ""), " ")); rest != "" {
			out = append(out, rest)
		}
		for k, sp := range bare {
			out = append(out, line[sp.start:sp.end]+" "+values[k])
		}
		i++
	}
	return strings.Join(out, "\n")
}

// textAfter returns the rest of the line following a label, or the next
// line when the label ends its own line.
func textAfter(text string, labels ...string) string {
	for _, l := range labels {
		re := regexp.MustCompile(`(?i:` + l + `)[:\s]*([^\n]*)(?:\n([^\n]*))?`)
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
		if v := strings.TrimSpace(m[2]); v != "" {
			return v
		}
	}
	return ""
}

// findTIN returns the first EIN-shaped identifier after one of the labels,
// falling back to the first one anywhere in the text.
func findTIN(text string, labels ...string) string {
	for _, l := range labels {
		re := regexp.MustCompile(`(?i:` + l + `)[^\n]{0,60}?\n?[^\n]{0,40}?(\d{2}-\d{7})`)
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return einRe.FindString(text)
}
