package parsers

import (
	"strings"

	"github.com/username/taxcore/src/models"
)

var textFolder = strings.NewReplacer(
	"\u00a0", " ",
	"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-",
	"\u2019", "'",
)

// NormalizeText lower-cases, folds non-breaking spaces and unicode dashes,
// and collapses runs of whitespace into a single space.
func NormalizeText(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(textFolder.Replace(raw))), " ")
}

type signatureRule struct {
	docType   models.DocumentType
	markers   []string
	labels    []string
	minLabels int
}

// Rules are evaluated in order and the first match wins. Composite broker
// statements carry every 1099 marker, so 1099-B is checked first.
var signatureRules = []signatureRule{
	{
		docType:   models.DocType1099B,
		markers:   []string{"1099-b", "1099b", "proceeds from broker"},
		labels:    []string{"proceeds", "cost basis", "cost or other basis", "date sold", "date acquired", "wash sale"},
		minLabels: 2,
	},
	{
		docType:   models.DocType1099Div,
		markers:   []string{"1099-div", "1099div", "dividends and distributions"},
		labels:    []string{"ordinary dividends", "qualified dividends", "capital gain distr", "foreign tax paid"},
		minLabels: 1,
	},
	{
		docType:   models.DocType1099Int,
		markers:   []string{"1099-int", "1099int"},
		labels:    []string{"interest income", "early withdrawal penalty", "treasury obligations", "tax-exempt interest"},
		minLabels: 1,
	},
	{
		docType:   models.DocTypeW2,
		markers:   []string{"w-2", "form w2", "wage and tax statement"},
		labels:    []string{"wages, tips", "federal income tax withheld", "social security wages", "medicare wages", "employer identification number"},
		minLabels: 2,
	},
}

// ClassificationScore reports how strongly one rule matched.
type ClassificationScore struct {
	DocumentType  models.DocumentType `json:"document_type"`
	Marker        string              `json:"marker"`
	LabelsMatched int                 `json:"labels_matched"`
	LabelsTotal   int                 `json:"labels_total"`
}

// Classify returns the first document type whose signature matches, or
// unknown when none does.
func Classify(rawText string) models.DocumentType {
	text := NormalizeText(rawText)
	for _, rule := range signatureRules {
		if _, ok := rule.match(text); ok {
			return rule.docType
		}
	}
	return models.DocTypeUnknown
}

// ClassifyWithScores reports every matching rule in evaluation order, so a
// caller can see when a document carries more than one signature.
func ClassifyWithScores(rawText string) []ClassificationScore {
	text := NormalizeText(rawText)
	var scores []ClassificationScore
	for _, rule := range signatureRules {
		if s, ok := rule.match(text); ok {
			scores = append(scores, s)
		}
	}
	return scores
}

func (r signatureRule) match(text string) (ClassificationScore, bool) {
	marker := ""
	for _, m := range r.markers {
		if strings.Contains(text, m) {
			marker = m
			break
		}
	}
	if marker == "" {
		return ClassificationScore{}, false
	}
	found := 0
	for _, l := range r.labels {
		if strings.Contains(text, l) {
			found++
		}
	}
	if found < r.minLabels {
		return ClassificationScore{}, false
	}
	return ClassificationScore{
		DocumentType:  r.docType,
		Marker:        marker,
		LabelsMatched: found,
		LabelsTotal:   len(r.labels),
	}, true
}
