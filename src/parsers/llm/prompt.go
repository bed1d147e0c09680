// Package llm implements extraction strategies backed by hosted language
// models. Both providers share the prompt and response handling here.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/username/taxcore/src/models"
)

// maxDocumentChars bounds the prompt; statements longer than this are
// truncated and the model is told so.
const maxDocumentChars = 60000

var formNames = map[models.DocumentType]string{
	models.DocTypeW2:      "IRS Form W-2 (Wage and Tax Statement)",
	models.DocType1099Div: "IRS Form 1099-DIV (Dividends and Distributions)",
	models.DocType1099Int: "IRS Form 1099-INT (Interest Income)",
	models.DocType1099B:   "IRS Form 1099-B (Proceeds From Broker and Barter Exchange Transactions)",
}

func template(docType models.DocumentType) (interface{}, error) {
	switch docType {
	case models.DocTypeW2:
		return models.W2Fields{}, nil
	case models.DocType1099Div:
		return models.Form1099DivFields{}, nil
	case models.DocType1099Int:
		return models.Form1099IntFields{}, nil
	case models.DocType1099B:
		return models.Form1099BFields{Entries: []models.Form1099BEntryFields{{}}}, nil
	}
	return nil, fmt.Errorf("no extraction template for document type %q", docType)
}

// BuildPrompt asks for a JSON object holding the form fields and a
// self-reported confidence.
func BuildPrompt(docType models.DocumentType, rawText string) (string, error) {
	tmpl, err := template(docType)
	if err != nil {
		return "", err
	}
	shape, err := json.MarshalIndent(map[string]interface{}{"confidence": 0.0, "fields": tmpl}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal template: %w", err)
	}

	truncated := false
	if len(rawText) > maxDocumentChars {
		cut := maxDocumentChars
		for cut > 0 && !utf8.RuneStart(rawText[cut]) {
			cut--
		}
		rawText = rawText[:cut]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString("Extract the fields of this ")
	sb.WriteString(formNames[docType])
	sb.WriteString(". Return JSON only.\n\n")
	sb.WriteString("Return a JSON object with exactly this structure:\n")
	sb.Write(shape)
	sb.WriteString(`

Rules:
- Money values are strings with a plain decimal number, e.g. "12345.67" or "-50.00". No currency symbols or thousands separators.
- Use null for 1099-B proceeds or cost_basis left blank on the statement; use "0" for other blank boxes.
- Dates are YYYY-MM-DD, or "VARIOUS" when the statement says so.
- state_code is the two-letter postal abbreviation.
- is_short_term is true for short-term lots; reported_to_irs is false for noncovered lots.
- confidence is 0.0-1.0: how sure you are that every value was read correctly.
- Do not invent values that are not printed on the document.
`)
	if truncated {
		sb.WriteString("- The document was truncated; lower your confidence if fields may be missing.\n")
	}
	sb.WriteString("\nDocument text:\n")
	sb.WriteString(rawText)
	sb.WriteString("\n\nReturn ONLY the JSON, no other text.")
	return sb.String(), nil
}

type response struct {
	Confidence float64         `json:"confidence"`
	Fields     json.RawMessage `json:"fields"`
}

// ParseResponse decodes a model reply into an extraction result.
func ParseResponse(docType models.DocumentType, reply string) (models.ExtractionResult, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)

	var r response
	if err := json.Unmarshal([]byte(reply), &r); err != nil {
		return models.ExtractionResult{}, fmt.Errorf("parse json: %w", err)
	}
	if len(r.Fields) == 0 || string(r.Fields) == "null" {
		return models.ExtractionResult{}, fmt.Errorf("response has no fields")
	}

	fields := models.ExtractedFields{DocumentType: docType}
	var err error
	switch docType {
	case models.DocTypeW2:
		fields.W2 = &models.W2Fields{}
		err = json.Unmarshal(r.Fields, fields.W2)
	case models.DocType1099Div:
		fields.Div = &models.Form1099DivFields{}
		err = json.Unmarshal(r.Fields, fields.Div)
	case models.DocType1099Int:
		fields.Int = &models.Form1099IntFields{}
		err = json.Unmarshal(r.Fields, fields.Int)
	case models.DocType1099B:
		fields.B = &models.Form1099BFields{}
		err = json.Unmarshal(r.Fields, fields.B)
	default:
		return models.ExtractionResult{}, fmt.Errorf("unsupported document type %q", docType)
	}
	if err != nil {
		return models.ExtractionResult{}, fmt.Errorf("decode %s fields: %w", docType, err)
	}
	return models.ExtractionResult{Fields: fields, Confidence: r.Confidence}, nil
}
