package models

import (
	"encoding/json"
	"time"
)

// DocumentType is the classification assigned to an uploaded document.
type DocumentType string

const (
	DocTypeW2      DocumentType = "w2"
	DocType1099Div DocumentType = "1099_div"
	DocType1099Int DocumentType = "1099_int"
	DocType1099B   DocumentType = "1099_b"
	DocTypeUnknown DocumentType = "unknown"
)

func (t DocumentType) Known() bool {
	switch t {
	case DocTypeW2, DocType1099Div, DocType1099Int, DocType1099B:
		return true
	}
	return false
}

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusParsed     DocumentStatus = "parsed"
	StatusError      DocumentStatus = "error"
)

type ParsingMethod string

const (
	MethodPattern ParsingMethod = "pattern"
	MethodLLM     ParsingMethod = "llm"
	MethodManual  ParsingMethod = "manual"
)

type Document struct {
	ID              string         `json:"id"`
	TaxReturnID     string         `json:"tax_return_id"`
	FileName        string         `json:"file_name"`
	FileType        string         `json:"file_type"`
	DocumentType    DocumentType   `json:"document_type"`
	Status          DocumentStatus `json:"status"`
	ParsingMethod   ParsingMethod  `json:"parsing_method,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	RawTextContent  string         `json:"-"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ParsingAttempt is one audit row per extraction strategy tried on a document.
type ParsingAttempt struct {
	ID               string          `json:"id"`
	DocumentID       string          `json:"document_id"`
	ParsingMethod    ParsingMethod   `json:"parsing_method"`
	Provider         string          `json:"provider"`
	ConfidenceScore  float64         `json:"confidence_score"`
	ExtractedData    json.RawMessage `json:"extracted_data,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ExtractedFields holds the structured record for exactly one document type.
type ExtractedFields struct {
	DocumentType DocumentType       `json:"document_type"`
	W2           *W2Fields          `json:"w2,omitempty"`
	Div          *Form1099DivFields `json:"div,omitempty"`
	Int          *Form1099IntFields `json:"int,omitempty"`
	B            *Form1099BFields   `json:"b,omitempty"`
}

// Empty reports whether no field set has been populated.
func (f ExtractedFields) Empty() bool {
	return f.W2 == nil && f.Div == nil && f.Int == nil && f.B == nil
}

// ExtractionResult is what a single strategy returns.
type ExtractionResult struct {
	Fields     ExtractedFields `json:"fields"`
	Confidence float64         `json:"confidence"`
}
