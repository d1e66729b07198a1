package models

import (
	"fmt"
	"time"
)

// Generation statuses. Completed and Failed are terminal and absorbing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Generation types.
const (
	GenerationSingle = "single"
	GenerationBatch  = "batch"
)

// OutputKind selects the final artifact format of a generation.
type OutputKind string

const (
	OutputDOCX OutputKind = "docx"
	OutputPDF  OutputKind = "pdf"
	OutputText OutputKind = "text"
)

// ParseOutputKind validates a user-supplied output kind string.
func ParseOutputKind(s string) (OutputKind, error) {
	switch OutputKind(s) {
	case OutputDOCX, OutputPDF, OutputText:
		return OutputKind(s), nil
	case "":
		return OutputDOCX, nil
	default:
		return "", fmt.Errorf("invalid output kind %q (want docx, pdf, or text)", s)
	}
}

// GenerationRecord tracks the lifecycle of one generation request and the
// artifacts it produced. DocumentsCount always equals len(OutputFilenames).
type GenerationRecord struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	TemplateID      string     `json:"template_id" db:"template_id"`
	Type            string     `json:"type" db:"type"`
	DocumentsCount  int        `json:"documents_count" db:"documents_count"`
	InputData       string     `json:"input_data,omitempty" db:"input_data"`
	OutputFilenames []string   `json:"output_filenames" db:"output_filenames"`
	FileURLs        []string   `json:"file_urls" db:"file_urls"`
	Status          string     `json:"status" db:"status"`
	ErrorMessage    string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// GenerateRequest is the programmatic entry point's input. Exactly one of
// Data, CustomerKeys, or neither (all unprocessed records) supplies values.
type GenerateRequest struct {
	UserID             string                 `json:"-"`
	TemplateID         string                 `json:"template_id"`
	Data               map[string]interface{} `json:"data,omitempty"`
	CustomerKeys       []string               `json:"customer_keys,omitempty"`
	OutputKind         string                 `json:"output_kind"`
	UpdateSourceStatus bool                   `json:"update_source_status"`
	UseSecondary       bool                   `json:"use_secondary,omitempty"`
}
