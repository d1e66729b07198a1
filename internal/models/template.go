// Package models defines core data structures for templates, tags, mappings, and generations.
package models

import "time"

// Template represents an uploaded word-processing document whose markers have
// been extracted as tags. Version is bumped whenever the content is replaced
// while the current version already has mappings, so old mappings stay intact.
type Template struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	Version     int       `json:"version" db:"version"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Tag is a named placeholder extracted from template text. Name is canonical
// (lowercase, underscored) and is the identity mappings reference.
type Tag struct {
	ID           string    `json:"id" db:"id"`
	TemplateID   string    `json:"template_id" db:"template_id"`
	Name         string    `json:"name" db:"name"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Description  string    `json:"description,omitempty" db:"description"`
	ExpectedType string    `json:"expected_type,omitempty" db:"expected_type"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Field describes one column of the external data source.
type Field struct {
	Key  string `json:"key"`
	Type string `json:"type"` // "text", "number", or "date"
}

// Record is one row of the external data source. Values are keyed by field key.
type Record struct {
	Key    string            `json:"key"`
	Status string            `json:"status"`
	Values map[string]string `json:"values"`
}
