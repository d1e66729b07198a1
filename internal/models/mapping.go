package models

import "time"

// Mapping associates a tag with a field of the external data source, scoped to
// one template version. Unique per (template_id, template_version, tag_name).
type Mapping struct {
	ID              string     `json:"id" db:"id"`
	TemplateID      string     `json:"template_id" db:"template_id"`
	TemplateVersion int        `json:"template_version" db:"template_version"`
	TagName         string     `json:"tag_name" db:"tag_name"`
	FieldKey        string     `json:"field_key" db:"field_key"`
	Confidence      float64    `json:"confidence" db:"confidence"`
	IsManual        bool       `json:"is_manual" db:"is_manual"`
	IsVerified      bool       `json:"is_verified" db:"is_verified"`
	UsageCount      int        `json:"usage_count" db:"usage_count"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// LoadedData is the Data Loader's projection of external records into
// tag-keyed values. A value is a string for one record and []string for many,
// aligned by record order across all tags.
type LoadedData struct {
	TagValues   map[string]interface{} `json:"tag_values"`
	RecordKeys  []string               `json:"record_keys"`
	RecordCount int                    `json:"record_count"`
}
