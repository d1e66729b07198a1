// Package storage defines persistence for templates, tags, mappings, the
// generation ledger, and stored binaries.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/sashikomi/internal/models"
)

// ErrNothingToSave is returned by SaveMappings when every entry was filtered
// out (empty field keys). Existing rows are left untouched.
var ErrNothingToSave = errors.New("nothing to save")

// ErrTerminal is returned when a terminal generation record would be mutated.
var ErrTerminal = errors.New("generation already in terminal state")

// Store defines relational persistence operations.
type Store interface {
	// Template operations
	CreateTemplate(ctx context.Context, tpl *models.Template) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context, userID string) ([]*models.Template, error)
	UpdateTemplate(ctx context.Context, tpl *models.Template) error
	DeleteTemplate(ctx context.Context, id string) error

	// Tag operations. ReplaceTags swaps the full tag set of a template;
	// DeleteTag cascades to the tag's mappings across all versions.
	ReplaceTags(ctx context.Context, templateID string, tags []models.Tag) error
	GetTags(ctx context.Context, templateID string) ([]models.Tag, error)
	DeleteTag(ctx context.Context, templateID, name string) error

	// Mapping store adapter. SaveMappings replaces all mappings for the exact
	// (template, version) pair; other versions are never touched. Usage counts
	// are bumped only when mappings are consumed, via MarkMappingsUsed.
	SaveMappings(ctx context.Context, templateID string, version int, mappings []models.Mapping) error
	VersionHasMappings(ctx context.Context, templateID string, version int) (bool, error)
	GetMappings(ctx context.Context, templateID string, version int) ([]models.Mapping, error)
	MarkMappingsUsed(ctx context.Context, templateID string, version int, tagNames []string) error

	// Generation ledger. Completed/failed are absorbing.
	CreateGeneration(ctx context.Context, rec *models.GenerationRecord) error
	SetGenerationProcessing(ctx context.Context, id string) error
	CompleteGeneration(ctx context.Context, id string, outputFilenames, fileURLs []string) error
	FailGeneration(ctx context.Context, id string, errorMessage string) error
	GetGeneration(ctx context.Context, id string) (*models.GenerationRecord, error)
	ListGenerations(ctx context.Context, userID string, offset, limit int) ([]*models.GenerationRecord, error)
	DeleteGeneration(ctx context.Context, id string) error

	// Stats
	CountTemplates(ctx context.Context) (int64, error)
	CountGenerations(ctx context.Context) (int64, error)

	Close() error
}

// ObjectStore persists binary artifacts. Paths are namespaced
// {userID}/{generationID}/{filename} (templates/{templateID}/{filename} for
// template binaries).
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	// DeletePrefix removes every object under the given prefix. Used when a
	// generation record is deleted together with its artifacts.
	DeletePrefix(ctx context.Context, prefix string) error
}
