// Package datasource resolves external tabular records and projects them into
// tag-keyed value maps using a template version's mappings.
package datasource

import (
	"context"

	"github.com/hyperjump/sashikomi/internal/models"
)

// Source is the external tabular data source collaborator.
type Source interface {
	// Fields returns the source's columns with inferred types.
	Fields(ctx context.Context) ([]models.Field, error)
	// SelectByStatus returns every record whose status column equals status.
	SelectByStatus(ctx context.Context, status string) ([]models.Record, error)
	// SelectByKeys returns exactly the records with the given keys; a missing
	// key is an error.
	SelectByKeys(ctx context.Context, keys []string) ([]models.Record, error)
	// UpdateStatus sets the status column of one record.
	UpdateStatus(ctx context.Context, key, status string) error
}
