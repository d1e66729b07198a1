package datasource

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/mapping"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/storage"
)

// Loader resolves external records and projects them into tag-keyed values
// using the mappings of one template version.
type Loader struct {
	store       storage.Store
	source      Source
	unprocessed string
	logger      *zap.Logger
}

// NewLoader returns a Loader. unprocessed is the status sentinel used when no
// explicit record keys are given.
func NewLoader(store storage.Store, source Source, unprocessed string, logger *zap.Logger) *Loader {
	return &Loader{store: store, source: source, unprocessed: unprocessed, logger: logger}
}

// Load resolves records (by explicit keys, or by the unprocessed status
// sentinel when keys is empty) and projects them through the version's
// mappings. One record yields scalar values; several yield arrays aligned by
// record order across all tags. Consumed mappings get their usage bumped.
func (l *Loader) Load(ctx context.Context, templateID string, version int, keys []string) (*models.LoadedData, error) {
	mappings, err := l.store.GetMappings(ctx, templateID, version)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("no mappings configured for template %s version %d", templateID, version)
	}

	fields, err := l.source.Fields(ctx)
	if err != nil {
		return nil, err
	}
	if errs := mapping.Validate(mappings, fields); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid mappings for template %s version %d: %s", templateID, version, strings.Join(msgs, "; "))
	}

	var records []models.Record
	if len(keys) > 0 {
		records, err = l.source.SelectByKeys(ctx, keys)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("no records found for keys %v", keys)
		}
	} else {
		records, err = l.source.SelectByStatus(ctx, l.unprocessed)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("no records found with status %q", l.unprocessed)
		}
	}

	data := &models.LoadedData{
		TagValues:   make(map[string]interface{}, len(mappings)),
		RecordCount: len(records),
	}
	for _, r := range records {
		data.RecordKeys = append(data.RecordKeys, r.Key)
	}

	consumed := make([]string, 0, len(mappings))
	for _, m := range mappings {
		if m.FieldKey == "" {
			continue
		}
		if len(records) == 1 {
			data.TagValues[m.TagName] = records[0].Values[m.FieldKey]
		} else {
			values := make([]string, len(records))
			for i, r := range records {
				values[i] = r.Values[m.FieldKey]
			}
			data.TagValues[m.TagName] = values
		}
		consumed = append(consumed, m.TagName)
	}

	if err := l.store.MarkMappingsUsed(ctx, templateID, version, consumed); err != nil {
		return nil, fmt.Errorf("mark mappings used: %w", err)
	}

	l.logger.Debug("data loaded",
		zap.String("template_id", templateID),
		zap.Int("version", version),
		zap.Int("records", data.RecordCount),
		zap.Int("tags", len(data.TagValues)),
	)
	return data, nil
}
