package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/docpkg"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/storage"
	"github.com/hyperjump/sashikomi/internal/tags"
	"github.com/hyperjump/sashikomi/pkg/utils"
)

// DefaultUserID is the caller identity used when no X-User-ID header (or
// inbox owner) is known.
const DefaultUserID = "default"

var contentTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".txt":  "text/plain",
}

// Registrar turns an uploaded or inbox-dropped document into a template row,
// a stored binary, and an extracted tag set. Shared by the upload handler and
// the template inbox.
type Registrar struct {
	store     storage.Store
	objects   storage.ObjectStore
	extractor *tags.Extractor
	logger    *zap.Logger
}

// NewRegistrar returns a Registrar using the default marker delimiter.
func NewRegistrar(store storage.Store, objects storage.ObjectStore, logger *zap.Logger) *Registrar {
	return &Registrar{
		store:     store,
		objects:   objects,
		extractor: tags.NewExtractor(docpkg.DefaultDelimiter),
		logger:    logger,
	}
}

// Register stores content as a template for userID and extracts its tags.
// Re-registering a name the user already has replaces the binary and tag set.
// When the current version already has mappings a new version is minted, so
// those mappings stay queryable instead of being silently overwritten.
func (reg *Registrar) Register(ctx context.Context, userID, name, filename string, content []byte) (*models.Template, []models.Tag, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	text, err := tags.ExtractText(content, ext)
	if err != nil {
		return nil, nil, fmt.Errorf("extract text from %s: %w", filename, err)
	}
	tagList := reg.extractor.Extract(text)

	tpl, err := reg.findByName(ctx, userID, name)
	if err != nil {
		return nil, nil, err
	}
	if tpl == nil {
		tpl = &models.Template{
			UserID:      userID,
			Name:        name,
			Filename:    filename,
			ContentType: contentTypeFor(ext),
		}
		if err := reg.store.CreateTemplate(ctx, tpl); err != nil {
			return nil, nil, err
		}
	} else {
		mapped, err := reg.store.VersionHasMappings(ctx, tpl.ID, tpl.Version)
		if err != nil {
			return nil, nil, err
		}
		if mapped {
			tpl.Version++
		}
		tpl.Filename = filename
		tpl.ContentType = contentTypeFor(ext)
	}

	tpl.StoragePath = fmt.Sprintf("templates/%s/%s", tpl.ID, filename)
	if _, err := reg.objects.Upload(ctx, tpl.StoragePath, content, tpl.ContentType); err != nil {
		return nil, nil, fmt.Errorf("store template binary: %w", err)
	}
	if err := reg.store.UpdateTemplate(ctx, tpl); err != nil {
		return nil, nil, err
	}
	if err := reg.store.ReplaceTags(ctx, tpl.ID, tagList); err != nil {
		return nil, nil, err
	}

	stored, err := reg.store.GetTags(ctx, tpl.ID)
	if err != nil {
		return nil, nil, err
	}
	reg.logger.Info("template registered",
		zap.String("template_id", tpl.ID),
		zap.String("name", utils.Truncate(name, 80)),
		zap.Int("version", tpl.Version),
		zap.Int("tags", len(stored)),
	)
	return tpl, stored, nil
}

// RegisterFile registers a document from disk, keyed by its base name. Used
// as the inbox callback.
func (reg *Registrar) RegisterFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	_, _, err = reg.Register(ctx, DefaultUserID, name, filename, content)
	if err != nil {
		reg.logger.Warn("inbox registration failed", zap.String("path", path), zap.Error(err))
	}
	return err
}

func (reg *Registrar) findByName(ctx context.Context, userID, name string) (*models.Template, error) {
	list, err := reg.store.ListTemplates(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, tpl := range list {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return nil, nil
}

func contentTypeFor(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
