// Package convert turns rendered document binaries into final artifacts:
// DOCX passthrough, PDF via external conversion services with fallback, or a
// flattened plain-text summary.
package convert

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/config"
	"github.com/hyperjump/sashikomi/internal/models"
)

// Artifact content types.
const (
	DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	PDFContentType  = "application/pdf"
	TextContentType = "text/plain; charset=utf-8"
)

// Artifact is one produced output file.
type Artifact struct {
	Filename    string
	Data        []byte
	ContentType string
}

// Preferences carries per-request conversion choices.
type Preferences struct {
	// UseSecondary asks for the self-hosted synchronous endpoint to be tried
	// first. It only takes effect when a secondary URL is configured; any
	// secondary failure falls back to the primary service.
	UseSecondary bool
}

// Pipeline converts rendered binaries per output kind.
type Pipeline struct {
	cfg    config.ConvertConfig
	client *http.Client
	logger *zap.Logger

	// sleep and now are injected for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewPipeline returns a Pipeline using cfg's service endpoints and timeouts.
func NewPipeline(cfg config.ConvertConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger: logger,
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Convert produces the artifacts for one rendered document. base is the
// output name without extension; values is the scalar tag map bound into the
// document (consumed by the text path).
//
// The PDF path always keeps the intermediate DOCX as a backup artifact. The
// secondary service is tried first only on explicit caller preference; any
// secondary failure falls back to the primary service, whose failure is
// terminal.
func (p *Pipeline) Convert(ctx context.Context, rendered []byte, base string, kind models.OutputKind, values map[string]string, prefs Preferences) ([]Artifact, error) {
	switch kind {
	case models.OutputDOCX:
		return []Artifact{{Filename: base + ".docx", Data: rendered, ContentType: DocxContentType}}, nil

	case models.OutputText:
		return []Artifact{{
			Filename:    base + ".txt",
			Data:        FlattenText(values, p.now()),
			ContentType: TextContentType,
		}}, nil

	case models.OutputPDF:
		artifacts := []Artifact{{Filename: base + ".docx", Data: rendered, ContentType: DocxContentType}}

		var pdfData []byte
		var err error
		if prefs.UseSecondary && p.cfg.SecondaryURL != "" {
			pdfData, err = p.convertSecondary(ctx, rendered, base+".docx")
			if err != nil {
				p.logger.Warn("secondary conversion failed, falling back to primary",
					zap.String("base", base), zap.Error(err))
				pdfData, err = p.convertPrimary(ctx, rendered, base+".docx")
			}
		} else {
			pdfData, err = p.convertPrimary(ctx, rendered, base+".docx")
		}
		if err != nil {
			return nil, err
		}
		return append(artifacts, Artifact{Filename: base + ".pdf", Data: pdfData, ContentType: PDFContentType}), nil

	default:
		return nil, fmt.Errorf("invalid output kind %q (want docx, pdf, or text)", kind)
	}
}
