// Package generate orchestrates document generation: resolve input values,
// rewrite the template once, fan out to per-record documents, render and
// convert them concurrently, store the artifacts, and keep the generation
// ledger consistent.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/convert"
	"github.com/hyperjump/sashikomi/internal/datasource"
	"github.com/hyperjump/sashikomi/internal/docpkg"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/storage"
	"github.com/hyperjump/sashikomi/pkg/utils"
)

// renderWorkers bounds concurrent render+convert work per generation.
const renderWorkers = 4

// Generator runs generation requests end to end. loader and source are nil
// when no external data source is configured; such deployments can only
// generate from inline request data.
type Generator struct {
	store     storage.Store
	objects   storage.ObjectStore
	loader    *datasource.Loader
	source    datasource.Source
	pipeline  *convert.Pipeline
	rewriter  *docpkg.Rewriter
	processed string
	logger    *zap.Logger
}

// NewGenerator returns a Generator. processed is the status written back to
// source records after a successful generation that asked for it.
func NewGenerator(store storage.Store, objects storage.ObjectStore, loader *datasource.Loader, source datasource.Source, pipeline *convert.Pipeline, processed string, logger *zap.Logger) *Generator {
	return &Generator{
		store:     store,
		objects:   objects,
		loader:    loader,
		source:    source,
		pipeline:  pipeline,
		rewriter:  docpkg.NewRewriter(docpkg.DefaultDelimiter),
		processed: processed,
		logger:    logger,
	}
}

// Generate runs one request. Values come from the inline data map when
// present, otherwise from the configured data source (by explicit customer
// keys, or every unprocessed record). The returned record is terminal:
// completed with its artifact listing, or failed with the underlying error
// message. Failures during value resolution are ledgered too.
func (g *Generator) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationRecord, error) {
	kind, err := models.ParseOutputKind(req.OutputKind)
	if err != nil {
		return nil, err
	}
	if req.TemplateID == "" {
		return nil, errors.New("template_id is required")
	}
	tpl, err := g.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	values, recordKeys, err := g.resolveValues(ctx, tpl, req)
	if err != nil {
		// Resolution failures are ledgered so that operators can see why a
		// request produced nothing.
		return g.ledgerFailure(ctx, req, tpl, err)
	}

	fanned := docpkg.FanOut(values)
	base := utils.Canonicalize(tpl.Name)
	if base == "" {
		// All-symbol template names canonicalize to nothing.
		base = "document"
	}
	names := docpkg.OutputNames(base, len(fanned))

	rec := g.newRecord(req, tpl, values, len(fanned))
	if err := g.store.CreateGeneration(ctx, rec); err != nil {
		return nil, err
	}
	if err := g.store.SetGenerationProcessing(ctx, rec.ID); err != nil {
		return nil, err
	}

	artifacts, err := g.produce(ctx, tpl, kind, fanned, names, req)
	if err != nil {
		return g.fail(ctx, rec, err)
	}

	filenames, urls, err := g.uploadArtifacts(ctx, rec, artifacts)
	if err != nil {
		return g.fail(ctx, rec, err)
	}

	if req.UpdateSourceStatus {
		g.markRecordsProcessed(ctx, recordKeys)
	}

	if err := g.store.CompleteGeneration(ctx, rec.ID, filenames, urls); err != nil {
		return nil, err
	}
	g.logger.Info("generation completed",
		zap.String("generation_id", rec.ID),
		zap.String("template_id", tpl.ID),
		zap.Int("documents", len(filenames)),
		zap.String("output_kind", string(kind)),
	)
	return g.store.GetGeneration(ctx, rec.ID)
}

// Delete removes a generation record together with every artifact it stored.
func (g *Generator) Delete(ctx context.Context, id string) error {
	rec, err := g.store.GetGeneration(ctx, id)
	if err != nil {
		return err
	}
	if err := g.objects.DeletePrefix(ctx, rec.UserID+"/"+rec.ID); err != nil {
		return fmt.Errorf("delete artifacts: %w", err)
	}
	return g.store.DeleteGeneration(ctx, id)
}

func (g *Generator) resolveValues(ctx context.Context, tpl *models.Template, req models.GenerateRequest) (map[string]interface{}, []string, error) {
	if len(req.Data) > 0 {
		return req.Data, nil, nil
	}
	if g.loader == nil {
		return nil, nil, errors.New("request carries no data and no data source is configured")
	}
	loaded, err := g.loader.Load(ctx, tpl.ID, tpl.Version, req.CustomerKeys)
	if err != nil {
		return nil, nil, err
	}
	return loaded.TagValues, loaded.RecordKeys, nil
}

func (g *Generator) newRecord(req models.GenerateRequest, tpl *models.Template, values map[string]interface{}, n int) *models.GenerationRecord {
	typ := models.GenerationSingle
	if n > 1 {
		typ = models.GenerationBatch
	}
	input, err := json.Marshal(values)
	if err != nil {
		input = nil
	}
	return &models.GenerationRecord{
		UserID:     req.UserID,
		TemplateID: tpl.ID,
		Type:       typ,
		InputData:  string(input),
	}
}

// produce renders and converts each fanned-out document with a bounded worker
// pool. Results keep index order; the first error wins.
func (g *Generator) produce(ctx context.Context, tpl *models.Template, kind models.OutputKind, fanned []map[string]string, names []string, req models.GenerateRequest) ([][]convert.Artifact, error) {
	templateData, err := g.objects.Download(ctx, tpl.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("load template binary: %w", err)
	}
	rewritten, err := g.rewriter.Rewrite(templateData)
	if err != nil {
		return nil, fmt.Errorf("rewrite template: %w", err)
	}

	results := make([][]convert.Artifact, len(fanned))
	errs := make([]error, len(fanned))
	prefs := convert.Preferences{UseSecondary: req.UseSecondary}

	sem := make(chan struct{}, renderWorkers)
	var wg sync.WaitGroup
	for i := range fanned {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rendered, err := docpkg.Render(rewritten, fanned[i])
			if err != nil {
				errs[i] = fmt.Errorf("render %s: %w", names[i], err)
				return
			}
			artifacts, err := g.pipeline.Convert(ctx, rendered, names[i], kind, fanned[i], prefs)
			if err != nil {
				errs[i] = fmt.Errorf("convert %s: %w", names[i], err)
				return
			}
			results[i] = artifacts
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// uploadArtifacts stores every artifact under {userID}/{generationID}/ and
// returns the filename and URL listings in document order.
func (g *Generator) uploadArtifacts(ctx context.Context, rec *models.GenerationRecord, artifacts [][]convert.Artifact) ([]string, []string, error) {
	var filenames, urls []string
	for _, docArtifacts := range artifacts {
		for _, a := range docArtifacts {
			path := fmt.Sprintf("%s/%s/%s", rec.UserID, rec.ID, a.Filename)
			url, err := g.objects.Upload(ctx, path, a.Data, a.ContentType)
			if err != nil {
				return nil, nil, fmt.Errorf("store artifact %s: %w", a.Filename, err)
			}
			filenames = append(filenames, a.Filename)
			urls = append(urls, url)
		}
	}
	return filenames, urls, nil
}

// markRecordsProcessed flips consumed source records to the processed status.
// Failures here never fail the generation; the documents already exist.
func (g *Generator) markRecordsProcessed(ctx context.Context, keys []string) {
	if g.source == nil || len(keys) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := g.source.UpdateStatus(ctx, key, g.processed); err != nil {
				g.logger.Warn("source status update failed",
					zap.String("key", key), zap.Error(err))
			}
		}(key)
	}
	wg.Wait()
}

// ledgerFailure records a request that never got as far as producing
// documents. The original error is preserved verbatim on the record and
// returned to the caller.
func (g *Generator) ledgerFailure(ctx context.Context, req models.GenerateRequest, tpl *models.Template, cause error) (*models.GenerationRecord, error) {
	rec := g.newRecord(req, tpl, req.Data, 1)
	if err := g.store.CreateGeneration(ctx, rec); err != nil {
		return nil, cause
	}
	return g.fail(ctx, rec, cause)
}

func (g *Generator) fail(ctx context.Context, rec *models.GenerationRecord, cause error) (*models.GenerationRecord, error) {
	if err := g.store.FailGeneration(ctx, rec.ID, cause.Error()); err != nil {
		g.logger.Error("mark generation failed",
			zap.String("generation_id", rec.ID), zap.Error(err))
		return nil, cause
	}
	failed, err := g.store.GetGeneration(ctx, rec.ID)
	if err != nil {
		return nil, cause
	}
	return failed, cause
}
