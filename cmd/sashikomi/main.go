// Package main is the Sashikomi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/config"
	"github.com/hyperjump/sashikomi/internal/convert"
	"github.com/hyperjump/sashikomi/internal/datasource"
	"github.com/hyperjump/sashikomi/internal/docpkg"
	"github.com/hyperjump/sashikomi/internal/generate"
	"github.com/hyperjump/sashikomi/internal/mapping"
	"github.com/hyperjump/sashikomi/internal/models"
	"github.com/hyperjump/sashikomi/internal/server"
	"github.com/hyperjump/sashikomi/internal/storage"
	"github.com/hyperjump/sashikomi/internal/tags"
	"github.com/hyperjump/sashikomi/internal/watcher"
	"github.com/hyperjump/sashikomi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/sashikomi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "extract":
		runExtract()
	case "automap":
		runAutoMap()
	case "generate":
		runGenerate()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("sashikomi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var inbox *watcher.Inbox
	inboxCtx, inboxCancel := context.WithCancel(context.Background())
	defer inboxCancel()
	if len(cfg.Watch.Directories) > 0 {
		inbox = watcher.NewInbox(cfg.Watch, func(path string) {
			_ = components.Registrar.RegisterFile(context.Background(), path)
		}, logger)
		if err := inbox.Start(inboxCtx); err != nil {
			logger.Fatal("Failed to start template inbox", zap.Error(err))
		}
		inbox.SyncExisting()
	}

	srv := server.NewServer(
		components.Store,
		components.Objects,
		components.Source,
		components.Generator,
		components.Registrar,
		inbox,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if inbox != nil {
		inbox.Stop()
	}
	inboxCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: sashikomi extract [flags] <document>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read document: %v\n", err)
		os.Exit(1)
	}
	text, err := tags.ExtractText(content, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract text: %v\n", err)
		os.Exit(1)
	}
	tagList := tags.NewExtractor(docpkg.DefaultDelimiter).Extract(text)

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tagList); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(tagList) == 0 {
			fmt.Println("No tags found")
			return
		}
		for _, tag := range tagList {
			fmt.Printf("%-30s %s\n", tag.Name, tag.DisplayName)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runAutoMap() {
	fs := flag.NewFlagSet("automap", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	templateID := fs.String("template", "", "template id")
	mapVersion := fs.Int("version", 0, "template version (default: current)")
	strategyName := fs.String("strategy", "name", "matching strategy: name or fuzzy")
	save := fs.Bool("save", false, "save the proposals as the version's mappings")
	_ = fs.Parse(os.Args[2:])

	if *templateID == "" {
		fmt.Println("Usage: sashikomi automap --template <id> [--version n] [--strategy name|fuzzy] [--save]")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()
	if components.Source == nil {
		fmt.Fprintln(os.Stderr, "No data source configured (set datasource.workbook_path)")
		os.Exit(1)
	}

	ctx := context.Background()
	tpl, err := components.Store.GetTemplate(ctx, *templateID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Template lookup failed: %v\n", err)
		os.Exit(1)
	}
	if *mapVersion == 0 {
		*mapVersion = tpl.Version
	}
	tagList, err := components.Store.GetTags(ctx, tpl.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tag lookup failed: %v\n", err)
		os.Exit(1)
	}
	fields, err := components.Source.Fields(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Field lookup failed: %v\n", err)
		os.Exit(1)
	}

	var strategy mapping.Strategy = mapping.NameMatcher{}
	if *strategyName == "fuzzy" {
		strategy = mapping.FuzzyMatcher{}
	}
	proposals := mapping.AutoMap(tpl.ID, *mapVersion, tagList, fields, strategy)
	for _, m := range proposals {
		target := m.FieldKey
		if target == "" {
			target = "(no match)"
		}
		fmt.Printf("%-30s -> %-20s confidence %.1f\n", m.TagName, target, m.Confidence)
	}
	if *save {
		if err := components.Store.SaveMappings(ctx, tpl.ID, *mapVersion, proposals); err != nil {
			fmt.Fprintf(os.Stderr, "Save failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Saved mappings for template %s version %d\n", tpl.ID, *mapVersion)
	}
}

func runGenerate() {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8090", "server URL (empty = run locally)")
	templateID := fs.String("template", "", "template id")
	dataJSON := fs.String("data", "", "inline tag values as JSON object")
	keys := fs.String("keys", "", "comma-separated record keys to load")
	outputKind := fs.String("format", "docx", "output format: docx, pdf, or text")
	updateStatus := fs.Bool("update-status", false, "mark consumed records processed")
	useSecondary := fs.Bool("use-secondary", false, "prefer the secondary conversion service")
	_ = fs.Parse(os.Args[2:])

	if *templateID == "" {
		fmt.Println("Usage: sashikomi generate --template <id> [--data '{...}' | --keys k1,k2] [--format docx|pdf|text]")
		os.Exit(1)
	}

	req := models.GenerateRequest{
		TemplateID:         *templateID,
		OutputKind:         *outputKind,
		UpdateSourceStatus: *updateStatus,
		UseSecondary:       *useSecondary,
	}
	if *dataJSON != "" {
		if err := json.Unmarshal([]byte(*dataJSON), &req.Data); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --data JSON: %v\n", err)
			os.Exit(1)
		}
	}
	if *keys != "" {
		req.CustomerKeys = strings.Split(*keys, ",")
	}

	var rec *models.GenerationRecord
	if *serverURL != "" {
		var err error
		rec, err = generateViaHTTP(*serverURL, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Printf("Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()

		req.UserID = server.DefaultUserID
		rec, err = components.Generator.Generate(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
			if rec != nil {
				fmt.Fprintf(os.Stderr, "Generation record: %s (status %s)\n", rec.ID, rec.Status)
			}
			os.Exit(1)
		}
	}

	fmt.Printf("Generation %s: %s, %d document(s)\n", rec.ID, rec.Status, rec.DocumentsCount)
	for i, name := range rec.OutputFilenames {
		fmt.Printf("  %s -> %s\n", name, rec.FileURLs[i])
	}
}

func generateViaHTTP(serverURL string, req models.GenerateRequest) (*models.GenerationRecord, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/generate", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var rec models.GenerationRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Templates      int64                  `json:"templates"`
	Generations    int64                  `json:"generations"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8090", "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()

		ctx := context.Background()
		templates, err := components.Store.CountTemplates(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count templates failed: %v\n", err)
			os.Exit(1)
		}
		generations, err := components.Store.CountGenerations(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count generations failed: %v\n", err)
			os.Exit(1)
		}
		status = statusResponse{Templates: templates, Generations: generations}
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.ArtifactsDir); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("templates:         %d\n", status.Templates)
		fmt.Printf("generations:       %d\n", status.Generations)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:  %d\n", *status.DiskUsageBytes)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Store     storage.Store
	Objects   storage.ObjectStore
	Source    datasource.Source
	Generator *generate.Generator
	Registrar *server.Registrar
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	objects, err := storage.NewDiskStore(cfg.Storage.ArtifactsDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	var source datasource.Source
	var loader *datasource.Loader
	if cfg.DataSource.WorkbookPath != "" {
		excel := datasource.NewExcelSource(cfg.DataSource)
		source = excel
		loader = datasource.NewLoader(store, source, cfg.DataSource.UnprocessedStatus, logger)
	}

	pipeline := convert.NewPipeline(cfg.Convert, logger)
	generator := generate.NewGenerator(store, objects, loader, source, pipeline, cfg.DataSource.ProcessedStatus, logger)
	registrar := server.NewRegistrar(store, objects, logger)

	return &Components{
		Store:     store,
		Objects:   objects,
		Source:    source,
		Generator: generator,
		Registrar: registrar,
	}, nil
}

func printUsage() {
	fmt.Println(`sashikomi - Template-based document generation

Usage:
  sashikomi server [flags]             Start the HTTP server
  sashikomi extract [flags] <file>     Extract tags from a document
  sashikomi automap [flags]            Propose tag-to-field mappings
  sashikomi generate [flags]           Generate documents from a template
  sashikomi status [flags]             Show storage and ledger status
  sashikomi version                    Show version
  sashikomi help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/sashikomi/config.yaml)
  --debug            Enable debug logging

Extract Flags:
  --output string    Output format: text or json (default: text)

Automap Flags:
  --config string    Config file path
  --template string  Template id (required)
  --version int      Template version (default: current)
  --strategy string  Matching strategy: name or fuzzy (default: name)
  --save             Save the proposals as the version's mappings

Generate Flags:
  --config string    Config file path (for local mode)
  --server string    Server URL (default: http://localhost:8090). Use empty (--server "") to run locally.
  --template string  Template id (required)
  --data string      Inline tag values as a JSON object
  --keys string      Comma-separated record keys to load from the data source
  --format string    Output format: docx, pdf, or text (default: docx)
  --update-status    Mark consumed records processed
  --use-secondary    Prefer the secondary conversion service

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8090). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Examples:
  sashikomi server
  sashikomi extract contract.docx
  sashikomi automap --template tpl-123 --save
  sashikomi generate --template tpl-123 --data '{"client_name":"Acme"}'
  sashikomi generate --template tpl-123 --keys 1,2 --format pdf
  sashikomi status --output json`)
}
