// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/sashikomi/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS templates (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		filename TEXT NOT NULL,
		content_type TEXT,
		storage_path TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_templates_user_id ON templates(user_id);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL,
		description TEXT,
		expected_type TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(template_id, name),
		FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS mappings (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		template_version INTEGER NOT NULL,
		tag_name TEXT NOT NULL,
		field_key TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		is_manual INTEGER NOT NULL DEFAULT 0,
		is_verified INTEGER NOT NULL DEFAULT 0,
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(template_id, template_version, tag_name),
		FOREIGN KEY (template_id) REFERENCES templates(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_mappings_template_version ON mappings(template_id, template_version);

	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		template_id TEXT NOT NULL,
		type TEXT NOT NULL,
		documents_count INTEGER NOT NULL DEFAULT 0,
		input_data TEXT,
		output_filenames TEXT,
		file_urls TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_generations_user_id ON generations(user_id);
	CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateTemplate inserts a template row. Version starts at 1 when unset.
func (s *SQLiteStore) CreateTemplate(ctx context.Context, tpl *models.Template) error {
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	if tpl.Version == 0 {
		tpl.Version = 1
	}
	now := time.Now()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, user_id, name, filename, content_type, storage_path, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.UserID, tpl.Name, tpl.Filename, tpl.ContentType, tpl.StoragePath, tpl.Version, tpl.CreatedAt, tpl.UpdatedAt,
	)
	return err
}

// GetTemplate returns a template by ID.
func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var tpl models.Template
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, filename, content_type, storage_path, version, created_at, updated_at
		 FROM templates WHERE id = ?`, id,
	).Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Filename, &tpl.ContentType, &tpl.StoragePath, &tpl.Version, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ListTemplates returns the templates owned by userID, newest first.
func (s *SQLiteStore) ListTemplates(ctx context.Context, userID string) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, filename, content_type, storage_path, version, created_at, updated_at
		 FROM templates WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Template
	for rows.Next() {
		var tpl models.Template
		if err := rows.Scan(&tpl.ID, &tpl.UserID, &tpl.Name, &tpl.Filename, &tpl.ContentType, &tpl.StoragePath, &tpl.Version, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &tpl)
	}
	return out, rows.Err()
}

// UpdateTemplate updates an existing template row.
func (s *SQLiteStore) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	tpl.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, filename = ?, content_type = ?, storage_path = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		tpl.Name, tpl.Filename, tpl.ContentType, tpl.StoragePath, tpl.Version, tpl.UpdatedAt, tpl.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template not found: %s", tpl.ID)
	}
	return nil
}

// DeleteTemplate removes a template; tags and mappings cascade.
func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	return err
}

// ReplaceTags swaps the full tag set of a template in one transaction.
func (s *SQLiteStore) ReplaceTags(ctx context.Context, templateID string, tagList []models.Tag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE template_id = ?`, templateID); err != nil {
		return err
	}
	for i := range tagList {
		if tagList[i].ID == "" {
			tagList[i].ID = uuid.NewString()
		}
		tagList[i].TemplateID = templateID
		tagList[i].CreatedAt = time.Now()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, template_id, name, display_name, description, expected_type, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tagList[i].ID, templateID, tagList[i].Name, tagList[i].DisplayName,
			tagList[i].Description, tagList[i].ExpectedType, tagList[i].CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetTags returns a template's tags in insertion order.
func (s *SQLiteStore) GetTags(ctx context.Context, templateID string) ([]models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, name, display_name, description, expected_type, created_at
		 FROM tags WHERE template_id = ? ORDER BY rowid`, templateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Tag
	for rows.Next() {
		var tag models.Tag
		var desc, typ sql.NullString
		if err := rows.Scan(&tag.ID, &tag.TemplateID, &tag.Name, &tag.DisplayName, &desc, &typ, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tag.Description = desc.String
		tag.ExpectedType = typ.String
		out = append(out, tag)
	}
	return out, rows.Err()
}

// DeleteTag removes one tag and every mapping referencing it, across all versions.
func (s *SQLiteStore) DeleteTag(ctx context.Context, templateID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE template_id = ? AND name = ?`, templateID, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("tag not found: %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM mappings WHERE template_id = ? AND tag_name = ?`, templateID, name); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMappings replaces all mappings for the exact (template, version) pair:
// delete-then-insert in one transaction. Entries with an empty field key are
// filtered out first; if nothing survives, ErrNothingToSave is returned and
// existing rows are untouched.
func (s *SQLiteStore) SaveMappings(ctx context.Context, templateID string, version int, mappings []models.Mapping) error {
	var keep []models.Mapping
	for _, m := range mappings {
		if strings.TrimSpace(m.FieldKey) != "" {
			keep = append(keep, m)
		}
	}
	if len(keep) == 0 {
		return ErrNothingToSave
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM mappings WHERE template_id = ? AND template_version = ?`,
		templateID, version,
	); err != nil {
		return err
	}
	for _, m := range keep {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mappings (id, template_id, template_version, tag_name, field_key, confidence, is_manual, is_verified, usage_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			id, templateID, version, m.TagName, m.FieldKey, m.Confidence, m.IsManual, m.IsVerified, time.Now(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// VersionHasMappings reports whether any mappings exist for the version.
func (s *SQLiteStore) VersionHasMappings(ctx context.Context, templateID string, version int) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mappings WHERE template_id = ? AND template_version = ?`,
		templateID, version,
	).Scan(&count)
	return count > 0, err
}

// GetMappings returns the mappings for one template version.
func (s *SQLiteStore) GetMappings(ctx context.Context, templateID string, version int) ([]models.Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, template_version, tag_name, field_key, confidence, is_manual, is_verified, usage_count, last_used_at, created_at
		 FROM mappings WHERE template_id = ? AND template_version = ? ORDER BY tag_name`,
		templateID, version,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Mapping
	for rows.Next() {
		var m models.Mapping
		var lastUsed sql.NullTime
		if err := rows.Scan(&m.ID, &m.TemplateID, &m.TemplateVersion, &m.TagName, &m.FieldKey,
			&m.Confidence, &m.IsManual, &m.IsVerified, &m.UsageCount, &lastUsed, &m.CreatedAt); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			m.LastUsedAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkMappingsUsed bumps usage_count and last_used_at for the named tags.
// Called when mappings are consumed by the data loader, not when fetched.
func (s *SQLiteStore) MarkMappingsUsed(ctx context.Context, templateID string, version int, tagNames []string) error {
	if len(tagNames) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(tagNames))
	placeholders = placeholders[:len(placeholders)-1]
	args := []interface{}{time.Now(), templateID, version}
	for _, n := range tagNames {
		args = append(args, n)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE mappings SET usage_count = usage_count + 1, last_used_at = ?
		 WHERE template_id = ? AND template_version = ? AND tag_name IN (`+placeholders+`)`,
		args...,
	)
	return err
}

// CreateGeneration inserts a ledger row in status pending.
func (s *SQLiteStore) CreateGeneration(ctx context.Context, rec *models.GenerationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	rec.CreatedAt = time.Now()

	outputs, err := json.Marshal(rec.OutputFilenames)
	if err != nil {
		return err
	}
	urls, err := json.Marshal(rec.FileURLs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generations (id, user_id, template_id, type, documents_count, input_data, output_filenames, file_urls, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.TemplateID, rec.Type, rec.DocumentsCount, rec.InputData,
		string(outputs), string(urls), rec.Status, rec.CreatedAt,
	)
	return err
}

// SetGenerationProcessing moves a pending record to processing.
func (s *SQLiteStore) SetGenerationProcessing(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE generations SET status = ? WHERE id = ? AND status = ?`,
		models.StatusProcessing, id, models.StatusPending,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("generation %s is not pending", id)
	}
	return nil
}

// CompleteGeneration records the terminal completed state with the artifact
// list. documents_count is derived from the output list. Fails with
// ErrTerminal if the record is already terminal.
func (s *SQLiteStore) CompleteGeneration(ctx context.Context, id string, outputFilenames, fileURLs []string) error {
	outputs, err := json.Marshal(outputFilenames)
	if err != nil {
		return err
	}
	urls, err := json.Marshal(fileURLs)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE generations SET status = ?, documents_count = ?, output_filenames = ?, file_urls = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.StatusCompleted, len(outputFilenames), string(outputs), string(urls), time.Now(),
		id, models.StatusPending, models.StatusProcessing,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrTerminal
	}
	return nil
}

// FailGeneration records the terminal failed state with the underlying error
// message preserved verbatim.
func (s *SQLiteStore) FailGeneration(ctx context.Context, id string, errorMessage string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE generations SET status = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		models.StatusFailed, errorMessage, time.Now(),
		id, models.StatusPending, models.StatusProcessing,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrTerminal
	}
	return nil
}

// GetGeneration returns a ledger record by ID.
func (s *SQLiteStore) GetGeneration(ctx context.Context, id string) (*models.GenerationRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, template_id, type, documents_count, input_data, output_filenames, file_urls, status, error_message, created_at, completed_at
		 FROM generations WHERE id = ?`, id,
	)
	rec, err := scanGeneration(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("generation not found: %s", id)
	}
	return rec, err
}

// ListGenerations returns a user's generation records, newest first.
func (s *SQLiteStore) ListGenerations(ctx context.Context, userID string, offset, limit int) ([]*models.GenerationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, template_id, type, documents_count, input_data, output_filenames, file_urls, status, error_message, created_at, completed_at
		 FROM generations WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.GenerationRecord
	for rows.Next() {
		rec, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteGeneration removes a ledger record. Artifact deletion is the caller's
// responsibility (the object store is a separate collaborator).
func (s *SQLiteStore) DeleteGeneration(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row rowScanner) (*models.GenerationRecord, error) {
	var rec models.GenerationRecord
	var inputData, outputs, urls, errMsg sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TemplateID, &rec.Type, &rec.DocumentsCount,
		&inputData, &outputs, &urls, &rec.Status, &errMsg, &rec.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	rec.InputData = inputData.String
	rec.ErrorMessage = errMsg.String
	if outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &rec.OutputFilenames); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output filenames: %w", err)
		}
	}
	if urls.String != "" {
		if err := json.Unmarshal([]byte(urls.String), &rec.FileURLs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file urls: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// CountTemplates returns the total number of templates.
func (s *SQLiteStore) CountTemplates(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates`).Scan(&count)
	return count, err
}

// CountGenerations returns the total number of generation records.
func (s *SQLiteStore) CountGenerations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`).Scan(&count)
	return count, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
