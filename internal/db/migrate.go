package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SeedQuestion is one entry of seed/questions.yaml.
type SeedQuestion struct {
	Text     string `yaml:"text"`
	Type     string `yaml:"type"`
	Required *bool  `yaml:"required"`
}

type seedFile struct {
	Questions []SeedQuestion `yaml:"questions"`
}

// Migrate applies migrations and optional seed files found in the repository.
// It creates a `schema_migrations` table to track applied migrations and applies
// any SQL files in `migrations/` that have not yet been recorded. The question
// catalog seed is only applied while the catalog is empty.
func Migrate(ctx context.Context, d *DB, migrationFS fs.FS, seedFS fs.FS) error {
	// ensure migrations table exists
	if _, err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied BIGINT NOT NULL)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	migDir := "migrations"

	entries, err := fs.ReadDir(migrationFS, migDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// collect .sql files and sort
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	for _, fname := range files {
		// use filename (without extension) as migration version key
		version := strings.TrimSuffix(fname, path.Ext(fname))

		var count int
		if err := d.Get(ctx, &count, `SELECT COUNT(1) FROM schema_migrations WHERE version = ?`, version); err != nil {
			return fmt.Errorf("scan migration applied count: %w", err)
		}
		if count > 0 {
			continue
		}

		b, err := fs.ReadFile(migrationFS, path.Join(migDir, fname))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", fname, err)
		}
		if _, err := d.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec migration %s: %w", fname, err)
		}

		if _, err := d.Exec(ctx, `INSERT INTO schema_migrations (version, applied) VALUES (?, ?)`, version, time.Now().UTC().Unix()); err != nil {
			return fmt.Errorf("record migration %s: %w", fname, err)
		}
		d.logger.Info("db: migration applied", "version", version)
	}

	if seedFS == nil {
		return nil
	}
	b, err := fs.ReadFile(seedFS, path.Join("seed", "questions.yaml"))
	if err != nil {
		// seed is optional
		return nil
	}
	return seedQuestions(ctx, d, b)
}

func seedQuestions(ctx context.Context, d *DB, b []byte) error {
	var count int
	if err := d.Get(ctx, &count, `SELECT COUNT(1) FROM questions`); err != nil {
		return fmt.Errorf("count questions: %w", err)
	}
	if count > 0 {
		return nil
	}

	var sf seedFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return fmt.Errorf("parse question seed: %w", err)
	}

	now := time.Now().UTC().UnixMilli()
	return d.InTx(ctx, func(tx *Tx) error {
		for i, q := range sf.Questions {
			required := 1
			if q.Required != nil && !*q.Required {
				required = 0
			}
			if _, err := tx.Exec(ctx, `INSERT INTO questions (id, text, type, required, sort_order, created) VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), q.Text, q.Type, required, i, now); err != nil {
				return fmt.Errorf("seed question %d: %w", i, err)
			}
		}
		return nil
	})
}
