package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

const downMarker = "-- +migrate Down"

type migrationState struct {
	Name    string
	Applied bool
}

func ensureTable(ctx context.Context, database *sqlx.DB) error {
	_, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`)
	return err
}

func listFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func migrationStatus(ctx context.Context, database *sqlx.DB, dir string) ([]migrationState, error) {
	if err := ensureTable(ctx, database); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	var done []string
	if err := database.SelectContext(ctx, &done, `SELECT filename FROM schema_migrations`); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(done))
	for _, name := range done {
		seen[name] = true
	}
	states := make([]migrationState, 0, len(files))
	for _, file := range files {
		name := filepath.Base(file)
		states = append(states, migrationState{Name: name, Applied: seen[name]})
	}
	return states, nil
}

func migrateUp(ctx context.Context, database *sqlx.DB, dir string) ([]string, error) {
	states, err := migrationStatus(ctx, database, dir)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, s := range states {
		if s.Applied {
			continue
		}
		if err := applyFile(ctx, database, filepath.Join(dir, s.Name)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", s.Name, err)
		}
		applied = append(applied, s.Name)
	}
	return applied, nil
}

func applyFile(ctx context.Context, database *sqlx.DB, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := database.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(upSection(string(content))) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(path)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func upSection(content string) string {
	up, _, _ := strings.Cut(content, downMarker)
	return up
}

// splitSQL breaks a script on lines containing ';'. Comment lines are dropped.
func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	out := statements[:0]
	for _, s := range statements {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
