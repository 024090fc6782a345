package shared

import (
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var revisionFiles embed.FS

// SchemaRevision represents one versioned change to the target schema with up
// and down SQL. Revisions are what "the destination schema is managed
// out-of-band" means in practice: `storesync setup` applies them between
// migration runs, and the engine itself never issues DDL.
type SchemaRevision struct {
	Version int
	Up      string
	Down    string
}

// loadRevisions reads all revision files from the embedded filesystem and returns them sorted by version.
func loadRevisions() ([]SchemaRevision, error) {
	entries, err := revisionFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read revision directory: %w", err)
	}

	revisionMap := make(map[int]*SchemaRevision)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		// Parse version from filename (e.g., "0000_create_tables_up.sql" -> version 0)
		parts := strings.Split(name, "_")
		if len(parts) < 2 {
			continue
		}

		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}

		content, err := revisionFiles.ReadFile(filepath.Join("sql", name))
		if err != nil {
			return nil, fmt.Errorf("failed to read revision file %s: %w", name, err)
		}

		if revisionMap[version] == nil {
			revisionMap[version] = &SchemaRevision{Version: version}
		}

		if strings.Contains(name, "_up.sql") {
			revisionMap[version].Up = string(content)
		} else if strings.Contains(name, "_down.sql") {
			revisionMap[version].Down = string(content)
		}
	}

	// Convert map to sorted slice
	var revisions []SchemaRevision
	for _, revision := range revisionMap {
		if revision.Up == "" || revision.Down == "" {
			return nil, fmt.Errorf("incomplete schema revision for version %d", revision.Version)
		}
		revisions = append(revisions, *revision)
	}

	sort.Slice(revisions, func(i, j int) bool {
		return revisions[i].Version < revisions[j].Version
	})

	return revisions, nil
}

// ApplySchema executes all pending schema revisions on the target database.
// Creates a schema_revisions table to track applied revisions.
func ApplySchema(db *sql.DB) error {
	revisions, err := loadRevisions()
	if err != nil {
		return fmt.Errorf("failed to load schema revisions: %w", err)
	}

	if err := createRevisionsTable(db); err != nil {
		return fmt.Errorf("failed to create revisions table: %w", err)
	}

	for _, revision := range revisions {
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_revisions WHERE version = ?)", revision.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check revision status: %w", err)
		}

		if !exists {
			if err := applyRevision(db, revision); err != nil {
				return fmt.Errorf("failed to apply revision %d: %w", revision.Version, err)
			}
		}
	}

	return nil
}

// RollbackSchema rolls back the most recent schema revision. Useful for
// reproducing schema-drift scenarios: rolling back and re-running a migration
// exercises the writer's fallback path against a lagging destination.
func RollbackSchema(db *sql.DB) error {
	revisions, err := loadRevisions()
	if err != nil {
		return fmt.Errorf("failed to load schema revisions: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_revisions").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check revisions: %w", err)
	}

	if count == 0 {
		return fmt.Errorf("no revisions to rollback")
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, revision := range revisions {
		if revision.Version == currentVersion {
			if err := rollbackRevision(db, revision); err != nil {
				return fmt.Errorf("failed to rollback revision %d: %w", revision.Version, err)
			}
			return nil
		}
	}

	return fmt.Errorf("schema revision version %d not found", currentVersion)
}

// createRevisionsTable creates the schema_revisions table if it doesn't exist.
func createRevisionsTable(db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_revisions (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := db.Exec(query)
	return err
}

// getCurrentVersion returns the current schema revision version.
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_revisions").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// applyRevision executes a revision's up SQL and records it.
func applyRevision(db *sql.DB, revision SchemaRevision) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Execute each statement separately
	statements := strings.Split(revision.Up, ";")
	for _, stmt := range statements {
		stmt = removeComments(stmt)
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	if _, err := tx.Exec("INSERT INTO schema_revisions (version) VALUES (?)", revision.Version); err != nil {
		return err
	}

	return tx.Commit()
}

// removeComments removes SQL comments from a statement.
func removeComments(sql string) string {
	lines := strings.Split(sql, "\n")
	var result []string
	for _, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}

// rollbackRevision executes a revision's down SQL and removes the record.
func rollbackRevision(db *sql.DB, revision SchemaRevision) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := strings.Split(revision.Down, ";")
	for _, stmt := range statements {
		stmt = removeComments(stmt)
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	if _, err := tx.Exec("DELETE FROM schema_revisions WHERE version = ?", revision.Version); err != nil {
		return err
	}

	return tx.Commit()
}
