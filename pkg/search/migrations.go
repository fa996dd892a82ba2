package search

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plannerhq/plansearch/pkg/observability"
	"github.com/plannerhq/plansearch/pkg/planning"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all search subsystem migrations. Rebuilds
// recreate the index tables wholesale, so the migrations only have to
// establish the initial empty snapshots and their indexes.
func GetMigrations() []Migration {
	migrations := make([]Migration, 0, len(planning.AllEntityTypes()))
	for i, entityType := range planning.AllEntityTypes() {
		table := entityType.IndexTable()
		sql := indexTableDDL(table)
		for _, stmt := range indexStatements(table, "base") {
			sql += stmt + ";\n"
		}
		migrations = append(migrations, Migration{
			Version:     i + 1,
			Description: fmt.Sprintf("Create %s table", table),
			SQL:         sql,
		})
	}
	return migrations
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS search_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM search_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	// A mid-iteration failure would silently truncate the applied set
	// and re-run recorded migrations
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		logger.Infof("Running migration %d: %s", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO search_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		logger.Infof("Migration %d completed successfully", migration.Version)
	}

	return nil
}
