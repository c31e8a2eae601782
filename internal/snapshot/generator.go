package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/docservice/internal/store"
)

// Generator writes local snapshots of a SQLite document database and hands
// each one to an Uploader.
type Generator struct {
	db       *sql.DB
	database string
	dir      string
	uploader Uploader
}

// NewGenerator returns a Generator for the database opened from dbPath.
// Snapshots are written to dir/current.db.
func NewGenerator(db *sql.DB, dbPath, dir string, uploader Uploader) *Generator {
	if uploader == nil {
		uploader = &NoopUploader{}
	}
	return &Generator{
		db:       db,
		database: DatabaseName(dbPath),
		dir:      dir,
		uploader: uploader,
	}
}

// Path returns where the local snapshot is written.
func (g *Generator) Path() string {
	return filepath.Join(g.dir, "current.db")
}

// Database returns the name snapshots are uploaded under.
func (g *Generator) Database() string {
	return g.database
}

// GenerateSnapshot writes a fresh local snapshot and uploads it.
func (g *Generator) GenerateSnapshot(ctx context.Context) error {
	start := time.Now()
	path := g.Path()

	if err := store.Snapshot(ctx, g.db, path); err != nil {
		return err
	}
	if err := g.uploader.Upload(ctx, g.database, path); err != nil {
		return fmt.Errorf("snapshot %s: %w", g.database, err)
	}

	slog.Info("snapshot generated",
		"component", "snapshot",
		"database", g.database,
		"path", path,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// DatabaseName derives the upload name from a database file path:
// "data/docservice.db" becomes "docservice".
func DatabaseName(dbPath string) string {
	base := filepath.Base(dbPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == ":memory:" {
		return "docservice"
	}
	return name
}
