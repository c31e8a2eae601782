package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperengineering/docservice/internal/document"
	"github.com/iancoleman/strcase"
	"github.com/oklog/ulid/v2"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OpenSQLite opens the database at dbPath with WAL mode and the pragmas the
// models rely on, and applies pending migrations. Use ":memory:" for a
// throwaway database.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// SQLiteModel stores one collection as JSON documents in the shared
// documents table. Conditions, sorting and projection are evaluated in
// process after loading the collection's rows.
type SQLiteModel struct {
	db   *sql.DB
	opts ModelOptions
}

// NewSQLiteModel binds a collection to db and creates a partial unique
// index for every unique field.
func NewSQLiteModel(ctx context.Context, db *sql.DB, opts ModelOptions) (*SQLiteModel, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	for _, field := range opts.Unique {
		stmt := fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS "%s" ON documents (json_extract(body, '$.%s')) WHERE collection = '%s'`,
			uniqueIndexName(opts.Collection, field), field, opts.Collection)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create unique index on %s.%s: %w", opts.Collection, field, err)
		}
	}
	return &SQLiteModel{db: db, opts: opts}, nil
}

// uniqueIndexName derives a readable index name for one collection and
// field. The snake-cased prefix is lossy ("a-b" and "a_b", "userId" and
// "user_id" fold together), so a hash of the raw pair keeps names distinct.
func uniqueIndexName(collection, field string) string {
	h := fnv.New32a()
	h.Write([]byte(collection + "\x00" + field))
	readable := strcase.ToSnake(strings.ReplaceAll(collection, "/", "_") + "_" + strings.ReplaceAll(field, ".", "_"))
	return fmt.Sprintf("uniq_%s_%08x", readable, h.Sum32())
}

func (m *SQLiteModel) Find(conditions map[string]any) *document.Query {
	return document.NewQuery(m, document.OpFind, conditions)
}

func (m *SQLiteModel) FindByID(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByID, nil)
	q.ID = id
	return q
}

func (m *SQLiteModel) FindByIDAndUpdate(id string, data document.Document, opts UpdateOptions) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndUpdate, nil)
	q.ID = id
	q.Update = data.Clone()
	q.Upsert = opts.Upsert
	return q
}

func (m *SQLiteModel) FindByIDAndRemove(id string) *document.Query {
	q := document.NewQuery(m, document.OpFindByIDAndRemove, nil)
	q.ID = id
	return q
}

// Save inserts data, assigning a ULID storage identifier when it has none.
func (m *SQLiteModel) Save(ctx context.Context, data document.Document) (document.Document, error) {
	doc := data.Clone()
	if doc == nil {
		doc = document.Document{}
	}
	if key, ok := doc[document.KeyField]; !ok || key == nil {
		doc[document.KeyField] = ulid.Make().String()
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.opts.Collection, document.IDString(doc[document.KeyField]), string(body), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", mapSQLiteError(err))
	}

	// Round-trip through JSON so callers see what a later read returns.
	stored, err := decodeBody(string(body))
	if err != nil {
		return nil, err
	}
	return m.opts.present(stored, nil), nil
}

// Exec implements document.Executor.
func (m *SQLiteModel) Exec(ctx context.Context, q *document.Query) (any, error) {
	opts := q.Options()

	switch q.Op {
	case document.OpFind:
		docs, err := m.loadAll(ctx, q.Conditions)
		if err != nil {
			return nil, err
		}
		results, err := document.Apply(docs, q.Conditions, opts)
		if err != nil {
			return nil, err
		}
		if m.opts.VirtualID {
			for _, d := range results {
				document.WithVirtualID(d)
			}
		}
		return results, nil

	case document.OpFindByID:
		doc, err := m.lookup(ctx, m.db, q)
		if err != nil {
			return nil, err
		}
		return m.opts.present(doc, opts.Projection), nil

	case document.OpFindByIDAndUpdate:
		return m.update(ctx, q, opts.Projection)

	case document.OpFindByIDAndRemove:
		return m.remove(ctx, q, opts.Projection)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, q.Op)
	}
}

// loadAll reads the collection in insertion order. A plain string storage
// identifier condition is pushed down to the primary key.
func (m *SQLiteModel) loadAll(ctx context.Context, conditions map[string]any) ([]document.Document, error) {
	query := `SELECT body FROM documents WHERE collection = ?`
	args := []any{m.opts.Collection}
	if key, ok := conditions[document.KeyField].(string); ok {
		query += ` AND id = ?`
		args = append(args, key)
	}
	query += ` ORDER BY rowid`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return docs, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lookup loads q.ID and checks it against the query's conditions.
func (m *SQLiteModel) lookup(ctx context.Context, db queryer, q *document.Query) (document.Document, error) {
	var body string
	err := db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		m.opts.Collection, q.ID,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan row: %w", err)
	}

	doc, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	match, err := document.Match(doc, q.Conditions)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (m *SQLiteModel) update(ctx context.Context, q *document.Query, p document.Projection) (any, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	patch := q.Update.Clone()
	delete(patch, document.KeyField)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	doc, err := m.lookup(ctx, tx, q)
	switch {
	case errors.Is(err, ErrNotFound) && q.Upsert:
		doc = document.Document{document.KeyField: q.ID}
		doc.Merge(patch)
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, m.opts.Collection, q.ID, string(body), now, now); err != nil {
			return nil, fmt.Errorf("upsert document: %w", mapSQLiteError(err))
		}
	case err != nil:
		return nil, err
	default:
		doc.Merge(patch)
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("marshal document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET body = ?, updated_at = ?
			WHERE collection = ? AND id = ?
		`, string(body), now, m.opts.Collection, q.ID); err != nil {
			return nil, fmt.Errorf("update document: %w", mapSQLiteError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	stored, err := decodeBody(string(body))
	if err != nil {
		return nil, err
	}
	return m.opts.present(stored, p), nil
}

func (m *SQLiteModel) remove(ctx context.Context, q *document.Query, p document.Projection) (any, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := m.lookup(ctx, tx, q)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		m.opts.Collection, q.ID,
	); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return m.opts.present(doc, p), nil
}

func decodeBody(body string) (document.Document, error) {
	var doc document.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("parse document JSON: %w", err)
	}
	return doc, nil
}

// mapSQLiteError turns uniqueness violations into ErrDuplicateKey, keeping
// SQLite's message.
func mapSQLiteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
		(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE constraint failed")) {
		return duplicateKeyError(se.Error())
	}
	return err
}

var _ Model = (*SQLiteModel)(nil)
