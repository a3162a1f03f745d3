// Package sqlite provides a record.Store backed by SQLite.
//
// Each document is stored twice: whole, as canonical JSON in documents.body,
// and exploded into one fields row per field for querying. Queries compile
// to EXISTS sub-selects over the fields table (see SQLCompiler).
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on fields(name, num) for collection size lookups
const currentSchemaVersion = 1

// Store is a SQLite record.Store.
type Store struct {
	db       *sql.DB
	compiler *SQLCompiler
}

var _ record.Store = (*Store)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (fields rows cascade with their document)
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// Cursors never hold rows open between calls for the same reason.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, compiler: NewSQLCompiler()}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns the document with id, or record.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*record.Document, error) {
	var version, body string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, body FROM documents WHERE id = ?", id,
	).Scan(&version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, record.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return decodeDocument(id, version, body)
}

// Find runs the search. The matching ids are read up front; unless the
// search is ids-only, the returned cursor loads document bodies findChunk
// at a time as it advances. A document deleted after Find returned is
// skipped, and one updated since is returned in its current version.
func (s *Store) Find(ctx context.Context, search record.Search) (record.Cursor, error) {
	keys := search
	keys.IDsOnly = true
	query, params, err := s.compiler.Compile(keys)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	var refs []*record.Document
	for rows.Next() {
		var id, version string
		if err := rows.Scan(&id, &version); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		refs = append(refs, &record.Document{ID: id, Version: version})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	if search.IDsOnly {
		return record.NewSliceCursor(refs), nil
	}

	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return &bodyCursor{ctx: ctx, db: s.db, ids: ids}, nil
}

// findChunk is the number of document bodies a cursor loads per query.
const findChunk = 64

// bodyCursor walks the ids of a search and loads their bodies in chunks.
// No rows stay open between calls, so the single connection is free for
// other statements while a cursor is in use.
type bodyCursor struct {
	ctx  context.Context
	db   *sql.DB
	ids  []string
	next int
	buf  []*record.Document
	cur  *record.Document
	err  error
}

func (c *bodyCursor) Next() bool {
	c.cur = nil
	if c.err != nil {
		return false
	}
	for len(c.buf) == 0 {
		if c.next >= len(c.ids) {
			return false
		}
		if err := c.load(); err != nil {
			c.err = err
			return false
		}
	}
	c.cur, c.buf = c.buf[0], c.buf[1:]
	return true
}

func (c *bodyCursor) load() error {
	end := min(c.next+findChunk, len(c.ids))
	chunk := c.ids[c.next:end]
	c.next = end

	args := make([]any, len(chunk))
	for i, id := range chunk {
		args[i] = id
	}
	query := "SELECT id, version, body FROM documents WHERE id IN (" +
		strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",") + ")"
	rows, err := c.db.QueryContext(c.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]*record.Document, len(chunk))
	for rows.Next() {
		var id, version, body string
		if err := rows.Scan(&id, &version, &body); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		doc, err := decodeDocument(id, version, body)
		if err != nil {
			return err
		}
		loaded[id] = doc
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("find: %w", err)
	}
	for _, id := range chunk {
		if doc, ok := loaded[id]; ok {
			c.buf = append(c.buf, doc)
		}
	}
	return nil
}

func (c *bodyCursor) Document() *record.Document { return c.cur }

func (c *bodyCursor) Err() error { return c.err }

func (c *bodyCursor) Close() error {
	c.ids, c.buf, c.cur = nil, nil, nil
	return nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, filter record.Query) (int, error) {
	query, params, err := s.compiler.CompileCount(filter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Check verifies the batch's expected versions without writing.
func (s *Store) Check(ctx context.Context, b *record.Batch) error {
	return b.Verify(func(id string) (string, bool, error) {
		return currentVersion(ctx, s.db, id)
	})
}

// Apply verifies and writes the batch in one transaction.
func (s *Store) Apply(ctx context.Context, b *record.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := b.Verify(func(id string) (string, bool, error) {
		return currentVersion(ctx, tx, id)
	}); err != nil {
		return err
	}

	for _, op := range b.Ops() {
		switch op.Kind {
		case record.OpPut:
			if err := putDocument(ctx, tx, op.Doc); err != nil {
				return err
			}
		case record.OpDelete:
			if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", op.ID); err != nil {
				return fmt.Errorf("delete %s: %w", op.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryer, id string) (string, bool, error) {
	var version string
	err := q.QueryRowContext(ctx, "SELECT version FROM documents WHERE id = ?", id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("version of %s: %w", id, err)
	}
	return version, true, nil
}

func putDocument(ctx context.Context, tx *sql.Tx, doc *record.Document) error {
	fields := make(ir.IRObject, len(doc.Fields))
	for k, v := range doc.Fields {
		if !ir.IsNull(v) {
			fields[k] = v
		}
	}
	body, err := ir.MarshalCanonical(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.ID, err)
	}
	version, err := ir.StateHash(fields)
	if err != nil {
		return fmt.Errorf("hash %s: %w", doc.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, type, version, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type, version = excluded.version, body = excluded.body`,
		doc.ID, doc.Type(), version, string(body))
	if err != nil {
		return fmt.Errorf("put %s: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM fields WHERE doc_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clear fields of %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO fields (doc_id, name, value, text, num) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare fields insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range fields.SortedKeys() {
		v := fields[name]
		value, err := ir.MarshalCanonical(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", doc.ID, name, err)
		}
		var text, num any
		switch val := v.(type) {
		case ir.IRString:
			text = string(val)
		case ir.IRInt:
			num = int64(val)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, name, string(value), text, num); err != nil {
			return fmt.Errorf("insert field %s.%s: %w", doc.ID, name, err)
		}
	}
	return nil
}

func decodeDocument(id, version, body string) (*record.Document, error) {
	v, err := ir.UnmarshalIRValue([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	fields, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("decode %s: body is %T, want object", id, v)
	}
	return &record.Document{ID: id, Version: version, Fields: fields}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 indexes integer field values so the descending size lookup
// does not scan every fields row.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fields_name_num
		ON fields(name, num)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
