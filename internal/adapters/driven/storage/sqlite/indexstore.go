package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/arkiv-labs/arkiv/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/arkiv-labs/arkiv/internal/core/domain"
	"github.com/arkiv-labs/arkiv/internal/core/ports/driven"
)

// Meta table keys.
const (
	metaManifest      = "manifest"
	metaEmbedderName  = "embedder_name"
	metaEmbedderState = "embedder_state"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// Store opens SQLite index artifacts.
type Store struct{}

// NewStore creates a SQLite-backed index store.
func NewStore() *Store {
	return &Store{}
}

// OpenWriter creates a new, empty index artifact at path.
func (s *Store) OpenWriter(path string) (driven.IndexWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := migrate(db, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	// The whole build goes in one transaction so a crashed build
	// leaves an empty artifact, never a partial one.
	tx, err := db.Begin()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("beginning build transaction: %w", err)
	}

	return &writer{db: db, tx: tx}, nil
}

// OpenReader opens an existing index artifact at path.
func (s *Store) OpenReader(path string) (driven.IndexReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index artifact %s: %w", path, domain.ErrNotFound)
	}

	db, err := open(path)
	if err != nil {
		return nil, err
	}
	return &reader{db: db}, nil
}

// Promote replaces the current artifact with the staging artifact.
// Rename is atomic on POSIX filesystems; readers holding the old file
// keep their handle until they close.
func (s *Store) Promote(staging, current string) error {
	if err := os.Rename(staging, current); err != nil {
		return fmt.Errorf("promoting index artifact: %w", err)
	}
	return nil
}

// open opens the database with a busy timeout. The rollback journal is
// kept in DELETE mode so an artifact is always a single file and safe
// to promote with a rename.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// migrate runs all pending migrations.
func migrate(db *sql.DB, fsys embed.FS) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Writer ====================

// writer implements driven.IndexWriter over a single transaction.
type writer struct {
	db *sql.DB
	tx *sql.Tx
}

var _ driven.IndexWriter = (*writer)(nil)

// AddRecord stores a record with its optional embedding.
func (w *writer) AddRecord(ctx context.Context, rec domain.Record, embedding []float32) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}

	var ts sql.NullTime
	if rec.Timestamp != nil {
		ts = sql.NullTime{Time: *rec.Timestamp, Valid: true}
	}

	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO records (id, kind, source_file, row_num, title, body, fields, ts, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Kind), rec.SourceFile, rec.Row, rec.Title, rec.Text,
		string(fieldsJSON), ts, float32SliceToBytes(embedding))
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}

	_, err = w.tx.ExecContext(ctx, `
		INSERT INTO records_fts (record_id, title, body) VALUES (?, ?, ?)
	`, rec.ID, rec.Title, rec.Text)
	if err != nil {
		return fmt.Errorf("inserting record into fts: %w", err)
	}

	return nil
}

// SetEmbedderState persists the embedder's serialized state.
func (w *writer) SetEmbedderState(ctx context.Context, name string, state []byte) error {
	if err := w.setMeta(ctx, metaEmbedderName, []byte(name)); err != nil {
		return err
	}
	return w.setMeta(ctx, metaEmbedderState, state)
}

// SetManifest persists the index manifest.
func (w *writer) SetManifest(ctx context.Context, m domain.IndexManifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling manifest: %w", err)
	}
	return w.setMeta(ctx, metaManifest, data)
}

func (w *writer) setMeta(ctx context.Context, key string, value []byte) error {
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting meta %s: %w", key, err)
	}
	return nil
}

// Close commits the build transaction and releases the artifact.
func (w *writer) Close() error {
	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("committing build transaction: %w", err)
	}
	return w.db.Close()
}

// ==================== Reader ====================

// reader implements driven.IndexReader. database/sql serialises access
// internally, so a single reader is safe for concurrent queries.
type reader struct {
	db *sql.DB
}

var _ driven.IndexReader = (*reader)(nil)

const recordColumns = "id, kind, source_file, row_num, title, body, fields, ts"

// Manifest returns the index manifest.
func (r *reader) Manifest(ctx context.Context) (*domain.IndexManifest, error) {
	data, err := r.getMeta(ctx, metaManifest)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("index manifest: %w", domain.ErrNotFound)
	}

	var m domain.IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}
	return &m, nil
}

// GetRecord retrieves a record by ID.
func (r *reader) GetRecord(ctx context.Context, id string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE id = ?", id)

	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListByKind returns all records of a kind, ordered by source file
// then row.
func (r *reader) ListByKind(ctx context.Context, kind domain.RecordKind) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE kind = ? ORDER BY source_file, row_num",
		string(kind))
	if err != nil {
		return nil, fmt.Errorf("querying records by kind: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ListBySource returns all records from one source file, ordered by row.
func (r *reader) ListBySource(ctx context.Context, sourceFile string) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE source_file = ? ORDER BY row_num",
		sourceFile)
	if err != nil {
		return nil, fmt.Errorf("querying records by source: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// CountBySource returns record counts per source file.
func (r *reader) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT source_file, COUNT(*) FROM records GROUP BY source_file")
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating counts: %w", err)
	}
	return counts, nil
}

// SearchKeyword runs an FTS5 search over titles and bodies. Terms are
// OR-joined so partial matches still surface; ranking is bm25, negated
// so higher is better.
func (r *reader) SearchKeyword(ctx context.Context, terms []string, limit int) ([]driven.KeywordHit, error) {
	match := ftsQuery(terms)
	if match == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, bm25(records_fts) FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY bm25(records_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []driven.KeywordHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.KeywordHit
		var rank float64
		if err := rows.Scan(&hit.RecordID, &rank); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// SearchVector scans all stored embeddings and returns the k nearest
// by cosine similarity. Vectors are L2-normalised at embed time, so
// similarity reduces to a dot product.
func (r *reader) SearchVector(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id, embedding FROM records WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}

		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(query) {
			continue
		}

		var dot float64
		for i := range query {
			dot += float64(query[i]) * float64(vec[i])
		}
		if dot <= 0 {
			continue
		}
		hits = append(hits, driven.VectorHit{RecordID: id, Similarity: dot})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].RecordID < hits[j].RecordID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// EmbedderState returns the embedder name and state stored at build
// time.
func (r *reader) EmbedderState(ctx context.Context) (string, []byte, error) {
	name, err := r.getMeta(ctx, metaEmbedderName)
	if err != nil {
		return "", nil, err
	}
	if name == nil {
		return "", nil, nil
	}
	state, err := r.getMeta(ctx, metaEmbedderState)
	if err != nil {
		return "", nil, err
	}
	return string(name), state, nil
}

// Close releases the database connection.
func (r *reader) Close() error {
	return r.db.Close()
}

func (r *reader) getMeta(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting meta %s: %w", key, err)
	}
	return value, nil
}

// ==================== Helper Functions ====================

// ftsQuery builds an OR-joined FTS5 match expression. Each term is
// quoted so punctuation in user input cannot change query syntax.
func ftsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ReplaceAll(term, `"`, "")
		if strings.TrimSpace(term) == "" {
			continue
		}
		parts = append(parts, `"`+term+`"`)
	}
	return strings.Join(parts, " OR ")
}

// scanRecord scans one record using the given scan function.
func scanRecord(scan func(dest ...any) error) (*domain.Record, error) {
	var rec domain.Record
	var kind, fieldsJSON string
	var ts sql.NullTime

	if err := scan(&rec.ID, &kind, &rec.SourceFile, &rec.Row,
		&rec.Title, &rec.Text, &fieldsJSON, &ts); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.Kind = domain.RecordKind(kind)
	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshaling fields: %w", err)
	}
	if ts.Valid {
		t := ts.Time
		rec.Timestamp = &t
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]domain.Record, error) {
	var records []domain.Record //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
