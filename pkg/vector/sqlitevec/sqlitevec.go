// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/vector"
)

const (
	// overfetch multiplies the KNN k when a filter is applied after the scan.
	overfetch = 8

	// maxK is the largest k sqlite-vec accepts in a KNN query.
	maxK = 4096
)

// Driver implements vector.Driver using SQLite with sqlite-vec. One database
// file holds one collection.
type Driver struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.RWMutex
	cfg     vector.CollectionConfig
	ensured bool
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS collection_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			name TEXT NOT NULL,
			vector_size INTEGER NOT NULL,
			distance TEXT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collection meta table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:     db,
		logger: logger,
	}, nil
}

func metric(d vector.Distance) (string, error) {
	switch d {
	case vector.DistanceCosine:
		return "cosine", nil
	case vector.DistanceEuclid:
		return "l2", nil
	default:
		return "", fmt.Errorf("sqlite-vec does not support distance %q", d)
	}
}

// EnsureCollection creates the collection tables, or checks the recorded
// collection against cfg.
func (d *Driver) EnsureCollection(ctx context.Context, cfg vector.CollectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return vector.Wrap("ensure_collection", err)
	}
	if _, err := metric(cfg.Distance); err != nil {
		return vector.Wrap("ensure_collection", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var existing vector.CollectionConfig
	err := d.db.QueryRowContext(ctx,
		`SELECT name, vector_size, distance FROM collection_meta WHERE id = 1`,
	).Scan(&existing.Name, &existing.VectorSize, &existing.Distance)

	switch {
	case err == nil:
		if existing.Name != cfg.Name || !existing.Compatible(cfg) {
			return vector.Incompatible(existing, cfg)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := d.db.ExecContext(ctx,
			`INSERT INTO collection_meta(id, name, vector_size, distance) VALUES (1, ?, ?, ?)`,
			cfg.Name, cfg.VectorSize, string(cfg.Distance),
		); err != nil {
			return vector.Wrap("ensure_collection", fmt.Errorf("recording collection: %w", err))
		}
		d.logger.Info("created sqlite-vec collection",
			zap.String("collection", cfg.Name),
			zap.Uint("vector_size", cfg.VectorSize),
			zap.String("distance", string(cfg.Distance)),
		)
	default:
		return vector.Wrap("ensure_collection", fmt.Errorf("reading collection meta: %w", err))
	}

	if err := d.createTables(ctx, cfg); err != nil {
		return vector.Wrap("ensure_collection", err)
	}

	d.cfg = cfg
	d.ensured = true
	return nil
}

func (d *Driver) createTables(ctx context.Context, cfg vector.CollectionConfig) error {
	// vec0 virtual tables use integer rowids, so string point IDs are mapped
	// to rowids here. The payload is kept as JSON for filtering.
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			function_id TEXT NOT NULL,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	if _, err := d.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_vec_documents_function_id ON vec_documents(function_id)`,
	); err != nil {
		return fmt.Errorf("creating function index: %w", err)
	}

	m, err := metric(cfg.Distance)
	if err != nil {
		return err
	}
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d] distance_metric=%s)`,
		cfg.VectorSize, m,
	)
	if _, err := d.db.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

func (d *Driver) config() (vector.CollectionConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.ensured {
		return vector.CollectionConfig{}, vector.ErrNoCollection
	}
	return d.cfg, nil
}

// Upsert stores points with their embeddings.
// If a point with the same ID already exists, it is updated.
func (d *Driver) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	cfg, err := d.config()
	if err != nil {
		return vector.Wrap("upsert", err)
	}
	if err := vector.CheckVectors(points, cfg.VectorSize); err != nil {
		return vector.Wrap("upsert", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.Wrap("upsert", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return vector.Wrap("upsert", fmt.Errorf("marshaling payload for point %s: %w", p.ID, err))
		}
		embBlob := serializeFloat32(p.Vector)

		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE doc_id = ?`, p.ID,
		).Scan(&existingRowID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET function_id = ?, payload = ? WHERE rowid = ?`,
				p.Payload.FunctionID, string(payload), existingRowID,
			); err != nil {
				return vector.Wrap("upsert", fmt.Errorf("updating point %s: %w", p.ID, err))
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return vector.Wrap("upsert", fmt.Errorf("deleting old embedding for point %s: %w", p.ID, err))
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return vector.Wrap("upsert", fmt.Errorf("re-inserting embedding for point %s: %w", p.ID, err))
			}
		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(doc_id, function_id, payload) VALUES (?, ?, ?)`,
				p.ID, p.Payload.FunctionID, string(payload),
			)
			if err != nil {
				return vector.Wrap("upsert", fmt.Errorf("inserting point %s: %w", p.ID, err))
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return vector.Wrap("upsert", fmt.Errorf("getting rowid for point %s: %w", p.ID, err))
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return vector.Wrap("upsert", fmt.Errorf("inserting embedding for point %s: %w", p.ID, err))
			}
		default:
			return vector.Wrap("upsert", fmt.Errorf("checking for existing point %s: %w", p.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return vector.Wrap("upsert", fmt.Errorf("committing transaction: %w", err))
	}

	d.logger.Debug("upserted points to sqlite-vec",
		zap.Int("count", len(points)),
	)

	return nil
}

// Query runs a KNN scan and applies filter to the candidates. When a filter
// is set the scan over-fetches, and falls back to the whole table if too few
// candidates survive.
func (d *Driver) Query(ctx context.Context, vec []float32, filter *vector.Filter, limit int) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = 10
	}

	cfg, err := d.config()
	if err != nil {
		return nil, vector.Wrap("query", err)
	}
	if err := vector.CheckVectors([]vector.Point{{ID: "query", Vector: vec}}, cfg.VectorSize); err != nil {
		return nil, vector.Wrap("query", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_documents`).Scan(&total); err != nil {
		return nil, vector.Wrap("query", fmt.Errorf("counting points: %w", err))
	}
	if total == 0 {
		return nil, nil
	}

	k := min(limit, total, maxK)
	if !filter.Empty() {
		k = min(limit*overfetch, total, maxK)
	}

	queryBlob := serializeFloat32(vec)
	for {
		results, err := d.knn(ctx, cfg, queryBlob, filter, k)
		if err != nil {
			return nil, vector.Wrap("query", err)
		}
		if len(results) >= limit || k >= min(total, maxK) {
			if len(results) > limit {
				results = results[:limit]
			}
			d.logger.Debug("queried sqlite-vec",
				zap.Int("k", k),
				zap.Int("results", len(results)),
			)
			return results, nil
		}
		k = min(total, maxK)
	}
}

func (d *Driver) knn(ctx context.Context, cfg vector.CollectionConfig, queryBlob []byte, filter *vector.Filter, k int) ([]vector.QueryResult, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT
			d.doc_id,
			d.payload,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_documents d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, queryBlob, k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			docID, payload string
			distance       float64
		)
		if err := rows.Scan(&docID, &payload, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		var p vector.Payload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding payload for point %s: %w", docID, err)
		}
		if !filter.Match(p) {
			continue
		}

		results = append(results, vector.QueryResult{
			Point: vector.Point{ID: docID, Payload: p},
			Score: vector.ScoreFromDistance(cfg.Distance, distance),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}
	return results, nil
}

// Get retrieves points by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := d.config(); err != nil {
		return nil, vector.Wrap("get", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`
		SELECT d.doc_id, d.payload, d.rowid
		FROM vec_documents d
		WHERE d.doc_id IN (%s)
	`, placeholders)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, vector.Wrap("get", fmt.Errorf("querying points: %w", err))
	}
	defer rows.Close()

	// Collect results first so we can close the rows cursor before
	// issuing additional queries (SQLite uses a single connection).
	type docRow struct {
		docID   string
		payload string
		rowID   int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.docID, &dr.payload, &dr.rowID); err != nil {
			return nil, vector.Wrap("get", fmt.Errorf("scanning point: %w", err))
		}
		docRows = append(docRows, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, vector.Wrap("get", fmt.Errorf("iterating points: %w", err))
	}
	rows.Close()

	points := make([]vector.Point, 0, len(docRows))
	for _, dr := range docRows {
		p := vector.Point{ID: dr.docID}
		if err := json.Unmarshal([]byte(dr.payload), &p.Payload); err != nil {
			return nil, vector.Wrap("get", fmt.Errorf("decoding payload for point %s: %w", dr.docID, err))
		}

		var embBlob []byte
		err := d.db.QueryRowContext(ctx,
			`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			p.Vector, _ = deserializeFloat32(embBlob)
		}

		points = append(points, p)
	}

	return points, nil
}

// Delete removes the points with the given IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := d.config(); err != nil {
		return vector.Wrap("delete", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.Wrap("delete", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	placeholders, args := inClause(ids)
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid FROM vec_documents WHERE doc_id IN (%s)`, placeholders,
	), args...)
	if err != nil {
		return vector.Wrap("delete", fmt.Errorf("querying rowids for deletion: %w", err))
	}
	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return vector.Wrap("delete", fmt.Errorf("scanning rowid: %w", err))
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return vector.Wrap("delete", fmt.Errorf("iterating rowids: %w", err))
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return vector.Wrap("delete", fmt.Errorf("deleting embedding rowid %d: %w", rowID, err))
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM vec_documents WHERE doc_id IN (%s)`, placeholders,
	), args...); err != nil {
		return vector.Wrap("delete", fmt.Errorf("deleting points: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return vector.Wrap("delete", fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// DeleteByFunction removes every point of functionID.
func (d *Driver) DeleteByFunction(ctx context.Context, functionID string) error {
	if _, err := d.config(); err != nil {
		return vector.Wrap("delete", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return vector.Wrap("delete", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM vec_documents WHERE function_id = ?`, functionID,
	)
	if err != nil {
		return vector.Wrap("delete", fmt.Errorf("querying rowids for deletion: %w", err))
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return vector.Wrap("delete", fmt.Errorf("scanning rowid: %w", err))
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return vector.Wrap("delete", fmt.Errorf("iterating rowids: %w", err))
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return vector.Wrap("delete", fmt.Errorf("deleting embedding rowid %d: %w", rowID, err))
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vec_documents WHERE function_id = ?`, functionID,
	); err != nil {
		return vector.Wrap("delete", fmt.Errorf("deleting points: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return vector.Wrap("delete", fmt.Errorf("committing transaction: %w", err))
	}

	d.logger.Debug("deleted function points from sqlite-vec",
		zap.String("function_id", functionID),
		zap.Int("count", len(rowIDs)),
	)

	return nil
}

// Clear drops the point tables and recreates them with the ensured config.
func (d *Driver) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.ensured {
		return vector.Wrap("clear", vector.ErrNoCollection)
	}

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS vec_embeddings`,
		`DROP TABLE IF EXISTS vec_documents`,
	} {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return vector.Wrap("clear", fmt.Errorf("dropping tables: %w", err))
		}
	}
	if err := d.createTables(ctx, d.cfg); err != nil {
		return vector.Wrap("clear", err)
	}

	d.logger.Info("cleared sqlite-vec collection", zap.String("collection", d.cfg.Name))
	return nil
}

// Stats reports the number of stored points.
func (d *Driver) Stats(ctx context.Context) (vector.Stats, error) {
	cfg, err := d.config()
	if err != nil {
		return vector.Stats{}, vector.Wrap("stats", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := vector.Stats{
		Collection: cfg.Name,
		VectorSize: cfg.VectorSize,
		Distance:   cfg.Distance,
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_documents`).Scan(&stats.Points); err != nil {
		return stats, vector.Wrap("stats", fmt.Errorf("counting points: %w", err))
	}
	stats.Healthy = true
	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

var _ vector.Driver = (*Driver)(nil)
