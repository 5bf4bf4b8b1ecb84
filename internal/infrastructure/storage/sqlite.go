// Package storage provides the SQLite-backed tiered record repository.
package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
	_ "modernc.org/sqlite"
)

// Option configures a SQLiteRepository before construction. All optional
// capabilities are decided here; nothing is attached after Build.
type Option func(*builderState)

type builderState struct {
	backupEnabled bool
	busyTimeout   time.Duration
}

// WithBackup enables the backup/restore capability.
func WithBackup() Option {
	return func(b *builderState) {
		b.backupEnabled = true
	}
}

// WithBusyTimeout sets the SQLite busy timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(b *builderState) {
		b.busyTimeout = d
	}
}

// SQLiteRepository implements shared.StorageRepository on a single SQLite
// database. (id, tier) is the primary key, so a record can never be present
// in two tiers at once; tier moves run in one transaction.
type SQLiteRepository struct {
	db            *sql.DB
	path          string
	backupEnabled bool
}

// NewSQLiteRepository opens (or creates) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func NewSQLiteRepository(path string, opts ...Option) (*SQLiteRepository, error) {
	state := builderState{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&state)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", state.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepository{
		db:            db,
		path:          path,
		backupEnabled: state.backupEnabled,
	}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT NOT NULL,
	tier TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding BLOB,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_access INTEGER NOT NULL,
	score REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (id, tier)
);
CREATE INDEX IF NOT EXISTS idx_records_tier ON records(tier);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_last_access ON records(last_access);
`

// Store inserts or replaces a record.
func (r *SQLiteRepository) Store(ctx context.Context, record *shared.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return shared.Serializationf("encode metadata for %s: %v", record.ID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO records
		(id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, string(record.Tier), record.Content,
		encodeEmbedding(record.Embedding), string(metadata),
		record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli(),
		record.AccessCount, record.LastAccess.UnixMilli(), record.Score,
	)
	if err != nil {
		return fmt.Errorf("store record %s: %w", record.ID, err)
	}
	return nil
}

// StoreBatch stores records one by one, isolating per-item failures. It
// returns how many were stored; the error aggregates the first failure.
func (r *SQLiteRepository) StoreBatch(ctx context.Context, records []*shared.Record) (int, error) {
	stored := 0
	var firstErr error
	for _, record := range records {
		if err := r.Store(ctx, record); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		stored++
	}
	if firstErr != nil {
		return stored, fmt.Errorf("stored %d/%d: %w", stored, len(records), firstErr)
	}
	return stored, nil
}

// Update rewrites an existing record in place.
func (r *SQLiteRepository) Update(ctx context.Context, record *shared.Record) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return shared.Serializationf("encode metadata for %s: %v", record.ID, err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE records SET content = ?, embedding = ?, metadata = ?,
			updated_at = ?, access_count = ?, last_access = ?, score = ?
		WHERE id = ? AND tier = ?`,
		record.Content, encodeEmbedding(record.Embedding), string(metadata),
		time.Now().UnixMilli(), record.AccessCount, record.LastAccess.UnixMilli(),
		record.Score, record.ID, string(record.Tier),
	)
	if err != nil {
		return fmt.Errorf("update record %s: %w", record.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NotFoundf("record %s in tier %s", record.ID, record.Tier)
	}
	return nil
}

// Delete removes a record from a tier.
func (r *SQLiteRepository) Delete(ctx context.Context, id string, tier shared.Tier) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND tier = ?`, id, string(tier))
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NotFoundf("record %s in tier %s", id, tier)
	}
	return nil
}

// Get fetches one record.
func (r *SQLiteRepository) Get(ctx context.Context, id string, tier shared.Tier) (*shared.Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score
		FROM records WHERE id = ? AND tier = ?`, id, string(tier))
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, shared.NotFoundf("record %s in tier %s", id, tier)
	}
	return record, err
}

// List returns up to limit records from a tier, newest first.
func (r *SQLiteRepository) List(ctx context.Context, tier shared.Tier, limit int) ([]*shared.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score
		FROM records WHERE tier = ? ORDER BY created_at DESC LIMIT ?`, string(tier), limit)
	if err != nil {
		return nil, fmt.Errorf("list tier %s: %w", tier, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FilterByMetadata returns the records of a tier matching every set filter
// field, newest first.
func (r *SQLiteRepository) FilterByMetadata(ctx context.Context, filter shared.MetadataFilter, tier shared.Tier) ([]*shared.Record, error) {
	query := `
		SELECT id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score
		FROM records WHERE tier = ?`
	args := []interface{}{string(tier)}

	if filter.Project != "" {
		query += ` AND json_extract(metadata, '$.project') = ?`
		args = append(args, filter.Project)
	}
	if filter.Session != "" {
		query += ` AND json_extract(metadata, '$.session') = ?`
		args = append(args, filter.Session)
	}
	if filter.Kind != "" {
		query += ` AND json_extract(metadata, '$.kind') = ?`
		args = append(args, filter.Kind)
	}
	for _, tag := range filter.Tags {
		query += ` AND EXISTS (SELECT 1 FROM json_each(metadata, '$.tags') WHERE json_each.value = ?)`
		args = append(args, tag)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter tier %s: %w", tier, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MoveTier relocates a record between tiers in one transaction, so it is
// never observable in both.
func (r *SQLiteRepository) MoveTier(ctx context.Context, id string, from, to shared.Tier) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tier move: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE records SET tier = ?, updated_at = ? WHERE id = ? AND tier = ?`,
		string(to), time.Now().UnixMilli(), id, string(from))
	if err != nil {
		return fmt.Errorf("move record %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.NotFoundf("record %s in tier %s", id, from)
	}
	return tx.Commit()
}

// HealthCheck probes the database with a trivial query.
func (r *SQLiteRepository) HealthCheck(ctx context.Context) (*shared.HealthStatus, error) {
	start := time.Now()
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	latency := time.Since(start)
	status := &shared.HealthStatus{
		Healthy:   err == nil,
		Latency:   latency,
		LatencyMS: float64(latency.Microseconds()) / 1000.0,
		CheckedAt: time.Now(),
	}
	if err != nil {
		status.Detail = err.Error()
	}
	return status, nil
}

// ResourceAccounting reports the stored record count and embedding bytes;
// the resource controller polls this.
func (r *SQLiteRepository) ResourceAccounting(ctx context.Context) (records uint64, embeddingBytes uint64, err error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(embedding)), 0) FROM records`)
	if err := row.Scan(&records, &embeddingBytes); err != nil {
		return 0, 0, fmt.Errorf("resource accounting: %w", err)
	}
	return records, embeddingBytes, nil
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// ============================================================================
// Backup / Restore
// ============================================================================

// ErrBackupDisabled is returned when the repository was built without the
// backup capability.
var ErrBackupDisabled = fmt.Errorf("backup capability not enabled")

// Backup snapshots the database into a standalone file at path.
func (r *SQLiteRepository) Backup(ctx context.Context, path string) (*shared.BackupMetadata, error) {
	if !r.backupEnabled {
		return nil, ErrBackupDisabled
	}
	if _, err := r.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("backup to %s: %w", path, err)
	}
	count, _, err := r.ResourceAccounting(ctx)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	return &shared.BackupMetadata{
		Path:        path,
		RecordCount: int(count),
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now(),
	}, nil
}

// Restore replaces the current contents with the records from a backup file.
func (r *SQLiteRepository) Restore(ctx context.Context, path string) (*shared.BackupMetadata, error) {
	if !r.backupEnabled {
		return nil, ErrBackupDisabled
	}
	source, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open backup %s: %w", path, err)
	}
	defer source.Close()

	rows, err := source.QueryContext(ctx, `
		SELECT id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score
		FROM records`)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin restore: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return nil, fmt.Errorf("clear before restore: %w", err)
	}
	for _, record := range records {
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return nil, shared.Serializationf("encode metadata for %s: %v", record.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records
			(id, tier, content, embedding, metadata, created_at, updated_at, access_count, last_access, score)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, string(record.Tier), record.Content,
			encodeEmbedding(record.Embedding), string(metadata),
			record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli(),
			record.AccessCount, record.LastAccess.UnixMilli(), record.Score,
		); err != nil {
			return nil, fmt.Errorf("restore record %s: %w", record.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit restore: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	return &shared.BackupMetadata{
		Path:        path,
		RecordCount: len(records),
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now(),
	}, nil
}

// ============================================================================
// Row Encoding
// ============================================================================

func validateRecord(record *shared.Record) error {
	if record == nil {
		return shared.Validationf("nil record")
	}
	if record.ID == "" {
		return shared.Validationf("record has no ID")
	}
	if !record.Tier.Valid() {
		return shared.Validationf("unknown tier %q", record.Tier)
	}
	return nil
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(embedding []float32) []byte {
	if embedding == nil {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding unpacks little-endian float32 bytes.
func decodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, shared.Serializationf("embedding blob length %d not a multiple of 4", len(buf))
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*shared.Record, error) {
	var (
		record               shared.Record
		tier                 string
		embedding            []byte
		metadata             string
		createdAt, updatedAt int64
		lastAccess           int64
	)
	err := row.Scan(&record.ID, &tier, &record.Content, &embedding, &metadata,
		&createdAt, &updatedAt, &record.AccessCount, &lastAccess, &record.Score)
	if err != nil {
		return nil, err
	}
	record.Tier = shared.Tier(tier)
	record.CreatedAt = time.UnixMilli(createdAt)
	record.UpdatedAt = time.UnixMilli(updatedAt)
	record.LastAccess = time.UnixMilli(lastAccess)
	if record.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
		return nil, shared.Serializationf("decode metadata for %s: %v", record.ID, err)
	}
	return &record, nil
}

func scanRecords(rows *sql.Rows) ([]*shared.Record, error) {
	var records []*shared.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
