package shared

import (
	"context"
	"time"
)

// ============================================================================
// Storage Port
// ============================================================================

// BackupMetadata describes a completed backup or restore.
type BackupMetadata struct {
	Path        string    `json:"path"`
	RecordCount int       `json:"recordCount"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MetadataFilter selects records by their metadata attributes. Zero-value
// fields match everything.
type MetadataFilter struct {
	Tags    []string `json:"tags,omitempty"`
	Project string   `json:"project,omitempty"`
	Session string   `json:"session,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// StorageRepository is the persistence port for tiered records. Batch
// operations isolate per-item failures and report how many items succeeded.
type StorageRepository interface {
	Store(ctx context.Context, record *Record) error
	StoreBatch(ctx context.Context, records []*Record) (int, error)
	Update(ctx context.Context, record *Record) error
	Delete(ctx context.Context, id string, tier Tier) error
	Get(ctx context.Context, id string, tier Tier) (*Record, error)
	List(ctx context.Context, tier Tier, limit int) ([]*Record, error)
	FilterByMetadata(ctx context.Context, filter MetadataFilter, tier Tier) ([]*Record, error)
	HealthCheck(ctx context.Context) (*HealthStatus, error)
	Close() error
}

// BackupCapable is the optional backup/restore extension of a repository.
// Builders wire it in before construction; it is never attached after the
// fact.
type BackupCapable interface {
	Backup(ctx context.Context, path string) (*BackupMetadata, error)
	Restore(ctx context.Context, path string) (*BackupMetadata, error)
}
