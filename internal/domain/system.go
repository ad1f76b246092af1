package domain

import "time"

// System event types
const (
	EventRevisionPublished = "revision_published"
	EventRevisionFailed    = "revision_failed"
	EventOrphanDetected    = "orphan_detected"
	EventMigrationRun      = "migration_run"
	EventRunnerPass        = "runner_pass"
)

// SystemEvent is one entry in the bounded operational event log
type SystemEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"size:32;not null;index" json:"type"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Context   string    `gorm:"type:text" json:"context,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (SystemEvent) TableName() string {
	return "scheduler_system_events"
}

// SystemEventCap bounds the event table; oldest rows beyond the cap are
// pruned on append.
const SystemEventCap = 1000

// MigrationState tracks cumulative progress of the legacy-row migration
type MigrationState struct {
	ID                 uint64    `gorm:"primaryKey" json:"id"`
	KindsRewritten     int64     `json:"kinds_rewritten"`
	ParentsBackfilled  int64     `json:"parents_backfilled"`
	OrphansMarked      int64     `json:"orphans_marked"`
	TimestampsRepaired int64     `json:"timestamps_repaired"`
	LastRunAt          time.Time `json:"last_run_at"`
	Completed          bool      `json:"completed"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (MigrationState) TableName() string {
	return "scheduler_migration_state"
}
