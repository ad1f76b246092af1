package domain

import (
	"encoding/json"
	"time"
)

// Revision statuses
const (
	RevisionStatusDraft     = "draft"
	RevisionStatusScheduled = "scheduled"
	RevisionStatusPublished = "published"
	RevisionStatusFailed    = "failed"
	RevisionStatusCancelled = "cancelled"
)

// Revision kinds. KindRevision is canonical; the legacy kinds existed in
// older installs and are rewritten by the migration routine.
const (
	KindRevision       = "product_revision"
	KindLegacySchedule = "scheduled_product"
	KindLegacyUpdate   = "product_update"
)

// ReservedMetaPrefix marks scheduler bookkeeping keys. They never appear
// in revision payloads and the apply engine never copies or deletes them
// on the parent.
const ReservedMetaPrefix = "_wcps_"

// Revision is a prepared replacement for a product's content, applied
// all-or-nothing at its scheduled time.
type Revision struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64 `gorm:"index:idx_revision_product;index:idx_revision_due,priority:2" json:"product_id"`
	Kind      string `gorm:"size:32;not null;default:'product_revision';index" json:"kind"`
	Status    string `gorm:"size:16;not null;default:'draft';index:idx_revision_due,priority:1" json:"status"`

	// ScheduledAt is the due moment as a unix timestamp (UTC). Zero while
	// the revision is a draft.
	ScheduledAt int64 `gorm:"index:idx_revision_due,priority:3" json:"scheduled_at"`
	// ScheduledAtUTC is the human-readable form kept alongside the unix
	// value. Legacy rows may carry only this field until migrated.
	ScheduledAtUTC string `gorm:"size:32" json:"scheduled_at_utc,omitempty"`
	Timezone       string `gorm:"size:64" json:"timezone,omitempty"`

	Title   string `gorm:"size:255" json:"title"`
	Content string `gorm:"type:longtext" json:"content"`
	Excerpt string `gorm:"type:text" json:"excerpt"`

	// Meta and Terms are JSON payloads (MetaMapPayload and
	// map[taxonomy][]termID respectively)
	Meta  string `gorm:"type:longtext" json:"-"`
	Terms string `gorm:"type:text" json:"-"`

	CreatedBy      uint64 `json:"created_by"`
	ErrorMessage   string `gorm:"type:text" json:"error_message,omitempty"`
	PublishedAtUTC string `gorm:"size:32" json:"published_at_utc,omitempty"`

	// LegacyParentID holds the parent reference from pre-migration rows
	// that stored it outside ProductID
	LegacyParentID uint64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Revision) TableName() string {
	return "scheduler_revisions"
}

// IsTerminal reports whether the revision is in a final state
func (r *Revision) IsTerminal() bool {
	return r.Status == RevisionStatusPublished || r.Status == RevisionStatusCancelled
}

// MetaPayload decodes the stored attribute map
func (r *Revision) MetaPayload() (MetaMapPayload, error) {
	if r.Meta == "" {
		return MetaMapPayload{}, nil
	}
	var m MetaMapPayload
	if err := json.Unmarshal([]byte(r.Meta), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMetaPayload encodes the attribute map into the stored form
func (r *Revision) SetMetaPayload(m MetaMapPayload) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	r.Meta = string(data)
	return nil
}

// TermsPayload decodes the stored term assignments as taxonomy -> term ids
func (r *Revision) TermsPayload() (map[string][]uint64, error) {
	if r.Terms == "" {
		return map[string][]uint64{}, nil
	}
	var t map[string][]uint64
	if err := json.Unmarshal([]byte(r.Terms), &t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetTermsPayload encodes term assignments into the stored form
func (r *Revision) SetTermsPayload(t map[string][]uint64) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	r.Terms = string(data)
	return nil
}

// ValidStatusTransition enforces the revision lifecycle:
// draft -> scheduled, scheduled -> draft (demotion), scheduled ->
// published/failed/cancelled, failed -> scheduled (retry). Terminal
// states never transition.
func ValidStatusTransition(from, to string) bool {
	switch from {
	case RevisionStatusDraft:
		return to == RevisionStatusScheduled
	case RevisionStatusScheduled:
		return to == RevisionStatusDraft ||
			to == RevisionStatusPublished ||
			to == RevisionStatusFailed ||
			to == RevisionStatusCancelled
	case RevisionStatusFailed:
		return to == RevisionStatusScheduled
	default:
		return false
	}
}

// RevisionLog is one line of a revision's processing history
type RevisionLog struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RevisionID uint64    `gorm:"not null;index" json:"revision_id"`
	Level      string    `gorm:"size:8;not null" json:"level"`
	Message    string    `gorm:"type:text;not null" json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RevisionLog) TableName() string {
	return "scheduler_revision_logs"
}

// Log levels
const (
	LogLevelInfo  = "info"
	LogLevelError = "error"
)
