package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// Migration batch limits
const (
	DefaultMigrationBatch = 200
	MaxMigrationBatch     = 500
	TimestampRepairBatch  = 100
)

// MigrationSummary reports one migration pass
type MigrationSummary struct {
	Scanned            int  `json:"scanned"`
	KindsRewritten     int  `json:"kinds_rewritten"`
	ParentsBackfilled  int  `json:"parents_backfilled"`
	OrphansMarked      int  `json:"orphans_marked"`
	TimestampsRepaired int  `json:"timestamps_repaired"`
	Completed          bool `json:"completed"`
}

// MigrationService rewrites legacy revision rows into the canonical
// shape: canonical kind, parent reference in product_id, unix due
// timestamps. Runs are incremental and resumable.
type MigrationService interface {
	// MigrateLegacy processes up to batchSize legacy-kind rows.
	// Completed is true when no legacy rows remain.
	MigrateLegacy(ctx context.Context, batchSize int) (*MigrationSummary, error)
	// NormalizeTimestamps backfills unix timestamps on rows that carry
	// only the raw schedule string.
	NormalizeTimestamps(ctx context.Context) (*MigrationSummary, error)
	State(ctx context.Context) (*domain.MigrationState, error)
}

type migrationService struct {
	revisions repository.RevisionRepository
	products  repository.ProductRepository
	systems   repository.SystemRepository
	guard     processGuard
	now       func() time.Time
}

func NewMigrationService(
	revisions repository.RevisionRepository,
	products repository.ProductRepository,
	systems repository.SystemRepository,
) MigrationService {
	return &migrationService{
		revisions: revisions,
		products:  products,
		systems:   systems,
		now:       time.Now,
	}
}

var legacyKinds = []string{domain.KindLegacySchedule, domain.KindLegacyUpdate}

func (s *migrationService) MigrateLegacy(ctx context.Context, batchSize int) (*MigrationSummary, error) {
	if !s.guard.tryEnter() {
		return &MigrationSummary{}, nil
	}
	defer s.guard.leave()

	if batchSize <= 0 {
		batchSize = DefaultMigrationBatch
	}
	if batchSize > MaxMigrationBatch {
		batchSize = MaxMigrationBatch
	}

	rows, err := s.revisions.FindByKinds(ctx, legacyKinds, 0, batchSize)
	if err != nil {
		return nil, fmt.Errorf("scan legacy rows: %w", err)
	}

	summary := &MigrationSummary{Scanned: len(rows)}
	for i := range rows {
		rev := &rows[i]
		if err := s.migrateOne(ctx, rev, summary); err != nil {
			logger.WithRevisionID(rev.ID).Error().Err(err).Msg("legacy row migration failed")
		}
	}
	summary.Completed = len(rows) < batchSize

	state, err := s.systems.GetMigrationState(ctx)
	if err != nil {
		return summary, err
	}
	state.KindsRewritten += int64(summary.KindsRewritten)
	state.ParentsBackfilled += int64(summary.ParentsBackfilled)
	state.OrphansMarked += int64(summary.OrphansMarked)
	state.LastRunAt = s.now().UTC()
	state.Completed = summary.Completed
	if err := s.systems.SaveMigrationState(ctx, state); err != nil {
		return summary, err
	}

	if summary.Scanned > 0 {
		_ = s.systems.AppendEvent(ctx, domain.EventMigrationRun,
			fmt.Sprintf("migrated %d legacy rows (%d orphans)", summary.KindsRewritten, summary.OrphansMarked), "")
	}
	return summary, nil
}

func (s *migrationService) migrateOne(ctx context.Context, rev *domain.Revision, summary *MigrationSummary) error {
	rev.Kind = domain.KindRevision
	summary.KindsRewritten++

	if rev.ProductID == 0 && rev.LegacyParentID > 0 {
		rev.ProductID = rev.LegacyParentID
		summary.ParentsBackfilled++
	}

	if rev.ProductID == 0 {
		return s.markOrphan(ctx, rev, summary, "no parent reference")
	}
	if _, err := s.products.FindByID(ctx, rev.ProductID); err != nil {
		if err == common.ErrNotFound {
			return s.markOrphan(ctx, rev, summary,
				fmt.Sprintf("parent product %d missing", rev.ProductID))
		}
		return err
	}

	return s.revisions.Save(ctx, rev)
}

func (s *migrationService) markOrphan(ctx context.Context, rev *domain.Revision, summary *MigrationSummary, reason string) error {
	summary.OrphansMarked++
	if !rev.IsTerminal() {
		rev.Status = domain.RevisionStatusFailed
		rev.ErrorMessage = "orphaned: " + reason
	}
	if err := s.revisions.Save(ctx, rev); err != nil {
		return err
	}
	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelError, "orphaned during migration: "+reason)
	_ = s.systems.AppendEvent(ctx, domain.EventOrphanDetected,
		fmt.Sprintf("revision %d orphaned: %s", rev.ID, reason), "")
	return nil
}

// timestampLayouts accepted in legacy schedule strings
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func (s *migrationService) NormalizeTimestamps(ctx context.Context) (*MigrationSummary, error) {
	rows, err := s.revisions.FindMissingTimestamp(ctx, 0, TimestampRepairBatch)
	if err != nil {
		return nil, fmt.Errorf("scan rows missing timestamp: %w", err)
	}

	summary := &MigrationSummary{Scanned: len(rows)}
	for i := range rows {
		rev := &rows[i]
		parsed, perr := parseLegacyTimestamp(rev.ScheduledAtUTC, rev.Timezone)
		if perr != nil {
			logger.WithRevisionID(rev.ID).Warn().
				Str("raw", rev.ScheduledAtUTC).
				Msg("unparseable legacy schedule string, leaving raw value in place")
			continue
		}
		rev.ScheduledAt = parsed.Unix()
		if err := s.revisions.Save(ctx, rev); err != nil {
			logger.WithRevisionID(rev.ID).Error().Err(err).Msg("timestamp repair save failed")
			continue
		}
		summary.TimestampsRepaired++
	}
	summary.Completed = len(rows) < TimestampRepairBatch

	if summary.TimestampsRepaired > 0 {
		state, err := s.systems.GetMigrationState(ctx)
		if err == nil {
			state.TimestampsRepaired += int64(summary.TimestampsRepaired)
			state.LastRunAt = s.now().UTC()
			_ = s.systems.SaveMigrationState(ctx, state)
		}
	}
	return summary, nil
}

// parseLegacyTimestamp interprets a raw schedule string, in the stored
// timezone when the layout carries no offset
func parseLegacyTimestamp(raw, timezone string) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		if l, err := time.LoadLocation(timezone); err == nil {
			loc = l
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func (s *migrationService) State(ctx context.Context) (*domain.MigrationState, error) {
	return s.systems.GetMigrationState(ctx)
}
