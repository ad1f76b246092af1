package service

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
)

// fakeProductStore is an in-memory ProductRepository with failure
// injection for exercising the rollback path
type fakeProductStore struct {
	mu       sync.Mutex
	products map[uint64]*domain.Product
	meta     map[uint64]domain.MetaMapPayload
	terms    map[uint64]map[string][]uint64

	// failOn makes the named operation return an error once
	failOn string
	// dropContentWrites makes UpdateFields succeed without persisting,
	// simulating a store that silently loses the write
	dropContentWrites bool
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{
		products: make(map[uint64]*domain.Product),
		meta:     make(map[uint64]domain.MetaMapPayload),
		terms:    make(map[uint64]map[string][]uint64),
	}
}

func (f *fakeProductStore) addProduct(p *domain.Product, meta domain.MetaMapPayload, terms map[string][]uint64) {
	f.products[p.ID] = p
	if meta == nil {
		meta = domain.MetaMapPayload{}
	}
	if terms == nil {
		terms = map[string][]uint64{}
	}
	f.meta[p.ID] = meta
	f.terms[p.ID] = terms
}

func (f *fakeProductStore) trip(op string) error {
	if f.failOn == op {
		f.failOn = ""
		return common.ErrProcessing
	}
	return nil
}

func (f *fakeProductStore) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("find"); err != nil {
		return nil, err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductStore) UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("update"); err != nil {
		return err
	}
	if f.dropContentWrites {
		return nil
	}
	p, ok := f.products[id]
	if !ok {
		return common.ErrNotFound
	}
	if v, ok := fields["title"]; ok {
		p.Title = v.(string)
	}
	if v, ok := fields["content"]; ok {
		p.Content = v.(string)
	}
	if v, ok := fields["excerpt"]; ok {
		p.Excerpt = v.(string)
	}
	if v, ok := fields["status"]; ok {
		p.Status = v.(string)
	}
	return nil
}

func (f *fakeProductStore) GetMeta(ctx context.Context, productID uint64) (domain.MetaMapPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("getmeta"); err != nil {
		return nil, err
	}
	return f.meta[productID].Clone(), nil
}

func (f *fakeProductStore) SetMeta(ctx context.Context, productID uint64, key string, value domain.MetaValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("setmeta"); err != nil {
		return err
	}
	if strings.HasPrefix(key, "fail:") {
		return common.ErrProcessing
	}
	if f.meta[productID] == nil {
		f.meta[productID] = domain.MetaMapPayload{}
	}
	f.meta[productID][key] = value
	return nil
}

func (f *fakeProductStore) DeleteMeta(ctx context.Context, productID uint64, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("delmeta"); err != nil {
		return err
	}
	delete(f.meta[productID], key)
	return nil
}

func (f *fakeProductStore) GetTerms(ctx context.Context, productID uint64) (map[string][]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]uint64, len(f.terms[productID]))
	for tax, ids := range f.terms[productID] {
		out[tax] = append([]uint64(nil), ids...)
	}
	return out, nil
}

func (f *fakeProductStore) SetTerms(ctx context.Context, productID uint64, taxonomy string, termIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.trip("setterms"); err != nil {
		return err
	}
	if f.terms[productID] == nil {
		f.terms[productID] = map[string][]uint64{}
	}
	// No term rows left means the taxonomy disappears from listings,
	// like the relational store.
	if len(termIDs) == 0 {
		delete(f.terms[productID], taxonomy)
		return nil
	}
	f.terms[productID][taxonomy] = append([]uint64(nil), termIDs...)
	return nil
}

// fakeRevisionStore is an in-memory RevisionRepository
type fakeRevisionStore struct {
	mu     sync.Mutex
	nextID uint64
	revs   map[uint64]*domain.Revision
	logs   map[uint64][]domain.RevisionLog
}

func newFakeRevisionStore() *fakeRevisionStore {
	return &fakeRevisionStore{revs: make(map[uint64]*domain.Revision), logs: make(map[uint64][]domain.RevisionLog)}
}

func (f *fakeRevisionStore) add(rev *domain.Revision) *domain.Revision {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev.ID == 0 {
		f.nextID++
		rev.ID = f.nextID
	} else if rev.ID > f.nextID {
		f.nextID = rev.ID
	}
	f.revs[rev.ID] = rev
	return rev
}

func (f *fakeRevisionStore) Create(ctx context.Context, rev *domain.Revision) error {
	f.add(rev)
	return nil
}

func (f *fakeRevisionStore) FindByID(ctx context.Context, id uint64) (*domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.revs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *rev
	return &cp, nil
}

func (f *fakeRevisionStore) Save(ctx context.Context, rev *domain.Revision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *rev
	f.revs[rev.ID] = &cp
	return nil
}

func (f *fakeRevisionStore) UpdateStatus(ctx context.Context, id uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.Status = status
	}
	return nil
}

func (f *fakeRevisionStore) SetScheduled(ctx context.Context, id uint64, scheduledAt int64, scheduledAtUTC, timezone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.Status = domain.RevisionStatusScheduled
		rev.ScheduledAt = scheduledAt
		rev.ScheduledAtUTC = scheduledAtUTC
		rev.Timezone = timezone
		rev.ErrorMessage = ""
	}
	return nil
}

func (f *fakeRevisionStore) SetError(ctx context.Context, id uint64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.Status = domain.RevisionStatusFailed
		rev.ErrorMessage = message
	}
	return nil
}

func (f *fakeRevisionStore) ClearError(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.ErrorMessage = ""
	}
	return nil
}

func (f *fakeRevisionStore) SetCancelled(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.Status = domain.RevisionStatusCancelled
		rev.ScheduledAt = 0
		rev.ScheduledAtUTC = ""
		rev.ErrorMessage = ""
	}
	return nil
}

func (f *fakeRevisionStore) SetPublished(ctx context.Context, id uint64, publishedAtUTC string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rev, ok := f.revs[id]; ok {
		rev.Status = domain.RevisionStatusPublished
		rev.PublishedAtUTC = publishedAtUTC
		rev.ErrorMessage = ""
	}
	return nil
}

func (f *fakeRevisionStore) FindDue(ctx context.Context, now int64, limit int) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []domain.Revision
	for id := uint64(1); id <= f.nextID && len(due) < limit; id++ {
		rev, ok := f.revs[id]
		if !ok {
			continue
		}
		if rev.Status == domain.RevisionStatusScheduled && rev.ScheduledAt > 0 && rev.ScheduledAt <= now {
			due = append(due, *rev)
		}
	}
	return due, nil
}

func (f *fakeRevisionStore) FindScheduled(ctx context.Context, limit, offset int) ([]domain.Revision, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.Revision
	for id := uint64(1); id <= f.nextID; id++ {
		if rev, ok := f.revs[id]; ok && rev.Status == domain.RevisionStatusScheduled {
			all = append(all, *rev)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeRevisionStore) FindByProduct(ctx context.Context, productID uint64) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Revision
	for _, rev := range f.revs {
		if rev.ProductID == productID {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (f *fakeRevisionStore) HasScheduleConflict(ctx context.Context, productID uint64, scheduledAt int64, excludeID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rev := range f.revs {
		if rev.ID == excludeID {
			continue
		}
		if rev.ProductID == productID && rev.Status == domain.RevisionStatusScheduled && rev.ScheduledAt == scheduledAt {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRevisionStore) FindByKinds(ctx context.Context, kinds []string, afterID uint64, limit int) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kindSet := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	var out []domain.Revision
	for id := afterID + 1; id <= f.nextID && len(out) < limit; id++ {
		if rev, ok := f.revs[id]; ok && kindSet[rev.Kind] {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (f *fakeRevisionStore) FindMissingTimestamp(ctx context.Context, afterID uint64, limit int) ([]domain.Revision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Revision
	for id := afterID + 1; id <= f.nextID && len(out) < limit; id++ {
		if rev, ok := f.revs[id]; ok && rev.ScheduledAt == 0 && rev.ScheduledAtUTC != "" {
			out = append(out, *rev)
		}
	}
	return out, nil
}

func (f *fakeRevisionStore) AppendLog(ctx context.Context, revisionID uint64, level, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[revisionID] = append(f.logs[revisionID], domain.RevisionLog{
		RevisionID: revisionID,
		Level:      level,
		Message:    message,
	})
	return nil
}

func (f *fakeRevisionStore) GetLogs(ctx context.Context, revisionID uint64) ([]domain.RevisionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.RevisionLog(nil), f.logs[revisionID]...), nil
}

// fakeSystemStore is an in-memory SystemRepository
type fakeSystemStore struct {
	mu     sync.Mutex
	events []domain.SystemEvent
	state  domain.MigrationState
}

func newFakeSystemStore() *fakeSystemStore {
	return &fakeSystemStore{state: domain.MigrationState{ID: 1}}
}

func (f *fakeSystemStore) AppendEvent(ctx context.Context, eventType, message, contextJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, domain.SystemEvent{Type: eventType, Message: message, Context: contextJSON})
	return nil
}

func (f *fakeSystemStore) RecentEvents(ctx context.Context, limit int) ([]domain.SystemEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.SystemEvent(nil), f.events...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeSystemStore) GetMigrationState(ctx context.Context) (*domain.MigrationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.state
	return &cp, nil
}

func (f *fakeSystemStore) SaveMigrationState(ctx context.Context, state *domain.MigrationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = *state
	return nil
}

func (f *fakeSystemStore) eventsOfType(eventType string) []domain.SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SystemEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockLocker is a testify mock for the ProductLocker interface
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, productID uint64) (bool, error) {
	args := m.Called(ctx, productID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, productID uint64) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

// openLocker always grants the lock
type openLocker struct{}

func (openLocker) Acquire(ctx context.Context, productID uint64) (bool, error) { return true, nil }
func (openLocker) Release(ctx context.Context, productID uint64) error         { return nil }
