package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/plugin"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/pkg/cache"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// ApplyResult classifies the outcome of one apply attempt
type ApplyResult string

const (
	ApplyPublished ApplyResult = "published"
	ApplyFailed    ApplyResult = "failed"
	ApplySkipped   ApplyResult = "skipped"
)

// stackSummaryFrames bounds the trace recorded on failure
const stackSummaryFrames = 5

// ApplyService replaces a product's content with a revision's payload,
// all or nothing. On any mid-apply error the parent is restored from a
// snapshot taken up front and the revision is marked failed.
type ApplyService interface {
	Apply(ctx context.Context, rev *domain.Revision) (ApplyResult, error)
}

type applyService struct {
	products      repository.ProductRepository
	revisions     repository.RevisionRepository
	systems       repository.SystemRepository
	hooks         *plugin.HookManager
	cache         cache.Service
	protectedKeys map[string]bool
	now           func() time.Time
}

func NewApplyService(
	products repository.ProductRepository,
	revisions repository.RevisionRepository,
	systems repository.SystemRepository,
	hooks *plugin.HookManager,
	cacheSvc cache.Service,
	protectedMetaKeys []string,
) ApplyService {
	protected := make(map[string]bool, len(protectedMetaKeys))
	for _, k := range protectedMetaKeys {
		protected[k] = true
	}
	return &applyService{
		products:      products,
		revisions:     revisions,
		systems:       systems,
		hooks:         hooks,
		cache:         cacheSvc,
		protectedKeys: protected,
		now:           time.Now,
	}
}

// productSnapshot captures everything the apply pass can touch
type productSnapshot struct {
	title   string
	content string
	excerpt string
	meta    domain.MetaMapPayload
	terms   map[string][]uint64
}

func (s *applyService) Apply(ctx context.Context, rev *domain.Revision) (ApplyResult, error) {
	log := logger.WithRevisionID(rev.ID)

	// The caller's copy dates from the due scan; a cancel can land
	// between scan and lock. Decide on the persisted state.
	current, err := s.revisions.FindByID(ctx, rev.ID)
	if err != nil {
		return ApplyFailed, err
	}
	rev = current

	// A terminal revision picked up by a racing pass is not an error.
	if rev.IsTerminal() {
		log.Info().Str("status", rev.Status).Msg("revision already terminal, skipping")
		return ApplySkipped, nil
	}

	product, err := s.products.FindByID(ctx, rev.ProductID)
	if err != nil {
		if err == common.ErrNotFound {
			s.fail(ctx, rev, common.ErrMissingParent)
			return ApplyFailed, common.ErrMissingParent
		}
		return ApplyFailed, err
	}

	snap, err := s.snapshot(ctx, product)
	if err != nil {
		s.fail(ctx, rev, fmt.Errorf("snapshot: %w", err))
		return ApplyFailed, err
	}

	if err := s.write(ctx, product.ID, rev); err != nil {
		s.restore(ctx, product.ID, snap)
		s.fail(ctx, rev, err)
		return ApplyFailed, err
	}

	if err := s.verify(ctx, product, rev); err != nil {
		s.restore(ctx, product.ID, snap)
		s.fail(ctx, rev, err)
		return ApplyFailed, err
	}

	publishedAt := s.now().UTC().Format(time.RFC3339)
	if err := s.revisions.SetPublished(ctx, rev.ID, publishedAt); err != nil {
		s.restore(ctx, product.ID, snap)
		s.fail(ctx, rev, fmt.Errorf("mark published: %w", err))
		return ApplyFailed, err
	}
	rev.Status = domain.RevisionStatusPublished
	rev.PublishedAtUTC = publishedAt

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "revision published")
	_ = s.systems.AppendEvent(ctx, domain.EventRevisionPublished,
		fmt.Sprintf("revision %d published to product %d", rev.ID, product.ID), "")

	// Publish is committed; hooks and cache purge are side effects only.
	s.hooks.Do(ctx, plugin.HookRevisionPublished, rev.ID, product.ID)
	s.hooks.Do(ctx, plugin.HookCachePurge, product.ID)
	if s.cache != nil {
		_ = s.cache.InvalidateProduct(ctx, product.ID)
		_ = s.cache.InvalidateSchedules(ctx)
	}

	log.Info().Uint64("product_id", product.ID).Msg("revision published")
	return ApplyPublished, nil
}

func (s *applyService) snapshot(ctx context.Context, product *domain.Product) (*productSnapshot, error) {
	meta, err := s.products.GetMeta(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	terms, err := s.products.GetTerms(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	return &productSnapshot{
		title:   product.Title,
		content: product.Content,
		excerpt: product.Excerpt,
		meta:    meta.Clone(),
		terms:   terms,
	}, nil
}

// write pushes the revision payload onto the parent. Content fields are
// overwritten, meta is a full replace (reserved keys untouched, absent
// keys deleted unless protected), terms replace per taxonomy present in
// the payload.
func (s *applyService) write(ctx context.Context, productID uint64, rev *domain.Revision) error {
	if err := s.products.UpdateFields(ctx, productID, map[string]interface{}{
		"title":   rev.Title,
		"content": rev.Content,
		"excerpt": rev.Excerpt,
	}); err != nil {
		return fmt.Errorf("write content: %w", err)
	}

	payload, err := rev.MetaPayload()
	if err != nil {
		return fmt.Errorf("decode meta payload: %w", err)
	}
	for key, value := range payload {
		if strings.HasPrefix(key, domain.ReservedMetaPrefix) {
			continue
		}
		if err := s.products.SetMeta(ctx, productID, key, value); err != nil {
			return fmt.Errorf("write meta %s: %w", key, err)
		}
	}

	existing, err := s.products.GetMeta(ctx, productID)
	if err != nil {
		return fmt.Errorf("list meta: %w", err)
	}
	for key := range existing {
		if strings.HasPrefix(key, domain.ReservedMetaPrefix) {
			continue
		}
		if s.protectedKeys[key] {
			continue
		}
		if _, keep := payload[key]; keep {
			continue
		}
		if err := s.products.DeleteMeta(ctx, productID, key); err != nil {
			return fmt.Errorf("delete meta %s: %w", key, err)
		}
	}

	terms, err := rev.TermsPayload()
	if err != nil {
		return fmt.Errorf("decode terms payload: %w", err)
	}
	for taxonomy, termIDs := range terms {
		if err := s.products.SetTerms(ctx, productID, taxonomy, termIDs); err != nil {
			return fmt.Errorf("write terms %s: %w", taxonomy, err)
		}
	}

	return nil
}

// verify re-reads the parent and checks the write actually landed. A
// store that silently dropped the update must not leave the revision
// marked published.
func (s *applyService) verify(ctx context.Context, before *domain.Product, rev *domain.Revision) error {
	after, err := s.products.FindByID(ctx, rev.ProductID)
	if err != nil {
		return fmt.Errorf("%w: reread parent: %v", common.ErrIntegrityCheck, err)
	}
	if after.Title != rev.Title || after.Content != rev.Content || after.Excerpt != rev.Excerpt {
		return fmt.Errorf("%w: content mismatch after write", common.ErrIntegrityCheck)
	}
	if after.Status != before.Status {
		return fmt.Errorf("%w: parent status changed from %s to %s",
			common.ErrIntegrityCheck, before.Status, after.Status)
	}
	return nil
}

// restore puts the snapshot back verbatim
func (s *applyService) restore(ctx context.Context, productID uint64, snap *productSnapshot) {
	log := logger.GetLogger()

	if err := s.products.UpdateFields(ctx, productID, map[string]interface{}{
		"title":   snap.title,
		"content": snap.content,
		"excerpt": snap.excerpt,
	}); err != nil {
		log.Error().Err(err).Uint64("product_id", productID).Msg("restore content failed")
	}

	current, err := s.products.GetMeta(ctx, productID)
	if err != nil {
		log.Error().Err(err).Uint64("product_id", productID).Msg("restore meta listing failed")
		current = domain.MetaMapPayload{}
	}
	for key, value := range snap.meta {
		if err := s.products.SetMeta(ctx, productID, key, value); err != nil {
			log.Error().Err(err).Str("meta_key", key).Msg("restore meta failed")
		}
	}
	for key := range current {
		if strings.HasPrefix(key, domain.ReservedMetaPrefix) {
			continue
		}
		if _, existed := snap.meta[key]; existed {
			continue
		}
		if err := s.products.DeleteMeta(ctx, productID, key); err != nil {
			log.Error().Err(err).Str("meta_key", key).Msg("restore meta delete failed")
		}
	}

	currentTerms, err := s.products.GetTerms(ctx, productID)
	if err != nil {
		log.Error().Err(err).Uint64("product_id", productID).Msg("restore terms listing failed")
		currentTerms = map[string][]uint64{}
	}
	for taxonomy := range currentTerms {
		if _, existed := snap.terms[taxonomy]; existed {
			continue
		}
		// A taxonomy the failed apply introduced must not survive.
		if err := s.products.SetTerms(ctx, productID, taxonomy, nil); err != nil {
			log.Error().Err(err).Str("taxonomy", taxonomy).Msg("restore terms clear failed")
		}
	}
	for taxonomy, termIDs := range snap.terms {
		if err := s.products.SetTerms(ctx, productID, taxonomy, termIDs); err != nil {
			log.Error().Err(err).Str("taxonomy", taxonomy).Msg("restore terms failed")
		}
	}
}

func (s *applyService) fail(ctx context.Context, rev *domain.Revision, cause error) {
	message := cause.Error()
	_ = s.revisions.SetError(ctx, rev.ID, message)
	rev.Status = domain.RevisionStatusFailed
	rev.ErrorMessage = message

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelError,
		fmt.Sprintf("apply failed: %s | %s", message, stackSummary(stackSummaryFrames)))
	_ = s.systems.AppendEvent(ctx, domain.EventRevisionFailed,
		fmt.Sprintf("revision %d failed: %s", rev.ID, message), "")

	logger.WithRevisionID(rev.ID).Error().Err(cause).Msg("revision apply failed")
}

// stackSummary returns a compact caller trace, capped at n frames
func stackSummary(n int) string {
	pcs := make([]uintptr, n+3)
	// Skip runtime.Callers, stackSummary and the fail helper.
	count := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:count])

	var parts []string
	for i := 0; i < n; i++ {
		frame, more := frames.Next()
		if frame.Function == "" {
			break
		}
		parts = append(parts, fmt.Sprintf("%s:%d", trimPackagePath(frame.Function), frame.Line))
		if !more {
			break
		}
	}
	return strings.Join(parts, " <- ")
}

func trimPackagePath(fn string) string {
	if idx := strings.LastIndex(fn, "/"); idx >= 0 {
		return fn[idx+1:]
	}
	return fn
}
