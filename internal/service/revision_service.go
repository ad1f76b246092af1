package service

import (
	"context"
	"strings"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/internal/repository"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// CreateRevisionInput carries the caller's overrides for a new revision.
// Nil fields inherit the parent's current value.
type CreateRevisionInput struct {
	ProductID uint64
	Title     *string
	Content   *string
	Excerpt   *string
	Meta      domain.MetaMapPayload
	Terms     map[string][]uint64
	CreatedBy uint64
}

// RevisionService creates and inspects revisions
type RevisionService interface {
	Create(ctx context.Context, input CreateRevisionInput) (*domain.Revision, error)
	Get(ctx context.Context, id uint64) (*domain.Revision, error)
	GetWithLogs(ctx context.Context, id uint64) (*domain.Revision, []domain.RevisionLog, error)
	ListByProduct(ctx context.Context, productID uint64) ([]domain.Revision, error)
}

type revisionService struct {
	revisions repository.RevisionRepository
	products  repository.ProductRepository
}

func NewRevisionService(revisions repository.RevisionRepository, products repository.ProductRepository) RevisionService {
	return &revisionService{revisions: revisions, products: products}
}

// Create builds a revision as a full clone of the parent's current
// content with the caller's overrides merged on top. Reserved
// bookkeeping keys are never copied into the payload.
func (s *revisionService) Create(ctx context.Context, input CreateRevisionInput) (*domain.Revision, error) {
	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if err == common.ErrNotFound {
			return nil, common.ErrInvalidParent
		}
		return nil, err
	}
	if !product.IsPublishable() {
		return nil, common.ErrInvalidParent
	}

	rev := &domain.Revision{
		ProductID: product.ID,
		Kind:      domain.KindRevision,
		Status:    domain.RevisionStatusDraft,
		Title:     product.Title,
		Content:   product.Content,
		Excerpt:   product.Excerpt,
		CreatedBy: input.CreatedBy,
	}
	if input.Title != nil {
		rev.Title = *input.Title
	}
	if input.Content != nil {
		rev.Content = *input.Content
	}
	if input.Excerpt != nil {
		rev.Excerpt = *input.Excerpt
	}

	baseline, err := s.products.GetMeta(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	meta := make(domain.MetaMapPayload, len(baseline))
	for key, value := range baseline {
		if strings.HasPrefix(key, domain.ReservedMetaPrefix) {
			continue
		}
		meta[key] = value
	}
	for key, value := range input.Meta {
		if strings.HasPrefix(key, domain.ReservedMetaPrefix) {
			continue
		}
		meta[key] = value
	}
	if err := rev.SetMetaPayload(meta); err != nil {
		return nil, err
	}

	// Terms merge per taxonomy: an override replaces that taxonomy's
	// baseline, taxonomies without an override keep the parent's terms.
	baselineTerms, err := s.products.GetTerms(ctx, product.ID)
	if err != nil {
		return nil, err
	}
	terms := make(map[string][]uint64, len(baselineTerms))
	for taxonomy, termIDs := range baselineTerms {
		terms[taxonomy] = append([]uint64(nil), termIDs...)
	}
	for taxonomy, termIDs := range input.Terms {
		terms[taxonomy] = append([]uint64(nil), termIDs...)
	}
	if err := rev.SetTermsPayload(terms); err != nil {
		return nil, err
	}

	if err := s.revisions.Create(ctx, rev); err != nil {
		return nil, err
	}

	logger.GetLogger().Info().
		Uint64("revision_id", rev.ID).
		Uint64("product_id", product.ID).
		Msg("revision created")

	_ = s.revisions.AppendLog(ctx, rev.ID, domain.LogLevelInfo, "revision created as draft")
	return rev, nil
}

func (s *revisionService) Get(ctx context.Context, id uint64) (*domain.Revision, error) {
	return s.revisions.FindByID(ctx, id)
}

func (s *revisionService) GetWithLogs(ctx context.Context, id uint64) (*domain.Revision, []domain.RevisionLog, error) {
	rev, err := s.revisions.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	logs, err := s.revisions.GetLogs(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return rev, logs, nil
}

func (s *revisionService) ListByProduct(ctx context.Context, productID uint64) ([]domain.Revision, error) {
	return s.revisions.FindByProduct(ctx, productID)
}
