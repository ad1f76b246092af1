package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"github.com/sanar/product-scheduler/internal/common"
	"github.com/sanar/product-scheduler/internal/domain"
)

// ProductRepository is the entity store the apply engine writes through.
// All mutation methods operate on persisted state; the engine snapshots
// through the same reads it later restores through.
type ProductRepository interface {
	FindByID(ctx context.Context, id uint64) (*domain.Product, error)
	UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error

	GetMeta(ctx context.Context, productID uint64) (domain.MetaMapPayload, error)
	SetMeta(ctx context.Context, productID uint64, key string, value domain.MetaValue) error
	DeleteMeta(ctx context.Context, productID uint64, key string) error

	GetTerms(ctx context.Context, productID uint64) (map[string][]uint64, error)
	SetTerms(ctx context.Context, productID uint64, taxonomy string, termIDs []uint64) error
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uint64) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *productRepository) GetMeta(ctx context.Context, productID uint64) (domain.MetaMapPayload, error) {
	var rows []domain.ProductMeta
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	meta := make(domain.MetaMapPayload, len(rows))
	for _, row := range rows {
		var v domain.MetaValue
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			// Rows written before the tagged format are plain strings.
			v = domain.StringValue(row.Value)
		}
		meta[row.MetaKey] = v
	}
	return meta, nil
}

func (r *productRepository) SetMeta(ctx context.Context, productID uint64, key string, value domain.MetaValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	var existing domain.ProductMeta
	err = r.db.WithContext(ctx).
		Where("product_id = ? AND meta_key = ?", productID, key).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(&domain.ProductMeta{
			ProductID: productID,
			MetaKey:   key,
			Value:     string(data),
		}).Error
	}
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&domain.ProductMeta{}).
		Where("id = ?", existing.ID).
		Update("value", string(data)).Error
}

func (r *productRepository) DeleteMeta(ctx context.Context, productID uint64, key string) error {
	return r.db.WithContext(ctx).
		Where("product_id = ? AND meta_key = ?", productID, key).
		Delete(&domain.ProductMeta{}).Error
}

func (r *productRepository) GetTerms(ctx context.Context, productID uint64) (map[string][]uint64, error) {
	var rows []domain.ProductTermRelation
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("taxonomy, term_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	terms := make(map[string][]uint64)
	for _, row := range rows {
		terms[row.Taxonomy] = append(terms[row.Taxonomy], row.TermID)
	}
	return terms, nil
}

func (r *productRepository) SetTerms(ctx context.Context, productID uint64, taxonomy string, termIDs []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("product_id = ? AND taxonomy = ?", productID, taxonomy).
			Delete(&domain.ProductTermRelation{}).Error; err != nil {
			return err
		}
		for _, termID := range termIDs {
			if err := tx.Create(&domain.ProductTermRelation{
				ProductID: productID,
				Taxonomy:  taxonomy,
				TermID:    termID,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
