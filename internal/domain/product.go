package domain

import "time"

// Product publishable states eligible as revision parents
const (
	ProductStatusPublish = "publish"
	ProductStatusPrivate = "private"
	ProductStatusDraft   = "draft"
	ProductStatusTrash   = "trash"
)

// Product is the content entity the scheduler replaces content on
type Product struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Content     string     `gorm:"type:longtext" json:"content"`
	Excerpt     string     `gorm:"type:text" json:"excerpt"`
	Status      string     `gorm:"size:20;not null;default:'draft';index" json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// IsPublishable reports whether the product can serve as a revision parent
func (p *Product) IsPublishable() bool {
	return p.Status == ProductStatusPublish || p.Status == ProductStatusPrivate
}

// ProductMeta is one key/value attribute row. Value holds the JSON
// encoding of a tagged MetaValue.
type ProductMeta struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64 `gorm:"not null;uniqueIndex:uq_product_meta_key,priority:1" json:"product_id"`
	MetaKey   string `gorm:"size:255;not null;uniqueIndex:uq_product_meta_key,priority:2" json:"meta_key"`
	Value     string `gorm:"type:text" json:"value"`
}

func (ProductMeta) TableName() string {
	return "product_meta"
}

// ProductTermRelation links a product to a term within a taxonomy
// (category, tag, attribute group)
type ProductTermRelation struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID uint64 `gorm:"not null;index:idx_term_product" json:"product_id"`
	Taxonomy  string `gorm:"size:64;not null;index:idx_term_product" json:"taxonomy"`
	TermID    uint64 `gorm:"not null" json:"term_id"`
}

func (ProductTermRelation) TableName() string {
	return "product_term_relations"
}
