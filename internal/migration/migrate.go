package migration

import (
	"gorm.io/gorm"

	"github.com/sanar/product-scheduler/internal/domain"
	"github.com/sanar/product-scheduler/pkg/logger"
)

// Run applies schema migrations for all tables
func Run(db *gorm.DB) error {
	log := logger.GetLogger()
	log.Info().Msg("running schema migrations")

	if err := db.AutoMigrate(
		&domain.Product{},
		&domain.ProductMeta{},
		&domain.ProductTermRelation{},
		&domain.Revision{},
		&domain.RevisionLog{},
		&domain.SystemEvent{},
		&domain.MigrationState{},
	); err != nil {
		return err
	}

	log.Info().Msg("schema migrations complete")
	return nil
}
