package db

import (
	types "github.com/veridata/trialbridge-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// CRF schema
		// =========================
		&types.TrialFieldDef{},

		// =========================
		// Hash chain + anchoring
		// =========================
		&types.VisitLeaf{},
		&types.VisitFieldValue{},
		&types.MerkleAnchor{},
	)
}
