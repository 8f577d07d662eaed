package app

import (
	"gorm.io/gorm"

	"github.com/veridata/trialbridge-backend/internal/data/repos"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
)

type Repos struct {
	VisitLeaf       repos.VisitLeafRepo
	VisitFieldValue repos.VisitFieldValueRepo
	MerkleAnchor    repos.MerkleAnchorRepo
	TrialFieldDef   repos.TrialFieldDefRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		VisitLeaf:       repos.NewVisitLeafRepo(db, log),
		VisitFieldValue: repos.NewVisitFieldValueRepo(db, log),
		MerkleAnchor:    repos.NewMerkleAnchorRepo(db, log),
		TrialFieldDef:   repos.NewTrialFieldDefRepo(db, log),
	}
}
