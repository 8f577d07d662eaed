package app

import (
	"gorm.io/gorm"

	"github.com/veridata/trialbridge-backend/internal/clients/evm"
	"github.com/veridata/trialbridge-backend/internal/clients/redis"
	"github.com/veridata/trialbridge-backend/internal/pkg/logger"
	"github.com/veridata/trialbridge-backend/internal/services"
)

type Services struct {
	Chain        services.ChainService
	CRF          services.CRFService
	Publisher    services.PublisherService
	Anchor       services.AnchorService
	Verification services.VerificationService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, lock redis.RunLock) (Services, error) {
	log.Info("Wiring services...")

	ledgerClient, err := evm.NewClient(evm.Config{
		RPCURL:          cfg.LedgerRPCURL,
		ContractAddress: cfg.AnchorContractAddr,
		FromAddress:     cfg.AnchorFromAddr,
		RequestTimeout:  cfg.LedgerRequestTimeout,
		ConfirmTimeout:  cfg.LedgerConfirmTimeout,
	}, log)
	if err != nil {
		return Services{}, err
	}

	publisher := services.NewPublisherService(log, ledgerClient)
	chain := services.NewChainService(db, log, reposet.VisitLeaf, reposet.VisitFieldValue, reposet.TrialFieldDef)
	crf := services.NewCRFService(db, log, reposet.TrialFieldDef)
	anchor := services.NewAnchorService(db, log, reposet.VisitLeaf, reposet.MerkleAnchor, publisher, lock, cfg.AnchorWindow, cfg.AnchorLockTTL)
	verification := services.NewVerificationService(log, reposet.VisitLeaf, reposet.VisitFieldValue, reposet.MerkleAnchor, publisher)

	return Services{
		Chain:        chain,
		CRF:          crf,
		Publisher:    publisher,
		Anchor:       anchor,
		Verification: verification,
	}, nil
}
