package repos

import (
	"github.com/veridata/trialbridge-backend/internal/data/repos/ledger"
)

type VisitLeafRepo = ledger.VisitLeafRepo
type VisitFieldValueRepo = ledger.VisitFieldValueRepo
type MerkleAnchorRepo = ledger.MerkleAnchorRepo
type TrialFieldDefRepo = ledger.TrialFieldDefRepo

var NewVisitLeafRepo = ledger.NewVisitLeafRepo
var NewVisitFieldValueRepo = ledger.NewVisitFieldValueRepo
var NewMerkleAnchorRepo = ledger.NewMerkleAnchorRepo
var NewTrialFieldDefRepo = ledger.NewTrialFieldDefRepo
