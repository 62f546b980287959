package attestlend

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Witness is an account allowed to co-sign claims during an epoch.
// Host is an opaque routing hint and is never dialed by this module.
type Witness struct {
	Address common.Address `json:"address"`
	Host    string         `json:"host"`
}

// Epoch is one entry of the append-only witness roster history.
type Epoch struct {
	ID               uint32    `json:"id"`
	StartTime        uint32    `json:"startTime"`
	EndTime          uint32    `json:"endTime"`
	Witnesses        []Witness `json:"witnesses"`
	MinCommitteeSize uint8     `json:"minCommitteeSize"`
}

// CompleteClaimData is the payload whose serialization witnesses sign.
type CompleteClaimData struct {
	Identifier common.Hash    `json:"identifier"`
	Owner      common.Address `json:"owner"`
	TimestampS uint32         `json:"timestampS"`
	Epoch      uint32         `json:"epoch"`
}

// ClaimInfo is the human readable side of a claim.
// Context holds flat "key":"value" pairs that consumers scan on demand.
type ClaimInfo struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
}

type SignedClaim struct {
	Claim      CompleteClaimData `json:"claim"`
	Signatures []hexutil.Bytes   `json:"signatures"`
}

// Proof is the unit submitted across the trust boundary.
type Proof struct {
	ClaimInfo   ClaimInfo   `json:"claimInfo"`
	SignedClaim SignedClaim `json:"signedClaim"`
}

const (
	EventEpochAdded         = "epoch.added"
	EventLoanRequested      = "loan.requested"
	EventLoanCancelled      = "loan.cancelled"
	EventOfferPlaced        = "loan.offer.placed"
	EventOfferAccepted      = "loan.offer.accepted"
	EventLoanRepaid         = "loan.repaid"
	EventLoanLiquidated     = "loan.liquidated"
	EventLoanExtended       = "loan.extended"
	EventCreditScoreUpdated = "user.creditscore.updated"
	EventCredentialAdded    = "user.credential.added"
	EventCredentialTypeSet  = "admin.credentialtype.set"
	EventProviderSet        = "admin.provider.set"
	EventPaused             = "admin.paused"
	EventUnpaused           = "admin.unpaused"
	EventOwnershipChanged   = "admin.owner.changed"
)

// Event is emitted after an operation commits. It is meant for off-chain
// indexing only.
type Event struct {
	Type string `json:"type"`
	// Ref is the loan id, credential type id or epoch id the event is about.
	Ref       uint64 `json:"ref,omitempty"`
	Account   string `json:"account,omitempty"`
	Value     string `json:"value,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Endpoint struct {
	Template string    `json:"template"`
	Method   string    `json:"method"`
	Query    *[]string `json:"query,omitempty"`
}

type WellKnownAttestlend struct {
	Version      string              `json:"version"`
	Domain       string              `json:"domain"`
	Escrow       string              `json:"escrow"`
	LendingToken string              `json:"lendingToken"`
	Endpoints    map[string]Endpoint `json:"endpoints"`
}
