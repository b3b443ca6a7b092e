package reclaimer

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
)

// Reason is the classification tier that made an account reclaimable.
type Reason string

const (
	ReasonClosed       Reason = "closed"
	ReasonEmptyPayload Reason = "empty_payload"
	ReasonInactive     Reason = "inactive"
)

// SponsoredAccount is one observation of an account that appeared in the
// signer's transaction history. It is never mutated after discovery.
type SponsoredAccount struct {
	Address solana.PublicKey `json:"address"`
	// Exists is false when the account was not found on the ledger; Lamports is
	// then zero.
	Exists     bool             `json:"exists"`
	Lamports   uint64           `json:"lamports"`
	Owner      solana.PublicKey `json:"owner"`
	Executable bool             `json:"executable"`
	DataLen    int              `json:"data_len"`
	// LastKnownBalance is the larger of the pre and post balances recorded for
	// the account in the most recent transaction it appeared in.
	LastKnownBalance uint64     `json:"last_known_balance"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// Snapshot returns the ledger view of the account, or nil if it does not exist.
func (a SponsoredAccount) Snapshot() *ledger.Account {
	if !a.Exists {
		return nil
	}
	return &ledger.Account{
		Address:    a.Address,
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		DataLen:    a.DataLen,
	}
}

// ReclaimableAccount is a SponsoredAccount judged safe to reclaim.
// EstimatedLamports is always positive and at least the configured minimum.
type ReclaimableAccount struct {
	SponsoredAccount
	Reason            Reason `json:"reason"`
	EstimatedLamports uint64 `json:"estimated_lamports"`
}

// ReclaimResult is the outcome of exactly one reclaim attempt.
type ReclaimResult struct {
	Success     bool             `json:"success"`
	Address     solana.PublicKey `json:"address"`
	Reason      Reason           `json:"reason"`
	Lamports    uint64           `json:"lamports"`
	Signature   *string          `json:"signature,omitempty"`
	Error       *string          `json:"error,omitempty"`
	AttemptedAt time.Time        `json:"attempted_at"`
}

// RentStats aggregates the outputs of a discovery and evaluation pass.
type RentStats struct {
	MonitoredAccounts   int        `json:"monitored_accounts"`
	LockedLamports      uint64     `json:"locked_lamports"`
	LifetimeReclaimed   uint64     `json:"lifetime_reclaimed"`
	ReclaimableAccounts int        `json:"reclaimable_accounts"`
	ReclaimableLamports uint64     `json:"reclaimable_lamports"`
	LastScan            *time.Time `json:"last_scan,omitempty"`
}

// CycleResult holds the three result sets of one full cycle.
type CycleResult struct {
	ID          string               `json:"id"`
	Scanned     []SponsoredAccount   `json:"scanned"`
	Reclaimable []ReclaimableAccount `json:"reclaimable"`
	Results     []ReclaimResult      `json:"results"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// ReclaimedLamports sums the lamports moved by successful results.
func (c CycleResult) ReclaimedLamports() uint64 {
	var total uint64
	for _, r := range c.Results {
		if r.Success {
			total += r.Lamports
		}
	}
	return total
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}
