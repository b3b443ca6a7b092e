package reclaimer

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
)

const day = 24 * time.Hour

// Evaluate returns the accounts that are safe to reclaim. Each account is
// tested against the closed, empty-payload and inactive tiers in that order
// and tagged with the first that matches. An account whose evaluation fails
// is skipped.
func (r *Reclaimer) Evaluate(ctx context.Context, accounts []SponsoredAccount) []ReclaimableAccount {
	out := make([]ReclaimableAccount, 0)
	for _, acct := range accounts {
		ra, ok, err := r.classify(ctx, acct)
		if err != nil {
			r.log.Warn("reclaimer: skipping account, evaluation failed", "account", acct.Address.String(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		r.log.Debug("reclaimer: account reclaimable",
			"account", acct.Address.String(),
			"reason", string(ra.Reason),
			"lamports", ra.EstimatedLamports)
		metrics.ClassifiedTotal.WithLabelValues(string(ra.Reason)).Inc()
		out = append(out, ra)
	}
	return out
}

func (r *Reclaimer) classify(ctx context.Context, acct SponsoredAccount) (ReclaimableAccount, bool, error) {
	snap := acct.Snapshot()
	minBalance := r.cfg.MinBalance

	if IsClosed(snap) {
		// The account is gone, so the estimate can only come from history.
		if acct.LastKnownBalance == 0 || acct.LastKnownBalance < minBalance {
			return ReclaimableAccount{}, false, nil
		}
		return reclaimable(acct, ReasonClosed, acct.LastKnownBalance), true, nil
	}

	// Program accounts are never closed by this signer.
	if snap.Executable || snap.Lamports < minBalance {
		return ReclaimableAccount{}, false, nil
	}

	if IsEmpty(snap) {
		return reclaimable(acct, ReasonEmptyPayload, snap.Lamports), true, nil
	}

	inactive, err := r.isInactive(ctx, acct.Address)
	if err != nil {
		return ReclaimableAccount{}, false, err
	}
	if !inactive {
		return ReclaimableAccount{}, false, nil
	}
	return reclaimable(acct, ReasonInactive, snap.Lamports), true, nil
}

func reclaimable(acct SponsoredAccount, reason Reason, lamports uint64) ReclaimableAccount {
	return ReclaimableAccount{
		SponsoredAccount:  acct,
		Reason:            reason,
		EstimatedLamports: lamports,
	}
}

// isInactive reports whether the most recent transaction touching address is
// at least AccountAgeThreshold days old. An account with no history is
// inactive. A missing timestamp counts as active; so does a failed lookup,
// which is also returned as an error.
func (r *Reclaimer) isInactive(ctx context.Context, address solana.PublicKey) (bool, error) {
	sigs, err := r.cfg.Ledger.GetSignaturesForAddress(ctx, address, 1)
	if err != nil {
		return false, fmt.Errorf("activity check failed: %w", err)
	}
	if len(sigs) == 0 {
		return true, nil
	}
	last := sigs[0].BlockTime
	if last == nil {
		r.log.Debug("reclaimer: no block time for latest signature, treating as active", "account", address.String())
		return false, nil
	}
	elapsed := r.cfg.Clock.Since(*last)
	if elapsed < 0 {
		return false, nil
	}
	return int64(elapsed/day) >= int64(r.cfg.AccountAgeThreshold), nil
}
