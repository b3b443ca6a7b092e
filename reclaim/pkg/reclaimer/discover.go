package reclaimer

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/ledger"
)

type candidate struct {
	address          solana.PublicKey
	lastKnownBalance uint64
	lastActivity     *time.Time
}

// Discover returns every distinct account that participated in the signer's
// recent transactions, with a current snapshot of each. Per-item lookup
// failures skip that item; if the history itself cannot be fetched the result
// is empty.
func (r *Reclaimer) Discover(ctx context.Context) []SponsoredAccount {
	accounts, err := r.discover(ctx)
	if err != nil {
		r.log.Error("reclaimer: discovery failed", "signer", r.SignerAddress(), "error", err)
		r.cfg.Audit.Record(ctx, audit.Event{
			Op:      audit.OpDiscover,
			Account: r.SignerAddress(),
			Error:   err.Error(),
			Time:    r.cfg.Clock.Now(),
		})
		return []SponsoredAccount{}
	}
	return accounts
}

func (r *Reclaimer) discover(ctx context.Context) ([]SponsoredAccount, error) {
	sigs, err := r.cfg.Ledger.GetSignaturesForAddress(ctx, r.signer, SignatureWindow)
	if err != nil {
		return nil, err
	}
	r.log.Debug("reclaimer: fetched signer history", "signatures", len(sigs))

	candidates := r.collectCandidates(ctx, sigs)

	accounts := make([]SponsoredAccount, 0, len(candidates))
	for _, c := range candidates {
		info, err := r.cfg.Ledger.GetAccountInfo(ctx, c.address)
		if err != nil {
			r.log.Warn("reclaimer: skipping account, lookup failed", "account", c.address.String(), "error", err)
			r.cfg.Audit.Record(ctx, audit.Event{
				Op:      audit.OpDiscover,
				Account: c.address.String(),
				Error:   err.Error(),
				Time:    r.cfg.Clock.Now(),
			})
			continue
		}

		acct := SponsoredAccount{
			Address:          c.address,
			LastKnownBalance: c.lastKnownBalance,
			LastActivity:     c.lastActivity,
		}
		if info != nil {
			acct.Exists = true
			acct.Lamports = info.Lamports
			acct.Owner = info.Owner
			acct.Executable = info.Executable
			acct.DataLen = info.DataLen
		}
		accounts = append(accounts, acct)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.Info("reclaimer: discovery complete", "signatures", len(sigs), "accounts", len(accounts))
	return accounts, nil
}

// collectCandidates walks the history newest first and keeps the first
// observation of each participant. The signer and the treasury are never
// candidates.
func (r *Reclaimer) collectCandidates(ctx context.Context, sigs []ledger.Signature) []candidate {
	seen := make(map[solana.PublicKey]struct{})
	var out []candidate
	for _, sig := range sigs {
		tx, err := r.cfg.Ledger.GetParsedTransaction(ctx, sig.Signature)
		if err != nil {
			r.log.Warn("reclaimer: skipping unparsable transaction", "signature", sig.Signature.String(), "error", err)
			continue
		}

		blockTime := tx.BlockTime
		if blockTime == nil {
			blockTime = sig.BlockTime
		}
		for _, p := range tx.Accounts {
			if p.Address.Equals(r.signer) || p.Address.Equals(r.cfg.Treasury) {
				continue
			}
			if _, ok := seen[p.Address]; ok {
				continue
			}
			seen[p.Address] = struct{}{}
			out = append(out, candidate{
				address:          p.Address,
				lastKnownBalance: max(p.PreBalance, p.PostBalance),
				lastActivity:     blockTime,
			})
		}
	}
	return out
}
