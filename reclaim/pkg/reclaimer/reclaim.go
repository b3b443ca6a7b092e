package reclaimer

import (
	"context"
	"errors"
	"fmt"

	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
)

var (
	ErrAccountNotFound = errors.New("account does not exist or is already closed")
	ErrZeroBalance     = errors.New("account already has zero balance")
	ErrProgramOwned    = errors.New("account needs a program-specific close instruction")
)

// ReclaimOne moves the account's entire current balance to the treasury.
// Preconditions are re-checked against the ledger first. Every outcome is
// returned as a result, never as an error.
func (r *Reclaimer) ReclaimOne(ctx context.Context, acct ReclaimableAccount) ReclaimResult {
	r.reclaimMu.Lock()
	defer r.reclaimMu.Unlock()
	return r.reclaimOne(context.WithoutCancel(ctx), "", acct)
}

// ReclaimBatch attempts each account in order, pausing between attempts, and
// returns one result per account in the same order. A started batch is not
// interrupted by cancellation of ctx.
func (r *Reclaimer) ReclaimBatch(ctx context.Context, accounts []ReclaimableAccount) []ReclaimResult {
	r.reclaimMu.Lock()
	defer r.reclaimMu.Unlock()
	return r.reclaimBatch(context.WithoutCancel(ctx), "", accounts)
}

func (r *Reclaimer) reclaimBatch(ctx context.Context, cycleID string, accounts []ReclaimableAccount) []ReclaimResult {
	results := make([]ReclaimResult, 0, len(accounts))
	for i, acct := range accounts {
		if i > 0 {
			if err := r.cfg.Delay.Wait(ctx); err != nil {
				r.log.Warn("reclaimer: pause between attempts interrupted", "error", err)
			}
		}
		results = append(results, r.reclaimOne(ctx, cycleID, acct))
	}
	return results
}

func (r *Reclaimer) reclaimOne(ctx context.Context, cycleID string, acct ReclaimableAccount) ReclaimResult {
	address := acct.Address.String()
	res := ReclaimResult{
		Address:     acct.Address,
		Reason:      acct.Reason,
		AttemptedAt: r.cfg.Clock.Now(),
	}
	attempted := acct.EstimatedLamports

	fail := func(err error) ReclaimResult {
		msg := err.Error()
		res.Error = &msg
		r.log.Warn("reclaimer: reclaim failed", "account", address, "reason", string(acct.Reason), "error", msg)
		r.record(ctx, cycleID, res, attempted)
		return res
	}

	info, err := r.cfg.Ledger.GetAccountInfo(ctx, acct.Address)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch account: %w", err))
	}
	if info == nil {
		return fail(ErrAccountNotFound)
	}
	attempted = info.Lamports
	if info.Lamports == 0 {
		return fail(ErrZeroBalance)
	}
	if !IsSystemOwned(info) {
		return fail(fmt.Errorf("%w (owned by %s)", ErrProgramOwned, info.Owner))
	}

	sig, err := r.cfg.Ledger.TransferAndConfirm(ctx, acct.Address, r.cfg.Treasury, info.Lamports, r.cfg.Signer)
	if err != nil {
		return fail(fmt.Errorf("transfer failed: %w", err))
	}

	s := sig.String()
	res.Success = true
	res.Lamports = info.Lamports
	res.Signature = &s
	r.lifetimeReclaimed.Add(info.Lamports)

	r.log.Info("reclaimer: reclaimed account",
		"account", address,
		"reason", string(acct.Reason),
		"lamports", info.Lamports,
		"sol", LamportsToSOL(info.Lamports),
		"signature", s)
	r.record(ctx, cycleID, res, attempted)
	return res
}

func (r *Reclaimer) record(ctx context.Context, cycleID string, res ReclaimResult, attempted uint64) {
	metrics.RecordReclaimAttempt(res.Success, res.Lamports)
	ev := audit.Event{
		Op:      audit.OpReclaim,
		CycleID: cycleID,
		Account: res.Address.String(),
		Amount:  attempted,
		Success: res.Success,
		Time:    res.AttemptedAt,
	}
	if res.Signature != nil {
		ev.Signature = *res.Signature
	}
	if res.Error != nil {
		ev.Error = *res.Error
	}
	r.cfg.Audit.Record(ctx, ev)
}
