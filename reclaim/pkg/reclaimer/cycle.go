package reclaimer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/audit"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/metrics"
)

// RunFullCycle discovers, evaluates and reclaims in one pass. The last scan
// time is updated only once every reclaim attempt has finished.
func (r *Reclaimer) RunFullCycle(ctx context.Context) CycleResult {
	r.reclaimMu.Lock()
	defer r.reclaimMu.Unlock()

	cycle := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: r.cfg.Clock.Now(),
	}
	log := r.log.With("cycle_id", cycle.ID)

	cycle.Scanned = r.Discover(ctx)
	cycle.Reclaimable = r.Evaluate(ctx, cycle.Scanned)

	var estimate uint64
	for _, ra := range cycle.Reclaimable {
		estimate += ra.EstimatedLamports
	}
	log.Info("reclaimer: scan complete",
		"scanned", len(cycle.Scanned),
		"reclaimable", len(cycle.Reclaimable),
		"estimated_lamports", estimate,
		"estimated_sol", LamportsToSOL(estimate))
	r.cfg.Audit.Record(ctx, audit.Event{
		Op:      audit.OpEvaluate,
		CycleID: cycle.ID,
		Amount:  estimate,
		Success: true,
		Time:    r.cfg.Clock.Now(),
		Message: fmt.Sprintf("scanned %d accounts, %d reclaimable", len(cycle.Scanned), len(cycle.Reclaimable)),
	})

	cycle.Results = r.reclaimBatch(context.WithoutCancel(ctx), cycle.ID, cycle.Reclaimable)
	cycle.FinishedAt = r.cfg.Clock.Now()
	finished := cycle.FinishedAt
	r.lastScan.Store(&finished)

	stats := r.GetStats(cycle.Scanned, cycle.Reclaimable)
	metrics.MonitoredAccounts.Set(float64(stats.MonitoredAccounts))
	metrics.LockedLamports.Set(float64(stats.LockedLamports))
	metrics.ReclaimableAccounts.Set(float64(stats.ReclaimableAccounts))
	metrics.ReclaimableLamports.Set(float64(stats.ReclaimableLamports))
	metrics.LastScanTimestamp.Set(float64(finished.Unix()))
	metrics.RecordCycle(finished.Sub(cycle.StartedAt), nil)

	succeeded := 0
	for _, res := range cycle.Results {
		if res.Success {
			succeeded++
		}
	}
	log.Info("reclaimer: cycle complete",
		"attempted", len(cycle.Results),
		"succeeded", succeeded,
		"reclaimed_lamports", cycle.ReclaimedLamports(),
		"duration", finished.Sub(cycle.StartedAt).String())
	r.cfg.Audit.Record(ctx, audit.Event{
		Op:      audit.OpCycle,
		CycleID: cycle.ID,
		Amount:  cycle.ReclaimedLamports(),
		Success: true,
		Time:    finished,
		Message: fmt.Sprintf("attempted %d reclaims, %d succeeded", len(cycle.Results), succeeded),
	})
	return cycle
}
