package reclaimer

// GetStats aggregates already-fetched discovery and evaluation output. It
// performs no ledger access.
func (r *Reclaimer) GetStats(scanned []SponsoredAccount, reclaimable []ReclaimableAccount) RentStats {
	stats := RentStats{
		MonitoredAccounts:   len(scanned),
		LifetimeReclaimed:   r.LifetimeReclaimed(),
		ReclaimableAccounts: len(reclaimable),
		LastScan:            r.LastScan(),
	}
	for _, acct := range scanned {
		stats.LockedLamports += acct.Lamports
	}
	for _, ra := range reclaimable {
		stats.ReclaimableLamports += ra.EstimatedLamports
	}
	return stats
}
