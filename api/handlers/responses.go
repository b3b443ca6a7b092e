package handlers

import (
	"time"

	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
)

// Amounts are reported in lamports with a SOL float alongside for display.

type ConfigResponse struct {
	Signer                  string  `json:"signer"`
	Treasury                string  `json:"treasury"`
	MinBalanceLamports      uint64  `json:"min_balance_lamports"`
	MinBalanceSOL           float64 `json:"min_balance_sol"`
	AccountAgeThresholdDays int     `json:"account_age_threshold_days"`
}

type AccountResponse struct {
	reclaimer.SponsoredAccount
	SOL float64 `json:"sol"`
}

type ReclaimableResponse struct {
	reclaimer.ReclaimableAccount
	EstimatedSOL float64 `json:"estimated_sol"`
}

type ResultResponse struct {
	reclaimer.ReclaimResult
	SOL float64 `json:"sol"`
}

type StatsResponse struct {
	reclaimer.RentStats
	LockedSOL            float64 `json:"locked_sol"`
	LifetimeReclaimedSOL float64 `json:"lifetime_reclaimed_sol"`
	ReclaimableSOL       float64 `json:"reclaimable_sol"`
}

type AccountsResponse struct {
	Scanned     []AccountResponse     `json:"scanned"`
	Reclaimable []ReclaimableResponse `json:"reclaimable"`
	Stats       StatsResponse         `json:"stats"`
}

type ReclaimResponse struct {
	DryRun       bool                  `json:"dry_run"`
	Reclaimable  []ReclaimableResponse `json:"reclaimable"`
	Results      []ResultResponse      `json:"results"`
	Succeeded    int                   `json:"succeeded"`
	Failed       int                   `json:"failed"`
	Reclaimed    uint64                `json:"reclaimed_lamports"`
	ReclaimedSOL float64               `json:"reclaimed_sol"`
}

type CycleResponse struct {
	ID          string                `json:"id"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
	Scanned     []AccountResponse     `json:"scanned"`
	Reclaimable []ReclaimableResponse `json:"reclaimable"`
	Results     []ResultResponse      `json:"results"`
	Stats       StatsResponse         `json:"stats"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func toAccounts(in []reclaimer.SponsoredAccount) []AccountResponse {
	out := make([]AccountResponse, 0, len(in))
	for _, a := range in {
		out = append(out, AccountResponse{SponsoredAccount: a, SOL: reclaimer.LamportsToSOL(a.Lamports)})
	}
	return out
}

func toReclaimable(in []reclaimer.ReclaimableAccount) []ReclaimableResponse {
	out := make([]ReclaimableResponse, 0, len(in))
	for _, a := range in {
		out = append(out, ReclaimableResponse{ReclaimableAccount: a, EstimatedSOL: reclaimer.LamportsToSOL(a.EstimatedLamports)})
	}
	return out
}

func toResults(in []reclaimer.ReclaimResult) []ResultResponse {
	out := make([]ResultResponse, 0, len(in))
	for _, r := range in {
		out = append(out, ResultResponse{ReclaimResult: r, SOL: reclaimer.LamportsToSOL(r.Lamports)})
	}
	return out
}

func toStats(s reclaimer.RentStats) StatsResponse {
	return StatsResponse{
		RentStats:            s,
		LockedSOL:            reclaimer.LamportsToSOL(s.LockedLamports),
		LifetimeReclaimedSOL: reclaimer.LamportsToSOL(s.LifetimeReclaimed),
		ReclaimableSOL:       reclaimer.LamportsToSOL(s.ReclaimableLamports),
	}
}
