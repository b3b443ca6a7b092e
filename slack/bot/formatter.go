package bot

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
)

// maxListedAccounts caps how many accounts a single message lists.
const maxListedAccounts = 20

// FormatSOL renders lamports as SOL with lamport precision trimmed.
func FormatSOL(lamports uint64) string {
	s := fmt.Sprintf("%.9f", reclaimer.LamportsToSOL(lamports))
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " SOL"
}

// ShortAddress abbreviates a base58 address to its first and last four
// characters.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

// TruncateString cuts s to maxLen bytes, marking the cut with an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func FormatStats(stats reclaimer.RentStats) string {
	var sb strings.Builder
	sb.WriteString("*Rent reclaim status*\n")
	fmt.Fprintf(&sb, "• Monitored accounts: *%d* holding %s\n", stats.MonitoredAccounts, FormatSOL(stats.LockedLamports))
	fmt.Fprintf(&sb, "• Reclaimable: *%d* worth %s\n", stats.ReclaimableAccounts, FormatSOL(stats.ReclaimableLamports))
	fmt.Fprintf(&sb, "• Reclaimed since start: %s\n", FormatSOL(stats.LifetimeReclaimed))
	if stats.LastScan != nil {
		fmt.Fprintf(&sb, "• Last scan: <!date^%d^{date_short_pretty} {time}|%s>", stats.LastScan.Unix(), stats.LastScan.UTC().Format("2006-01-02 15:04 UTC"))
	} else {
		sb.WriteString("• Last scan: never")
	}
	return sb.String()
}

func FormatScan(reclaimable []reclaimer.ReclaimableAccount, stats reclaimer.RentStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Scan complete:* %d accounts checked, %d reclaimable worth %s\n",
		stats.MonitoredAccounts, len(reclaimable), FormatSOL(stats.ReclaimableLamports))
	if len(reclaimable) == 0 {
		sb.WriteString("Nothing to reclaim.")
		return sb.String()
	}
	for i, ra := range reclaimable {
		if i == maxListedAccounts {
			fmt.Fprintf(&sb, "_...and %d more_\n", len(reclaimable)-maxListedAccounts)
			break
		}
		fmt.Fprintf(&sb, "• `%s` %s (%s)\n", ShortAddress(ra.Address.String()), FormatSOL(ra.EstimatedLamports), reasonLabel(ra.Reason))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func FormatResults(results []reclaimer.ReclaimResult) string {
	var (
		sb        strings.Builder
		succeeded int
		total     uint64
	)
	for _, r := range results {
		if r.Success {
			succeeded++
			total += r.Lamports
		}
	}
	fmt.Fprintf(&sb, "*Reclaim finished:* %d of %d succeeded, %s recovered\n", succeeded, len(results), FormatSOL(total))
	for i, r := range results {
		if i == maxListedAccounts {
			fmt.Fprintf(&sb, "_...and %d more_\n", len(results)-maxListedAccounts)
			break
		}
		addr := ShortAddress(r.Address.String())
		if r.Success {
			sig := ""
			if r.Signature != nil {
				sig = *r.Signature
			}
			fmt.Fprintf(&sb, ":white_check_mark: `%s` %s <https://explorer.solana.com/tx/%s|tx>\n", addr, FormatSOL(r.Lamports), sig)
			continue
		}
		errText := "unknown error"
		if r.Error != nil {
			errText = TruncateString(*r.Error, 200)
		}
		fmt.Fprintf(&sb, ":x: `%s` %s\n", addr, errText)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func FormatCycle(cycle reclaimer.CycleResult, stats reclaimer.RentStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Scheduled cycle* `%s`\n", ShortAddress(cycle.ID))
	fmt.Fprintf(&sb, "Scanned %d accounts, %d reclaimable\n", len(cycle.Scanned), len(cycle.Reclaimable))
	if len(cycle.Results) > 0 {
		sb.WriteString(FormatResults(cycle.Results))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Reclaimed since start: %s", FormatSOL(stats.LifetimeReclaimed))
	return sb.String()
}

func FormatHelp() string {
	return strings.Join([]string{
		"*Rent reclaim bot*",
		"• `status` (or `stats`): totals from the last completed cycle",
		"• `scan`: discover and evaluate sponsored accounts without moving funds",
		"• `reclaim`: show what would be reclaimed",
		"• `reclaim confirm`: reclaim every eligible account to the treasury",
		"• `config`: signer, treasury and thresholds",
		"• `help`: this message",
	}, "\n")
}

func FormatConfig(r Reclaimer) string {
	return fmt.Sprintf("*Configuration*\n• Signer: `%s`\n• Treasury: `%s`\n• Minimum balance: %s\n• Inactive after: %d days",
		r.SignerAddress(), r.TreasuryAddress(), FormatSOL(r.MinBalance()), r.AccountAgeThreshold())
}

func reasonLabel(r reclaimer.Reason) string {
	switch r {
	case reclaimer.ReasonClosed:
		return "closed"
	case reclaimer.ReasonEmptyPayload:
		return "empty"
	case reclaimer.ReasonInactive:
		return "inactive"
	default:
		return string(r)
	}
}
