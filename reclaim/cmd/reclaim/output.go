package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#86b300",
		Dark:  "#c2d94c",
	})
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#f07171",
		Dark:  "#f07178",
	})
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
		Light: "#828c99",
		Dark:  "#6c7680",
	})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

// output renders command results as aligned text or as JSON.
type output struct {
	w    io.Writer
	json bool
}

func newOutput(w io.Writer, jsonOutput bool) *output {
	return &output{w: w, json: jsonOutput}
}

func (o *output) writeJSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) table(header string, rows func(tw *tabwriter.Writer)) error {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	return tw.Flush()
}

func (o *output) Accounts(accounts []reclaimer.SponsoredAccount) error {
	if o.json {
		return o.writeJSON(map[string]any{"accounts": accounts})
	}
	if len(accounts) == 0 {
		fmt.Fprintln(o.w, mutedStyle.Render("No sponsored accounts found."))
		return nil
	}
	err := o.table("ADDRESS\tBALANCE\tOWNER\tDATA\tEXISTS", func(tw *tabwriter.Writer) {
		for _, a := range accounts {
			owner := "-"
			if a.Exists {
				owner = a.Owner.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.Address, formatSOL(a.Lamports), owner, a.DataLen, strconv.FormatBool(a.Exists))
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(o.w, "\n%s\n", boldStyle.Render(fmt.Sprintf("%d accounts", len(accounts))))
	return nil
}

func (o *output) Scan(reclaimable []reclaimer.ReclaimableAccount, stats reclaimer.RentStats) error {
	if o.json {
		return o.writeJSON(map[string]any{"reclaimable": reclaimable, "stats": stats})
	}
	if len(reclaimable) > 0 {
		err := o.table("ADDRESS\tREASON\tBALANCE", func(tw *tabwriter.Writer) {
			for _, a := range reclaimable {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Address, a.Reason, formatSOL(a.EstimatedLamports))
			}
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(o.w)
	}
	fmt.Fprintln(o.w, boldStyle.Render(fmt.Sprintf("%d of %d accounts reclaimable, %s",
		stats.ReclaimableAccounts, stats.MonitoredAccounts, formatSOL(stats.ReclaimableLamports))))
	return nil
}

func (o *output) Results(results []reclaimer.ReclaimResult) error {
	if o.json {
		return o.writeJSON(map[string]any{"results": results})
	}
	var (
		succeeded int
		total     uint64
	)
	err := o.table("STATUS\tADDRESS\tAMOUNT\tDETAIL", func(tw *tabwriter.Writer) {
		for _, r := range results {
			if r.Success {
				succeeded++
				total += r.Lamports
				sig := ""
				if r.Signature != nil {
					sig = *r.Signature
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", passStyle.Render("ok"), r.Address, formatSOL(r.Lamports), sig)
				continue
			}
			detail := ""
			if r.Error != nil {
				detail = *r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t-\t%s\n", failStyle.Render("failed"), r.Address, detail)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(o.w, "\n%s\n", boldStyle.Render(fmt.Sprintf("%d of %d succeeded, %s reclaimed", succeeded, len(results), formatSOL(total))))
	return nil
}

func (o *output) Cycle(cycle reclaimer.CycleResult, stats reclaimer.RentStats) error {
	if o.json {
		return o.writeJSON(map[string]any{"cycle": cycle, "stats": stats})
	}
	fmt.Fprintf(o.w, "%s %s\n", boldStyle.Render("Cycle"), cycle.ID)
	fmt.Fprintf(o.w, "Scanned %d accounts, %d reclaimable, took %s\n\n",
		len(cycle.Scanned), len(cycle.Reclaimable), cycle.FinishedAt.Sub(cycle.StartedAt).Round(time.Millisecond))
	if len(cycle.Results) == 0 {
		fmt.Fprintln(o.w, mutedStyle.Render("Nothing to reclaim."))
		return nil
	}
	return o.Results(cycle.Results)
}

func (o *output) Stats(stats reclaimer.RentStats) error {
	if o.json {
		return o.writeJSON(stats)
	}
	lastScan := "never"
	if stats.LastScan != nil {
		lastScan = stats.LastScan.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	return o.table("METRIC\tVALUE", func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "monitored accounts\t%d\n", stats.MonitoredAccounts)
		fmt.Fprintf(tw, "locked\t%s\n", formatSOL(stats.LockedLamports))
		fmt.Fprintf(tw, "reclaimable accounts\t%d\n", stats.ReclaimableAccounts)
		fmt.Fprintf(tw, "reclaimable\t%s\n", formatSOL(stats.ReclaimableLamports))
		fmt.Fprintf(tw, "reclaimed this run\t%s\n", formatSOL(stats.LifetimeReclaimed))
		fmt.Fprintf(tw, "last scan\t%s\n", lastScan)
	})
}

// formatSOL renders lamports as SOL with trailing zeros trimmed.
func formatSOL(lamports uint64) string {
	s := strconv.FormatFloat(reclaimer.LamportsToSOL(lamports), 'f', 9, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " SOL"
}
