package reporting

import (
	"fmt"
	"strings"
)

// RenderFlowsCSV renders transaction flows as CSV string.
func RenderFlowsCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("kind,count,volume,burned,to_treasury\n")

	// Rows
	for _, f := range r.Flows {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s\n", f.Kind, f.Count, f.Volume, f.Burned, f.ToTreasury))
	}
	return sb.String()
}

// RenderTiersCSV renders the tier distribution as CSV string.
func RenderTiersCSV(r *Report) string {
	var sb strings.Builder
	sb.WriteString("tier,threshold,apy_bps,multiplier,accounts,locked\n")
	for _, t := range r.Tiers {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%g,%d,%s\n",
			t.Tier, t.Threshold, t.APYBps, t.Multiplier, t.Accounts, t.Locked))
	}
	return sb.String()
}

// RenderProposalsCSV renders proposals as CSV string. Titles are quoted.
func RenderProposalsCSV(r *Report) string {
	var sb strings.Builder
	sb.WriteString("id,type,title,status,votes_for,votes_against,voters\n")
	for _, p := range r.Proposals {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%d\n",
			p.ID, p.Type, quoteCSV(p.Title), p.Status, p.VotesFor, p.VotesAgainst, p.Voters))
	}
	return sb.String()
}

// RenderAllocationsCSV renders the supply allocations as CSV string.
func RenderAllocationsCSV(r *Report) string {
	var sb strings.Builder
	sb.WriteString("allocation,share_bps,cap,issued,remaining\n")
	for _, a := range r.Allocations {
		sb.WriteString(fmt.Sprintf("%s,%d,%s,%s,%s\n", a.Name, a.ShareBps, a.Cap, a.Issued, a.Remaining))
	}
	return sb.String()
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
