package reporting

import (
	"fmt"
	"strings"
	"time"

	"stakegate/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s Economy Report\n\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Supply
	s := r.Supply
	sb.WriteString("## Supply\n\n")
	sb.WriteString("| Bucket | Tokens | Share |\n")
	sb.WriteString("|--------|--------|-------|\n")
	for _, row := range []struct {
		name   string
		amount domain.Amount
	}{
		{"Circulating", s.Circulating},
		{"Burned", s.Burned},
		{"Treasury", s.Treasury},
		{"Unissued", s.Unissued},
		{"Total", s.Total},
	} {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", row.name, row.amount, share(row.amount, s.Total)))
	}
	sb.WriteString("\n")

	// Fees
	f := r.Fees
	sb.WriteString("## Fee Statistics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Fees Collected | %s |\n", f.Collected))
	sb.WriteString(fmt.Sprintf("| Fees Burned | %s |\n", f.Burned))
	sb.WriteString(fmt.Sprintf("| Fees Reinvested | %s |\n", f.Reinvested))
	sb.WriteString(fmt.Sprintf("| Deflation Rate | %.2f%% |\n", float64(f.DeflationBps)/100))
	sb.WriteString(fmt.Sprintf("| Total Holders | %d |\n", f.Holders))
	sb.WriteString("\n")

	// Allocations
	if len(r.Allocations) > 0 {
		sb.WriteString("## Allocations\n\n")
		sb.WriteString("| Allocation | Share | Cap | Issued | Remaining |\n")
		sb.WriteString("|------------|-------|-----|--------|-----------|\n")
		for _, a := range r.Allocations {
			sb.WriteString(fmt.Sprintf("| %s | %.2f%% | %s | %s | %s |\n",
				a.Name, float64(a.ShareBps)/100, a.Cap, a.Issued, a.Remaining))
		}
		sb.WriteString("\n")
	}

	// Accounts
	sb.WriteString("## Accounts\n\n")
	sb.WriteString(fmt.Sprintf("Accounts: %d | Holders: %d | Stakers: %d\n\n",
		r.Accounts.Total, r.Accounts.Holders, r.Accounts.Stakers))

	// Flows
	sb.WriteString("## Transaction Flows\n\n")
	if len(r.Flows) > 0 {
		sb.WriteString("| Kind | Count | Volume | Burned | To Treasury |\n")
		sb.WriteString("|------|-------|--------|--------|-------------|\n")
		for _, f := range r.Flows {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				f.Kind, f.Count, f.Volume, f.Burned, f.ToTreasury))
		}
	} else {
		sb.WriteString("No transactions recorded.\n")
	}
	sb.WriteString("\n")

	// Tiers
	sb.WriteString("## Staking Tiers\n\n")
	sb.WriteString("| Tier | Threshold | APY | Priority | Accounts | Locked |\n")
	sb.WriteString("|------|-----------|-----|----------|----------|--------|\n")
	for _, t := range r.Tiers {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.2f%% | %gx | %d | %s |\n",
			t.Tier, t.Threshold, float64(t.APYBps)/100, t.Multiplier, t.Accounts, t.Locked))
	}
	sb.WriteString("\n")

	// Holders
	sb.WriteString("## Top Holders\n\n")
	if len(r.Holders) > 0 {
		sb.WriteString("| Account | Available | Locked | Tier |\n")
		sb.WriteString("|---------|-----------|--------|------|\n")
		for _, h := range r.Holders {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", h.Account, h.Available, h.Locked, h.Tier))
		}
	} else {
		sb.WriteString("No holders.\n")
	}
	sb.WriteString("\n")

	// Governance
	sb.WriteString("## Governance\n\n")
	if len(r.Proposals) > 0 {
		writeCounts(&sb, "Status", r.ProposalStatus)
		sb.WriteString("| Proposal | Type | Title | Status | For | Against | Voters |\n")
		sb.WriteString("|----------|------|-------|--------|-----|---------|--------|\n")
		for _, p := range r.Proposals {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %d |\n",
				p.ID, p.Type, escapeCell(p.Title), p.Status, p.VotesFor, p.VotesAgainst, p.Voters))
		}
	} else {
		sb.WriteString("No proposals.\n")
	}
	sb.WriteString("\n")

	// Jobs
	j := r.Jobs
	sb.WriteString("## Production Jobs\n\n")
	if j.Total > 0 {
		writeCounts(&sb, "State", j.ByState)
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Total Jobs | %d |\n", j.Total))
		sb.WriteString(fmt.Sprintf("| Charged | %s |\n", j.Charged))
		sb.WriteString(fmt.Sprintf("| Bonuses Minted | %s |\n", j.Bonuses))
		sb.WriteString(fmt.Sprintf("| Refunds Minted | %s |\n", j.Refunds))
		sb.WriteString(fmt.Sprintf("| Avg Queue Wait (ms) | %d |\n", j.AvgWaitMs))
		sb.WriteString(fmt.Sprintf("| Avg Run Time (ms) | %d |\n", j.AvgRunMs))
	} else {
		sb.WriteString("No jobs submitted.\n")
	}
	sb.WriteString("\n")

	// Daily flows
	if len(r.DailyFlows) > 0 {
		sb.WriteString("## Daily Flows\n\n")
		sb.WriteString("| Day | Kind | Count | Amount | Burned | To Treasury |\n")
		sb.WriteString("|-----|------|-------|--------|--------|-------------|\n")
		for _, d := range r.DailyFlows {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s | %s | %s |\n",
				d.Day.Format("2006-01-02"), d.Kind, d.Count, d.Amount, d.Burned, d.ToTreasury))
		}
		sb.WriteString("\n")
	}

	// Integrity errors (always shown if present)
	sb.WriteString("## Integrity\n\n")
	if len(r.IntegrityErrors) > 0 {
		for _, err := range r.IntegrityErrors {
			sb.WriteString(fmt.Sprintf("- %s\n", err))
		}
	} else {
		sb.WriteString("All supply identities hold.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func writeCounts(sb *strings.Builder, label string, rows []CountRow) {
	sb.WriteString(fmt.Sprintf("| %s | Count |\n", label))
	sb.WriteString("|------|-------|\n")
	for _, c := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", c.Label, c.Count))
	}
	sb.WriteString("\n")
}

// share formats part/total as a percentage with two decimals.
func share(part, total domain.Amount) string {
	if total == 0 {
		return "0.00%"
	}
	return part.Decimal().Div(total.Decimal()).Shift(2).StringFixed(2) + "%"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
