package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stakegate/internal/config"
	"stakegate/internal/domain"
	"stakegate/internal/storage"
	chstore "stakegate/internal/storage/clickhouse"
)

// DefaultTopHolders bounds the holder ranking.
const DefaultTopHolders = 10

// DailyFlowSource provides per-day aggregates from the analytics store.
type DailyFlowSource interface {
	DailyFlows(ctx context.Context, from, to time.Time) ([]chstore.DailyFlow, error)
}

// Generator produces reports from stored state.
type Generator struct {
	stores     storage.Stores
	cfg        config.Economy
	daily      DailyFlowSource
	dailyDays  int
	topHolders int
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(stores storage.Stores, cfg config.Economy) *Generator {
	return &Generator{
		stores:     stores,
		cfg:        cfg,
		topHolders: DefaultTopHolders,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithDailyFlows adds the last days of analytics aggregates to the report.
func (g *Generator) WithDailyFlows(src DailyFlowSource, days int) *Generator {
	g.daily = src
	g.dailyDays = days
	return g
}

// WithTopHolders sets the size of the holder ranking.
func (g *Generator) WithTopHolders(n int) *Generator {
	g.topHolders = n
	return g
}

// Generate produces a complete economy report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	supply, err := g.stores.Supply.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load supply: %w", err)
	}
	accounts, err := g.stores.Accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	txs, err := g.stores.Transactions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	proposals, err := g.stores.Proposals.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	jobs, err := g.stores.Jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	r := &Report{
		GeneratedAt:     g.now(),
		Symbol:          g.cfg.Token.Symbol,
		Supply:          *supply,
		Allocations:     generateAllocations(*supply),
		Accounts:        summarizeAccounts(accounts),
		Flows:           generateFlows(txs),
		Tiers:           g.generateTiers(accounts),
		Holders:         g.generateHolders(accounts),
		Proposals:       generateProposals(proposals),
		ProposalStatus:  countProposals(proposals),
		Jobs:            summarizeJobs(jobs),
		IntegrityErrors: checkIntegrity(*supply, accounts),
	}

	r.Fees = FeeStats{
		Collected:    supply.FeesCollected,
		Burned:       supply.FeesBurned,
		Reinvested:   supply.FeesReinvested,
		DeflationBps: supply.DeflationBps(),
		Holders:      r.Accounts.Holders,
	}

	if g.daily != nil && g.dailyDays > 0 {
		to := r.GeneratedAt
		from := to.AddDate(0, 0, -g.dailyDays)
		flows, err := g.daily.DailyFlows(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load daily flows: %w", err)
		}
		for _, f := range flows {
			r.DailyFlows = append(r.DailyFlows, DailyFlowRow{
				Day:        f.Day,
				Kind:       f.Kind,
				Count:      f.TxCount,
				Amount:     f.Amount,
				Burned:     f.Burned,
				ToTreasury: f.ToTreasury,
			})
		}
	}
	return r, nil
}

func generateAllocations(s domain.Supply) []AllocationRow {
	rows := make([]AllocationRow, 0, len(s.Allocations))
	for _, a := range s.Allocations {
		rows = append(rows, AllocationRow{
			Name: a.Name, ShareBps: a.ShareBps, Cap: a.Cap, Issued: a.Issued, Remaining: a.Remaining(),
		})
	}
	return rows
}

func summarizeAccounts(accounts []domain.Account) AccountSummary {
	s := AccountSummary{Total: len(accounts)}
	for _, a := range accounts {
		if a.Total() > 0 {
			s.Holders++
		}
		if a.Locked > 0 {
			s.Stakers++
		}
	}
	return s
}

// generateFlows groups the log by kind, sorted by kind.
func generateFlows(txs []*domain.Transaction) []FlowRow {
	byKind := make(map[domain.TxKind]*FlowRow)
	for _, tx := range txs {
		row, ok := byKind[tx.Kind]
		if !ok {
			row = &FlowRow{Kind: tx.Kind}
			byKind[tx.Kind] = row
		}
		row.Count++
		row.Volume += tx.Amount
		row.Burned += tx.BurnAmount
		row.ToTreasury += tx.TreasuryAmount
	}
	rows := make([]FlowRow, 0, len(byKind))
	for _, row := range byKind {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Kind < rows[j].Kind })
	return rows
}

func (g *Generator) tierFor(locked domain.Amount) domain.Tier {
	tier := domain.TierBasic
	for _, tc := range g.cfg.Tiers {
		if locked >= tc.Threshold.Amount() {
			tier = tc.Tier
		}
	}
	return tier
}

func (g *Generator) generateTiers(accounts []domain.Account) []TierRow {
	rows := make([]TierRow, len(g.cfg.Tiers))
	index := make(map[domain.Tier]int, len(g.cfg.Tiers))
	for i, tc := range g.cfg.Tiers {
		rows[i] = TierRow{
			Tier:       tc.Tier,
			Threshold:  tc.Threshold.Amount(),
			APYBps:     tc.APYBps,
			Multiplier: tc.Multiplier,
		}
		index[tc.Tier] = i
	}
	for _, a := range accounts {
		if a.Total() == 0 {
			continue
		}
		i := index[g.tierFor(a.Locked)]
		rows[i].Accounts++
		rows[i].Locked += a.Locked
	}
	return rows
}

// generateHolders ranks accounts by total balance, ties by id.
func (g *Generator) generateHolders(accounts []domain.Account) []HolderRow {
	sorted := make([]domain.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Total() > 0 {
			sorted = append(sorted, a)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].Total(), sorted[j].Total()
		if ti != tj {
			return ti > tj
		}
		return sorted[i].ID < sorted[j].ID
	})
	if g.topHolders > 0 && len(sorted) > g.topHolders {
		sorted = sorted[:g.topHolders]
	}
	rows := make([]HolderRow, len(sorted))
	for i, a := range sorted {
		rows[i] = HolderRow{
			Account:   a.ID,
			Available: a.Available,
			Locked:    a.Locked,
			Tier:      g.tierFor(a.Locked),
		}
	}
	return rows
}

func generateProposals(proposals []domain.Proposal) []ProposalRow {
	rows := make([]ProposalRow, len(proposals))
	for i, p := range proposals {
		rows[i] = ProposalRow{
			ID:           p.ID,
			Type:         p.Type,
			Title:        p.Payload.Title,
			Status:       p.Status,
			VotesFor:     p.VotesFor,
			VotesAgainst: p.VotesAgainst,
			Voters:       p.VoterCount,
		}
	}
	return rows
}

func countProposals(proposals []domain.Proposal) []CountRow {
	counts := make(map[string]int)
	for _, p := range proposals {
		counts[string(p.Status)]++
	}
	return sortedCounts(counts)
}

func summarizeJobs(jobs []domain.Job) JobSummary {
	s := JobSummary{Total: len(jobs)}
	counts := make(map[string]int)
	var waitSum, runSum, waitN, runN int64
	for _, j := range jobs {
		counts[string(j.State)]++
		s.Charged += j.Cost
		s.Bonuses += j.Bonus
		s.Refunds += j.Refund
		if j.StartedAt > 0 {
			waitSum += j.StartedAt - j.EnqueuedAt
			waitN++
		}
		if j.StartedAt > 0 && j.FinishedAt > 0 {
			runSum += j.FinishedAt - j.StartedAt
			runN++
		}
	}
	if waitN > 0 {
		s.AvgWaitMs = waitSum / waitN
	}
	if runN > 0 {
		s.AvgRunMs = runSum / runN
	}
	s.ByState = sortedCounts(counts)
	return s
}

func sortedCounts(counts map[string]int) []CountRow {
	rows := make([]CountRow, 0, len(counts))
	for label, n := range counts {
		rows = append(rows, CountRow{Label: label, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	return rows
}

// checkIntegrity verifies the stored supply against the stored balances.
func checkIntegrity(s domain.Supply, accounts []domain.Account) []string {
	var errs []string
	if s.Accounted() != s.Total {
		errs = append(errs, fmt.Sprintf("circulating %s + burned %s + treasury %s + unissued %s != total %s",
			s.Circulating, s.Burned, s.Treasury, s.Unissued, s.Total))
	}
	var sum domain.Amount
	for _, a := range accounts {
		sum += a.Total()
		if a.Available < 0 || a.Locked < 0 {
			errs = append(errs, fmt.Sprintf("account %s has a negative balance", a.ID))
		}
	}
	if sum != s.Circulating {
		errs = append(errs, fmt.Sprintf("account balances sum to %s, circulating is %s", sum, s.Circulating))
	}
	if len(s.Allocations) > 0 && s.AllocationRemaining() != s.Unissued {
		errs = append(errs, fmt.Sprintf("allocations have %s left, unissued is %s", s.AllocationRemaining(), s.Unissued))
	}
	if s.FeesCollected != s.FeesBurned+s.FeesReinvested {
		errs = append(errs, fmt.Sprintf("fees collected %s != burned %s + reinvested %s",
			s.FeesCollected, s.FeesBurned, s.FeesReinvested))
	}
	return errs
}
