package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"stakegate/internal/access"
	"stakegate/internal/domain"
	"stakegate/internal/staking"
)

type amountRequest struct {
	Amount domain.Amount `json:"amount" binding:"required"`
	Reason string        `json:"reason"`
}

type mintRequest struct {
	amountRequest
	Allocation string `json:"allocation"` // optional; defaults from reason
}

type transferRequest struct {
	From   string        `json:"from" binding:"required"`
	To     string        `json:"to" binding:"required"`
	Amount domain.Amount `json:"amount" binding:"required"`
}

type burnRequest struct {
	Amount domain.Amount `json:"amount" binding:"required"`
	Source string        `json:"source" binding:"required"`
}

type quoteRequest struct {
	Account string                 `json:"account"`
	Request domain.ResourceRequest `json:"request"`
}

func (s *Server) getOverview(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Overview())
}

func (s *Server) getSupply(c *gin.Context) {
	l := s.eng.Ledger()
	c.JSON(http.StatusOK, newSupplyView(l.Supply(), l.Holders()))
}

func (s *Server) getTiers(c *gin.Context) {
	out := make([]gin.H, 0, len(domain.AllTiers))
	st := s.eng.Staking()
	for _, t := range domain.AllTiers {
		out = append(out, gin.H{
			"tier":                t,
			"threshold":           st.Threshold(t),
			"apy_bps":             st.APYBps(t),
			"priority_multiplier": st.PriorityMultiplier(t),
			"entitlements":        s.eng.Access().Entitlements(t),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getAccount(c *gin.Context) {
	c.JSON(http.StatusOK, newAccountView(s.eng.Ledger().Balance(c.Param("id"))))
}

func (s *Server) getTransactions(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.badRequest(c, errInvalidLimit)
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, newTxViews(s.eng.Ledger().History(c.Param("id"), limit)))
}

func (s *Server) mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "grant"
	}
	tx, err := s.eng.MintFrom(req.Allocation, c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTxView(tx))
}

func (s *Server) transfer(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	tx, err := s.eng.Transfer(req.From, req.To, req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTxView(tx))
}

func (s *Server) burn(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	tx, err := s.eng.Burn(req.Amount, req.Source)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTxView(tx))
}

func (s *Server) getStakingStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Staking().Stats())
}

func (s *Server) getStake(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Staking().Info(c.Param("id")))
}

func (s *Server) stake(c *gin.Context) {
	s.moveStake(c, s.eng.Stake)
}

func (s *Server) unstake(c *gin.Context) {
	s.moveStake(c, s.eng.Unstake)
}

func (s *Server) moveStake(c *gin.Context, move func(string, domain.Amount) (*staking.Receipt, error)) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	r, err := move(c.Param("id"), req.Amount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"locked":        r.Locked,
		"tier":          r.Tier,
		"previous_tier": r.PreviousTier,
		"tier_changed":  r.TierChanged(),
		"settled":       r.Settled,
		"tx":            newTxView(r.Tx),
	})
}

func (s *Server) claimRewards(c *gin.Context) {
	amount, err := s.eng.ClaimRewards(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": amount})
}

func (s *Server) getAccess(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.Access().Summary(c.Param("id")))
}

func (s *Server) validateRequest(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if req.Account == "" {
		s.badRequest(c, errAccountRequired)
		return
	}
	d, err := s.eng.Access().Validate(req.Account, req.Request)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, decisionView(d))
}

func (s *Server) quote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	cost, err := s.eng.Access().Cost(req.Request)
	if err != nil {
		s.fail(c, err)
		return
	}
	fees := s.eng.Config().Fees
	fee := cost.MulBps(fees.UsageFeeBps)
	burned := fee.MulBps(fees.BurnShareBps)
	c.JSON(http.StatusOK, gin.H{
		"cost":     cost,
		"fee":      fee,
		"burned":   burned,
		"treasury": cost - burned,
	})
}

func decisionView(d access.Decision) gin.H {
	out := gin.H{"allowed": d.Allowed, "tier": d.Tier}
	if d.Denial != nil {
		out["denial"] = newDenialView(d.Denial)
	}
	return out
}
