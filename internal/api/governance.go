package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"stakegate/internal/domain"
)

type createProposalRequest struct {
	Proposer    string              `json:"proposer" binding:"required"`
	Type        domain.ProposalType `json:"type" binding:"required"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Params      map[string]string   `json:"params"`
}

type voteRequest struct {
	Voter   string `json:"voter" binding:"required"`
	Support *bool  `json:"support" binding:"required"`
}

type executeRequest struct {
	Executor string `json:"executor" binding:"required"`
}

func (s *Server) listProposals(c *gin.Context) {
	status := domain.ProposalStatus(c.Query("status"))
	if status != "" && !status.IsValid() {
		s.badRequest(c, fmt.Errorf("unknown status %q", status))
		return
	}
	proposals := s.eng.Governance().List(status)
	out := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, newProposalView(p))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createProposal(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p, err := s.eng.CreateProposal(req.Proposer, req.Type, domain.ProposalPayload{
		Title:       req.Title,
		Description: req.Description,
		Params:      req.Params,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProposalView(p))
}

func (s *Server) getProposal(c *gin.Context) {
	p, err := s.eng.Governance().Proposal(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	status, err := s.eng.Governance().Status(p.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proposal": newProposalView(p), "status": status})
}

func (s *Server) getVotes(c *gin.Context) {
	votes, err := s.eng.Governance().Votes(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]voteView, 0, len(votes))
	for _, v := range votes {
		out = append(out, newVoteView(v))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	v, err := s.eng.Vote(req.Voter, c.Param("id"), *req.Support)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, newVoteView(*v))
}

func (s *Server) resolve(c *gin.Context) {
	p, err := s.eng.Resolve(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProposalView(p))
}

func (s *Server) execute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	p, err := s.eng.Execute(c.Param("id"), req.Executor)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProposalView(p))
}
