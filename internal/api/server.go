// Package api exposes the economy over HTTP: JSON endpoints for the ledger,
// staking, access control, governance and jobs, plus a websocket event feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/inconshreveable/log15"

	"stakegate/internal/engine"
	"stakegate/internal/events"
	"stakegate/internal/logging"
	"stakegate/internal/observability"
)

// Subscriber is the event feed behind /v1/events.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

// Options configures a Server.
type Options struct {
	Engine *engine.Engine
	Events Subscriber // nil disables /v1/events

	// AdminToken guards mint and burn. Empty disables both endpoints.
	AdminToken string

	// RateLimit requests per RatePeriod ("S", "M", "H", "D") per client.
	// Zero disables limiting.
	RateLimit  int
	RatePeriod string

	Logger log15.Logger
}

// Server is the HTTP surface.
type Server struct {
	eng        *engine.Engine
	events     Subscriber
	adminToken string
	log        log15.Logger

	router   *gin.Engine
	upgrader websocket.Upgrader
	srv      *http.Server
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewLog("api")
	}
	s := &Server{
		eng:        opts.Engine,
		events:     opts.Events,
		adminToken: opts.AdminToken,
		log:        opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), s.accessLog(), CORSMiddleware())
	if opts.RateLimit > 0 {
		limit, err := LimiterMiddleware(opts.RateLimit, opts.RatePeriod)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/v1")
	{
		v1.GET("/overview", s.getOverview)
		v1.GET("/supply", s.getSupply)
		v1.GET("/tiers", s.getTiers)
		v1.GET("/events", s.streamEvents)

		// ledger
		v1.GET("/accounts/:id", s.getAccount)
		v1.GET("/accounts/:id/transactions", s.getTransactions)
		v1.POST("/accounts/:id/mint", s.requireAdmin, s.mint)
		v1.POST("/transfers", s.transfer)
		v1.POST("/burns", s.requireAdmin, s.burn)

		// staking
		v1.GET("/staking", s.getStakingStats)
		v1.GET("/accounts/:id/stake", s.getStake)
		v1.POST("/accounts/:id/stake", s.stake)
		v1.POST("/accounts/:id/unstake", s.unstake)
		v1.POST("/accounts/:id/rewards/claim", s.claimRewards)

		// access
		v1.GET("/accounts/:id/access", s.getAccess)
		v1.POST("/access/validate", s.validateRequest)
		v1.POST("/access/quote", s.quote)

		// governance
		v1.GET("/proposals", s.listProposals)
		v1.POST("/proposals", s.createProposal)
		v1.GET("/proposals/:id", s.getProposal)
		v1.GET("/proposals/:id/votes", s.getVotes)
		v1.POST("/proposals/:id/votes", s.vote)
		v1.POST("/proposals/:id/resolve", s.resolve)
		v1.POST("/proposals/:id/execute", s.execute)

		// jobs
		v1.POST("/jobs", s.submitJob)
		v1.GET("/jobs/:id", s.getJob)
		v1.GET("/accounts/:id/jobs", s.getJobsBy)
		v1.GET("/queue", s.getQueue)
	}
	s.router = r
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": s.eng.Uptime().Round(time.Second).String(),
	})
}
