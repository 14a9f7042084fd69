package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"stakegate/internal/domain"
	"stakegate/internal/observability"
)

const (
	headerRequestID  = "X-Request-ID"
	headerAdminToken = "X-Admin-Token"
	ctxRequestID     = "request_id"
)

// LimiterMiddleware period: "S"<Second>,"M"<Minute>,"H"<Hour>,"D"<Day>; limit: limit frequency
func LimiterMiddleware(limit int, period string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(fmt.Sprintf("%d-%s", limit, period))
	if err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	store := memory.NewStore()
	return mgin.NewMiddleware(limiter.New(store, rate),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		}),
		mgin.WithKeyGetter(func(c *gin.Context) string {
			return c.ClientIP()
		}),
	), nil
}

// CORSMiddleware allows browser clients from any origin.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID, X-Admin-Token")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID tags each request with the caller's X-Request-ID or a new uuid.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		observability.RecordHTTPRequest(route, strconv.Itoa(status), elapsed.Seconds())

		ctx := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", c.GetString(ctxRequestID),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.log.Error("request failed", append(ctx, "err", c.Errors.String())...)
		case route == "/health" || route == "/metrics":
		default:
			s.log.Debug("request", ctx...)
		}
	}
}

func (s *Server) requireAdmin(c *gin.Context) {
	token := c.GetHeader(headerAdminToken)
	if s.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
		s.fail(c, domain.ErrUnauthorized)
		c.Abort()
		return
	}
	c.Next()
}
