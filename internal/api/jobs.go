package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stakegate/internal/domain"
)

type submitRequest struct {
	User    string                 `json:"user" binding:"required"`
	Request domain.ResourceRequest `json:"request"`
}

func (s *Server) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	sub, err := s.eng.Submit(c.Request.Context(), req.User, req.Request)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.eng.Scheduler().Job(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	view := newJobView(job)
	if job.State == domain.JobQueued {
		view.QueuePosition, _ = s.eng.Scheduler().Position(job.ID)
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getJobsBy(c *gin.Context) {
	c.JSON(http.StatusOK, newJobViews(s.eng.Scheduler().JobsBy(c.Param("id"))))
}

func (s *Server) getQueue(c *gin.Context) {
	queued := s.eng.Scheduler().Queued()
	out := newJobViews(queued)
	for i := range out {
		out[i].QueuePosition = i + 1
	}
	c.JSON(http.StatusOK, out)
}
