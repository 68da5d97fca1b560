package job

import (
	"errors"
	"net/http"
	"strconv"

	"promptcron/pkg/cronexpr"
	"promptcron/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler serves read access to jobs and their execution history.
type Handler struct {
	jobs       Store
	executions ExecutionStore
}

func NewHandler(jobs Store, executions ExecutionStore) *Handler {
	return &Handler{jobs: jobs, executions: executions}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/jobs/:id", h.getJob)
	r.GET("/jobs/:id/executions", h.listExecutions)
}

type jobView struct {
	*Job
	ScheduleDescription string `json:"scheduleDescription"`
}

func (h *Handler) getJob(c *gin.Context) {
	j, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(storeError(err))
		return
	}
	c.JSON(http.StatusOK, jobView{Job: j, ScheduleDescription: cronexpr.Describe(j.Schedule)})
}

func (h *Handler) listExecutions(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		_ = c.Error(errutil.BadRequest("limit must be a positive integer", err))
		return
	}

	jobID := c.Param("id")
	if _, err := h.jobs.Get(c.Request.Context(), jobID); err != nil {
		_ = c.Error(storeError(err))
		return
	}

	execs, err := h.executions.ListByJob(c.Request.Context(), jobID, limit)
	if err != nil {
		_ = c.Error(storeError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobId": jobID, "executions": execs})
}

func storeError(err error) error {
	if errors.Is(err, ErrJobNotFound) {
		return errutil.NotFound("job not found", err)
	}
	zap.L().Error("[Job] store failure", zap.Error(err))
	return errutil.Internal("failed to read job", err)
}
