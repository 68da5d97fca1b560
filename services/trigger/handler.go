package trigger

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"promptcron/pkg/config"
	"promptcron/pkg/cronexpr"
	"promptcron/services/job"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionRetry  = "retry"
)

type Request struct {
	Action            string `json:"action"`
	JobID             string `json:"jobId"`
	Schedule          string `json:"schedule,omitempty"`
	Enabled           *bool  `json:"enabled,omitempty"`
	RetryDelayMinutes *int   `json:"retryDelayMinutes,omitempty"`
}

type Response struct {
	Success   bool       `json:"success"`
	Action    string     `json:"action"`
	JobID     string     `json:"jobId"`
	Message   string     `json:"message"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	FireAt    *time.Time `json:"fireAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Handler is the trigger management entry point used by the dashboard.
type Handler struct {
	registry          *Registry
	jobs              job.Store
	defaultRetryDelay int
}

func NewHandler(registry *Registry, jobs job.Store, cfg *config.Config) *Handler {
	return &Handler{registry: registry, jobs: jobs, defaultRetryDelay: cfg.Retry.BaseMinutes}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/triggers", h.handleHTTP)
}

func (h *Handler) handleHTTP(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Message: "invalid request body", Error: err.Error()})
		return
	}
	resp, status := h.Handle(c.Request.Context(), req)
	c.JSON(status, resp)
}

// Handle applies one management action and never returns without a response.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, int) {
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	resp := Response{Action: req.Action, JobID: req.JobID}
	log := zap.L().With(zap.String("action", req.Action), zap.String("job_id", req.JobID))

	if req.JobID == "" {
		return h.fail(resp, http.StatusBadRequest, ErrMissingJobID), http.StatusBadRequest
	}

	var (
		status = http.StatusOK
		err    error
	)
	switch req.Action {
	case ActionCreate, ActionUpdate:
		resp, status, err = h.upsert(ctx, req, resp)
	case ActionDelete:
		if err = h.registry.Remove(ctx, req.JobID); err == nil {
			resp.Message = "Schedule removed"
		}
	case ActionRetry:
		resp, status, err = h.retry(ctx, req, resp)
	default:
		resp.Message = "unknown action"
		return h.fail(resp, http.StatusBadRequest, errors.New("action must be one of create, update, delete, retry")), http.StatusBadRequest
	}

	if err != nil {
		log.Error("[Trigger] management action failed", zap.Error(err))
		return h.fail(resp, status, err), status
	}

	log.Info("[Trigger] management action applied")
	resp.Success = true
	return resp, http.StatusOK
}

func (h *Handler) upsert(ctx context.Context, req Request, resp Response) (Response, int, error) {
	schedule, enabled := req.Schedule, true
	stored, err := h.jobs.Get(ctx, req.JobID)
	switch {
	case err == nil:
		if schedule == "" {
			schedule = stored.Schedule
		}
		enabled = stored.Enabled
	case !errors.Is(err, job.ErrJobNotFound):
		return resp, http.StatusInternalServerError, err
	}
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if schedule == "" {
		return resp, http.StatusBadRequest, cronexpr.ErrInvalidSchedule
	}

	next, err := h.registry.Upsert(ctx, req.JobID, schedule, enabled)
	if errors.Is(err, cronexpr.ErrInvalidSchedule) {
		return resp, http.StatusBadRequest, err
	}
	if err != nil {
		return resp, http.StatusInternalServerError, err
	}

	if stored != nil {
		if err := h.jobs.SetNextRun(ctx, req.JobID, next); err != nil {
			return resp, http.StatusInternalServerError, err
		}
	}

	resp.NextRunAt = next
	resp.Message = "Schedule " + req.Action + "d"
	return resp, http.StatusOK, nil
}

func (h *Handler) retry(ctx context.Context, req Request, resp Response) (Response, int, error) {
	delay := h.defaultRetryDelay
	if req.RetryDelayMinutes != nil {
		delay = *req.RetryDelayMinutes
	}

	fireAt, err := h.registry.ScheduleRetry(ctx, req.JobID, delay)
	if errors.Is(err, ErrInvalidDelay) {
		return resp, http.StatusBadRequest, err
	}
	if err != nil {
		return resp, http.StatusInternalServerError, err
	}

	resp.FireAt = &fireAt
	resp.Message = "Retry scheduled"
	return resp, http.StatusOK, nil
}

func (h *Handler) fail(resp Response, status int, err error) Response {
	resp.Success = false
	resp.Error = err.Error()
	if resp.Message == "" {
		resp.Message = http.StatusText(status)
	}
	return resp
}
