package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"promptcron/services/job"

	"github.com/gin-gonic/gin"
)

type InvokeRequest struct {
	JobID   string `json:"jobId"`
	Trigger string `json:"trigger,omitempty"`
}

type InvokeResponse struct {
	Success     bool            `json:"success"`
	ExecutionID *string         `json:"executionId"`
	Response    json.RawMessage `json:"response"`
	Message     string          `json:"message"`
}

// Handler exposes Execute over HTTP for manual runs.
type Handler struct {
	executor *Executor
}

func NewHandler(e *Executor) *Handler {
	return &Handler{executor: e}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/executions", h.invoke)
}

func (h *Handler) invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, InvokeResponse{Message: "invalid request body"})
		return
	}
	resp, status := h.Invoke(c.Request.Context(), req)
	c.JSON(status, resp)
}

// Invoke runs a job and always produces a response payload.
func (h *Handler) Invoke(ctx context.Context, req InvokeRequest) (InvokeResponse, int) {
	if req.JobID == "" {
		return InvokeResponse{Message: "Missing jobId"}, http.StatusBadRequest
	}

	trigger, ok := job.ParseTrigger(req.Trigger)
	if !ok {
		return InvokeResponse{Message: ErrInvalidTrigger.Error()}, http.StatusBadRequest
	}

	res, err := h.executor.Execute(ctx, req.JobID, trigger)
	switch {
	case errors.Is(err, ErrMissingJobID):
		return InvokeResponse{Message: "Missing jobId"}, http.StatusBadRequest
	case err != nil:
		return InvokeResponse{Message: err.Error()}, http.StatusInternalServerError
	case res.Skipped:
		return InvokeResponse{Success: true, Message: "Job disabled"}, http.StatusOK
	}

	out := InvokeResponse{ExecutionID: &res.ExecutionID}
	if res.Status != job.ExecutionSuccess {
		out.Message = res.Error
		return out, http.StatusInternalServerError
	}

	out.Success = true
	out.Response = res.Response
	out.Message = "Job executed successfully"
	return out, http.StatusOK
}
