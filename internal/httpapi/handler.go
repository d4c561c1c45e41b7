package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cashback-ranking/pkg/db/pagination"
	"cashback-ranking/pkg/errutil"
	"cashback-ranking/services/orchestrator"
)

type Dispatcher interface {
	EnqueuePeriod(ctx context.Context, p orchestrator.RunPayload) (bool, error)
	EnqueueAllActive(ctx context.Context) (int, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, awardPeriodID uint64, p pagination.Pagination) ([]*orchestrator.Run, *pagination.PageInfo, error)
}

// RunHandler lets operators queue a run outside the daily schedule and read
// the run history.
type RunHandler struct {
	dispatcher Dispatcher
	runs       RunLister
}

func NewRunHandler(d *orchestrator.Dispatcher, s *orchestrator.Service) *RunHandler {
	return &RunHandler{dispatcher: d, runs: s}
}

type triggerRequest struct {
	StopAt *time.Time `json:"stop_at"`
}

func (h *RunHandler) TriggerPeriod(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(errutil.BadRequest("invalid award period id", err))
		return
	}

	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errutil.BadRequest("invalid request body", err))
			return
		}
	}
	if req.StopAt != nil && !req.StopAt.After(time.Now()) {
		_ = c.Error(errutil.BadRequest("stop_at must be in the future", nil))
		return
	}

	queued, err := h.dispatcher.EnqueuePeriod(c.Request.Context(), orchestrator.RunPayload{
		AwardPeriodID: id,
		StopAt:        req.StopAt,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"award_period_id": id,
		"queued":          queued,
	})
}

func (h *RunHandler) TriggerAll(c *gin.Context) {
	n, err := h.dispatcher.EnqueueAllActive(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": n})
}

type listRequest struct {
	pagination.Pagination
	AwardPeriodID uint64 `form:"award_period_id"`
}

func (h *RunHandler) List(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid query", err))
		return
	}

	runs, info, err := h.runs.ListRuns(c.Request.Context(), req.AwardPeriodID, req.Pagination)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":      runs,
		"page_info": info,
	})
}
