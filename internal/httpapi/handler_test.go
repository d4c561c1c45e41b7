package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cashback-ranking/pkg/db/pagination"
	"cashback-ranking/pkg/errutil"
	"cashback-ranking/pkg/middleware"
	"cashback-ranking/services/orchestrator"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type mockDispatcher struct {
	EnqueuePeriodFn    func(ctx context.Context, p orchestrator.RunPayload) (bool, error)
	EnqueueAllActiveFn func(ctx context.Context) (int, error)
}

func (m *mockDispatcher) EnqueuePeriod(ctx context.Context, p orchestrator.RunPayload) (bool, error) {
	return m.EnqueuePeriodFn(ctx, p)
}

func (m *mockDispatcher) EnqueueAllActive(ctx context.Context) (int, error) {
	return m.EnqueueAllActiveFn(ctx)
}

type mockLister struct {
	ListRunsFn func(ctx context.Context, awardPeriodID uint64, p pagination.Pagination) ([]*orchestrator.Run, *pagination.PageInfo, error)
}

func (m *mockLister) ListRuns(ctx context.Context, awardPeriodID uint64, p pagination.Pagination) ([]*orchestrator.Run, *pagination.PageInfo, error) {
	return m.ListRunsFn(ctx, awardPeriodID, p)
}

func router(d Dispatcher) *gin.Engine {
	return routerWith(d, nil)
}

func routerWith(d Dispatcher, l RunLister) *gin.Engine {
	h := &RunHandler{dispatcher: d, runs: l}
	r := gin.New()
	r.Use(middleware.Error())
	r.POST("/v1/award-periods/:id/runs", h.TriggerPeriod)
	r.POST("/v1/runs", h.TriggerAll)
	r.GET("/v1/runs", h.List)
	return r
}

func do(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTriggerPeriod(t *testing.T) {
	stopAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	var got orchestrator.RunPayload
	r := router(&mockDispatcher{EnqueuePeriodFn: func(_ context.Context, p orchestrator.RunPayload) (bool, error) {
		got = p
		return true, nil
	}})

	w := do(r, "/v1/award-periods/7/runs", `{"stop_at":"`+stopAt.Format(time.RFC3339)+`"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, uint64(7), got.AwardPeriodID)
	require.True(t, stopAt.Equal(*got.StopAt))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, true, body["queued"])
}

func TestTriggerPeriodRejectsBadInput(t *testing.T) {
	r := router(&mockDispatcher{EnqueuePeriodFn: func(context.Context, orchestrator.RunPayload) (bool, error) {
		t.Fatal("dispatcher must not be called")
		return false, nil
	}})

	tests := []struct {
		name, path, body string
	}{
		{"non numeric id", "/v1/award-periods/abc/runs", ""},
		{"zero id", "/v1/award-periods/0/runs", ""},
		{"broken body", "/v1/award-periods/1/runs", "{"},
		{"stop time in the past", "/v1/award-periods/1/runs", `{"stop_at":"2020-01-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			require.Contains(t, w.Body.String(), string(errutil.StatusBadRequest))
		})
	}
}

func TestTriggerAllSurfacesErrors(t *testing.T) {
	r := router(&mockDispatcher{EnqueueAllActiveFn: func(context.Context) (int, error) {
		return 0, errutil.Internal("enqueue period run", nil)
	}})

	w := do(r, "/v1/runs", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), string(errutil.StatusInternal))
}

func TestListRuns(t *testing.T) {
	var gotPeriod uint64
	var gotPage pagination.Pagination
	r := routerWith(nil, &mockLister{ListRunsFn: func(_ context.Context, id uint64, p pagination.Pagination) ([]*orchestrator.Run, *pagination.PageInfo, error) {
		gotPeriod, gotPage = id, p
		return []*orchestrator.Run{{ID: "1", AwardPeriodID: id, Status: orchestrator.RunStatusSuccess}}, &pagination.PageInfo{HasMore: true, NextCursor: "abc"}, nil
	}})

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?award_period_id=3&limit=5&cursor=xyz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(3), gotPeriod)
	require.Equal(t, 5, gotPage.Limit)
	require.Equal(t, "xyz", gotPage.Cursor)

	var body struct {
		Data     []orchestrator.Run  `json:"data"`
		PageInfo pagination.PageInfo `json:"page_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "abc", body.PageInfo.NextCursor)
}
