package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/class-session-api/internal/service"
)

type sweeperMock struct {
	result service.SweepResult
	err    error
	calls  int
}

func (m *sweeperMock) Run(ctx context.Context) (service.SweepResult, error) {
	m.calls++
	return m.result, m.err
}

func TestSweepHandlerRun(t *testing.T) {
	sweeper := &sweeperMock{result: service.SweepResult{Started: 2, Completed: 1}}
	router := newTestRouter(&sessionServiceMock{}, &enrollmentServiceMock{}, sweeper)

	w := serve(router, http.MethodPost, "/api/v1/admin/sweep", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sweeper.calls)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["started"])
}

func TestSweepHandlerRunFailure(t *testing.T) {
	sweeper := &sweeperMock{err: errors.New("db down")}
	router := newTestRouter(&sessionServiceMock{}, &enrollmentServiceMock{}, sweeper)

	w := serve(router, http.MethodPost, "/api/v1/admin/sweep", "")

	require.Equal(t, http.StatusInternalServerError, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "INTERNAL_ERROR", errBody["code"])
}

func TestSweepRouteAbsentWithoutSweeper(t *testing.T) {
	router := newTestRouter(&sessionServiceMock{}, &enrollmentServiceMock{}, nil)

	w := serve(router, http.MethodPost, "/api/v1/admin/sweep", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
