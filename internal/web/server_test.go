package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/config"
	"github.com/elys-network/yieldrouter/internal/logger"
	"github.com/elys-network/yieldrouter/internal/state"
	"github.com/elys-network/yieldrouter/internal/types"
)

type fakeRouter struct {
	pos    types.Position
	posErr error
	st     types.WorkflowState
	last   *types.WorkflowReport
}

func (f *fakeRouter) Position(context.Context) (types.Position, error) { return f.pos, f.posErr }
func (f *fakeRouter) State() types.WorkflowState                       { return f.st }
func (f *fakeRouter) LastReport() *types.WorkflowReport                { return f.last }
func (f *fakeRouter) Params() types.StrategyParameters                 { return config.DefaultParameters() }

func withoutDB(t *testing.T) {
	t.Helper()
	prev := state.DB
	state.DB = nil
	t.Cleanup(func() { state.DB = prev })
}

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := state.DB
	state.DB = db
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
		state.DB = prev
	})
	return mock
}

func get(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func settledReport() *types.WorkflowReport {
	return &types.WorkflowReport{
		WorkflowID: uuid.NewString(),
		Workflow:   types.WorkflowHarvest,
		State:      types.StateSettled,
		TotalSteps: 1,
		FailedStep: -1,
	}
}

func TestHealthOKWithoutDatabase(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{st: types.StateSettled, last: settledReport()})

	rec, body := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthDegradedAfterAbort(t *testing.T) {
	withoutDB(t)
	last := settledReport()
	last.State = types.StateAborted
	last.Error = "venue call failed"
	ws := NewWebServer("", &fakeRouter{st: types.StateAborted, last: last})

	rec, body := get(t, ws, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])
}

func TestHealthChecksDatabase(t *testing.T) {
	withMockDB(t)
	ws := NewWebServer("", &fakeRouter{st: types.StateIdle})

	rec, body := get(t, ws, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	db := body["router_status"].(map[string]interface{})["database"].(map[string]interface{})
	assert.Equal(t, true, db["configured"])
	assert.Equal(t, true, db["healthy"])
}

func TestPosition(t *testing.T) {
	withoutDB(t)
	pos := types.NewPosition(3)
	pos.Staked = sdkmath.NewInt(42)
	ws := NewWebServer("", &fakeRouter{pos: pos, st: types.StateIdle})

	rec, body := get(t, ws, "/api/position")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", body["engine_state"])
	assert.Equal(t, "42", body["position"].(map[string]interface{})["staked"])
}

func TestPositionVenueFailure(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{posErr: errors.New("rpc down")})

	rec, body := get(t, ws, "/api/position")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, true, body["error"])
}

func TestLogsUseLoggerInitializedAfterImport(t *testing.T) {
	withoutDB(t)
	var buf bytes.Buffer
	prev := logger.Logger
	logger.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { logger.Logger = prev })

	ws := NewWebServer("", &fakeRouter{posErr: errors.New("rpc down")})
	rec, _ := get(t, ws, "/api/position")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	out := buf.String()
	assert.Contains(t, out, `"component":"web_server"`)
	assert.Contains(t, out, "Failed to read position")
	assert.Contains(t, out, "HTTP request")
}

func TestWorkflowsFallsBackToLastReport(t *testing.T) {
	withoutDB(t)
	last := settledReport()
	ws := NewWebServer("", &fakeRouter{last: last})

	rec, body := get(t, ws, "/api/workflows?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 5, body["limit"])

	rec, body = get(t, ws, "/api/workflows/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, last.WorkflowID, body["workflow_id"])

	rec, _ = get(t, ws, "/api/workflows/"+last.WorkflowID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWorkflowsEmptyIsList(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{})

	_, body := get(t, ws, "/api/workflows")
	assert.Equal(t, []interface{}{}, body["workflows"])

	rec, _ := get(t, ws, "/api/workflows/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowByIDValidation(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{})

	rec, _ := get(t, ws, "/api/workflows/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(t, ws, "/api/workflows/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowByIDFromDatabaseNotFound(t *testing.T) {
	mock := withMockDB(t)
	id := uuid.NewString()
	mock.ExpectQuery(regexp.QuoteMeta("FROM workflow_reports WHERE workflow_id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}))
	ws := NewWebServer("", &fakeRouter{})

	rec, _ := get(t, ws, "/api/workflows/"+id)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSummaryRequiresDatabase(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{})

	rec, _ := get(t, ws, "/api/summary")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSummaryDatabaseError(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY workflow, state")).WillReturnError(errors.New("boom"))
	ws := NewWebServer("", &fakeRouter{})

	rec, _ := get(t, ws, "/api/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStrategy(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{})

	rec, body := get(t, ws, "/api/strategy")
	assert.Equal(t, http.StatusOK, rec.Code)
	params := body["parameters"].(map[string]interface{})
	assert.Equal(t, string(config.DefaultParameters().ReinvestAsset), params["reinvest_asset"])
}

func TestMetricsEndpoint(t *testing.T) {
	withoutDB(t)
	ws := NewWebServer("", &fakeRouter{})

	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
