package state

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/yieldrouter/internal/types"
)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := DB
	DB = db
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
		DB = prev
	})
	return mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestUninitializedDB(t *testing.T) {
	prev := DB
	DB = nil
	defer func() { DB = prev }()

	_, err := SaveWorkflowReport(context.Background(), &types.WorkflowReport{})
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = IncrementCycleNumber(HarvestCounter)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
	assert.ErrorIs(t, TestDBConnection(), ErrDBNotInitialized)
}

func TestEnsureSchema(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectExec(q("CREATE TABLE IF NOT EXISTS strategy_parameters")).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, EnsureSchema())
}

func TestIncrementCycleNumber(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("INSERT INTO cycle_counters")).
		WithArgs(HarvestCounter).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(4))

	n, err := IncrementCycleNumber(HarvestCounter)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestGetCurrentCycleNumberUnknownCounterIsZero(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("SELECT current_cycle FROM cycle_counters")).
		WithArgs("rebalance").
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}))

	n, err := GetCurrentCycleNumber("rebalance")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResetCycleNumber(t *testing.T) {
	mock := withMockDB(t)
	assert.Error(t, ResetCycleNumber(HarvestCounter, -1))

	mock.ExpectExec(q("INSERT INTO cycle_counters")).
		WithArgs(HarvestCounter, 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, ResetCycleNumber(HarvestCounter, 10))
}

func sampleReport() *types.WorkflowReport {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	before := types.NewPosition(3)
	before.BaseBalances[0] = sdkmath.NewInt(1_000)
	return &types.WorkflowReport{
		WorkflowID: "0b7e5a44-3f0c-4f5b-a4ff-5bb1d6a0f0c1",
		Workflow:   types.WorkflowOneShotLend,
		State:      types.StateSettled,
		TotalSteps: 2,
		FailedStep: -1,
		Steps: []types.StepReceipt{
			{Index: 0, Name: "add_liquidity", Venue: "curve-3pool", Success: true, Outputs: map[string]string{"minted": "990"}},
			{Index: 1, Name: "deposit_and_stake", Venue: "convex-booster", Success: true},
		},
		Before:     &before,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestSaveWorkflowReport(t *testing.T) {
	mock := withMockDB(t)
	r := sampleReport()
	mock.ExpectQuery(q("INSERT INTO workflow_reports")).
		WithArgs(
			r.WorkflowID, "one_shot_lend", "SETTLED", 2, -1,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			"", r.StartedAt, r.FinishedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}).AddRow(7))

	id, err := ReportRecorder{}.SaveWorkflowReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

// sqlNull matches an argument the driver will send as SQL NULL.
type sqlNull struct{}

func (sqlNull) Match(v driver.Value) bool { return v == nil }

// jsonDoc matches a non-empty JSON document.
type jsonDoc struct{}

func (jsonDoc) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && len(b) > 0 && json.Valid(b)
}

func TestSaveAbortedReportBindsNullPositions(t *testing.T) {
	mock := withMockDB(t)
	r := sampleReport()
	r.Workflow = types.WorkflowOneShotWithdraw
	r.State = types.StateAborted
	r.TotalSteps = 0
	r.Steps = nil
	r.Before = nil
	r.Error = "rewards pending"

	mock.ExpectQuery(q("INSERT INTO workflow_reports")).
		WithArgs(
			r.WorkflowID, "one_shot_withdraw", "ABORTED", 0, -1,
			sqlmock.AnyArg(), jsonDoc{}, sqlNull{}, sqlNull{}, sqlNull{},
			"rewards pending", r.StartedAt, r.FinishedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}).AddRow(8))

	id, err := SaveWorkflowReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)
}

func TestSaveReportBindsObservedPositionAsJSON(t *testing.T) {
	mock := withMockDB(t)
	r := sampleReport()
	r.State = types.StateAborted
	r.FailedStep = 1
	r.LastObserved = r.Before
	r.Error = "deposit_and_stake: venue call failed"

	mock.ExpectQuery(q("INSERT INTO workflow_reports")).
		WithArgs(
			r.WorkflowID, "one_shot_lend", "ABORTED", 2, 1,
			sqlmock.AnyArg(), jsonDoc{}, jsonDoc{}, jsonDoc{}, sqlNull{},
			r.Error, r.StartedAt, r.FinishedAt,
		).
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}).AddRow(9))

	_, err := SaveWorkflowReport(context.Background(), r)
	require.NoError(t, err)
}

func TestSaveWorkflowReportPropagatesDBError(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("INSERT INTO workflow_reports")).WillReturnError(errors.New("connection reset"))

	_, err := SaveWorkflowReport(context.Background(), sampleReport())
	assert.ErrorContains(t, err, "connection reset")
}

func reportRow(t *testing.T, r *types.WorkflowReport) *sqlmock.Rows {
	t.Helper()
	steps, err := json.Marshal(r.Steps)
	require.NoError(t, err)
	before, err := json.Marshal(r.Before)
	require.NoError(t, err)
	return sqlmock.NewRows([]string{
		"report_id", "workflow_id", "workflow", "state", "total_steps", "failed_step",
		"steps", "position_before", "position_last_observed", "position_after",
		"error", "started_at", "finished_at",
	}).AddRow(
		3, r.WorkflowID, string(r.Workflow), string(r.State), r.TotalSteps, r.FailedStep,
		steps, before, nil, nil,
		nil, r.StartedAt, r.FinishedAt,
	)
}

func TestGetWorkflowReport(t *testing.T) {
	mock := withMockDB(t)
	r := sampleReport()
	mock.ExpectQuery(q("FROM workflow_reports WHERE workflow_id = $1")).
		WithArgs(r.WorkflowID).
		WillReturnRows(reportRow(t, r))

	got, err := GetWorkflowReport(r.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ReportID)
	assert.Equal(t, types.WorkflowOneShotLend, got.Workflow)
	assert.Equal(t, types.StateSettled, got.State)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "990", got.Steps[0].Outputs["minted"])
	require.NotNil(t, got.Before)
	assert.Equal(t, "1000", got.Before.BaseBalances[0].String())
	assert.Nil(t, got.LastObserved)
	assert.Nil(t, got.After)
	assert.Empty(t, got.Error)
}

func TestGetWorkflowReportNotFound(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("FROM workflow_reports WHERE workflow_id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"report_id"}))

	_, err := GetWorkflowReport("missing")
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestGetRecentWorkflowReportsClampsLimit(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("FROM workflow_reports ORDER BY finished_at DESC LIMIT $1")).
		WithArgs(10).
		WillReturnRows(reportRow(t, sampleReport()))

	reports, err := GetRecentWorkflowReports(500)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestGetRouterSummary(t *testing.T) {
	mock := withMockDB(t)
	last := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(q("GROUP BY workflow, state")).
		WillReturnRows(sqlmock.NewRows([]string{"workflow", "state", "count"}).
			AddRow("harvest", "SETTLED", 5).
			AddRow("one_shot_lend", "ABORTED", 1).
			AddRow("one_shot_lend", "SETTLED", 2))
	mock.ExpectQuery(q("SELECT MAX(finished_at) FROM workflow_reports")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(last))
	mock.ExpectQuery(q("SELECT current_cycle FROM cycle_counters")).
		WithArgs(HarvestCounter).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(6))

	summary, err := GetRouterSummary()
	require.NoError(t, err)
	assert.Equal(t, 8, summary.TotalWorkflows)
	assert.Equal(t, 7, summary.SettledWorkflows)
	assert.Equal(t, 1, summary.AbortedWorkflows)
	assert.Equal(t, 6, summary.HarvestCycles)
	require.NotNil(t, summary.LastFinishedAt)
	assert.True(t, last.Equal(*summary.LastFinishedAt))
	assert.Len(t, summary.ByWorkflow, 3)
}

func TestSaveStrategyParametersVersionsAndActivates(t *testing.T) {
	mock := withMockDB(t)
	params := types.StrategyParameters{
		ReinvestAsset:               "DAI",
		RewardMinOut:                map[types.AssetID]sdkmath.Int{"CRV": sdkmath.NewInt(5)},
		MinHarvestRaw:               map[types.AssetID]sdkmath.Int{"CRV": sdkmath.NewInt(1)},
		WithdrawSlippageBps:         30,
		RequireHarvestBeforeUnstake: true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COALESCE(MAX(version), 0) + 1 FROM strategy_parameters")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectExec(q("UPDATE strategy_parameters SET is_active = FALSE")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("INSERT INTO strategy_parameters")).
		WithArgs(3, "default", true, sqlmock.AnyArg(), sqlmock.AnyArg(), "DAI", 30, true, []byte(`{"CRV":"5"}`), []byte(`{"CRV":"1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"params_id"}).AddRow(11))
	mock.ExpectCommit()

	id, err := SaveStrategyParameters(params, "default", true)
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
}

func TestSaveStrategyParametersRollsBackOnFailure(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT COALESCE(MAX(version), 0) + 1 FROM strategy_parameters")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectQuery(q("INSERT INTO strategy_parameters")).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	_, err := SaveStrategyParameters(types.StrategyParameters{ReinvestAsset: "DAI"}, "default", false)
	assert.Error(t, err)
}

func TestLoadActiveStrategyParameters(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("FROM strategy_parameters")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"reinvest_asset", "withdraw_slippage_bps", "require_harvest_before_unstake", "reward_min_out", "min_harvest_raw"}).
			AddRow("USDC", 50, false, []byte(`{"CRV":"5","CVX":"6"}`), []byte(`{}`)))

	p, err := LoadActiveStrategyParameters("default")
	require.NoError(t, err)
	assert.Equal(t, types.AssetID("USDC"), p.ReinvestAsset)
	assert.Equal(t, uint32(50), p.WithdrawSlippageBps)
	assert.False(t, p.RequireHarvestBeforeUnstake)
	assert.Equal(t, "6", p.RewardMinOut["CVX"].String())
	assert.Empty(t, p.MinHarvestRaw)
}

func TestLoadActiveStrategyParametersNone(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery(q("FROM strategy_parameters")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"reinvest_asset"}))

	_, err := LoadActiveStrategyParameters("default")
	assert.ErrorIs(t, err, ErrNoActiveParameters)
}
