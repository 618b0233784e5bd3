package quality

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeverities() []*projmodel.Severity {
	return []*projmodel.Severity{
		{Code: "high", Position: 1},
		{Code: "medium", Position: 2, DefaultOnMissing: true},
		{Code: "low", Position: 3},
	}
}

func scenarios(severity string, passed, failed int) []*execmodel.ExecutedScenario {
	var result []*execmodel.ExecutedScenario
	for i := 0; i < passed; i++ {
		result = append(result, &execmodel.ExecutedScenario{Severity: severity})
	}
	for i := 0; i < failed; i++ {
		result = append(result, &execmodel.ExecutedScenario{
			Severity: severity,
			Errors:   []*execmodel.Error{{Step: "failing"}},
		})
	}
	return result
}

func qualitySeverities(t *testing.T, execution *execmodel.Execution) map[string]execmodel.QualitySeverity {
	var list []execmodel.QualitySeverity
	require.NoError(t, json.Unmarshal([]byte(execution.QualitySeverities), &list))
	result := make(map[string]execmodel.QualitySeverity, len(list))
	for _, q := range list {
		result[q.Severity] = q
	}
	return result
}

const thresholds = `{"high":{"failure":100,"warning":100},"medium":{"failure":90,"warning":95},"low":{"failure":50,"warning":80}}`

func TestComputeQuality_Statuses(t *testing.T) {
	var runScenarios []*execmodel.ExecutedScenario
	runScenarios = append(runScenarios, scenarios("high", 5, 0)...)
	runScenarios = append(runScenarios, scenarios("", 18, 1)...) // 94% medium
	runScenarios = append(runScenarios, scenarios("low", 1, 1)...)

	execution := &execmodel.Execution{
		QualityThresholds: thresholds,
		Runs: []*execmodel.Run{
			{Status: execmodel.JobStatusDone, IncludeInThresholds: true, ExecutedScenarios: runScenarios},
			{Status: execmodel.JobStatusRunning, IncludeInThresholds: false},
		},
	}

	ComputeQuality(execution, testSeverities())

	got := qualitySeverities(t, execution)
	assert.Equal(t, execmodel.QualityPassed, got["high"].Status)
	assert.Equal(t, 94, got["medium"].Percent)
	assert.Equal(t, execmodel.QualityWarning, got["medium"].Status)
	assert.Equal(t, execmodel.ScenarioCounts{Total: 2, Passed: 1, Failed: 1}, got["low"].ScenarioCounts)
	assert.Equal(t, execmodel.QualityWarning, got["low"].Status)
	assert.Equal(t, 26, got[SeverityAll].ScenarioCounts.Total)
	assert.Equal(t, execmodel.QualityWarning, got[SeverityAll].Status)
	assert.Equal(t, execmodel.QualityWarning, execution.QualityStatus)
}

func TestComputeQuality_FailedWinsOverIncomplete(t *testing.T) {
	execution := &execmodel.Execution{
		QualityThresholds: `{"high":{"failure":100,"warning":100}}`,
		Runs: []*execmodel.Run{{
			Status:              execmodel.JobStatusDone,
			IncludeInThresholds: true,
			ExecutedScenarios:   scenarios("high", 1, 1),
		}},
	}

	ComputeQuality(execution, testSeverities())

	got := qualitySeverities(t, execution)
	assert.Equal(t, execmodel.QualityFailed, got["high"].Status)
	assert.Equal(t, execmodel.QualityIncomplete, got["medium"].Status)
	assert.Equal(t, execmodel.QualityFailed, execution.QualityStatus)
}

func TestComputeQuality_IncompleteRuns(t *testing.T) {
	tests := []struct {
		name string
		run  *execmodel.Run
	}{
		{"run not done", &execmodel.Run{Status: execmodel.JobStatusUnavailable, IncludeInThresholds: true, ExecutedScenarios: scenarios("high", 1, 0)}},
		{"run without scenario", &execmodel.Run{Status: execmodel.JobStatusDone, IncludeInThresholds: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			execution := &execmodel.Execution{QualityThresholds: thresholds, Runs: []*execmodel.Run{tt.run}}
			ComputeQuality(execution, testSeverities())
			assert.Equal(t, execmodel.QualityIncomplete, execution.QualityStatus)
		})
	}
}

func TestComputeQuality_InvalidThresholds(t *testing.T) {
	execution := &execmodel.Execution{
		QualityThresholds: `{not json`,
		Runs: []*execmodel.Run{{
			Status:              execmodel.JobStatusDone,
			IncludeInThresholds: true,
			ExecutedScenarios:   scenarios("high", 3, 0),
		}},
	}
	ComputeQuality(execution, testSeverities())
	assert.Equal(t, execmodel.QualityIncomplete, execution.QualityStatus)
}

func TestComputeQuality_SeverityTagsRestrictActiveSeverities(t *testing.T) {
	execution := &execmodel.Execution{
		QualityThresholds: `{"high":{"failure":100,"warning":100}}`,
		Runs: []*execmodel.Run{{
			Status:              execmodel.JobStatusDone,
			IncludeInThresholds: true,
			SeverityTags:        "high,unknown",
			ExecutedScenarios:   scenarios("high", 2, 0),
		}},
	}

	ComputeQuality(execution, testSeverities())

	got := qualitySeverities(t, execution)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "high")
	assert.Equal(t, execmodel.QualityPassed, execution.QualityStatus)
}

func TestPercent_Truncates(t *testing.T) {
	assert.Equal(t, 100, Percent(execmodel.ScenarioCounts{}))
	assert.Equal(t, 99, Percent(execmodel.ScenarioCounts{Total: 200, Passed: 199}))
}

type recordingPublisher struct {
	published []*execmodel.QualityNotification
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, n *execmodel.QualityNotification) error {
	p.published = append(p.published, n)
	return p.err
}

func TestQualityService_NotifyHook(t *testing.T) {
	publisher := &recordingPublisher{}
	testDate := time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)
	execution := &execmodel.Execution{
		ProjectID:     7,
		Branch:        "main",
		Name:          "nightly",
		QualityStatus: execmodel.QualityPassed,
		TestDateTime:  testDate,
	}
	execution.ID = 42

	hook := NewQualityService(publisher, true).NotifyHook(execution)
	require.NoError(t, hook(context.Background()))
	require.Len(t, publisher.published, 1)
	assert.Equal(t, uint64(42), publisher.published[0].ExecutionID)
	assert.Equal(t, "nightly", publisher.published[0].Cycle)
	assert.Equal(t, testDate.UnixMilli(), publisher.published[0].TestDateTime)

	publisher.err = errors.New("redis down")
	assert.Error(t, hook(context.Background()))

	disabled := &recordingPublisher{}
	require.NoError(t, NewQualityService(disabled, false).NotifyHook(execution)(context.Background()))
	assert.Empty(t, disabled.published)
}
