package execution

import (
	"fmt"
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database/dbtest"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/setting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListExecutions_Pagination(t *testing.T) {
	db := dbtest.NewDB(t)
	f := dbtest.Seed(t, db)
	svc := NewExecutionService(db, problem.NewProblemService(db, setting.NewSettingService(projrepo.NewProjectRepository(db)), time.Second))

	start := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		dbtest.SaveExecution(t, db, f, fmt.Sprintf("/data/develop/day/%d/", i), start.Add(time.Duration(i)*time.Hour))
	}

	page, total, err := svc.ListExecutions(t.Context(), f.Project.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "/data/develop/day/4/", page[0].JobLink, "most recent first")

	last, _, err := svc.ListExecutions(t.Context(), f.Project.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "/data/develop/day/0/", last[0].JobLink)

	// 非法分页参数回退到默认值
	all, _, err := svc.ListExecutions(t.Context(), f.Project.ID, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetExecution(t *testing.T) {
	db := dbtest.NewDB(t)
	f := dbtest.Seed(t, db)
	svc := NewExecutionService(db, problem.NewProblemService(db, setting.NewSettingService(projrepo.NewProjectRepository(db)), time.Second))

	saved := dbtest.SaveExecution(t, db, f, "/data/develop/day/1/", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
		dbtest.Scenario(dbtest.ErrorSpec{FeatureFile: "a.feature", Scenario: "Fails", Line: 1, Step: "a step", StepLine: 2, Exception: "boom"}),
		dbtest.Scenario(dbtest.ErrorSpec{FeatureFile: "a.feature", Scenario: "Passes", Line: 8}),
	)

	execution, err := svc.GetExecution(t.Context(), f.Project.ID, saved.ID)
	require.NoError(t, err)
	require.Len(t, execution.Runs, 1)
	require.Len(t, execution.Runs[0].ExecutedScenarios, 2)
	for _, s := range execution.Runs[0].ExecutedScenarios {
		if s.Name == "Fails" {
			assert.Equal(t, execmodel.HandlingUnhandled, s.Handling)
			assert.Len(t, s.Errors, 1)
		} else {
			assert.Equal(t, execmodel.HandlingSuccess, s.Handling)
		}
	}

	_, err = svc.GetExecution(t.Context(), f.Project.ID, saved.ID+100)
	assert.ErrorIs(t, err, system.ErrExecutionNotFound)

	_, err = svc.GetExecution(t.Context(), f.Project.ID+1, saved.ID)
	assert.ErrorIs(t, err, system.ErrExecutionNotFound)
}
