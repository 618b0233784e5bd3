package purge

import (
	"context"
	"fmt"
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database/dbtest"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/project"
	"aramaster/internal/service/setting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2025-10-15T14:30:00Z
var now = time.Date(2025, 10, 15, 14, 30, 0, 0, time.UTC)

func TestThreshold(t *testing.T) {
	today := time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		value, unit string
		want        time.Time
		wantErr     bool
	}{
		{"0", "DAY", today, false},
		{"3", "day", today.AddDate(0, 0, -3), false},
		{"2", "Week", today.AddDate(0, 0, -14), false},
		{"1", "MONTH", time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), false},
		{"1", "year", time.Date(2024, 10, 15, 0, 0, 0, 0, time.UTC), false},
		{"-1", "DAY", time.Time{}, true},
		{"", "DAY", time.Time{}, true},
		{"two", "DAY", time.Time{}, true},
		{"2", "", time.Time{}, true},
		{"2", "fortnight", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.value+"_"+tt.unit, func(t *testing.T) {
			got, err := Threshold(now, tt.value, tt.unit)
			if tt.wantErr {
				assert.ErrorIs(t, err, system.ErrInvalidPurgeSetting)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

type purgeEnv struct {
	db       *gorm.DB
	fixture  *dbtest.Fixture
	settings *setting.SettingService
	service  *PurgeService
}

func newPurgeEnv(t *testing.T) *purgeEnv {
	db := dbtest.NewDB(t)
	f := dbtest.Seed(t, db)
	repo := projrepo.NewProjectRepository(db)
	settings := setting.NewSettingService(repo)
	service := NewPurgeService(db, project.NewProjectService(repo), settings, 2)
	service.now = func() time.Time { return now }
	return &purgeEnv{db: db, fixture: f, settings: settings, service: service}
}

func (env *purgeEnv) retention(t *testing.T, projectID uint64, value, unit string) {
	require.NoError(t, env.settings.Update(context.Background(), projectID, setting.PurgeDurationValue, value))
	require.NoError(t, env.settings.Update(context.Background(), projectID, setting.PurgeDurationType, unit))
}

func (env *purgeEnv) executions(t *testing.T) []execmodel.Execution {
	var executions []execmodel.Execution
	require.NoError(t, env.db.Order("test_date_time").Find(&executions).Error)
	return executions
}

func TestPurgeProject_ZeroDaysKeepsToday(t *testing.T) {
	env := newPurgeEnv(t)
	ctx := context.Background()
	yesterday := now.AddDate(0, 0, -1)
	for i, day := range []time.Time{now.AddDate(0, 0, -3), now.AddDate(0, 0, -2), yesterday, yesterday.Add(time.Hour)} {
		dbtest.SaveExecution(t, env.db, env.fixture, fmt.Sprintf("job-%d", i), day,
			dbtest.Scenario(dbtest.ErrorSpec{FeatureFile: "a.feature", Scenario: "s", Line: 1, Step: "step", StepLine: 2, Exception: "boom"}))
	}
	today := dbtest.SaveExecution(t, env.db, env.fixture, "job-today", time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC))

	problem := &probmodel.Problem{ProjectID: env.fixture.Project.ID, Name: "kept", Status: probmodel.StatusOpen, CreationDateTime: now}
	require.NoError(t, env.db.Create(problem).Error)

	env.retention(t, env.fixture.Project.ID, "0", "day")
	deleted, err := env.service.PurgeProject(ctx, env.fixture.Project.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, deleted, "deleted over several batches")

	remaining := env.executions(t)
	require.Len(t, remaining, 1)
	assert.Equal(t, today.ID, remaining[0].ID)

	var errorCount, runCount, problemCount int64
	require.NoError(t, env.db.Model(&execmodel.Error{}).Count(&errorCount).Error)
	require.NoError(t, env.db.Model(&execmodel.Run{}).Count(&runCount).Error)
	require.NoError(t, env.db.Model(&probmodel.Problem{}).Count(&problemCount).Error)
	assert.Zero(t, errorCount)
	assert.Equal(t, int64(1), runCount)
	assert.Equal(t, int64(1), problemCount)
}

func TestPurgeProject_NegativeValueAborts(t *testing.T) {
	env := newPurgeEnv(t)
	ctx := context.Background()
	dbtest.SaveExecution(t, env.db, env.fixture, "job-old", now.AddDate(-3, 0, 0))
	// 校验会拒绝负数，直接写库模拟历史数据
	repo := projrepo.NewProjectRepository(env.db)
	require.NoError(t, repo.UpsertSetting(ctx, env.fixture.Project.ID, setting.PurgeDurationValue, "-1"))
	require.NoError(t, repo.UpsertSetting(ctx, env.fixture.Project.ID, setting.PurgeDurationType, "DAY"))

	deleted, err := env.service.PurgeProject(ctx, env.fixture.Project.ID)
	assert.ErrorIs(t, err, system.ErrInvalidPurgeSetting)
	assert.Zero(t, deleted)
	assert.Len(t, env.executions(t), 1)
}

func TestPurgeProjectByCode_UnknownProject(t *testing.T) {
	env := newPurgeEnv(t)
	deleted, err := env.service.PurgeProjectByCode(context.Background(), "nope")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPurgeAll_BadConfigDoesNotAbortBatch(t *testing.T) {
	env := newPurgeEnv(t)
	ctx := context.Background()
	other := &projmodel.Project{Code: "other", Name: "Other"}
	require.NoError(t, env.db.Create(other).Error)

	dbtest.SaveExecution(t, env.db, env.fixture, "job-old", now.AddDate(0, -2, 0))
	env.retention(t, env.fixture.Project.ID, "1", "MONTH")
	env.retention(t, other.ID, "1", "")

	deleted, err := env.service.PurgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Empty(t, env.executions(t))
}
