// Package dbtest 提供基于内存 SQLite 的测试数据库和通用参考数据
package dbtest

import (
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/database"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB 创建迁移完成的内存库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接都是独立的库，固定单连接
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Fixture 一个项目及其参考数据
type Fixture struct {
	Project    *projmodel.Project
	France     *projmodel.Country
	Belgium    *projmodel.Country
	Cucumber   *projmodel.Source
	Postman    *projmodel.Source
	API        *projmodel.Type
	Firefox    *projmodel.Type
	High       *projmodel.Severity
	Medium     *projmodel.Severity
	Cycle      *projmodel.CycleDefinition
	Team       *projmodel.Team
	RootCause  *projmodel.RootCause
	Severities []*projmodel.Severity
}

// Seed 写入项目 "the-demo-project" 及其国家(fr/be)、类型(api/firefox)、严重级别、周期 develop/day
func Seed(t testing.TB, db *gorm.DB) *Fixture {
	t.Helper()
	f := &Fixture{
		Project: &projmodel.Project{Code: "the-demo-project", Name: "The Demo Project", DefaultProject: true},
	}
	require.NoError(t, db.Create(f.Project).Error)
	pid := f.Project.ID

	f.France = &projmodel.Country{ProjectID: pid, Code: "fr", Name: "France"}
	f.Belgium = &projmodel.Country{ProjectID: pid, Code: "be", Name: "Belgium"}
	f.Cucumber = &projmodel.Source{ProjectID: pid, Code: "web", Name: "Web", Technology: projmodel.TechnologyCucumber}
	f.Postman = &projmodel.Source{ProjectID: pid, Code: "api", Name: "API", Technology: projmodel.TechnologyPostman}
	for _, v := range []interface{}{f.France, f.Belgium, f.Cucumber, f.Postman} {
		require.NoError(t, db.Create(v).Error)
	}

	f.API = &projmodel.Type{ProjectID: pid, Code: "api", Name: "Integ APIs", SourceID: &f.Postman.ID, Source: f.Postman}
	f.Firefox = &projmodel.Type{ProjectID: pid, Code: "firefox", Name: "Desktop - Firefox", IsBrowser: true, SourceID: &f.Cucumber.ID, Source: f.Cucumber}
	f.High = &projmodel.Severity{ProjectID: pid, Code: "high", Position: 1, Name: "High"}
	f.Medium = &projmodel.Severity{ProjectID: pid, Code: "medium", Position: 2, Name: "Medium", DefaultOnMissing: true}
	f.Cycle = &projmodel.CycleDefinition{ProjectID: pid, Branch: "develop", Name: "day", BranchPosition: 1}
	f.Team = &projmodel.Team{ProjectID: pid, Name: "Checkout", AssignableToProblems: true}
	f.RootCause = &projmodel.RootCause{ProjectID: pid, Name: "Regression"}
	for _, v := range []interface{}{f.API, f.Firefox, f.High, f.Medium, f.Cycle, f.Team, f.RootCause} {
		require.NoError(t, db.Create(v).Error)
	}
	f.Severities = []*projmodel.Severity{f.High, f.Medium}
	return f
}

// ErrorSpec 用于快速构造只含一个错误的场景
type ErrorSpec struct {
	FeatureFile string
	Scenario    string
	Line        int
	Step        string
	StepLine    int
	Exception   string
}

// Scenario 构造带错误的场景，Exception 为空时场景成功
func Scenario(spec ErrorSpec) *execmodel.ExecutedScenario {
	s := &execmodel.ExecutedScenario{
		FeatureFile: spec.FeatureFile,
		FeatureName: spec.FeatureFile,
		Name:        spec.Scenario,
		Line:        spec.Line,
		Severity:    "high",
	}
	if spec.Exception != "" {
		s.Errors = []*execmodel.Error{{
			Step:           spec.Step,
			StepLine:       spec.StepLine,
			StepDefinition: spec.Step,
			Exception:      spec.Exception,
		}}
	}
	return s
}

// SaveExecution 保存一次 DONE 执行，包含一个 fr/firefox 运行
func SaveExecution(t testing.TB, db *gorm.DB, f *Fixture, jobLink string, testDateTime time.Time, scenarios ...*execmodel.ExecutedScenario) *execmodel.Execution {
	t.Helper()
	execution := &execmodel.Execution{
		ProjectID:         f.Project.ID,
		CycleDefinitionID: f.Cycle.ID,
		Branch:            f.Cycle.Branch,
		Name:              f.Cycle.Name,
		Release:           "v2",
		TestDateTime:      testDateTime,
		JobLink:           jobLink,
		Status:            execmodel.JobStatusDone,
		Acceptance:        execmodel.AcceptanceNew,
		QualityStatus:     execmodel.QualityIncomplete,
		Runs: []*execmodel.Run{{
			CountryID:         f.France.ID,
			TypeID:            f.Firefox.ID,
			Platform:          "integ",
			Status:            execmodel.JobStatusDone,
			ExecutedScenarios: scenarios,
		}},
	}
	require.NoError(t, database.RunInTransaction(t.Context(), db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		return saveGraph(tx, execution)
	}))
	return execution
}

func saveGraph(tx *gorm.DB, execution *execmodel.Execution) error {
	if err := tx.Create(execution).Error; err != nil {
		return err
	}
	for _, run := range execution.Runs {
		run.ExecutionID = execution.ID
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		for _, s := range run.ExecutedScenarios {
			s.RunID = run.ID
			if err := tx.Create(s).Error; err != nil {
				return err
			}
			for _, e := range s.Errors {
				e.ExecutedScenarioID = s.ID
				if err := tx.Create(e).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}
