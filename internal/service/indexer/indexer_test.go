package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/database/dbtest"
	"aramaster/internal/pkg/report_adapter/registry"
	execrepo "aramaster/internal/repo/mysql/execution"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/project"
	"aramaster/internal/service/quality"
	"aramaster/internal/service/setting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2025-10-01T08:00:00Z
const jobTimestamp = int64(1759305600000)

const cartReport = `[{
  "uri": "features/cart.feature",
  "name": "Cart",
  "elements": [
    {"keyword": "Scenario", "id": "cart;add", "name": "Add to cart", "line": 5,
     "tags": [{"name": "@severity-high"}],
     "steps": [
       {"keyword": "When ", "name": "I add 2 \"shoes\" to the cart", "line": 6,
        "match": {"arguments": [{"val": "2", "offset": 6}, {"val": "shoes", "offset": 9}]},
        "result": {"status": "failed", "duration": 20, "error_message": "java.lang.AssertionError: Cannot add to cart"}}
     ]},
    {"keyword": "Scenario", "id": "cart;remove", "name": "Remove from cart", "line": 10,
     "tags": [{"name": "@severity-medium"}],
     "steps": [
       {"keyword": "When ", "name": "I remove the product", "line": 11, "result": {"status": "passed", "duration": 10}}
     ]}%s
  ]
}]`

const pricesScenario = `,
    {"keyword": "Scenario", "id": "cart;prices", "name": "Show prices", "line": 15,
     "tags": [{"name": "@severity-medium"}],
     "steps": [
       {"keyword": "Then ", "name": "the price is 12", "line": 16,
        "result": {"status": "failed", "duration": 20, "error_message": "expected 12 but was 13"}}
     ]}`

const cartStepDefinitions = `["^I add (\\d+) \"([^\"]*)\" to the cart$", "^I remove the product$"]`

type recordingPublisher struct {
	mu            sync.Mutex
	notifications []*execmodel.QualityNotification
}

func (p *recordingPublisher) Publish(ctx context.Context, n *execmodel.QualityNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
	return nil
}

type indexerEnv struct {
	db        *gorm.DB
	fixture   *dbtest.Fixture
	base      string
	cycle     *projmodel.CycleDefinition
	settings  *setting.SettingService
	problems  *problem.ProblemService
	indexer   *IndexerService
	planner   *Planner
	published *recordingPublisher
}

func newIndexerEnv(t *testing.T) *indexerEnv {
	db := dbtest.NewDB(t)
	f := dbtest.Seed(t, db)
	cycle := &projmodel.CycleDefinition{ProjectID: f.Project.ID, Branch: "main", Name: "nightly", BranchPosition: 2}
	require.NoError(t, db.Create(cycle).Error)

	projects := project.NewProjectService(projrepo.NewProjectRepository(db))
	settings := setting.NewSettingService(projrepo.NewProjectRepository(db))
	require.NoError(t, settings.Update(context.Background(), f.Project.ID, setting.DeleteAfterIndexingAsDone, "false"))
	problems := problem.NewProblemService(db, settings, time.Second)
	published := &recordingPublisher{}
	base := t.TempDir()

	assembler := NewAssembler(projects, settings, registry.NewIndexerRegistry(), 2)
	return &indexerEnv{
		db:        db,
		fixture:   f,
		base:      base,
		cycle:     cycle,
		settings:  settings,
		problems:  problems,
		indexer:   NewIndexerService(db, assembler, problems, quality.NewQualityService(published, true), settings, base),
		planner:   NewPlanner(projects, settings, execrepo.NewExecutionRepository(db), base),
		published: published,
	}
}

func writeJSON(t *testing.T, path string, value interface{}) {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	writeText(t, path, string(data))
}

func writeText(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type jobSpec struct {
	building       bool
	extraScenario  bool
	noCycle        bool
	noCountry      bool
	corruptPostman bool
	unknownType    bool
}

// writeJob 写入 <base>/the-demo-project/main/nightly/<name>，fr 下包含 firefox(Cucumber) 和 api(Postman)
func (env *indexerEnv) writeJob(t *testing.T, name string, spec jobSpec) string {
	folder := filepath.Join(env.base, "the-demo-project", "main", "nightly", name)
	build := map[string]interface{}{
		"url":       "https://ci.example.org/job/nightly/" + name + "/",
		"result":    "SUCCESS",
		"building":  spec.building,
		"duration":  60000,
		"timestamp": jobTimestamp,
		"release":   "v2",
		"version":   "2.1.0",
	}
	if spec.building {
		delete(build, "result")
	}
	writeJSON(t, filepath.Join(folder, "buildInformation.json"), build)

	testTypes := "firefox,api"
	if spec.unknownType {
		testTypes += ",unknown"
	}
	if !spec.noCycle {
		writeJSON(t, filepath.Join(folder, "cycleDefinition.json"), map[string]interface{}{
			"blockingValidation": true,
			"qualityThresholds": map[string]interface{}{
				"high":   map[string]int{"failure": 90, "warning": 95},
				"medium": map[string]int{"failure": 80, "warning": 90},
			},
			"platformsRules": map[string]interface{}{
				"integ": []map[string]interface{}{{
					"country":            "FR",
					"testTypes":          testTypes,
					"enabled":            true,
					"severityTags":       "all",
					"blockingValidation": true,
				}},
			},
		})
	}
	if spec.noCountry {
		return folder
	}

	typeBuild := map[string]interface{}{"url": "https://ci.example.org/job/fr/", "result": "SUCCESS", "timestamp": jobTimestamp}
	writeJSON(t, filepath.Join(folder, "fr", "buildInformation.json"), typeBuild)
	writeJSON(t, filepath.Join(folder, "fr", "FireFox", "buildInformation.json"), typeBuild)
	extra := ""
	if spec.extraScenario {
		extra = pricesScenario
	}
	writeText(t, filepath.Join(folder, "fr", "FireFox", "report.json"), fmt.Sprintf(cartReport, extra))
	writeText(t, filepath.Join(folder, "fr", "FireFox", "stepDefinitions.json"), cartStepDefinitions)

	writeJSON(t, filepath.Join(folder, "fr", "api", "buildInformation.json"), typeBuild)
	if spec.corruptPostman {
		writeText(t, filepath.Join(folder, "fr", "api", "reports", "collection.json"), "{not json")
		writeText(t, filepath.Join(folder, "fr", "api", "reports", "result.txt"), "done")
	}
	return folder
}

func (env *indexerEnv) planned(folder string) *execmodel.PlannedIndexation {
	return &execmodel.PlannedIndexation{
		ProjectID:       env.fixture.Project.ID,
		ProjectCode:     env.fixture.Project.Code,
		CycleDefinition: env.cycle,
		RawFolder:       folder,
	}
}

func (env *indexerEnv) load(t *testing.T, id uint64) *execmodel.Execution {
	repo := execrepo.NewExecutionRepository(env.db)
	execution, err := repo.GetExecution(context.Background(), env.fixture.Project.ID, id)
	require.NoError(t, err)
	require.NotNil(t, execution)
	require.NoError(t, repo.LoadAggregates(context.Background(), []*execmodel.Execution{execution}))
	return execution
}

func (env *indexerEnv) count(t *testing.T, model interface{}) int64 {
	var n int64
	require.NoError(t, env.db.Model(model).Count(&n).Error)
	return n
}

func scenariosOf(execution *execmodel.Execution) []*execmodel.ExecutedScenario {
	var scenarios []*execmodel.ExecutedScenario
	for _, run := range execution.Runs {
		scenarios = append(scenarios, run.ExecutedScenarios...)
	}
	return scenarios
}

func TestIndexExecution_CannotAddToCart(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	require.NoError(t, env.settings.Update(ctx, env.fixture.Project.ID, setting.DeleteAfterIndexingAsDone, "true"))

	cannotAdd, err := env.problems.CreateProblem(ctx, env.fixture.Project.ID, &problem.CreateProblemRequest{
		Name:     "Cannot add to cart",
		Patterns: []*probmodel.ProblemPattern{{StepDefinition: `^I add (\d+) "([^"]*)" to the cart$`}},
	})
	require.NoError(t, err)
	assert.Nil(t, cannotAdd.LastSeenDateTime)

	folder := env.writeJob(t, "42", jobSpec{})
	indexed, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	require.NotNil(t, indexed)

	execution := env.load(t, indexed.ID)
	assert.Equal(t, "main", execution.Branch)
	assert.Equal(t, "nightly", execution.Name)
	assert.Equal(t, execmodel.JobStatusDone, execution.Status)
	assert.Equal(t, "v2", execution.Release)
	assert.True(t, time.UnixMilli(jobTimestamp).Equal(execution.TestDateTime))
	require.Len(t, execution.Runs, 2)
	require.Len(t, execution.CountryDeployments, 1)
	assert.Equal(t, execmodel.JobStatusDone, execution.CountryDeployments[0].Status)

	stored, err := env.problems.GetProblem(ctx, env.fixture.Project.ID, cannotAdd.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastSeenDateTime)
	assert.True(t, execution.TestDateTime.Equal(*stored.LastSeenDateTime))

	scenarios := scenariosOf(execution)
	require.Len(t, scenarios, 2)
	require.NoError(t, env.problems.ApplyHandling(ctx, env.fixture.Project.ID, scenarios))
	handling := map[string]execmodel.Handling{}
	for _, s := range scenarios {
		handling[s.Name] = s.Handling
	}
	assert.Equal(t, execmodel.HandlingHandled, handling["Add to cart"])
	assert.Equal(t, execmodel.HandlingSuccess, handling["Remove from cart"])

	// 提交后钩子: 质量通知与删除原始目录
	require.Len(t, env.published.notifications, 1)
	assert.Equal(t, execution.ID, env.published.notifications[0].ExecutionID)
	assert.Equal(t, "nightly", env.published.notifications[0].Cycle)
	_, statErr := os.Stat(folder)
	assert.True(t, os.IsNotExist(statErr))
}

func TestIndexExecution_ReindexIsIdempotent(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	_, err := env.problems.CreateProblem(ctx, env.fixture.Project.ID, &problem.CreateProblemRequest{
		Name:     "Cart assertions",
		Patterns: []*probmodel.ProblemPattern{{Exception: "java.lang.AssertionError"}},
	})
	require.NoError(t, err)

	folder := env.writeJob(t, "43", jobSpec{building: true})
	first, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, execmodel.JobStatusRunning, first.Status)

	second, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), env.count(t, &execmodel.Execution{}))
	assert.Equal(t, int64(1), env.count(t, &execmodel.Error{}))
	assert.Equal(t, int64(1), env.count(t, &probmodel.ProblemOccurrence{}))
	assert.Empty(t, env.published.notifications, "running executions are not notified")
}

func TestIndexExecution_OnlyNewErrorsAreMatched(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	folder := env.writeJob(t, "44", jobSpec{building: true})
	first, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)

	// 问题在第一次索引后创建并关联到已有错误，随后删除该关联: 重索引时沿用旧关联，不会重新匹配
	cart, err := env.problems.CreateProblem(ctx, env.fixture.Project.ID, &problem.CreateProblemRequest{
		Name:     "Everything",
		Patterns: []*probmodel.ProblemPattern{{FeatureFile: "features/cart.feature"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), env.count(t, &probmodel.ProblemOccurrence{}))
	require.NoError(t, env.db.Where("1 = 1").Delete(&probmodel.ProblemOccurrence{}).Error)

	env.writeJob(t, "44", jobSpec{building: true, extraScenario: true})
	second, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	execution := env.load(t, second.ID)
	var occurrences []probmodel.ProblemOccurrence
	require.NoError(t, env.db.Find(&occurrences).Error)
	require.Len(t, occurrences, 1, "only the new error is matched")
	assert.Equal(t, cart.Patterns[0].ID, occurrences[0].ProblemPatternID)

	var pricesErrorID uint64
	for _, s := range scenariosOf(execution) {
		if s.Name == "Show prices" {
			pricesErrorID = s.Errors[0].ID
		}
	}
	assert.Equal(t, pricesErrorID, occurrences[0].ErrorID)
}

func TestIndexExecution_DoneIsNotReindexed(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()
	folder := env.writeJob(t, "45", jobSpec{})

	first, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := env.indexer.IndexExecution(ctx, env.planned(folder))
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, int64(1), env.count(t, &execmodel.Execution{}))

	pending, err := env.planner.PlanPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIndexExecution_PartialFailure(t *testing.T) {
	env := newIndexerEnv(t)
	folder := env.writeJob(t, "46", jobSpec{corruptPostman: true})

	indexed, err := env.indexer.IndexExecution(context.Background(), env.planned(folder))
	require.NoError(t, err)
	require.NotNil(t, indexed)

	execution := env.load(t, indexed.ID)
	byType := map[uint64]*execmodel.Run{}
	for _, run := range execution.Runs {
		byType[run.TypeID] = run
	}
	assert.Len(t, byType[env.fixture.Firefox.ID].ExecutedScenarios, 2)
	assert.Empty(t, byType[env.fixture.API.ID].ExecutedScenarios)
	// api 运行没有场景，质量不完整
	assert.Equal(t, execmodel.QualityIncomplete, execution.QualityStatus)
}

func TestIndexExecution_InvalidOrTooSoon(t *testing.T) {
	env := newIndexerEnv(t)
	ctx := context.Background()

	for _, indexation := range []*execmodel.PlannedIndexation{
		nil,
		{ProjectID: env.fixture.Project.ID, CycleDefinition: env.cycle},
		{ProjectID: env.fixture.Project.ID, RawFolder: env.base},
	} {
		execution, err := env.indexer.IndexExecution(ctx, indexation)
		assert.NoError(t, err)
		assert.Nil(t, execution)
	}

	running := env.writeJob(t, "47", jobSpec{building: true, noCycle: true})
	execution, err := env.indexer.IndexExecution(ctx, env.planned(running))
	require.NoError(t, err)
	assert.Nil(t, execution, "running job without cycle definition is indexed later")
	assert.Equal(t, int64(0), env.count(t, &execmodel.Execution{}))

	done := env.writeJob(t, "48", jobSpec{noCycle: true})
	execution, err = env.indexer.IndexExecution(ctx, env.planned(done))
	require.NoError(t, err)
	require.NotNil(t, execution)
	assert.False(t, execution.BlockingValidation)
	assert.Empty(t, execution.Runs)
}

func TestAssemble_MissingCountryFolder(t *testing.T) {
	env := newIndexerEnv(t)
	folder := env.writeJob(t, "49", jobSpec{noCountry: true, unknownType: true})
	link, err := CanonicalLink(folder)
	require.NoError(t, err)

	execution, err := env.indexer.assembler.Assemble(context.Background(), env.planned(folder), link)
	require.NoError(t, err)
	require.NotNil(t, execution)

	require.Len(t, execution.CountryDeployments, 1)
	assert.Equal(t, execmodel.JobStatusUnavailable, execution.CountryDeployments[0].Status)
	require.Len(t, execution.Runs, 2, "unknown type is skipped")
	for _, run := range execution.Runs {
		assert.Equal(t, execmodel.JobStatusUnavailable, run.Status)
		assert.True(t, run.IncludeInThresholds)
	}
	assert.Equal(t, execmodel.QualityIncomplete, execution.QualityStatus)
	assert.JSONEq(t, `{"high":{"failure":90,"warning":95},"medium":{"failure":80,"warning":90}}`, execution.QualityThresholds)
}

func TestDiffErrors(t *testing.T) {
	e := func(id uint64, scenario string, line int) *execmodel.ErrorContext {
		return &execmodel.ErrorContext{ErrorID: id, FeatureFile: "a.feature", ScenarioName: scenario, StepLine: line, Exception: "boom"}
	}
	previous := []*execmodel.ErrorContext{e(1, "s1", 3), e(2, "s2", 4)}
	persisted := []*execmodel.ErrorContext{e(11, "s1", 3), e(12, "s2", 4), e(13, "s3", 5)}

	kept, fresh := diffErrors(previous, persisted)

	assert.Equal(t, map[uint64]uint64{1: 11, 2: 12}, kept)
	assert.Equal(t, []uint64{13}, fresh)

	carried := carryOccurrences([]probmodel.ProblemOccurrence{{ErrorID: 1, ProblemPatternID: 7}, {ErrorID: 9, ProblemPatternID: 7}}, kept)
	assert.Equal(t, []probmodel.ProblemOccurrence{{ErrorID: 11, ProblemPatternID: 7}}, carried)
}

func TestBuildStatus(t *testing.T) {
	tests := []struct {
		name  string
		build *Build
		want  execmodel.JobStatus
	}{
		{"no build", nil, execmodel.JobStatusPending},
		{"no url", &Build{Result: execmodel.ResultSuccess}, execmodel.JobStatusPending},
		{"building", &Build{URL: "u", Building: true, Result: execmodel.ResultSuccess}, execmodel.JobStatusRunning},
		{"no result", &Build{URL: "u"}, execmodel.JobStatusRunning},
		{"unstable", &Build{URL: "u", Result: execmodel.ResultUnstable}, execmodel.JobStatusDone},
		{"not built", &Build{URL: "u", Result: execmodel.ResultNotBuilt}, execmodel.JobStatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.build.Status())
		})
	}

	assert.Equal(t, execmodel.JobStatusUnavailable, childStatus(execmodel.JobStatusDone, &Build{}))
	assert.Equal(t, execmodel.JobStatusDone, childStatus(execmodel.JobStatusDone, &Build{URL: "u", Building: true}))
	assert.Equal(t, execmodel.JobStatusRunning, childStatus(execmodel.JobStatusRunning, &Build{URL: "u", Building: true}))
	assert.Equal(t, execmodel.JobStatusUnavailable, childStatus(execmodel.JobStatusRunning, nil))
}
