package execution

import (
	"context"
	"errors"
	"time"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/pkg/logger"

	"gorm.io/gorm"
)

const (
	// inChunkSize 单条 IN 查询的最大参数数量
	inChunkSize = 500
	// insertBatchSize 批量插入每批条数
	insertBatchSize = 200
)

// ExecutionRepository 执行聚合仓库
// 子对象按 ID 集合分批显式加载，不使用 GORM 关联
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository 创建 ExecutionRepository 实例
func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ExecutionRepository) WithTx(tx *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: tx}
}

func chunk(ids []uint64, fn func(part []uint64) error) error {
	for start := 0; start < len(ids); start += inChunkSize {
		end := start + inChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// 查询
// -----------------------------------------------------------------------------

// FindByJobLink 根据任务链接获取执行(不含子对象)，不存在返回 nil
func (r *ExecutionRepository) FindByJobLink(ctx context.Context, projectID uint64, jobLink string) (*execmodel.Execution, error) {
	var execution execmodel.Execution
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND job_link = ?", projectID, jobLink).
		First(&execution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.LogError(err, "", "", "", "find_execution_by_job_link", "REPO", map[string]interface{}{
			"operation":  "find_execution_by_job_link",
			"project_id": projectID,
			"job_link":   jobLink,
		})
		return nil, err
	}
	return &execution, nil
}

// FindDoneJobLinks 返回给定链接中已经以 DONE 状态索引过的链接
func (r *ExecutionRepository) FindDoneJobLinks(ctx context.Context, projectID uint64, jobLinks []string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	if len(jobLinks) == 0 {
		return done, nil
	}
	var links []string
	err := r.db.WithContext(ctx).Model(&execmodel.Execution{}).
		Where("project_id = ? AND status = ? AND job_link IN ?", projectID, execmodel.JobStatusDone, jobLinks).
		Pluck("job_link", &links).Error
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		done[link] = struct{}{}
	}
	return done, nil
}

// GetExecution 获取项目下的执行(不含子对象)，不存在返回 nil
func (r *ExecutionRepository) GetExecution(ctx context.Context, projectID, id uint64) (*execmodel.Execution, error) {
	var execution execmodel.Execution
	err := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).First(&execution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &execution, nil
}

// ListExecutions 分页获取执行列表，按测试时间倒序
func (r *ExecutionRepository) ListExecutions(ctx context.Context, projectID uint64, page, pageSize int) ([]*execmodel.Execution, int64, error) {
	var executions []*execmodel.Execution
	var total int64

	query := r.db.WithContext(ctx).Model(&execmodel.Execution{}).Where("project_id = ?", projectID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	err := query.Order("test_date_time desc, id desc").Offset(offset).Limit(pageSize).Find(&executions).Error
	if err != nil {
		logger.LogError(err, "", "", "", "list_executions", "REPO", map[string]interface{}{
			"operation":  "list_executions",
			"project_id": projectID,
		})
		return nil, 0, err
	}
	return executions, total, nil
}

// LoadAggregates 显式分批加载执行的运行、国家部署、场景和错误
func (r *ExecutionRepository) LoadAggregates(ctx context.Context, executions []*execmodel.Execution) error {
	if len(executions) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)

	executionByID := make(map[uint64]*execmodel.Execution, len(executions))
	executionIDs := make([]uint64, 0, len(executions))
	for _, e := range executions {
		e.Runs = nil
		e.CountryDeployments = nil
		executionByID[e.ID] = e
		executionIDs = append(executionIDs, e.ID)
	}

	var runs []*execmodel.Run
	var deployments []*execmodel.CountryDeployment
	err := chunk(executionIDs, func(part []uint64) error {
		var partRuns []*execmodel.Run
		if err := db.Where("execution_id IN ?", part).Order("id").Find(&partRuns).Error; err != nil {
			return err
		}
		runs = append(runs, partRuns...)
		var partDeployments []*execmodel.CountryDeployment
		if err := db.Where("execution_id IN ?", part).Order("id").Find(&partDeployments).Error; err != nil {
			return err
		}
		deployments = append(deployments, partDeployments...)
		return nil
	})
	if err != nil {
		return err
	}
	for _, d := range deployments {
		e := executionByID[d.ExecutionID]
		e.CountryDeployments = append(e.CountryDeployments, d)
	}

	runByID := make(map[uint64]*execmodel.Run, len(runs))
	runIDs := make([]uint64, 0, len(runs))
	for _, run := range runs {
		e := executionByID[run.ExecutionID]
		e.Runs = append(e.Runs, run)
		runByID[run.ID] = run
		runIDs = append(runIDs, run.ID)
	}

	var scenarios []*execmodel.ExecutedScenario
	err = chunk(runIDs, func(part []uint64) error {
		var partScenarios []*execmodel.ExecutedScenario
		if err := db.Where("run_id IN ?", part).Order("id").Find(&partScenarios).Error; err != nil {
			return err
		}
		scenarios = append(scenarios, partScenarios...)
		return nil
	})
	if err != nil {
		return err
	}

	scenarioByID := make(map[uint64]*execmodel.ExecutedScenario, len(scenarios))
	scenarioIDs := make([]uint64, 0, len(scenarios))
	for _, s := range scenarios {
		run := runByID[s.RunID]
		run.ExecutedScenarios = append(run.ExecutedScenarios, s)
		scenarioByID[s.ID] = s
		scenarioIDs = append(scenarioIDs, s.ID)
	}

	return chunk(scenarioIDs, func(part []uint64) error {
		var errs []*execmodel.Error
		if err := db.Where("executed_scenario_id IN ?", part).Order("id").Find(&errs).Error; err != nil {
			return err
		}
		for _, e := range errs {
			s := scenarioByID[e.ExecutedScenarioID]
			s.Errors = append(s.Errors, e)
		}
		return nil
	})
}

// ListErrorIDsOfExecution 获取执行下的全部错误ID
func (r *ExecutionRepository) ListErrorIDsOfExecution(ctx context.Context, executionID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Table("errors").
		Joins("JOIN executed_scenarios ON executed_scenarios.id = errors.executed_scenario_id").
		Joins("JOIN runs ON runs.id = executed_scenarios.run_id").
		Where("runs.execution_id = ?", executionID).
		Order("errors.id").
		Pluck("errors.id", &ids).Error
	return ids, err
}

func (r *ExecutionRepository) errorContextQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table("errors").
		Select("errors.id AS error_id, errors.executed_scenario_id, runs.execution_id, " +
			"executed_scenarios.feature_file, executed_scenarios.feature_name, " +
			"executed_scenarios.name AS scenario_name, executed_scenarios.line AS scenario_line, " +
			"errors.step, errors.step_line, errors.step_definition, errors.exception, " +
			"executions.release_code AS `release`, runs.country_id, runs.type_id, " +
			"types.is_browser AS type_is_browser, types.is_mobile AS type_is_mobile, runs.platform").
		Joins("JOIN executed_scenarios ON executed_scenarios.id = errors.executed_scenario_id").
		Joins("JOIN runs ON runs.id = executed_scenarios.run_id").
		Joins("JOIN executions ON executions.id = runs.execution_id").
		Joins("JOIN types ON types.id = runs.type_id")
}

// ListErrorContexts 按错误ID加载匹配上下文
func (r *ExecutionRepository) ListErrorContexts(ctx context.Context, errorIDs []uint64) ([]*execmodel.ErrorContext, error) {
	var contexts []*execmodel.ErrorContext
	err := chunk(errorIDs, func(part []uint64) error {
		var rows []*execmodel.ErrorContext
		if err := r.errorContextQuery(ctx).Where("errors.id IN ?", part).Order("errors.id").Scan(&rows).Error; err != nil {
			return err
		}
		contexts = append(contexts, rows...)
		return nil
	})
	return contexts, err
}

// ListErrorContextsOfExecution 加载某次执行全部错误的上下文
func (r *ExecutionRepository) ListErrorContextsOfExecution(ctx context.Context, executionID uint64) ([]*execmodel.ErrorContext, error) {
	var rows []*execmodel.ErrorContext
	err := r.errorContextQuery(ctx).Where("runs.execution_id = ?", executionID).Order("errors.id").Scan(&rows).Error
	return rows, err
}

// ForEachErrorContextBatch 按错误ID游标遍历项目下全部错误
func (r *ExecutionRepository) ForEachErrorContextBatch(ctx context.Context, projectID uint64, batchSize int, fn func(batch []*execmodel.ErrorContext) error) error {
	var lastID uint64
	for {
		var rows []*execmodel.ErrorContext
		err := r.errorContextQuery(ctx).
			Where("executions.project_id = ? AND errors.id > ?", projectID, lastID).
			Order("errors.id").Limit(batchSize).Scan(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(rows); err != nil {
			return err
		}
		lastID = rows[len(rows)-1].ErrorID
		if len(rows) < batchSize {
			return nil
		}
	}
}

// FindExecutionIDsBefore 获取测试时间严格早于 threshold 的执行ID
func (r *ExecutionRepository) FindExecutionIDsBefore(ctx context.Context, projectID uint64, threshold time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&execmodel.Execution{}).
		Where("project_id = ? AND test_date_time < ?", projectID, threshold).
		Order("id").Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// -----------------------------------------------------------------------------
// 写入
// -----------------------------------------------------------------------------

// SaveGraph 保存执行及其全部子对象，ID 非零时更新执行行
// 调用前需保证旧的子对象已通过 DeleteChildren 删除
func (r *ExecutionRepository) SaveGraph(ctx context.Context, execution *execmodel.Execution) error {
	db := r.db.WithContext(ctx)

	var err error
	if execution.ID == 0 {
		err = db.Create(execution).Error
	} else {
		err = db.Save(execution).Error
	}
	if err != nil {
		logger.LogError(err, "", "", "", "save_execution", "REPO", map[string]interface{}{
			"operation":  "save_execution",
			"project_id": execution.ProjectID,
			"job_link":   execution.JobLink,
		})
		return err
	}

	for _, d := range execution.CountryDeployments {
		d.ID = 0
		d.ExecutionID = execution.ID
	}
	if len(execution.CountryDeployments) > 0 {
		if err := db.CreateInBatches(execution.CountryDeployments, insertBatchSize).Error; err != nil {
			return err
		}
	}

	for _, run := range execution.Runs {
		run.ID = 0
		run.ExecutionID = execution.ID
	}
	if len(execution.Runs) > 0 {
		if err := db.CreateInBatches(execution.Runs, insertBatchSize).Error; err != nil {
			return err
		}
	}

	var scenarios []*execmodel.ExecutedScenario
	for _, run := range execution.Runs {
		for _, s := range run.ExecutedScenarios {
			s.ID = 0
			s.RunID = run.ID
			scenarios = append(scenarios, s)
		}
	}
	if len(scenarios) > 0 {
		if err := db.CreateInBatches(scenarios, insertBatchSize).Error; err != nil {
			return err
		}
	}

	var errs []*execmodel.Error
	for _, s := range scenarios {
		for _, e := range s.Errors {
			e.ID = 0
			e.ExecutedScenarioID = s.ID
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		if err := db.CreateInBatches(errs, insertBatchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

// DeleteChildren 删除执行下的运行、部署、场景、错误及问题出现记录，保留执行行
func (r *ExecutionRepository) DeleteChildren(ctx context.Context, executionIDs []uint64) error {
	if len(executionIDs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)

	runIDs := db.Table("runs").Select("id").Where("execution_id IN ?", executionIDs)
	scenarioIDs := db.Table("executed_scenarios").Select("id").Where("run_id IN (?)", runIDs)
	errorIDs := db.Table("errors").Select("id").Where("executed_scenario_id IN (?)", scenarioIDs)

	steps := []func() error{
		func() error {
			return db.Where("error_id IN (?)", errorIDs).Delete(&probmodel.ProblemOccurrence{}).Error
		},
		func() error {
			return db.Where("executed_scenario_id IN (?)", scenarioIDs).Delete(&execmodel.Error{}).Error
		},
		func() error {
			return db.Where("run_id IN (?)", runIDs).Delete(&execmodel.ExecutedScenario{}).Error
		},
		func() error {
			return db.Where("execution_id IN ?", executionIDs).Delete(&execmodel.Run{}).Error
		},
		func() error {
			return db.Where("execution_id IN ?", executionIDs).Delete(&execmodel.CountryDeployment{}).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			logger.LogError(err, "", "", "", "delete_execution_children", "REPO", map[string]interface{}{
				"operation":     "delete_execution_children",
				"execution_ids": executionIDs,
			})
			return err
		}
	}
	return nil
}

// DeleteExecutions 按ID删除执行及其全部子对象
func (r *ExecutionRepository) DeleteExecutions(ctx context.Context, executionIDs []uint64) error {
	if len(executionIDs) == 0 {
		return nil
	}
	if err := r.DeleteChildren(ctx, executionIDs); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id IN ?", executionIDs).Delete(&execmodel.Execution{}).Error
}
