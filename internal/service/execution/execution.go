// Package execution 执行的只读查询，返回前计算场景的处理状态
package execution

import (
	"context"
	"fmt"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/model/system"
	execrepo "aramaster/internal/repo/mysql/execution"
	"aramaster/internal/service/problem"

	"gorm.io/gorm"
)

const maxPageSize = 100

// ExecutionService 执行查询服务
type ExecutionService struct {
	executionRepo  *execrepo.ExecutionRepository
	problemService *problem.ProblemService
}

// NewExecutionService 创建 ExecutionService 实例
func NewExecutionService(db *gorm.DB, problemService *problem.ProblemService) *ExecutionService {
	return &ExecutionService{
		executionRepo:  execrepo.NewExecutionRepository(db),
		problemService: problemService,
	}
}

// ListExecutions 分页列出执行，不加载子对象
func (s *ExecutionService) ListExecutions(ctx context.Context, projectID uint64, page, pageSize int) ([]*execmodel.Execution, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 20
	}
	return s.executionRepo.ListExecutions(ctx, projectID, page, pageSize)
}

// GetExecution 获取完整执行聚合，场景带处理状态
func (s *ExecutionService) GetExecution(ctx context.Context, projectID, id uint64) (*execmodel.Execution, error) {
	execution, err := s.executionRepo.GetExecution(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if execution == nil {
		return nil, fmt.Errorf("%w: %d", system.ErrExecutionNotFound, id)
	}
	if err := s.executionRepo.LoadAggregates(ctx, []*execmodel.Execution{execution}); err != nil {
		return nil, fmt.Errorf("load execution %d: %w", id, err)
	}

	var scenarios []*execmodel.ExecutedScenario
	for _, run := range execution.Runs {
		scenarios = append(scenarios, run.ExecutedScenarios...)
	}
	if err := s.problemService.ApplyHandling(ctx, projectID, scenarios); err != nil {
		return nil, fmt.Errorf("apply handling of execution %d: %w", id, err)
	}
	return execution, nil
}
