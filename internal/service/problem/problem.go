/**
 * 服务层:问题去重与反范式
 * @author: sun977
 * @date: 2025.10.16
 * @description: 新错误自动归入匹配的问题模式，重新计算问题的首次/最近出现时间，计算场景处理状态
 * @func: AutoAssignProblemsToNewErrors, UpdateFirstAndLastSeenDateTimes, ApplyHandling
 */
package problem

import (
	"context"
	"fmt"
	"sort"
	"time"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/pkg/logger"
	execrepo "aramaster/internal/repo/mysql/execution"
	probrepo "aramaster/internal/repo/mysql/problem"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/setting"

	"gorm.io/gorm"
)

// errorBatchSize 为新模式回溯项目全部错误时的每批数量
const errorBatchSize = 1000

// ProblemService 问题服务
// 所有方法只读写传入的问题集合，不做跨调用缓存；WithTx 返回绑定到事务的副本
type ProblemService struct {
	db             *gorm.DB
	problemRepo    *probrepo.ProblemRepository
	executionRepo  *execrepo.ExecutionRepository
	projectRepo    *projrepo.ProjectRepository
	settingService *setting.SettingService
	defectTimeout  time.Duration
	now            func() time.Time
}

// NewProblemService 创建 ProblemService 实例
func NewProblemService(db *gorm.DB, settingService *setting.SettingService, defectTimeout time.Duration) *ProblemService {
	return &ProblemService{
		db:             db,
		problemRepo:    probrepo.NewProblemRepository(db),
		executionRepo:  execrepo.NewExecutionRepository(db),
		projectRepo:    projrepo.NewProjectRepository(db),
		settingService: settingService,
		defectTimeout:  defectTimeout,
		now:            time.Now,
	}
}

// WithTx 返回绑定到事务的服务副本
func (s *ProblemService) WithTx(tx *gorm.DB) *ProblemService {
	clone := *s
	clone.db = tx
	clone.problemRepo = s.problemRepo.WithTx(tx)
	clone.executionRepo = s.executionRepo.WithTx(tx)
	clone.projectRepo = s.projectRepo.WithTx(tx)
	return &clone
}

// AutoAssignProblemsToNewErrors 把新错误关联到项目中所有匹配的问题模式
// 返回至少新增了一条关联的问题(去重)；关联已存在时不重复插入
func (s *ProblemService) AutoAssignProblemsToNewErrors(ctx context.Context, projectID uint64, newErrorIDs []uint64) ([]*probmodel.Problem, error) {
	if len(newErrorIDs) == 0 {
		return nil, nil
	}

	patterns, err := s.problemRepo.ListPatternsByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load problem patterns: %w", err)
	}
	compiled := compilePatterns(patterns)
	if len(compiled) == 0 {
		return nil, nil
	}

	contexts, err := s.executionRepo.ListErrorContexts(ctx, newErrorIDs)
	if err != nil {
		return nil, fmt.Errorf("load error contexts: %w", err)
	}

	added, err := s.problemRepo.AddOccurrences(ctx, matchOccurrences(compiled, contexts))
	if err != nil {
		return nil, err
	}

	problemOfPattern := make(map[uint64]uint64, len(patterns))
	for _, p := range patterns {
		problemOfPattern[p.ID] = p.ProblemID
	}
	var patternIDs []uint64
	for _, o := range added {
		patternIDs = append(patternIDs, o.ProblemPatternID)
	}
	problems, err := s.problemRepo.ListProblemsByIDs(ctx, mapDistinct(patternIDs, problemOfPattern))
	if err != nil {
		return nil, err
	}

	if len(problems) > 0 {
		logger.LogBusinessOperation("auto_assign_problems", "indexer", "", "", "success",
			"new errors assigned to existing problems", map[string]interface{}{
				"project_id":  projectID,
				"new_errors":  len(newErrorIDs),
				"occurrences": len(added),
				"problems":    len(problems),
			})
	}
	return problems, nil
}

// ProblemsOfOccurrences 出现记录所属的问题
func (s *ProblemService) ProblemsOfOccurrences(ctx context.Context, projectID uint64, occurrences []probmodel.ProblemOccurrence) ([]*probmodel.Problem, error) {
	if len(occurrences) == 0 {
		return nil, nil
	}
	patterns, err := s.problemRepo.ListPatternsByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	problemOfPattern := make(map[uint64]uint64, len(patterns))
	for _, p := range patterns {
		problemOfPattern[p.ID] = p.ProblemID
	}
	var patternIDs []uint64
	for _, o := range occurrences {
		patternIDs = append(patternIDs, o.ProblemPatternID)
	}
	return s.problemRepo.ListProblemsByIDs(ctx, mapDistinct(patternIDs, problemOfPattern))
}

// UpdateFirstAndLastSeenDateTimes 根据证据图重新计算问题的首次/最近出现时间
// 没有任何证据的问题两个时间都被清空；重复调用结果不变
func (s *ProblemService) UpdateFirstAndLastSeenDateTimes(ctx context.Context, problems []*probmodel.Problem) error {
	for _, problem := range problems {
		if problem == nil {
			continue
		}
		first, last, err := s.problemRepo.FindFirstAndLastSeen(ctx, problem.ID)
		if err != nil {
			return fmt.Errorf("compute first and last seen of problem %d: %w", problem.ID, err)
		}
		if err := s.problemRepo.UpdateSeenDateTimes(ctx, problem.ID, first, last); err != nil {
			logger.LogError(err, "", "", "", "update_seen_date_times", "SERVICE", map[string]interface{}{
				"operation":  "update_seen_date_times",
				"problem_id": problem.ID,
			})
			return err
		}
		problem.FirstSeenDateTime = first
		problem.LastSeenDateTime = last
	}
	return nil
}

// ApplyHandling 计算场景的处理状态
// 无错误 SUCCESS；所有错误都是某个未复现问题的证据 HANDLED；任一错误没有匹配则 UNHANDLED
func (s *ProblemService) ApplyHandling(ctx context.Context, projectID uint64, scenarios []*execmodel.ExecutedScenario) error {
	var errorIDs []uint64
	for _, scenario := range scenarios {
		for _, e := range scenario.Errors {
			errorIDs = append(errorIDs, e.ID)
		}
	}

	handledErrors := make(map[uint64]bool)
	if len(errorIDs) > 0 {
		occurrences, err := s.problemRepo.ListOccurrencesByErrorIDs(ctx, errorIDs)
		if err != nil {
			return err
		}
		problems, err := s.ProblemsOfOccurrences(ctx, projectID, occurrences)
		if err != nil {
			return err
		}
		patterns, err := s.problemRepo.ListPatternsByProject(ctx, projectID)
		if err != nil {
			return err
		}

		activeProblem := make(map[uint64]bool, len(problems))
		for _, p := range problems {
			activeProblem[p.ID] = !p.IsReappeared()
		}
		activePattern := make(map[uint64]bool, len(patterns))
		for _, p := range patterns {
			activePattern[p.ID] = activeProblem[p.ProblemID]
		}
		for _, o := range occurrences {
			if activePattern[o.ProblemPatternID] {
				handledErrors[o.ErrorID] = true
			}
		}
	}

	for _, scenario := range scenarios {
		scenario.Handling = handlingOf(scenario, handledErrors)
	}
	return nil
}

func handlingOf(scenario *execmodel.ExecutedScenario, handledErrors map[uint64]bool) execmodel.Handling {
	if len(scenario.Errors) == 0 {
		return execmodel.HandlingSuccess
	}
	for _, e := range scenario.Errors {
		if !handledErrors[e.ID] {
			return execmodel.HandlingUnhandled
		}
	}
	return execmodel.HandlingHandled
}

// mapDistinct 映射并去重，结果升序
func mapDistinct(keys []uint64, mapping map[uint64]uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(keys))
	var result []uint64
	for _, k := range keys {
		v, ok := mapping[k]
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
