package problem

import (
	"context"
	"errors"
	"time"

	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const inChunkSize = 500

// ProblemRepository 问题、问题模式与出现记录仓库
type ProblemRepository struct {
	db *gorm.DB
}

// NewProblemRepository 创建 ProblemRepository 实例
func NewProblemRepository(db *gorm.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ProblemRepository) WithTx(tx *gorm.DB) *ProblemRepository {
	return &ProblemRepository{db: tx}
}

// -----------------------------------------------------------------------------
// Problem (问题)
// -----------------------------------------------------------------------------

// CreateProblem 创建问题
func (r *ProblemRepository) CreateProblem(ctx context.Context, problem *probmodel.Problem) error {
	if err := r.db.WithContext(ctx).Create(problem).Error; err != nil {
		logger.LogError(err, "", "", "", "create_problem", "REPO", map[string]interface{}{
			"operation":  "create_problem",
			"project_id": problem.ProjectID,
			"name":       problem.Name,
		})
		return err
	}
	return nil
}

// SaveProblem 更新问题
func (r *ProblemRepository) SaveProblem(ctx context.Context, problem *probmodel.Problem) error {
	if problem == nil || problem.ID == 0 {
		return errors.New("invalid problem or id")
	}
	if err := r.db.WithContext(ctx).Save(problem).Error; err != nil {
		logger.LogError(err, "", "", "", "save_problem", "REPO", map[string]interface{}{
			"operation":  "save_problem",
			"problem_id": problem.ID,
		})
		return err
	}
	return nil
}

// GetProblem 获取项目下的问题(含模式)，不存在返回 nil
func (r *ProblemRepository) GetProblem(ctx context.Context, projectID, id uint64) (*probmodel.Problem, error) {
	var problem probmodel.Problem
	err := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).First(&problem).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	patterns, err := r.ListPatternsByProblem(ctx, problem.ID)
	if err != nil {
		return nil, err
	}
	problem.Patterns = patterns
	return &problem, nil
}

// ListProblems 获取项目下的问题(不含模式)
func (r *ProblemRepository) ListProblems(ctx context.Context, projectID uint64) ([]*probmodel.Problem, error) {
	var problems []*probmodel.Problem
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("id").Find(&problems).Error
	return problems, err
}

// ListProblemsByIDs 按ID获取问题
func (r *ProblemRepository) ListProblemsByIDs(ctx context.Context, ids []uint64) ([]*probmodel.Problem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var problems []*probmodel.Problem
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&problems).Error
	return problems, err
}

// ListProblemsWithDefect 获取填写了缺陷ID的问题
func (r *ProblemRepository) ListProblemsWithDefect(ctx context.Context, projectID uint64) ([]*probmodel.Problem, error) {
	var problems []*probmodel.Problem
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND defect_id <> ''", projectID).
		Order("id").Find(&problems).Error
	return problems, err
}

// DeleteProblem 删除问题及其模式和出现记录
func (r *ProblemRepository) DeleteProblem(ctx context.Context, id uint64) error {
	db := r.db.WithContext(ctx)
	patternIDs := db.Model(&probmodel.ProblemPattern{}).Select("id").Where("problem_id = ?", id)
	if err := db.Where("problem_pattern_id IN (?)", patternIDs).Delete(&probmodel.ProblemOccurrence{}).Error; err != nil {
		return err
	}
	if err := db.Where("problem_id = ?", id).Delete(&probmodel.ProblemPattern{}).Error; err != nil {
		return err
	}
	return db.Delete(&probmodel.Problem{}, id).Error
}

// UpdateSeenDateTimes 写入反范式的首次/最近出现时间，nil 会清空
func (r *ProblemRepository) UpdateSeenDateTimes(ctx context.Context, problemID uint64, firstSeen, lastSeen *time.Time) error {
	return r.db.WithContext(ctx).Model(&probmodel.Problem{}).
		Where("id = ?", problemID).
		Updates(map[string]interface{}{
			"first_seen_date_time": firstSeen,
			"last_seen_date_time":  lastSeen,
		}).Error
}

// FindFirstAndLastSeen 通过 问题->模式->出现->错误->场景->运行->执行 计算最早和最近测试时间
// 没有任何证据时返回两个 nil
func (r *ProblemRepository) FindFirstAndLastSeen(ctx context.Context, problemID uint64) (*time.Time, *time.Time, error) {
	query := func(order string) (*time.Time, error) {
		var rows []struct {
			TestDateTime time.Time
		}
		err := r.db.WithContext(ctx).Table("executions").
			Select("executions.test_date_time").
			Joins("JOIN runs ON runs.execution_id = executions.id").
			Joins("JOIN executed_scenarios ON executed_scenarios.run_id = runs.id").
			Joins("JOIN errors ON errors.executed_scenario_id = executed_scenarios.id").
			Joins("JOIN problem_occurrences ON problem_occurrences.error_id = errors.id").
			Joins("JOIN problem_patterns ON problem_patterns.id = problem_occurrences.problem_pattern_id").
			Where("problem_patterns.problem_id = ?", problemID).
			Order("executions.test_date_time " + order).
			Limit(1).
			Scan(&rows).Error
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		t := rows[0].TestDateTime
		return &t, nil
	}

	first, err := query("ASC")
	if err != nil {
		return nil, nil, err
	}
	if first == nil {
		return nil, nil, nil
	}
	last, err := query("DESC")
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

// -----------------------------------------------------------------------------
// ProblemPattern (问题模式)
// -----------------------------------------------------------------------------

// CreatePattern 创建问题模式
func (r *ProblemRepository) CreatePattern(ctx context.Context, pattern *probmodel.ProblemPattern) error {
	return r.db.WithContext(ctx).Create(pattern).Error
}

// SavePattern 更新问题模式
func (r *ProblemRepository) SavePattern(ctx context.Context, pattern *probmodel.ProblemPattern) error {
	return r.db.WithContext(ctx).Save(pattern).Error
}

// GetPattern 获取项目下的问题模式，不存在返回 nil
func (r *ProblemRepository) GetPattern(ctx context.Context, projectID, id uint64) (*probmodel.ProblemPattern, error) {
	var pattern probmodel.ProblemPattern
	err := r.db.WithContext(ctx).
		Joins("JOIN problems ON problems.id = problem_patterns.problem_id").
		Where("problems.project_id = ? AND problem_patterns.id = ?", projectID, id).
		First(&pattern).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pattern, nil
}

// ListPatternsByProblem 获取问题的全部模式
func (r *ProblemRepository) ListPatternsByProblem(ctx context.Context, problemID uint64) ([]*probmodel.ProblemPattern, error) {
	var patterns []*probmodel.ProblemPattern
	err := r.db.WithContext(ctx).Where("problem_id = ?", problemID).Order("id").Find(&patterns).Error
	return patterns, err
}

// ListPatternsByProject 获取项目下全部问题模式
func (r *ProblemRepository) ListPatternsByProject(ctx context.Context, projectID uint64) ([]*probmodel.ProblemPattern, error) {
	var patterns []*probmodel.ProblemPattern
	err := r.db.WithContext(ctx).
		Joins("JOIN problems ON problems.id = problem_patterns.problem_id").
		Where("problems.project_id = ?", projectID).
		Order("problem_patterns.id").
		Find(&patterns).Error
	if err != nil {
		logger.LogError(err, "", "", "", "list_patterns_by_project", "REPO", map[string]interface{}{
			"operation":  "list_patterns_by_project",
			"project_id": projectID,
		})
		return nil, err
	}
	return patterns, nil
}

// CountPatterns 问题的模式数量
func (r *ProblemRepository) CountPatterns(ctx context.Context, problemID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&probmodel.ProblemPattern{}).Where("problem_id = ?", problemID).Count(&count).Error
	return count, err
}

// DeletePattern 删除问题模式及其出现记录
func (r *ProblemRepository) DeletePattern(ctx context.Context, id uint64) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("problem_pattern_id = ?", id).Delete(&probmodel.ProblemOccurrence{}).Error; err != nil {
		return err
	}
	return db.Delete(&probmodel.ProblemPattern{}, id).Error
}

// -----------------------------------------------------------------------------
// ProblemOccurrence (出现记录)
// -----------------------------------------------------------------------------

// ListOccurrencesByErrorIDs 获取错误的出现记录
func (r *ProblemRepository) ListOccurrencesByErrorIDs(ctx context.Context, errorIDs []uint64) ([]probmodel.ProblemOccurrence, error) {
	var occurrences []probmodel.ProblemOccurrence
	for start := 0; start < len(errorIDs); start += inChunkSize {
		end := start + inChunkSize
		if end > len(errorIDs) {
			end = len(errorIDs)
		}
		var part []probmodel.ProblemOccurrence
		if err := r.db.WithContext(ctx).Where("error_id IN ?", errorIDs[start:end]).Find(&part).Error; err != nil {
			return nil, err
		}
		occurrences = append(occurrences, part...)
	}
	return occurrences, nil
}

// AddOccurrences 幂等插入出现记录，返回真正新增的记录
func (r *ProblemRepository) AddOccurrences(ctx context.Context, occurrences []probmodel.ProblemOccurrence) ([]probmodel.ProblemOccurrence, error) {
	if len(occurrences) == 0 {
		return nil, nil
	}

	errorIDs := make([]uint64, 0, len(occurrences))
	seenError := make(map[uint64]struct{})
	for _, o := range occurrences {
		if _, ok := seenError[o.ErrorID]; !ok {
			seenError[o.ErrorID] = struct{}{}
			errorIDs = append(errorIDs, o.ErrorID)
		}
	}
	existing, err := r.ListOccurrencesByErrorIDs(ctx, errorIDs)
	if err != nil {
		return nil, err
	}
	present := make(map[probmodel.ProblemOccurrence]struct{}, len(existing))
	for _, o := range existing {
		present[o] = struct{}{}
	}

	var added []probmodel.ProblemOccurrence
	for _, o := range occurrences {
		if _, ok := present[o]; ok {
			continue
		}
		present[o] = struct{}{}
		added = append(added, o)
	}
	if len(added) == 0 {
		return nil, nil
	}

	// 并发索引时其他事务可能已插入同一记录
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(added, 200).Error
	if err != nil {
		logger.LogError(err, "", "", "", "add_occurrences", "REPO", map[string]interface{}{
			"operation": "add_occurrences",
			"count":     len(added),
		})
		return nil, err
	}
	return added, nil
}

// DeleteOccurrencesOfPattern 删除模式的全部出现记录
func (r *ProblemRepository) DeleteOccurrencesOfPattern(ctx context.Context, patternID uint64) error {
	return r.db.WithContext(ctx).Where("problem_pattern_id = ?", patternID).Delete(&probmodel.ProblemOccurrence{}).Error
}

// MovePattern 把模式转移到另一个问题
func (r *ProblemRepository) MovePattern(ctx context.Context, patternID, problemID uint64) error {
	return r.db.WithContext(ctx).Model(&probmodel.ProblemPattern{}).
		Where("id = ?", patternID).
		Update("problem_id", problemID).Error
}
