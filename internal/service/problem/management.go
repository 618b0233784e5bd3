package problem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"aramaster/internal/model/basemodel"
	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/service/defect"

	"gorm.io/gorm"
)

// CreateProblemRequest 创建问题的参数
type CreateProblemRequest struct {
	Name         string                      `json:"name" binding:"required"`
	Comment      string                      `json:"comment"`
	BlamedTeamID *uint64                     `json:"blamed_team_id"`
	DefectID     string                      `json:"defect_id"`
	Patterns     []*probmodel.ProblemPattern `json:"patterns"`
}

// ListProblems 获取项目下的问题
func (s *ProblemService) ListProblems(ctx context.Context, projectID uint64) ([]*probmodel.Problem, error) {
	return s.problemRepo.ListProblems(ctx, projectID)
}

// GetProblem 获取问题(含模式)
func (s *ProblemService) GetProblem(ctx context.Context, projectID, id uint64) (*probmodel.Problem, error) {
	problem, err := s.problemRepo.GetProblem(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, fmt.Errorf("%w: %d", system.ErrProblemNotFound, id)
	}
	return problem, nil
}

// CreateProblem 创建问题及其初始模式，模式立即关联到项目中所有匹配的错误
func (s *ProblemService) CreateProblem(ctx context.Context, projectID uint64, req *CreateProblemRequest) (*probmodel.Problem, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, system.ErrProblemNameEmpty
	}
	if len(req.Patterns) == 0 {
		return nil, system.ErrEmptyPattern
	}
	if req.BlamedTeamID != nil {
		team, err := s.projectRepo.GetTeam(ctx, projectID, *req.BlamedTeamID)
		if err != nil {
			return nil, err
		}
		if team == nil {
			return nil, system.ErrTeamNotFound
		}
	}
	if err := s.validateDefectID(ctx, projectID, req.DefectID); err != nil {
		return nil, err
	}
	for i, p := range req.Patterns {
		if err := s.validatePattern(ctx, projectID, p, 0); err != nil {
			return nil, err
		}
		for _, other := range req.Patterns[:i] {
			if p.SameCriteria(other) {
				return nil, system.ErrDuplicatePattern
			}
		}
	}

	problem := &probmodel.Problem{
		ProjectID:        projectID,
		Name:             name,
		Comment:          req.Comment,
		Status:           probmodel.StatusOpen,
		BlamedTeamID:     req.BlamedTeamID,
		DefectID:         strings.TrimSpace(req.DefectID),
		CreationDateTime: s.now(),
	}
	if problem.DefectID != "" {
		problem.DefectExistence = probmodel.DefectUnknown
	}

	err := database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		txs := s.WithTx(tx)
		if err := txs.problemRepo.CreateProblem(ctx, problem); err != nil {
			return err
		}
		for _, p := range req.Patterns {
			p.ID = 0
			p.ProblemID = problem.ID
			if err := txs.problemRepo.CreatePattern(ctx, p); err != nil {
				return err
			}
			if err := txs.assignPatternToAllErrors(ctx, projectID, p); err != nil {
				return err
			}
		}
		return txs.UpdateFirstAndLastSeenDateTimes(ctx, []*probmodel.Problem{problem})
	})
	if err != nil {
		logger.LogBusinessError(err, "", "", "", "create_problem", "SERVICE", map[string]interface{}{
			"operation":  "create_problem",
			"project_id": projectID,
			"name":       name,
		})
		return nil, err
	}
	problem.Patterns = req.Patterns
	return problem, nil
}

// AppendPattern 为问题追加模式
func (s *ProblemService) AppendPattern(ctx context.Context, projectID, problemID uint64, pattern *probmodel.ProblemPattern) (*probmodel.ProblemPattern, error) {
	problem, err := s.GetProblem(ctx, projectID, problemID)
	if err != nil {
		return nil, err
	}
	if err := s.validatePattern(ctx, projectID, pattern, 0); err != nil {
		return nil, err
	}

	pattern.ID = 0
	pattern.ProblemID = problem.ID
	err = database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		txs := s.WithTx(tx)
		if err := txs.problemRepo.CreatePattern(ctx, pattern); err != nil {
			return err
		}
		if err := txs.assignPatternToAllErrors(ctx, projectID, pattern); err != nil {
			return err
		}
		return txs.UpdateFirstAndLastSeenDateTimes(ctx, []*probmodel.Problem{problem})
	})
	if err != nil {
		return nil, err
	}
	return pattern, nil
}

// UpdatePattern 修改模式条件，重新计算其关联的错误
func (s *ProblemService) UpdatePattern(ctx context.Context, projectID, patternID uint64, update *probmodel.ProblemPattern) (*probmodel.ProblemPattern, error) {
	existing, err := s.getPattern(ctx, projectID, patternID)
	if err != nil {
		return nil, err
	}
	if err := s.validatePattern(ctx, projectID, update, patternID); err != nil {
		return nil, err
	}

	update.BaseModel = existing.BaseModel
	update.ProblemID = existing.ProblemID
	err = database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		txs := s.WithTx(tx)
		if err := txs.problemRepo.SavePattern(ctx, update); err != nil {
			return err
		}
		if err := txs.problemRepo.DeleteOccurrencesOfPattern(ctx, patternID); err != nil {
			return err
		}
		if err := txs.assignPatternToAllErrors(ctx, projectID, update); err != nil {
			return err
		}
		return txs.UpdateFirstAndLastSeenDateTimes(ctx, []*probmodel.Problem{{BaseModel: baseModelOf(update.ProblemID)}})
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// DeletePattern 删除模式，问题的最后一个模式不能删除
func (s *ProblemService) DeletePattern(ctx context.Context, projectID, patternID uint64) error {
	pattern, err := s.getPattern(ctx, projectID, patternID)
	if err != nil {
		return err
	}
	count, err := s.problemRepo.CountPatterns(ctx, pattern.ProblemID)
	if err != nil {
		return err
	}
	if count <= 1 {
		return system.ErrLastPattern
	}

	return database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		txs := s.WithTx(tx)
		if err := txs.problemRepo.DeletePattern(ctx, patternID); err != nil {
			return err
		}
		return txs.UpdateFirstAndLastSeenDateTimes(ctx, []*probmodel.Problem{{BaseModel: baseModelOf(pattern.ProblemID)}})
	})
}

// PickUpPattern 把模式移到另一个问题，原问题没有模式后被删除
func (s *ProblemService) PickUpPattern(ctx context.Context, projectID, destinationID, patternID uint64) (*probmodel.Problem, error) {
	destination, err := s.GetProblem(ctx, projectID, destinationID)
	if err != nil {
		return nil, err
	}
	pattern, err := s.getPattern(ctx, projectID, patternID)
	if err != nil {
		return nil, err
	}
	sourceID := pattern.ProblemID
	if sourceID == destination.ID {
		return destination, nil
	}

	err = database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		txs := s.WithTx(tx)
		if err := txs.problemRepo.MovePattern(ctx, patternID, destination.ID); err != nil {
			return err
		}
		changed := []*probmodel.Problem{destination}

		remaining, err := txs.problemRepo.CountPatterns(ctx, sourceID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := txs.problemRepo.DeleteProblem(ctx, sourceID); err != nil {
				return err
			}
		} else {
			changed = append(changed, &probmodel.Problem{BaseModel: baseModelOf(sourceID)})
		}
		return txs.UpdateFirstAndLastSeenDateTimes(ctx, changed)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProblem(ctx, projectID, destination.ID)
}

// CloseProblem 关闭问题，必须给出根因
// 配置了缺陷系统且问题关联了缺陷时，状态由缺陷系统同步，不能手动关闭
func (s *ProblemService) CloseProblem(ctx context.Context, projectID, id uint64, rootCauseID *uint64) (*probmodel.Problem, error) {
	problem, err := s.GetProblem(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkManualStatusChange(ctx, projectID, problem); err != nil {
		return nil, err
	}
	if rootCauseID == nil {
		return nil, system.ErrRootCauseRequired
	}
	rootCause, err := s.projectRepo.GetRootCause(ctx, projectID, *rootCauseID)
	if err != nil {
		return nil, err
	}
	if rootCause == nil {
		return nil, system.ErrRootCauseNotFound
	}

	closedAt := s.now()
	problem.Status = probmodel.StatusClosed
	problem.ClosingDateTime = &closedAt
	problem.RootCauseID = rootCauseID
	if err := s.problemRepo.SaveProblem(ctx, problem); err != nil {
		return nil, err
	}
	return problem, nil
}

// ReopenProblem 重新打开问题
func (s *ProblemService) ReopenProblem(ctx context.Context, projectID, id uint64) (*probmodel.Problem, error) {
	problem, err := s.GetProblem(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkManualStatusChange(ctx, projectID, problem); err != nil {
		return nil, err
	}
	if problem.Status != probmodel.StatusClosed {
		return nil, system.ErrProblemNotClosed
	}

	problem.Status = probmodel.StatusOpen
	problem.ClosingDateTime = nil
	if err := s.problemRepo.SaveProblem(ctx, problem); err != nil {
		return nil, err
	}
	return problem, nil
}

// DeleteProblem 删除问题及其模式和关联
func (s *ProblemService) DeleteProblem(ctx context.Context, projectID, id uint64) error {
	problem, err := s.GetProblem(ctx, projectID, id)
	if err != nil {
		return err
	}
	return database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
		return s.WithTx(tx).problemRepo.DeleteProblem(ctx, problem.ID)
	})
}

// RecomputeFirstAndLastSeen 逐个问题重新计算首次/最近出现时间，每个问题一个事务
func (s *ProblemService) RecomputeFirstAndLastSeen(ctx context.Context, projectID uint64) (int, error) {
	problems, err := s.problemRepo.ListProblems(ctx, projectID)
	if err != nil {
		return 0, err
	}
	for i, problem := range problems {
		err := database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
			return s.WithTx(tx).UpdateFirstAndLastSeenDateTimes(ctx, []*probmodel.Problem{problem})
		})
		if err != nil {
			return i, err
		}
	}
	logger.LogBusinessOperation("recompute_first_last_seen", "system", "", "", "success",
		"first and last seen date times recomputed", map[string]interface{}{
			"project_id": projectID,
			"problems":   len(problems),
		})
	return len(problems), nil
}

// RefreshDefects 从缺陷系统同步缺陷状态：存在的缺陷同步状态和关闭时间，不存在的缺陷重新打开问题
func (s *ProblemService) RefreshDefects(ctx context.Context, projectID uint64) (int, error) {
	tracker, err := s.tracker(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if tracker == nil {
		return 0, system.ErrDefectTrackerUnset
	}

	problems, err := s.problemRepo.ListProblemsWithDefect(ctx, projectID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(problems))
	for _, p := range problems {
		ids = append(ids, p.DefectID)
	}
	defects, err := tracker.Statuses(ctx, ids)
	if err != nil {
		logger.LogBusinessError(err, "", "", "", "refresh_defects", "SERVICE", map[string]interface{}{
			"operation":  "refresh_defects",
			"project_id": projectID,
			"tracker":    tracker.Code(),
		})
		return 0, err
	}

	changed := applyDefects(problems, defects)
	for _, p := range changed {
		if err := s.problemRepo.SaveProblem(ctx, p); err != nil {
			return 0, err
		}
	}
	return len(changed), nil
}

// applyDefects 返回状态有变化的问题
func applyDefects(problems []*probmodel.Problem, defects []defect.Defect) []*probmodel.Problem {
	byID := make(map[string]defect.Defect, len(defects))
	for _, d := range defects {
		byID[d.ID] = d
	}

	var changed []*probmodel.Problem
	for _, p := range problems {
		d, ok := byID[p.DefectID]
		if ok {
			if p.DefectExistence != probmodel.DefectExists || p.Status != d.Status || !sameSecond(p.ClosingDateTime, d.CloseDateTime) {
				p.DefectExistence = probmodel.DefectExists
				p.Status = d.Status
				p.ClosingDateTime = d.CloseDateTime
				changed = append(changed, p)
			}
			continue
		}
		if p.DefectExistence != probmodel.DefectNonexistent || p.Status != probmodel.StatusOpen || p.ClosingDateTime != nil {
			p.DefectExistence = probmodel.DefectNonexistent
			p.Status = probmodel.StatusOpen
			p.ClosingDateTime = nil
			changed = append(changed, p)
		}
	}
	return changed
}

// -----------------------------------------------------------------------------
// 内部方法
// -----------------------------------------------------------------------------

// assignPatternToAllErrors 分批遍历项目全部错误，为匹配的错误建立关联
func (s *ProblemService) assignPatternToAllErrors(ctx context.Context, projectID uint64, pattern *probmodel.ProblemPattern) error {
	compiled := compilePatterns([]*probmodel.ProblemPattern{pattern})
	if len(compiled) == 0 {
		return nil
	}
	return s.executionRepo.ForEachErrorContextBatch(ctx, projectID, errorBatchSize, func(batch []*execmodel.ErrorContext) error {
		_, err := s.problemRepo.AddOccurrences(ctx, matchOccurrences(compiled, batch))
		return err
	})
}

func (s *ProblemService) getPattern(ctx context.Context, projectID, patternID uint64) (*probmodel.ProblemPattern, error) {
	pattern, err := s.problemRepo.GetPattern(ctx, projectID, patternID)
	if err != nil {
		return nil, err
	}
	if pattern == nil {
		return nil, fmt.Errorf("%w: %d", system.ErrPatternNotFound, patternID)
	}
	return pattern, nil
}

// validatePattern 拒绝空模式和与项目中其他模式条件相同的模式(ignoreID 为正在修改的模式)
func (s *ProblemService) validatePattern(ctx context.Context, projectID uint64, pattern *probmodel.ProblemPattern, ignoreID uint64) error {
	if pattern == nil || pattern.IsEmpty() {
		return system.ErrEmptyPattern
	}
	existing, err := s.problemRepo.ListPatternsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID != ignoreID && pattern.SameCriteria(other) {
			return fmt.Errorf("%w: pattern %d of problem %d", system.ErrDuplicatePattern, other.ID, other.ProblemID)
		}
	}
	return nil
}

func (s *ProblemService) tracker(ctx context.Context, projectID uint64) (defect.Tracker, error) {
	settings, err := s.settingService.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return defect.NewTracker(settings, s.defectTimeout)
}

func (s *ProblemService) validateDefectID(ctx context.Context, projectID uint64, defectID string) error {
	defectID = strings.TrimSpace(defectID)
	if defectID == "" {
		return nil
	}
	tracker, err := s.tracker(ctx, projectID)
	if err != nil {
		return err
	}
	if tracker != nil && !tracker.IsValidID(defectID) {
		return system.NewValidationError("defect_id", "invalid "+tracker.Code()+" defect id: "+defectID)
	}
	return nil
}

func (s *ProblemService) checkManualStatusChange(ctx context.Context, projectID uint64, problem *probmodel.Problem) error {
	if problem.DefectID == "" {
		return nil
	}
	tracker, err := s.tracker(ctx, projectID)
	if err != nil {
		return err
	}
	if tracker != nil {
		return system.ErrProblemHasDefect
	}
	return nil
}

func baseModelOf(id uint64) basemodel.BaseModel {
	return basemodel.BaseModel{ID: id}
}

// sameSecond 比较到秒，不同系统的时间精度不同
func sameSecond(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Unix() == b.Unix()
}
