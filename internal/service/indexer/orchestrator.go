/**
 * 索引:执行索引编排
 * @author: sun977
 * @date: 2025.10.21
 * @description: 组装执行并在一个事务内替换旧数据，只把新错误交给问题匹配，重新计算受影响问题的出现时间，提交后发送质量通知
 * @func: IndexExecution
 */
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"
	execrepo "aramaster/internal/repo/mysql/execution"
	probrepo "aramaster/internal/repo/mysql/problem"
	"aramaster/internal/service/problem"
	"aramaster/internal/service/quality"
	"aramaster/internal/service/setting"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// errAlreadyDone 事务内发现执行已被其他索引标记为 DONE
var errAlreadyDone = errors.New("execution already indexed as done")

// IndexerService 执行索引服务
type IndexerService struct {
	db             *gorm.DB
	executionRepo  *execrepo.ExecutionRepository
	problemRepo    *probrepo.ProblemRepository
	assembler      *Assembler
	problemService *problem.ProblemService
	qualityService *quality.QualityService
	settingService *setting.SettingService
	basePath       string
}

// NewIndexerService 创建 IndexerService 实例
// basePath 为原始目录根路径，索引后删除原始目录时只允许删除其下的目录
func NewIndexerService(db *gorm.DB, assembler *Assembler, problemService *problem.ProblemService, qualityService *quality.QualityService, settingService *setting.SettingService, basePath string) *IndexerService {
	return &IndexerService{
		db:             db,
		executionRepo:  execrepo.NewExecutionRepository(db),
		problemRepo:    probrepo.NewProblemRepository(db),
		assembler:      assembler,
		problemService: problemService,
		qualityService: qualityService,
		settingService: settingService,
		basePath:       basePath,
	}
}

// IndexExecution 索引一个原始任务目录
// 请求无效、目录尚不可索引、执行已 DONE 时只记录警告并返回 nil；组装或持久化失败时整个事务回滚并返回错误
func (s *IndexerService) IndexExecution(ctx context.Context, indexation *execmodel.PlannedIndexation) (*execmodel.Execution, error) {
	if indexation == nil || strings.TrimSpace(indexation.RawFolder) == "" || indexation.CycleDefinition == nil {
		logger.LogIndexation(logrus.WarnLevel, "invalid planned indexation, nothing to index", map[string]interface{}{
			"operation": "index_execution",
			"func_name": "service.indexer.IndexExecution",
		})
		return nil, nil
	}

	link, err := CanonicalLink(indexation.RawFolder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", system.ErrInvalidIndexation, err)
	}
	fields := map[string]interface{}{
		"operation":  "index_execution",
		"func_name":  "service.indexer.IndexExecution",
		"project_id": indexation.ProjectID,
		"job_link":   link,
	}

	previous, err := s.executionRepo.FindByJobLink(ctx, indexation.ProjectID, link)
	if err != nil {
		return nil, err
	}
	if previous != nil && previous.Status == execmodel.JobStatusDone {
		logger.LogIndexation(logrus.WarnLevel, "execution is already done, no further indexing", fields)
		return nil, nil
	}

	execution, err := s.assembler.Assemble(ctx, indexation, link)
	if err != nil {
		logger.LogError(err, "", "", "", "index_execution", "SERVICE", fields)
		return nil, err
	}
	if execution == nil {
		logger.LogIndexation(logrus.WarnLevel, "nothing extractable from raw folder, execution not persisted", fields)
		return nil, nil
	}

	settings, err := s.settingService.Load(ctx, indexation.ProjectID)
	if err != nil {
		return nil, err
	}

	var stats indexationStats
	err = database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, hooks *database.AfterCommit) error {
		var err error
		stats, err = s.persist(ctx, tx, execution)
		if err != nil {
			return err
		}
		if execution.Status == execmodel.JobStatusDone {
			hooks.Register("quality_notification", s.qualityService.NotifyHook(execution))
			if settings.GetBool(setting.DeleteAfterIndexingAsDone) {
				folder := indexation.RawFolder
				hooks.Register("delete_raw_folder", func(ctx context.Context) error {
					return s.deleteRawFolder(folder)
				})
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyDone) {
		logger.LogIndexation(logrus.WarnLevel, "execution became done during indexation, no further indexing", fields)
		return nil, nil
	}
	if err != nil {
		logger.LogError(err, "", "", "", "index_execution", "SERVICE", fields)
		return nil, err
	}

	fields["execution_id"] = execution.ID
	fields["status"] = string(execution.Status)
	fields["quality_status"] = string(execution.QualityStatus)
	fields["runs"] = len(execution.Runs)
	fields["new_errors"] = stats.newErrors
	fields["kept_errors"] = stats.keptErrors
	fields["changed_problems"] = stats.changedProblems
	logger.LogIndexation(logrus.InfoLevel, "execution indexed", fields)
	return execution, nil
}

type indexationStats struct {
	newErrors       int
	keptErrors      int
	changedProblems int
}

// persist 在事务内替换执行数据
// 旧错误与新错误按业务键配对，配对成功的错误沿用旧的问题关联，只有新错误进入模式匹配
func (s *IndexerService) persist(ctx context.Context, tx *gorm.DB, execution *execmodel.Execution) (indexationStats, error) {
	var stats indexationStats
	executionRepo := s.executionRepo.WithTx(tx)
	problemRepo := s.problemRepo.WithTx(tx)
	problems := s.problemService.WithTx(tx)

	previous, err := executionRepo.FindByJobLink(ctx, execution.ProjectID, execution.JobLink)
	if err != nil {
		return stats, err
	}

	var oldErrors []*execmodel.ErrorContext
	var oldOccurrences []probmodel.ProblemOccurrence
	if previous != nil {
		if previous.Status == execmodel.JobStatusDone {
			return stats, errAlreadyDone
		}
		if oldErrors, err = executionRepo.ListErrorContextsOfExecution(ctx, previous.ID); err != nil {
			return stats, err
		}
		if oldOccurrences, err = problemRepo.ListOccurrencesByErrorIDs(ctx, errorIDs(oldErrors)); err != nil {
			return stats, err
		}
		if err := executionRepo.DeleteChildren(ctx, []uint64{previous.ID}); err != nil {
			return stats, err
		}
		execution.ID = previous.ID
		execution.CreatedAt = previous.CreatedAt
	}

	if err := executionRepo.SaveGraph(ctx, execution); err != nil {
		return stats, err
	}
	persisted, err := executionRepo.ListErrorContextsOfExecution(ctx, execution.ID)
	if err != nil {
		return stats, err
	}

	kept, newErrorIDs := diffErrors(oldErrors, persisted)
	carried := carryOccurrences(oldOccurrences, kept)
	if _, err := problemRepo.AddOccurrences(ctx, carried); err != nil {
		return stats, err
	}
	stats.newErrors = len(newErrorIDs)
	stats.keptErrors = len(kept)

	assigned, err := problems.AutoAssignProblemsToNewErrors(ctx, execution.ProjectID, newErrorIDs)
	if err != nil {
		return stats, err
	}
	// 旧关联所属的问题也要重算: 错误可能消失，测试时间也可能变化
	previouslyLinked, err := problems.ProblemsOfOccurrences(ctx, execution.ProjectID, oldOccurrences)
	if err != nil {
		return stats, err
	}
	changed := distinctProblems(assigned, previouslyLinked)
	stats.changedProblems = len(changed)
	if err := problems.UpdateFirstAndLastSeenDateTimes(ctx, changed); err != nil {
		return stats, err
	}
	return stats, nil
}

// deleteRawFolder 删除已索引为 DONE 的原始目录，只允许删除根路径下的目录
func (s *IndexerService) deleteRawFolder(folder string) error {
	if s.basePath == "" {
		return fmt.Errorf("%w: %s", system.ErrRawFolderOutsideBase, folder)
	}
	base, err := CanonicalLink(s.basePath)
	if err != nil {
		return err
	}
	link, err := CanonicalLink(folder)
	if err != nil {
		return err
	}
	if link == base || !strings.HasPrefix(link, base) {
		return fmt.Errorf("%w: %s", system.ErrRawFolderOutsideBase, folder)
	}
	if err := os.RemoveAll(filepath.Clean(link)); err != nil {
		return err
	}
	logger.LogIndexation(logrus.InfoLevel, "raw folder deleted after indexing as done", map[string]interface{}{
		"operation": "delete_raw_folder",
		"job_link":  link,
	})
	return nil
}
