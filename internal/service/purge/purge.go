/**
 * 执行清理服务
 * @author: sun977
 * @date: 2025.10.24
 * @description: 按项目配置的保留期删除过期执行(及其运行、场景、错误、关联)，问题与模式不受影响
 * @func: PurgeProject, PurgeProjectByCode, PurgeAll
 */
package purge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"
	execrepo "aramaster/internal/repo/mysql/execution"
	"aramaster/internal/service/project"
	"aramaster/internal/service/setting"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultBatchSize = 500
	// 同时清理的项目数
	projectParallelism = 4
)

// PurgeService 执行清理服务
type PurgeService struct {
	db             *gorm.DB
	executionRepo  *execrepo.ExecutionRepository
	projectService *project.ProjectService
	settingService *setting.SettingService
	batchSize      int
	now            func() time.Time
}

// NewPurgeService 创建清理服务
func NewPurgeService(db *gorm.DB, projectService *project.ProjectService, settingService *setting.SettingService, batchSize int) *PurgeService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PurgeService{
		db:             db,
		executionRepo:  execrepo.NewExecutionRepository(db),
		projectService: projectService,
		settingService: settingService,
		batchSize:      batchSize,
		now:            time.Now,
	}
}

// Threshold 保留期起点: 今天零点减去 value 个 unit
// value 为空、非整数或为负，unit 为空或未知时返回 system.ErrInvalidPurgeSetting
func Threshold(now time.Time, value, unit string) (time.Time, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: duration value %q is not an integer", system.ErrInvalidPurgeSetting, value)
	}
	if n < 0 {
		return time.Time{}, fmt.Errorf("%w: duration value %d is negative", system.ErrInvalidPurgeSetting, n)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "DAY":
		return today.AddDate(0, 0, -n), nil
	case "WEEK":
		return today.AddDate(0, 0, -7*n), nil
	case "MONTH":
		return today.AddDate(0, -n, 0), nil
	case "YEAR":
		return today.AddDate(-n, 0, 0), nil
	case "":
		return time.Time{}, fmt.Errorf("%w: duration type is not set", system.ErrInvalidPurgeSetting)
	default:
		return time.Time{}, fmt.Errorf("%w: unknown duration type %q", system.ErrInvalidPurgeSetting, unit)
	}
}

// PurgeProjectByCode 项目不存在时只记录警告
func (s *PurgeService) PurgeProjectByCode(ctx context.Context, projectCode string) (int, error) {
	projectID, err := s.projectService.ToID(ctx, projectCode)
	if err != nil {
		if errors.Is(err, system.ErrProjectNotFound) {
			logger.LogSystemEvent("purge", "purge_skipped", "no purge, project code is unknown", logrus.WarnLevel, map[string]interface{}{
				"project_code": projectCode,
			})
			return 0, nil
		}
		return 0, err
	}
	return s.PurgeProject(ctx, projectID)
}

// PurgeProject 删除项目中测试时间早于保留期的执行，返回删除数量
func (s *PurgeService) PurgeProject(ctx context.Context, projectID uint64) (int, error) {
	settings, err := s.settingService.Load(ctx, projectID)
	if err != nil {
		return 0, err
	}
	value, unit := settings.Get(setting.PurgeDurationValue), settings.Get(setting.PurgeDurationType)
	threshold, err := Threshold(s.now(), value, unit)
	if err != nil {
		logger.LogSystemEvent("purge", "purge_aborted", "purge aborted, retention setting is invalid", logrus.WarnLevel, map[string]interface{}{
			"project_id":     projectID,
			"duration_value": value,
			"duration_type":  unit,
			"error":          err.Error(),
		})
		return 0, err
	}

	start := time.Now()
	deleted := 0
	for {
		ids, err := s.executionRepo.FindExecutionIDsBefore(ctx, projectID, threshold, s.batchSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			break
		}
		err = database.RunInTransaction(ctx, s.db, func(tx *gorm.DB, _ *database.AfterCommit) error {
			return s.executionRepo.WithTx(tx).DeleteExecutions(ctx, ids)
		})
		if err != nil {
			return deleted, err
		}
		deleted += len(ids)
		if len(ids) < s.batchSize {
			break
		}
	}

	logger.LogSystemEvent("purge", "purge_done", "executions purged", logrus.InfoLevel, map[string]interface{}{
		"project_id": projectID,
		"threshold":  threshold.Format("2006-01-02"),
		"deleted":    deleted,
		"duration":   time.Since(start).String(),
	})
	return deleted, nil
}

// PurgeAll 清理全部项目，单个项目失败只记录日志
func (s *PurgeService) PurgeAll(ctx context.Context) (int, error) {
	projects, err := s.projectService.ListProjects(ctx)
	if err != nil {
		return 0, err
	}

	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(projectParallelism)
	for i, proj := range projects {
		g.Go(func() error {
			logger.LogSystemEvent("purge", "purge_project", "preparing purge for project", logrus.DebugLevel, map[string]interface{}{
				"project_code": proj.Code,
				"position":     fmt.Sprintf("%d/%d", i+1, len(projects)),
			})
			deleted, err := s.PurgeProject(gctx, proj.ID)
			total.Add(int64(deleted))
			if err != nil && !errors.Is(err, system.ErrInvalidPurgeSetting) {
				logger.LogError(err, "", "", "", "purge.PurgeAll", "SERVICE", map[string]interface{}{
					"operation":    "purge_project",
					"project_code": proj.Code,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(total.Load()), nil
}
