package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	execrepo "aramaster/internal/repo/mysql/execution"
	"aramaster/internal/service/project"
	"aramaster/internal/service/setting"

	"github.com/sirupsen/logrus"
)

// Planner 把项目/分支/周期/任务目录解析为待索引请求
// 周期目录 = 根路径 + executionBasePath 模板({{project}}/{{branch}}/{{cycle}})，任务目录为其直接子目录
type Planner struct {
	projectService *project.ProjectService
	settingService *setting.SettingService
	executionRepo  *execrepo.ExecutionRepository
	basePath       string
}

// NewPlanner 创建 Planner
func NewPlanner(projectService *project.ProjectService, settingService *setting.SettingService, executionRepo *execrepo.ExecutionRepository, basePath string) *Planner {
	return &Planner{
		projectService: projectService,
		settingService: settingService,
		executionRepo:  executionRepo,
		basePath:       basePath,
	}
}

// CycleFolder 计算周期目录
func (p *Planner) CycleFolder(settings *setting.Settings, projectCode string, cycle *projmodel.CycleDefinition) string {
	path := strings.NewReplacer(
		"{{project}}", projectCode,
		"{{branch}}", cycle.Branch,
		"{{cycle}}", cycle.Name,
	).Replace(settings.Get(setting.ExecutionBasePath))
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.basePath, path)
}

// Plan 构造一次手动触发的索引请求
// folder 为绝对路径或相对周期目录的任务目录名，必须位于根路径下
func (p *Planner) Plan(ctx context.Context, projectCode, branch, cycleName, folder string) (*execmodel.PlannedIndexation, error) {
	proj, err := p.projectService.GetByCode(ctx, projectCode)
	if err != nil {
		return nil, err
	}
	cycle, err := p.projectService.GetCycleDefinition(ctx, proj.ID, branch, cycleName)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(folder) == "" {
		return nil, system.NewValidationError("folder", "folder is required")
	}

	if !filepath.IsAbs(folder) {
		settings, err := p.settingService.Load(ctx, proj.ID)
		if err != nil {
			return nil, err
		}
		folder = filepath.Join(p.CycleFolder(settings, proj.Code, cycle), folder)
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: raw folder %s does not exist", system.ErrInvalidIndexation, folder)
	}
	if err := p.checkInsideBase(folder); err != nil {
		return nil, err
	}

	return &execmodel.PlannedIndexation{
		ProjectID:       proj.ID,
		ProjectCode:     proj.Code,
		CycleDefinition: cycle,
		RawFolder:       folder,
	}, nil
}

func (p *Planner) checkInsideBase(folder string) error {
	if p.basePath == "" {
		return nil
	}
	base, err := CanonicalLink(p.basePath)
	if err != nil {
		return err
	}
	link, err := CanonicalLink(folder)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(link, base) {
		return fmt.Errorf("%w: %s", system.ErrRawFolderOutsideBase, folder)
	}
	return nil
}

// watchedCycle 一个项目周期及其目录
type watchedCycle struct {
	project *projmodel.Project
	cycle   *projmodel.CycleDefinition
	folder  string
}

// cycles 列出全部项目的全部周期目录
func (p *Planner) cycles(ctx context.Context) ([]watchedCycle, error) {
	projects, err := p.projectService.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var result []watchedCycle
	for _, proj := range projects {
		settings, err := p.settingService.Load(ctx, proj.ID)
		if err != nil {
			return nil, err
		}
		cycles, err := p.projectService.ListCycleDefinitions(ctx, proj.ID)
		if err != nil {
			return nil, err
		}
		for _, cycle := range cycles {
			result = append(result, watchedCycle{project: proj, cycle: cycle, folder: p.CycleFolder(settings, proj.Code, cycle)})
		}
	}
	return result, nil
}

// PlanPending 扫描全部周期目录，返回尚未以 DONE 状态索引的任务目录
func (p *Planner) PlanPending(ctx context.Context) ([]*execmodel.PlannedIndexation, error) {
	cycles, err := p.cycles(ctx)
	if err != nil {
		return nil, err
	}

	var planned []*execmodel.PlannedIndexation
	for _, wc := range cycles {
		jobFolders := subFolders(wc.folder)
		if len(jobFolders) == 0 {
			continue
		}
		links := make([]string, 0, len(jobFolders))
		linkOf := make(map[string]string, len(jobFolders))
		for _, folder := range jobFolders {
			link, err := CanonicalLink(folder)
			if err != nil {
				logger.LogIndexation(logrus.WarnLevel, "cannot resolve job folder", map[string]interface{}{
					"operation": "plan_pending",
					"folder":    folder,
					"error":     err.Error(),
				})
				continue
			}
			links = append(links, link)
			linkOf[folder] = link
		}
		done, err := p.executionRepo.FindDoneJobLinks(ctx, wc.project.ID, links)
		if err != nil {
			return nil, err
		}
		for _, folder := range jobFolders {
			link, ok := linkOf[folder]
			if !ok {
				continue
			}
			if _, isDone := done[link]; isDone {
				continue
			}
			planned = append(planned, &execmodel.PlannedIndexation{
				ProjectID:       wc.project.ID,
				ProjectCode:     wc.project.Code,
				CycleDefinition: wc.cycle,
				RawFolder:       folder,
			})
		}
	}
	return planned, nil
}
