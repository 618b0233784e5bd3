package project

import (
	"context"
	"errors"

	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProjectRepository 项目与参考数据仓库
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository 创建 ProjectRepository 实例
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *ProjectRepository) WithTx(tx *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: tx}
}

// -----------------------------------------------------------------------------
// Project (项目)
// -----------------------------------------------------------------------------

// CreateProject 创建项目
func (r *ProjectRepository) CreateProject(ctx context.Context, project *projmodel.Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	if err := r.db.WithContext(ctx).Create(project).Error; err != nil {
		logger.LogError(err, "", "", "", "create_project", "REPO", map[string]interface{}{
			"operation": "create_project",
			"code":      project.Code,
		})
		return err
	}
	return nil
}

// GetProjectByCode 根据编码获取项目，不存在返回 nil
func (r *ProjectRepository) GetProjectByCode(ctx context.Context, code string) (*projmodel.Project, error) {
	var project projmodel.Project
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.LogError(err, "", "", "", "get_project_by_code", "REPO", map[string]interface{}{
			"operation": "get_project_by_code",
			"code":      code,
		})
		return nil, err
	}
	return &project, nil
}

// ListProjects 获取全部项目
func (r *ProjectRepository) ListProjects(ctx context.Context) ([]*projmodel.Project, error) {
	var projects []*projmodel.Project
	if err := r.db.WithContext(ctx).Order("code").Find(&projects).Error; err != nil {
		logger.LogError(err, "", "", "", "list_projects", "REPO", map[string]interface{}{
			"operation": "list_projects",
		})
		return nil, err
	}
	return projects, nil
}

// -----------------------------------------------------------------------------
// 参考数据
// -----------------------------------------------------------------------------

// CreateReference 创建参考数据(国家、来源、类型、严重级别、周期定义、团队、根因)
func (r *ProjectRepository) CreateReference(ctx context.Context, value interface{}) error {
	if err := r.db.WithContext(ctx).Create(value).Error; err != nil {
		logger.LogError(err, "", "", "", "create_reference", "REPO", map[string]interface{}{
			"operation": "create_reference",
		})
		return err
	}
	return nil
}

// ListCountries 获取项目的国家
func (r *ProjectRepository) ListCountries(ctx context.Context, projectID uint64) ([]*projmodel.Country, error) {
	var countries []*projmodel.Country
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("code").Find(&countries).Error
	return countries, err
}

// ListTypes 获取项目的测试类型，并显式加载对应的报告来源
func (r *ProjectRepository) ListTypes(ctx context.Context, projectID uint64) ([]*projmodel.Type, error) {
	var types []*projmodel.Type
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("code").Find(&types).Error; err != nil {
		return nil, err
	}

	var sources []*projmodel.Source
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&sources).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]*projmodel.Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}
	for _, t := range types {
		if t.SourceID != nil {
			t.Source = byID[*t.SourceID]
		}
	}
	return types, nil
}

// ListSeverities 获取严重级别，按 position 排序
func (r *ProjectRepository) ListSeverities(ctx context.Context, projectID uint64) ([]*projmodel.Severity, error) {
	var severities []*projmodel.Severity
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("position").Find(&severities).Error
	return severities, err
}

// ListCycleDefinitions 获取周期定义
func (r *ProjectRepository) ListCycleDefinitions(ctx context.Context, projectID uint64) ([]*projmodel.CycleDefinition, error) {
	var cycles []*projmodel.CycleDefinition
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("branch_position, branch, name").Find(&cycles).Error
	return cycles, err
}

// GetCycleDefinition 根据分支和周期名获取周期定义，不存在返回 nil
func (r *ProjectRepository) GetCycleDefinition(ctx context.Context, projectID uint64, branch, name string) (*projmodel.CycleDefinition, error) {
	var cycle projmodel.CycleDefinition
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND branch = ? AND name = ?", projectID, branch, name).
		First(&cycle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

// GetRootCause 获取项目下的根因，不存在返回 nil
func (r *ProjectRepository) GetRootCause(ctx context.Context, projectID, id uint64) (*projmodel.RootCause, error) {
	var rootCause projmodel.RootCause
	err := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).First(&rootCause).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rootCause, nil
}

// GetTeam 获取项目下的团队，不存在返回 nil
func (r *ProjectRepository) GetTeam(ctx context.Context, projectID, id uint64) (*projmodel.Team, error) {
	var team projmodel.Team
	err := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}

// -----------------------------------------------------------------------------
// Setting (配置项)
// -----------------------------------------------------------------------------

// ListSettings 获取项目全部配置项
func (r *ProjectRepository) ListSettings(ctx context.Context, projectID uint64) ([]*projmodel.Setting, error) {
	var settings []*projmodel.Setting
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("code").Find(&settings).Error
	if err != nil {
		logger.LogError(err, "", "", "", "list_settings", "REPO", map[string]interface{}{
			"operation":  "list_settings",
			"project_id": projectID,
		})
		return nil, err
	}
	return settings, nil
}

// UpsertSetting 新增或更新配置项
func (r *ProjectRepository) UpsertSetting(ctx context.Context, projectID uint64, code, value string) error {
	setting := &projmodel.Setting{ProjectID: projectID, Code: code, Value: value}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(setting).Error
	if err != nil {
		logger.LogError(err, "", "", "", "upsert_setting", "REPO", map[string]interface{}{
			"operation":  "upsert_setting",
			"project_id": projectID,
			"code":       code,
		})
		return err
	}
	return nil
}
