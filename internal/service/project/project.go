package project

import (
	"context"
	"fmt"
	"strings"

	projmodel "aramaster/internal/model/project"
	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	projrepo "aramaster/internal/repo/mysql/project"
)

// ProjectService 项目身份解析与参考数据读取
type ProjectService struct {
	repo *projrepo.ProjectRepository
}

// NewProjectService 创建 ProjectService 实例
func NewProjectService(repo *projrepo.ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

// ReferenceData 索引一次执行所需的参考数据快照
type ReferenceData struct {
	Countries  []*projmodel.Country
	Types      []*projmodel.Type
	Severities []*projmodel.Severity
}

// CountryByCode 按编码(大小写不敏感)查找国家
func (d *ReferenceData) CountryByCode(code string) *projmodel.Country {
	for _, c := range d.Countries {
		if strings.EqualFold(c.Code, code) {
			return c
		}
	}
	return nil
}

// TypeByCode 按编码(大小写不敏感)查找类型
func (d *ReferenceData) TypeByCode(code string) *projmodel.Type {
	for _, t := range d.Types {
		if strings.EqualFold(t.Code, code) {
			return t
		}
	}
	return nil
}

// CountryByID 按ID查找国家
func (d *ReferenceData) CountryByID(id uint64) *projmodel.Country {
	for _, c := range d.Countries {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// TypeByID 按ID查找类型
func (d *ReferenceData) TypeByID(id uint64) *projmodel.Type {
	for _, t := range d.Types {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// ToID 把项目编码解析为项目ID，未知编码返回 ErrProjectNotFound
func (s *ProjectService) ToID(ctx context.Context, code string) (uint64, error) {
	project, err := s.GetByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return project.ID, nil
}

// GetByCode 根据编码获取项目
func (s *ProjectService) GetByCode(ctx context.Context, code string) (*projmodel.Project, error) {
	project, err := s.repo.GetProjectByCode(ctx, code)
	if err != nil {
		logger.LogBusinessError(err, "", "", "", "get_project_by_code", "SERVICE", map[string]interface{}{
			"operation": "get_project_by_code",
			"code":      code,
		})
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("%w: %s", system.ErrProjectNotFound, code)
	}
	return project, nil
}

// ListProjects 获取全部项目
func (s *ProjectService) ListProjects(ctx context.Context) ([]*projmodel.Project, error) {
	return s.repo.ListProjects(ctx)
}

// LoadReferenceData 读取项目的国家、类型(含来源)和严重级别
func (s *ProjectService) LoadReferenceData(ctx context.Context, projectID uint64) (*ReferenceData, error) {
	countries, err := s.repo.ListCountries(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	types, err := s.repo.ListTypes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load types: %w", err)
	}
	severities, err := s.repo.ListSeverities(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load severities: %w", err)
	}
	return &ReferenceData{Countries: countries, Types: types, Severities: severities}, nil
}

// ListCycleDefinitions 获取项目的周期定义
func (s *ProjectService) ListCycleDefinitions(ctx context.Context, projectID uint64) ([]*projmodel.CycleDefinition, error) {
	return s.repo.ListCycleDefinitions(ctx, projectID)
}

// GetCycleDefinition 获取周期定义，不存在返回 ErrCycleDefinitionNotFound
func (s *ProjectService) GetCycleDefinition(ctx context.Context, projectID uint64, branch, cycle string) (*projmodel.CycleDefinition, error) {
	cycleDefinition, err := s.repo.GetCycleDefinition(ctx, projectID, branch, cycle)
	if err != nil {
		return nil, err
	}
	if cycleDefinition == nil {
		return nil, fmt.Errorf("%w: %s/%s", system.ErrCycleDefinitionNotFound, branch, cycle)
	}
	return cycleDefinition, nil
}
