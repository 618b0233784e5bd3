package project

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/database"
	"aramaster/internal/pkg/logger"
	projrepo "aramaster/internal/repo/mysql/project"
	"aramaster/internal/service/setting"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile 初始化参考数据的 YAML 文件
type SeedFile struct {
	Projects []SeedProject `yaml:"projects"`
}

// SeedProject 一个项目及其参考数据
type SeedProject struct {
	Code       string            `yaml:"code"`
	Name       string            `yaml:"name"`
	Default    bool              `yaml:"default"`
	Countries  []SeedCode        `yaml:"countries"`
	Sources    []SeedSource      `yaml:"sources"`
	Types      []SeedType        `yaml:"types"`
	Severities []SeedSeverity    `yaml:"severities"`
	Cycles     []SeedCycle       `yaml:"cycles"`
	Teams      []string          `yaml:"teams"`
	RootCauses []string          `yaml:"root_causes"`
	Settings   map[string]string `yaml:"settings"`
}

type SeedCode struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type SeedSource struct {
	Code       string               `yaml:"code"`
	Name       string               `yaml:"name"`
	Technology projmodel.Technology `yaml:"technology"`
}

type SeedType struct {
	Code    string `yaml:"code"`
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Browser bool   `yaml:"browser"`
	Mobile  bool   `yaml:"mobile"`
}

type SeedSeverity struct {
	Code             string `yaml:"code"`
	Position         int    `yaml:"position"`
	Name             string `yaml:"name"`
	DefaultOnMissing bool   `yaml:"default_on_missing"`
}

type SeedCycle struct {
	Branch         string `yaml:"branch"`
	Name           string `yaml:"name"`
	BranchPosition int    `yaml:"branch_position"`
}

// LoadSeedFile 读取种子文件，未知字段视为错误
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file SeedFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &file, nil
}

// SeedProjects 每个项目在独立事务中创建，已存在的项目整体跳过
// 返回新建的项目编码
func SeedProjects(ctx context.Context, db *gorm.DB, file *SeedFile) ([]string, error) {
	var created []string
	for i := range file.Projects {
		sp := &file.Projects[i]
		if strings.TrimSpace(sp.Code) == "" {
			return created, fmt.Errorf("seed project #%d has no code", i+1)
		}
		existing, err := projrepo.NewProjectRepository(db).GetProjectByCode(ctx, sp.Code)
		if err != nil {
			return created, err
		}
		if existing != nil {
			logger.LogBusinessOperation("seed_project", "migrate", "", "", "skipped", "project already exists", map[string]interface{}{
				"code": sp.Code,
			})
			continue
		}

		err = database.RunInTransaction(ctx, db, func(tx *gorm.DB, _ *database.AfterCommit) error {
			return seedProject(ctx, projrepo.NewProjectRepository(tx), sp)
		})
		if err != nil {
			return created, fmt.Errorf("seed project %s: %w", sp.Code, err)
		}
		created = append(created, sp.Code)
	}
	return created, nil
}

func seedProject(ctx context.Context, repo *projrepo.ProjectRepository, sp *SeedProject) error {
	name := sp.Name
	if name == "" {
		name = sp.Code
	}
	p := &projmodel.Project{Code: sp.Code, Name: name, DefaultProject: sp.Default}
	if err := repo.CreateProject(ctx, p); err != nil {
		return err
	}

	var refs []interface{}
	for _, c := range sp.Countries {
		refs = append(refs, &projmodel.Country{ProjectID: p.ID, Code: strings.ToLower(c.Code), Name: c.Name})
	}
	sources := make(map[string]*projmodel.Source, len(sp.Sources))
	for _, s := range sp.Sources {
		source := &projmodel.Source{ProjectID: p.ID, Code: s.Code, Name: s.Name, Technology: s.Technology}
		if err := repo.CreateReference(ctx, source); err != nil {
			return err
		}
		sources[s.Code] = source
	}
	for _, t := range sp.Types {
		typ := &projmodel.Type{ProjectID: p.ID, Code: t.Code, Name: t.Name, IsBrowser: t.Browser, IsMobile: t.Mobile}
		if t.Source != "" {
			source, ok := sources[t.Source]
			if !ok {
				return fmt.Errorf("type %s references unknown source %s", t.Code, t.Source)
			}
			typ.SourceID = &source.ID
		}
		refs = append(refs, typ)
	}
	for _, s := range sp.Severities {
		refs = append(refs, &projmodel.Severity{ProjectID: p.ID, Code: s.Code, Position: s.Position, Name: s.Name, DefaultOnMissing: s.DefaultOnMissing})
	}
	for _, c := range sp.Cycles {
		refs = append(refs, &projmodel.CycleDefinition{ProjectID: p.ID, Branch: c.Branch, Name: c.Name, BranchPosition: c.BranchPosition})
	}
	for _, team := range sp.Teams {
		refs = append(refs, &projmodel.Team{ProjectID: p.ID, Name: team, AssignableToProblems: true})
	}
	for _, rc := range sp.RootCauses {
		refs = append(refs, &projmodel.RootCause{ProjectID: p.ID, Name: rc})
	}
	for _, ref := range refs {
		if err := repo.CreateReference(ctx, ref); err != nil {
			return err
		}
	}

	// 配置走校验，非法值让整个项目回滚
	keys := make([]string, 0, len(sp.Settings))
	for key := range sp.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	settings := setting.NewSettingService(repo)
	for _, key := range keys {
		if err := settings.Update(ctx, p.ID, key, sp.Settings[key]); err != nil {
			return err
		}
	}
	return nil
}
