package setting

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aramaster/internal/model/system"
	"aramaster/internal/pkg/logger"
	projrepo "aramaster/internal/repo/mysql/project"
)

// Settings 某个项目配置的只读快照，缺省值已合并
type Settings struct {
	values map[string]string
}

// NewSettings 从键值创建快照，未给出的键使用默认值
func NewSettings(values map[string]string) *Settings {
	merged := make(map[string]string, len(definitions))
	for key, def := range definitions {
		merged[key] = def.defaultValue
	}
	for key, value := range values {
		merged[key] = value
	}
	return &Settings{values: merged}
}

// Get 读取配置，未定义的键返回空串
func (s *Settings) Get(key string) string {
	return s.values[key]
}

// GetBool 读取布尔配置，无法解析时使用默认值
func (s *Settings) GetBool(key string) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(s.values[key])); err == nil {
		return v
	}
	v, _ := strconv.ParseBool(definitions[key].defaultValue)
	return v
}

// SettingView 对外展示的配置项，敏感值打码
type SettingView struct {
	Code         string `json:"code"`
	Value        string `json:"value"`
	DefaultValue string `json:"default_value"`
}

// SettingService 项目配置读写
// 每次调用都从库中读取，不做跨调用缓存
type SettingService struct {
	repo *projrepo.ProjectRepository
}

// NewSettingService 创建 SettingService 实例
func NewSettingService(repo *projrepo.ProjectRepository) *SettingService {
	return &SettingService{repo: repo}
}

// Load 读取项目配置快照
func (s *SettingService) Load(ctx context.Context, projectID uint64) (*Settings, error) {
	rows, err := s.repo.ListSettings(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load settings of project %d: %w", projectID, err)
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Code] = row.Value
	}
	return NewSettings(values), nil
}

// Get 读取单个配置
func (s *SettingService) Get(ctx context.Context, projectID uint64, key string) (string, error) {
	settings, err := s.Load(ctx, projectID)
	if err != nil {
		return "", err
	}
	return settings.Get(key), nil
}

// List 列出全部已定义配置项
func (s *SettingService) List(ctx context.Context, projectID uint64) ([]SettingView, error) {
	settings, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	views := make([]SettingView, 0, len(definitions))
	for key, def := range definitions {
		value := settings.Get(key)
		if def.secret && value != "" {
			value = "********"
		}
		views = append(views, SettingView{Code: key, Value: value, DefaultValue: def.defaultValue})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Code < views[j].Code })
	return views, nil
}

// Update 校验后写入配置
func (s *SettingService) Update(ctx context.Context, projectID uint64, key, value string) error {
	def, known := definitions[key]
	if !known {
		return fmt.Errorf("%w: %s", system.ErrSettingNotFound, key)
	}
	if def.validate != nil {
		if err := def.validate(value); err != nil {
			return fmt.Errorf("%w: %s: %v", system.ErrInvalidSettingValue, key, err)
		}
	}
	if err := s.repo.UpsertSetting(ctx, projectID, key, value); err != nil {
		return err
	}
	logger.LogBusinessOperation("update_setting", "", "", "", "success", "setting updated", map[string]interface{}{
		"project_id": projectID,
		"code":       key,
	})
	return nil
}

func notBlank(value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("value cannot be blank")
	}
	return nil
}

func isBool(value string) error {
	_, err := strconv.ParseBool(strings.TrimSpace(value))
	return err
}

func isEmptyOrNonNegativeInt(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("value must be positive or zero")
	}
	return nil
}

func isEmptyOrPurgeUnit(value string) error {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "DAY", "WEEK", "MONTH", "YEAR":
		return nil
	}
	return fmt.Errorf("unit must be one of DAY, WEEK, MONTH, YEAR")
}

func isDefectIndexer(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "github", "jira":
		return nil
	}
	return fmt.Errorf("defect indexer must be github or jira")
}
