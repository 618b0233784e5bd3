/**
 * 模型:项目与参考数据
 * @author: sun977
 * @date: 2025.10.14
 * @description: 项目、国家、测试类型、报告来源、严重级别、周期定义、团队、根因、配置项
 */
package project

import "aramaster/internal/model/basemodel"

// Technology 报告来源技术
type Technology string

const (
	TechnologyCucumber Technology = "CUCUMBER"
	TechnologyPostman  Technology = "POSTMAN"
	TechnologyKarate   Technology = "KARATE"
	TechnologyGeneric  Technology = "GENERIC"
)

// Project 项目
type Project struct {
	basemodel.BaseModel

	Code           string `json:"code" gorm:"size:32;uniqueIndex;not null;comment:项目编码"`
	Name           string `json:"name" gorm:"size:64;not null;comment:项目名称"`
	DefaultProject bool   `json:"default_project" gorm:"default:false;comment:是否默认项目"`
}

func (Project) TableName() string {
	return "projects"
}

// Country 国家(或站点)，原始目录第一层使用小写编码
type Country struct {
	basemodel.BaseModel

	ProjectID uint64 `json:"project_id" gorm:"uniqueIndex:idx_country_project_code;not null"`
	Code      string `json:"code" gorm:"size:16;uniqueIndex:idx_country_project_code;not null;comment:国家编码"`
	Name      string `json:"name" gorm:"size:40;comment:国家名称"`
}

func (Country) TableName() string {
	return "countries"
}

// Source 报告来源，决定解析器
type Source struct {
	basemodel.BaseModel

	ProjectID  uint64     `json:"project_id" gorm:"uniqueIndex:idx_source_project_code;not null"`
	Code       string     `json:"code" gorm:"size:16;uniqueIndex:idx_source_project_code;not null;comment:来源编码"`
	Name       string     `json:"name" gorm:"size:32;comment:来源名称"`
	Technology Technology `json:"technology" gorm:"size:16;not null;comment:报告技术(CUCUMBER/POSTMAN/KARATE/GENERIC)"`
}

func (Source) TableName() string {
	return "sources"
}

// Type 测试类型，原始目录第二层使用该编码(大小写不敏感)
type Type struct {
	basemodel.BaseModel

	ProjectID uint64  `json:"project_id" gorm:"uniqueIndex:idx_type_project_code;not null"`
	Code      string  `json:"code" gorm:"size:16;uniqueIndex:idx_type_project_code;not null;comment:类型编码"`
	Name      string  `json:"name" gorm:"size:50;comment:类型名称"`
	IsBrowser bool    `json:"is_browser" gorm:"default:false;comment:是否浏览器测试"`
	IsMobile  bool    `json:"is_mobile" gorm:"default:false;comment:是否移动端测试"`
	SourceID  *uint64 `json:"source_id" gorm:"comment:报告来源ID"`
	Source    *Source `json:"source,omitempty" gorm:"-"`
}

func (Type) TableName() string {
	return "types"
}

// Severity 严重级别
type Severity struct {
	basemodel.BaseModel

	ProjectID        uint64 `json:"project_id" gorm:"uniqueIndex:idx_severity_project_code;not null"`
	Code             string `json:"code" gorm:"size:32;uniqueIndex:idx_severity_project_code;not null;comment:严重级别编码"`
	Position         int    `json:"position" gorm:"comment:排序"`
	Name             string `json:"name" gorm:"size:32;comment:名称"`
	DefaultOnMissing bool   `json:"default_on_missing" gorm:"default:false;comment:场景未标注时使用"`
}

func (Severity) TableName() string {
	return "severities"
}

// CycleDefinition 周期定义(分支 + 周期名)
type CycleDefinition struct {
	basemodel.BaseModel

	ProjectID      uint64 `json:"project_id" gorm:"uniqueIndex:idx_cycle_project_branch_name;not null"`
	Branch         string `json:"branch" gorm:"size:16;uniqueIndex:idx_cycle_project_branch_name;not null;comment:分支"`
	Name           string `json:"name" gorm:"size:16;uniqueIndex:idx_cycle_project_branch_name;not null;comment:周期名"`
	BranchPosition int    `json:"branch_position" gorm:"comment:分支排序"`
}

func (CycleDefinition) TableName() string {
	return "cycle_definitions"
}

// Team 团队
type Team struct {
	basemodel.BaseModel

	ProjectID            uint64 `json:"project_id" gorm:"index;not null"`
	Name                 string `json:"name" gorm:"size:128;not null"`
	AssignableToProblems bool   `json:"assignable_to_problems" gorm:"default:true"`
}

func (Team) TableName() string {
	return "teams"
}

// RootCause 问题根因，关闭问题时必填
type RootCause struct {
	basemodel.BaseModel

	ProjectID uint64 `json:"project_id" gorm:"index;not null"`
	Name      string `json:"name" gorm:"size:128;not null"`
}

func (RootCause) TableName() string {
	return "root_causes"
}

// Setting 项目级配置项
type Setting struct {
	basemodel.BaseModel

	ProjectID uint64 `json:"project_id" gorm:"uniqueIndex:idx_setting_project_code;not null"`
	Code      string `json:"code" gorm:"size:64;uniqueIndex:idx_setting_project_code;not null;comment:配置键"`
	Value     string `json:"value" gorm:"size:512;comment:配置值"`
}

func (Setting) TableName() string {
	return "settings"
}
