/**
 * 模型:问题
 * @author: sun977
 * @date: 2025.10.14
 * @description: 问题、问题模式与问题出现记录(错误和模式的多对多关联)
 */
package problem

import (
	"time"

	"aramaster/internal/model/basemodel"
)

// Status 问题状态
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
	// StatusReappeared 仅作为展示状态，不落库
	StatusReappeared Status = "REAPPEARED"
)

// DefectExistence 缺陷在缺陷系统中是否存在
type DefectExistence string

const (
	DefectExists      DefectExistence = "EXISTS"
	DefectNonexistent DefectExistence = "NONEXISTENT"
	DefectUnknown     DefectExistence = "UNKNOWN"
)

// Problem 问题
type Problem struct {
	basemodel.BaseModel

	ProjectID         uint64          `json:"project_id" gorm:"index;not null"`
	Name              string          `json:"name" gorm:"size:256;not null;comment:问题名称"`
	Comment           string          `json:"comment" gorm:"type:text"`
	Status            Status          `json:"status" gorm:"size:16;not null"`
	BlamedTeamID      *uint64         `json:"blamed_team_id"`
	RootCauseID       *uint64         `json:"root_cause_id"`
	DefectID          string          `json:"defect_id" gorm:"size:32"`
	DefectExistence   DefectExistence `json:"defect_existence" gorm:"size:16"`
	ClosingDateTime   *time.Time      `json:"closing_date_time"`
	CreationDateTime  time.Time       `json:"creation_date_time" gorm:"not null"`
	FirstSeenDateTime *time.Time      `json:"first_seen_date_time" gorm:"comment:最早出现时间(反范式)"`
	LastSeenDateTime  *time.Time      `json:"last_seen_date_time" gorm:"comment:最近出现时间(反范式)"`

	Patterns []*ProblemPattern `json:"patterns,omitempty" gorm:"-"`
}

func (Problem) TableName() string {
	return "problems"
}

// IsReappeared 已关闭但关闭之后又出现
func (p *Problem) IsReappeared() bool {
	return p.Status == StatusClosed &&
		p.ClosingDateTime != nil &&
		p.LastSeenDateTime != nil &&
		p.ClosingDateTime.Before(*p.LastSeenDateTime)
}

// EffectiveStatus 对外展示的状态
func (p *Problem) EffectiveStatus() Status {
	if p.IsReappeared() {
		return StatusReappeared
	}
	return p.Status
}

// ProblemPattern 问题模式，所有非空条件同时满足才算匹配
// Exception 和 startsWith 条件按 LIKE 前缀匹配(支持 % 和 _)，其余条件完全相等
type ProblemPattern struct {
	basemodel.BaseModel

	ProblemID                uint64  `json:"problem_id" gorm:"index;not null"`
	FeatureFile              string  `json:"feature_file" gorm:"size:256"`
	FeatureName              string  `json:"feature_name" gorm:"size:256"`
	ScenarioName             string  `json:"scenario_name" gorm:"size:512"`
	ScenarioNameStartsWith   bool    `json:"scenario_name_starts_with"`
	Step                     string  `json:"step" gorm:"size:2048"`
	StepStartsWith           bool    `json:"step_starts_with"`
	StepDefinition           string  `json:"step_definition" gorm:"size:2048"`
	StepDefinitionStartsWith bool    `json:"step_definition_starts_with"`
	Exception                string  `json:"exception" gorm:"type:text"`
	Release                  string  `json:"release" gorm:"column:release_code;size:32"`
	CountryID                *uint64 `json:"country_id"`
	TypeID                   *uint64 `json:"type_id"`
	TypeIsBrowser            *bool   `json:"type_is_browser"`
	TypeIsMobile             *bool   `json:"type_is_mobile"`
	Platform                 string  `json:"platform" gorm:"size:32"`
}

func (ProblemPattern) TableName() string {
	return "problem_patterns"
}

// SameCriteria 判断两个模式的匹配条件是否完全一致
func (p *ProblemPattern) SameCriteria(o *ProblemPattern) bool {
	return p.FeatureFile == o.FeatureFile &&
		p.FeatureName == o.FeatureName &&
		p.ScenarioName == o.ScenarioName &&
		p.ScenarioNameStartsWith == o.ScenarioNameStartsWith &&
		p.Step == o.Step &&
		p.StepStartsWith == o.StepStartsWith &&
		p.StepDefinition == o.StepDefinition &&
		p.StepDefinitionStartsWith == o.StepDefinitionStartsWith &&
		p.Exception == o.Exception &&
		p.Release == o.Release &&
		equalPtr(p.CountryID, o.CountryID) &&
		equalPtr(p.TypeID, o.TypeID) &&
		equalPtr(p.TypeIsBrowser, o.TypeIsBrowser) &&
		equalPtr(p.TypeIsMobile, o.TypeIsMobile) &&
		p.Platform == o.Platform
}

// IsEmpty 没有任何条件的模式会匹配所有错误，不允许保存
func (p *ProblemPattern) IsEmpty() bool {
	return p.FeatureFile == "" && p.FeatureName == "" && p.ScenarioName == "" &&
		p.Step == "" && p.StepDefinition == "" && p.Exception == "" &&
		p.Release == "" && p.CountryID == nil && p.TypeID == nil &&
		p.TypeIsBrowser == nil && p.TypeIsMobile == nil && p.Platform == ""
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ProblemOccurrence 错误与问题模式的关联，(ErrorID, ProblemPatternID) 联合主键
type ProblemOccurrence struct {
	ErrorID          uint64 `json:"error_id" gorm:"primaryKey;autoIncrement:false"`
	ProblemPatternID uint64 `json:"problem_pattern_id" gorm:"primaryKey;autoIncrement:false;index"`
}

func (ProblemOccurrence) TableName() string {
	return "problem_occurrences"
}
