package execution

import (
	"aramaster/internal/model/project"
)

// PlannedIndexation 一个待索引的原始任务目录
type PlannedIndexation struct {
	ProjectID       uint64                   `json:"project_id"`
	ProjectCode     string                   `json:"project_code"`
	CycleDefinition *project.CycleDefinition `json:"cycle_definition"`
	RawFolder       string                   `json:"raw_folder"`
}

// QualityThreshold 某严重级别的阈值(百分比)
type QualityThreshold struct {
	Failure int `json:"failure"`
	Warning int `json:"warning"`
}

// ToStatus 通过率低于 failure 为 FAILED，低于 warning 为 WARNING
func (t QualityThreshold) ToStatus(percent int) QualityStatus {
	switch {
	case percent < t.Failure:
		return QualityFailed
	case percent < t.Warning:
		return QualityWarning
	default:
		return QualityPassed
	}
}

// ScenarioCounts 场景计数
type ScenarioCounts struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
	Passed int `json:"passed"`
}

// QualitySeverity 某严重级别("*" 表示全部)的质量结果
type QualitySeverity struct {
	Severity       string         `json:"severity"`
	ScenarioCounts ScenarioCounts `json:"scenarioCounts"`
	Percent        int            `json:"percent"`
	Status         QualityStatus  `json:"status"`
}

// QualityNotification 执行完成后发布的质量通知
type QualityNotification struct {
	ExecutionID   uint64        `json:"execution_id"`
	ProjectID     uint64        `json:"project_id"`
	Branch        string        `json:"branch"`
	Cycle         string        `json:"cycle"`
	JobLink       string        `json:"job_link"`
	QualityStatus QualityStatus `json:"quality_status"`
	TestDateTime  int64         `json:"test_date_time"`
}

// ErrorContext 错误及其所在场景、运行、执行的扁平投影，用于模式匹配和重索引比对
type ErrorContext struct {
	ErrorID            uint64 `json:"error_id"`
	ExecutedScenarioID uint64 `json:"executed_scenario_id"`
	ExecutionID        uint64 `json:"execution_id"`
	FeatureFile        string `json:"feature_file"`
	FeatureName        string `json:"feature_name"`
	ScenarioName       string `json:"scenario_name"`
	ScenarioLine       int    `json:"scenario_line"`
	Step               string `json:"step"`
	StepLine           int    `json:"step_line"`
	StepDefinition     string `json:"step_definition"`
	Exception          string `json:"exception"`
	Release            string `json:"release"`
	CountryID          uint64 `json:"country_id"`
	TypeID             uint64 `json:"type_id"`
	TypeIsBrowser      bool   `json:"type_is_browser"`
	TypeIsMobile       bool   `json:"type_is_mobile"`
	Platform           string `json:"platform"`
}
