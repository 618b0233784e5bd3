/**
 * 模型:执行聚合
 * @author: sun977
 * @date: 2025.10.14
 * @description: 一次 CI 任务(项目/分支/周期)的执行结果，包含运行、国家部署、场景与错误
 * @func: Execution, Run, CountryDeployment, ExecutedScenario, Error
 */
package execution

import (
	"time"

	"aramaster/internal/model/basemodel"
	"aramaster/internal/model/project"
)

// JobLinkMaxLength 原始目录规范路径的最大字符数，与 job_link 列宽一致
const JobLinkMaxLength = 512

// Execution 执行，(ProjectID, JobLink) 唯一
// 子对象不使用 GORM 关联，由仓库按 ID 集合显式分批加载
type Execution struct {
	basemodel.BaseModel

	ProjectID          uint64        `json:"project_id" gorm:"uniqueIndex:idx_execution_project_link;not null;comment:项目ID"`
	CycleDefinitionID  uint64        `json:"cycle_definition_id" gorm:"index;comment:周期定义ID"`
	Branch             string        `json:"branch" gorm:"size:16;comment:分支"`
	Name               string        `json:"name" gorm:"size:16;comment:周期名"`
	Release            string        `json:"release" gorm:"column:release_code;size:32;comment:发布版本"`
	Version            string        `json:"version" gorm:"size:64;comment:构建版本"`
	BuildDateTime      *time.Time    `json:"build_date_time" gorm:"comment:被测版本构建时间"`
	TestDateTime       time.Time     `json:"test_date_time" gorm:"index;not null;comment:测试时间"`
	JobURL             string        `json:"job_url" gorm:"size:256;comment:CI 任务URL"`
	JobLink            string        `json:"job_link" gorm:"size:512;uniqueIndex:idx_execution_project_link;comment:原始目录规范路径"`
	Status             JobStatus     `json:"status" gorm:"size:16;not null;comment:任务状态"`
	Result             Result        `json:"result" gorm:"size:16;comment:构建结果"`
	Acceptance         Acceptance    `json:"acceptance" gorm:"size:16;not null;comment:验收状态"`
	DiscardReason      string        `json:"discard_reason" gorm:"size:512;comment:丢弃原因"`
	BlockingValidation bool          `json:"blocking_validation" gorm:"comment:是否阻塞验收"`
	QualityThresholds  string        `json:"quality_thresholds" gorm:"size:256;comment:质量阈值(JSON)"`
	QualityStatus      QualityStatus `json:"quality_status" gorm:"size:10;not null;comment:质量状态"`
	QualitySeverities  string        `json:"quality_severities" gorm:"type:text;comment:各严重级别质量(JSON)"`
	Duration           int64         `json:"duration" gorm:"comment:耗时(毫秒)"`
	EstimatedDuration  int64         `json:"estimated_duration" gorm:"comment:预估耗时(毫秒)"`

	Runs               []*Run               `json:"runs,omitempty" gorm:"-"`
	CountryDeployments []*CountryDeployment `json:"country_deployments,omitempty" gorm:"-"`
}

func (Execution) TableName() string {
	return "executions"
}

// Run 一次执行中的 国家/类型/平台 组合
type Run struct {
	basemodel.BaseModel

	ExecutionID         uint64     `json:"execution_id" gorm:"index;not null"`
	CountryID           uint64     `json:"country_id" gorm:"not null"`
	TypeID              uint64     `json:"type_id" gorm:"not null"`
	Comment             string     `json:"comment" gorm:"size:1024"`
	Platform            string     `json:"platform" gorm:"size:32"`
	JobURL              string     `json:"job_url" gorm:"size:256"`
	JobLink             string     `json:"job_link" gorm:"size:512"`
	Status              JobStatus  `json:"status" gorm:"size:16"`
	CountryTags         string     `json:"country_tags" gorm:"size:32"`
	StartDateTime       *time.Time `json:"start_date_time"`
	EstimatedDuration   int64      `json:"estimated_duration"`
	Duration            int64      `json:"duration"`
	SeverityTags        string     `json:"severity_tags" gorm:"size:64"`
	IncludeInThresholds bool       `json:"include_in_thresholds"`

	Country           *project.Country    `json:"country,omitempty" gorm:"-"`
	Type              *project.Type       `json:"type,omitempty" gorm:"-"`
	ExecutedScenarios []*ExecutedScenario `json:"executed_scenarios,omitempty" gorm:"-"`
}

func (Run) TableName() string {
	return "runs"
}

// CountryDeployment 国家/平台 部署任务
type CountryDeployment struct {
	basemodel.BaseModel

	ExecutionID       uint64     `json:"execution_id" gorm:"index;not null"`
	CountryID         uint64     `json:"country_id" gorm:"not null"`
	Platform          string     `json:"platform" gorm:"size:32"`
	JobURL            string     `json:"job_url" gorm:"size:256"`
	JobLink           string     `json:"job_link" gorm:"size:512"`
	Status            JobStatus  `json:"status" gorm:"size:16"`
	Result            Result     `json:"result" gorm:"size:16"`
	StartDateTime     *time.Time `json:"start_date_time"`
	EstimatedDuration int64      `json:"estimated_duration"`
	Duration          int64      `json:"duration"`

	Country *project.Country `json:"country,omitempty" gorm:"-"`
}

func (CountryDeployment) TableName() string {
	return "country_deployments"
}

// ExecutedScenario 执行的场景，业务键: run + featureFile + name + line
type ExecutedScenario struct {
	basemodel.BaseModel

	RunID               uint64     `json:"run_id" gorm:"index;not null"`
	FeatureFile         string     `json:"feature_file" gorm:"size:256"`
	FeatureName         string     `json:"feature_name" gorm:"size:256"`
	FeatureTags         string     `json:"feature_tags" gorm:"size:256"`
	Tags                string     `json:"tags" gorm:"size:256"`
	Severity            string     `json:"severity" gorm:"size:32"`
	Name                string     `json:"name" gorm:"size:512"`
	CucumberID          string     `json:"cucumber_id" gorm:"size:640"`
	Line                int        `json:"line"`
	Content             string     `json:"content" gorm:"type:text"`
	StartDateTime       *time.Time `json:"start_date_time"`
	ScreenshotURL       string     `json:"screenshot_url" gorm:"size:512"`
	VideoURL            string     `json:"video_url" gorm:"size:512"`
	LogsURL             string     `json:"logs_url" gorm:"size:512"`
	HTTPRequestsURL     string     `json:"http_requests_url" gorm:"size:512"`
	JavaScriptErrorsURL string     `json:"java_script_errors_url" gorm:"size:512"`
	DiffReportURL       string     `json:"diff_report_url" gorm:"size:512"`
	CucumberReportURL   string     `json:"cucumber_report_url" gorm:"size:512"`
	APIServer           string     `json:"api_server" gorm:"size:16"`
	SeleniumNode        string     `json:"selenium_node" gorm:"size:128"`

	Errors   []*Error `json:"errors,omitempty" gorm:"-"`
	Handling Handling `json:"handling,omitempty" gorm:"-"`
}

func (ExecutedScenario) TableName() string {
	return "executed_scenarios"
}

// Error 场景中的一个失败步骤
type Error struct {
	basemodel.BaseModel

	ExecutedScenarioID uint64 `json:"executed_scenario_id" gorm:"index;not null"`
	Step               string `json:"step" gorm:"size:2048"`
	StepLine           int    `json:"step_line"`
	StepDefinition     string `json:"step_definition" gorm:"size:2048"`
	Exception          string `json:"exception" gorm:"type:text"`
}

func (Error) TableName() string {
	return "errors"
}
