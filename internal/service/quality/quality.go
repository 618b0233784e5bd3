/**
 * 服务层:执行质量
 * @author: sun977
 * @date: 2025.10.16
 * @description: 按严重级别统计参与阈值的运行中的场景，计算执行的质量状态；执行完成后发布质量通知
 * @func: ComputeQuality, QualityService.NotifyHook
 */
package quality

import (
	"context"
	"encoding/json"
	"strings"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/logger"

	"github.com/sirupsen/logrus"
)

// SeverityAll 汇总所有场景的虚拟严重级别
const SeverityAll = "*"

// severityTagsSeparator 运行的 severityTags 分隔符
const severityTagsSeparator = ","

// Publisher 质量通知发布者
type Publisher interface {
	Publish(ctx context.Context, notification *execmodel.QualityNotification) error
}

// LogPublisher 未启用 Redis 时只把通知写入业务日志
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, n *execmodel.QualityNotification) error {
	logger.LogBusinessOperation("quality_notification", "indexer", "", "", "success",
		"execution quality is ready", map[string]interface{}{
			"execution_id":   n.ExecutionID,
			"project_id":     n.ProjectID,
			"branch":         n.Branch,
			"cycle":          n.Cycle,
			"quality_status": string(n.QualityStatus),
		})
	return nil
}

// QualityService 质量通知服务
type QualityService struct {
	publisher Publisher
	enabled   bool
}

// NewQualityService publisher 为 nil 时退回 LogPublisher
func NewQualityService(publisher Publisher, enabled bool) *QualityService {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &QualityService{publisher: publisher, enabled: enabled}
}

// NotifyHook 返回提交后钩子，在事务提交后发布执行的质量通知
func (s *QualityService) NotifyHook(execution *execmodel.Execution) func(ctx context.Context) error {
	notification := &execmodel.QualityNotification{
		ExecutionID:   execution.ID,
		ProjectID:     execution.ProjectID,
		Branch:        execution.Branch,
		Cycle:         execution.Name,
		JobLink:       execution.JobLink,
		QualityStatus: execution.QualityStatus,
		TestDateTime:  execution.TestDateTime.UnixMilli(),
	}
	return func(ctx context.Context) error {
		if !s.enabled {
			return nil
		}
		return s.publisher.Publish(ctx, notification)
	}
}

// ComputeQuality 计算并写入 execution.QualityStatus 与 execution.QualitySeverities
// severities 为项目的严重级别，按 position 排序；运行需已挂载场景与错误
// 质量只会被降级：阈值缺失或无法解析、参与阈值的运行未完成或没有场景时为 INCOMPLETE
func ComputeQuality(execution *execmodel.Execution, severities []*projmodel.Severity) {
	global := execmodel.QualityPassed

	var thresholds map[string]execmodel.QualityThreshold
	if strings.TrimSpace(execution.QualityThresholds) != "" {
		if err := json.Unmarshal([]byte(execution.QualityThresholds), &thresholds); err != nil {
			logger.LogIndexation(logrus.ErrorLevel, "cannot parse quality thresholds, execution marked as incomplete", map[string]interface{}{
				"operation":  "compute_quality",
				"job_link":   execution.JobLink,
				"thresholds": execution.QualityThresholds,
				"error":      err.Error(),
			})
			thresholds = nil
			global = execmodel.QualityIncomplete
		}
	}

	runs := runsToIncludeInQuality(execution)
	var results []execmodel.QualitySeverity
	for _, severity := range activeSeverities(runs, severities) {
		result := qualityOfSeverity(runs, severity)
		threshold, ok := thresholds[severity.Code]
		if ok {
			result.Status = threshold.ToStatus(result.Percent)
		} else {
			logger.LogIndexation(logrus.WarnLevel, "no quality threshold for severity, execution marked as incomplete", map[string]interface{}{
				"operation": "compute_quality",
				"job_link":  execution.JobLink,
				"severity":  severity.Code,
			})
			result.Status = execmodel.QualityIncomplete
		}
		global = global.Worst(result.Status)
		results = append(results, result)
	}

	if !isComplete(runs) {
		global = execmodel.QualityIncomplete
	}
	all := qualityOfSeverity(runs, nil)
	all.Status = global
	results = append(results, all)

	data, _ := json.Marshal(results)
	execution.QualitySeverities = string(data)
	execution.QualityStatus = global
}

func runsToIncludeInQuality(execution *execmodel.Execution) []*execmodel.Run {
	var runs []*execmodel.Run
	for _, run := range execution.Runs {
		if run.IncludeInThresholds {
			runs = append(runs, run)
		}
	}
	return runs
}

// activeSeverities 参与阈值的运行的 severityTags 并集，空或 "all" 表示全部
// 没有参与阈值的运行时也返回全部
func activeSeverities(runs []*execmodel.Run, severities []*projmodel.Severity) []*projmodel.Severity {
	if len(runs) == 0 {
		return severities
	}
	active := make(map[string]bool, len(severities))
	for _, run := range runs {
		tags := strings.TrimSpace(run.SeverityTags)
		if tags == "" || tags == "all" {
			return severities
		}
		for _, code := range strings.Split(tags, severityTagsSeparator) {
			code = strings.TrimSpace(code)
			if !hasSeverity(severities, code) {
				logger.LogIndexation(logrus.WarnLevel, "unknown severity in run severity tags", map[string]interface{}{
					"operation": "compute_quality",
					"run_link":  run.JobLink,
					"severity":  code,
				})
				continue
			}
			active[code] = true
		}
	}
	// 保持 position 顺序
	var result []*projmodel.Severity
	for _, severity := range severities {
		if active[severity.Code] {
			result = append(result, severity)
		}
	}
	return result
}

func hasSeverity(severities []*projmodel.Severity, code string) bool {
	for _, severity := range severities {
		if severity.Code == code {
			return true
		}
	}
	return false
}

// qualityOfSeverity severity 为 nil 时统计全部场景
func qualityOfSeverity(runs []*execmodel.Run, severity *projmodel.Severity) execmodel.QualitySeverity {
	code := SeverityAll
	if severity != nil {
		code = severity.Code
	}
	var counts execmodel.ScenarioCounts
	for _, run := range runs {
		for _, scenario := range run.ExecutedScenarios {
			if severity != nil && !belongsTo(scenario, severity) {
				continue
			}
			counts.Total++
			if len(scenario.Errors) == 0 {
				counts.Passed++
			} else {
				counts.Failed++
			}
		}
	}
	return execmodel.QualitySeverity{
		Severity:       code,
		ScenarioCounts: counts,
		Percent:        Percent(counts),
	}
}

func belongsTo(scenario *execmodel.ExecutedScenario, severity *projmodel.Severity) bool {
	if scenario.Severity == "" {
		return severity.DefaultOnMissing
	}
	return scenario.Severity == severity.Code
}

// Percent 通过率向下取整，没有场景时为 100
func Percent(counts execmodel.ScenarioCounts) int {
	if counts.Total <= 0 {
		return 100
	}
	return 100 * counts.Passed / counts.Total
}

// isComplete 参与阈值的运行都已完成且至少有一个场景
func isComplete(runs []*execmodel.Run) bool {
	for _, run := range runs {
		if run.Status != execmodel.JobStatusDone || len(run.ExecutedScenarios) == 0 {
			return false
		}
	}
	return true
}
