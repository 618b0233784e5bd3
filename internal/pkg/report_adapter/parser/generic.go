package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/models"

	"github.com/sirupsen/logrus"
)

// GenericParser 解析通用 JSON 报告目录，Karate 报告使用同一格式
// 目录下每个 *.json 文件描述一个场景
type GenericParser struct {
	Name string // 用于日志区分 generic / karate
}

// Parse 报告目录不存在时返回空列表，单个损坏文件只跳过该文件
func (p *GenericParser) Parse(ctx context.Context, folder string, opts Options) ([]*execmodel.ExecutedScenario, error) {
	reportsDir := filepath.Join(folder, opts.ReportsPath)
	files, err := listJSONFiles(reportsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.LogIndexation(logrus.InfoLevel, "reports folder not found", map[string]interface{}{
				"operation": "parse_" + p.Name,
				"folder":    reportsDir,
			})
			return nil, nil
		}
		return nil, fmt.Errorf("list %s reports in %s: %w", p.Name, reportsDir, err)
	}

	results, errs := parseFiles(ctx, files, opts.Parallelism, parseGenericFile)

	scenarios := make([]*execmodel.ExecutedScenario, 0, len(results))
	for i, scenario := range results {
		if errs[i] != nil {
			logger.LogIndexation(logrus.ErrorLevel, "cannot parse report", map[string]interface{}{
				"operation": "parse_" + p.Name,
				"file":      files[i],
				"error":     errs[i].Error(),
			})
			continue
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

func parseGenericFile(path string) (*execmodel.ExecutedScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report models.GenericReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return genericToScenario(&report), nil
}

func genericToScenario(report *models.GenericReport) *execmodel.ExecutedScenario {
	scenario := &execmodel.ExecutedScenario{
		CucumberID:    report.Code,
		APIServer:     report.ServerName,
		Severity:      report.Severity,
		StartDateTime: report.StartDate.Time,
		SeleniumNode:  report.Comment,
		Name:          functionalitiesName(report.Cartography, report.Name),
		Tags:          genericTags(report.Tags),
	}

	for _, e := range report.Errors {
		if e == nil {
			continue
		}
		line := 0
		if e.LineNumber != nil {
			line = int(*e.LineNumber)
		}
		scenario.Errors = append(scenario.Errors, &execmodel.Error{
			StepLine:       line,
			Step:           e.CompleteLine,
			StepDefinition: e.RawLine,
			Exception:      strings.ReplaceAll(e.StackTrace, "\r\n", "\n"),
		})
	}

	if d := report.Description; d != nil {
		scenario.Content = d.StepsContent
		scenario.Line = d.StartLineNumber
	}
	if d := report.Display; d != nil {
		scenario.VideoURL = d.VideoURL
		scenario.ScreenshotURL = d.ScreenshotURL
		scenario.CucumberReportURL = d.OtherResultsDisplayURL
	}
	if f := report.Feature; f != nil {
		scenario.FeatureName = f.Name
		scenario.FeatureFile = f.FileName
		scenario.FeatureTags = genericTags(f.Tags)
	}
	if l := report.Logs; l != nil {
		scenario.LogsURL = l.ExecutionTraceURL
		scenario.JavaScriptErrorsURL = l.ErrorStacktraceURL
		scenario.HTTPRequestsURL = l.ExecutedScenarioURL
		scenario.DiffReportURL = l.DiffReportURL
	}
	return scenario
}

// genericTags ["a", "b"] => "@a @b"
func genericTags(tags []string) string {
	prefixed := make([]string, 0, len(tags))
	for _, tag := range tags {
		prefixed = append(prefixed, "@"+tag)
	}
	return strings.Join(prefixed, " ")
}

// functionalitiesName 名称前加上功能编号，如 "Functionality 1, 2: name"
func functionalitiesName(cartography []int64, name string) string {
	if len(cartography) == 0 {
		return name
	}
	ids := make([]string, 0, len(cartography))
	for _, id := range cartography {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return "Functionality " + strings.Join(ids, ", ") + ": " + name
}
