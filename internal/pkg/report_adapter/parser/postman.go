package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/models"

	"github.com/sirupsen/logrus"
)

const (
	// NewmanFinishedMarker 所有集合执行完毕后 CI 写入的标记文件
	NewmanFinishedMarker = "result.txt"

	// FolderDelimiter 目录与请求名之间的分隔符(U+25B6)
	FolderDelimiter = " ▶ "

	linePreRequestScript = -100000
	lineTestScript       = 100000
	lineRequest          = -1
	stepPreRequestScript = "<Pre-Request Script>"
	stepTestScript       = "<Test Script>"

	cucumberIDMaxSize = 640
)

var severityNamePattern = regexp.MustCompile(`^(` + severityTagPrefix + `[a-z]+(?:-[a-z]+)*)`)

// PostmanParser 解析 newman JSON 报告目录
type PostmanParser struct{}

type newmanFileResult struct {
	scenarios []*execmodel.ExecutedScenario
	positions int
}

// Parse 只有存在 result.txt 时才索引，否则认为集合尚未全部执行
func (p *PostmanParser) Parse(ctx context.Context, folder string, opts Options) ([]*execmodel.ExecutedScenario, error) {
	reportsDir := filepath.Join(folder, opts.ReportsPath)
	if _, err := os.Stat(filepath.Join(reportsDir, NewmanFinishedMarker)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.LogIndexation(logrus.InfoLevel, "newman reports not complete yet", map[string]interface{}{
				"operation": "parse_postman",
				"folder":    reportsDir,
			})
			return nil, nil
		}
		return nil, err
	}

	files, err := listJSONFiles(reportsDir)
	if err != nil {
		return nil, fmt.Errorf("list newman reports in %s: %w", reportsDir, err)
	}

	results, errs := parseFiles(ctx, files, opts.Parallelism, func(path string) (newmanFileResult, error) {
		return parseNewmanFile(path, opts.JobURL)
	})

	// 请求序号在同一运行的所有文件间连续
	var scenarios []*execmodel.ExecutedScenario
	offset := 0
	for i, result := range results {
		if errs[i] != nil {
			logger.LogIndexation(logrus.ErrorLevel, "cannot parse newman report", map[string]interface{}{
				"operation": "parse_postman",
				"file":      files[i],
				"error":     errs[i].Error(),
			})
			continue
		}
		for _, s := range result.scenarios {
			s.Line += offset
			scenarios = append(scenarios, s)
		}
		offset += result.positions
	}
	return scenarios, nil
}

func parseNewmanFile(path, jobURL string) (newmanFileResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return newmanFileResult{}, err
	}
	var report models.NewmanReport
	if err := json.Unmarshal(data, &report); err != nil {
		return newmanFileResult{}, err
	}
	scenarios, positions := newmanToScenarios(&report)

	for _, s := range scenarios {
		s.FeatureFile = filepath.Base(path)
		s.FeatureName = report.Collection.Info.Name
		if jobURL != "" {
			s.CucumberReportURL = strings.TrimSuffix(jobURL, "/") + "/Postman_Collection_Results/"
		}
	}
	return newmanFileResult{scenarios: scenarios, positions: positions}, nil
}

type newmanScenario struct {
	scenario  *execmodel.ExecutedScenario
	item      *models.NewmanItem
	execution *models.NewmanExecution
	failures  []models.NewmanFailure
}

// newmanToScenarios 每个被执行的请求是一个场景，失败记录成为错误
// 返回的 positions 是集合树中消耗的序号数(目录也占序号)
func newmanToScenarios(report *models.NewmanReport) ([]*execmodel.ExecutedScenario, int) {
	position := 0
	all := collectNewmanItems(report.Collection.Item, &position, "", nil)

	byItemID := make(map[string]*newmanScenario, len(all))
	for _, ns := range all {
		if _, exists := byItemID[ns.item.ID]; !exists {
			byItemID[ns.item.ID] = ns
		}
	}
	for i := range report.Run.Executions {
		execution := &report.Run.Executions[i]
		if ns, ok := byItemID[execution.Item.ID]; ok {
			ns.execution = execution
		}
	}
	for _, failure := range report.Run.Failures {
		if ns, ok := byItemID[failure.Source.ID]; ok {
			ns.failures = append(ns.failures, failure)
		}
	}

	var scenarios []*execmodel.ExecutedScenario
	for _, ns := range all {
		// 目录和未执行的请求没有执行记录
		if ns.execution == nil {
			continue
		}
		ns.scenario.Content = newmanScenarioContent(ns)
		for _, failure := range ns.failures {
			ns.scenario.Errors = append(ns.scenario.Errors, newmanError(ns, failure))
		}
		scenarios = append(scenarios, ns.scenario)
	}
	return scenarios, position
}

func collectNewmanItems(items []models.NewmanItem, position *int, parentSeverity string, parentFolders []string) []*newmanScenario {
	var result []*newmanScenario
	for i := range items {
		item := &items[i]

		severity := severityOfName(item.Name)
		if severity == "" {
			severity = parentSeverity
		}
		path := append(append([]string{}, parentFolders...), removeSeverityTag(item.Name))

		*position++
		scenario := &execmodel.ExecutedScenario{
			Name:       strings.Join(path, FolderDelimiter),
			Line:       *position,
			CucumberID: toCucumberID(path),
			Severity:   severity,
		}
		if severity != "" {
			scenario.Tags = severityTagPrefix + severity
		}
		result = append(result, &newmanScenario{scenario: scenario, item: item})
		result = append(result, collectNewmanItems(item.Item, position, severity, path)...)
	}
	return result
}

func toCucumberID(path []string) string {
	id := strings.Join(path, "/")
	if runes := []rune(id); len(runes) > cucumberIDMaxSize {
		id = string(runes[len(runes)-cucumberIDMaxSize:])
	}
	return id
}

// severityOfName 名称以 @severity-xxx 开头时返回 xxx
func severityOfName(name string) string {
	match := severityNamePattern.FindStringSubmatch(name)
	if match == nil {
		return ""
	}
	return strings.TrimPrefix(match[1], severityTagPrefix)
}

// removeSeverityTag "@severity-high : Title" => "Title"
func removeSeverityTag(name string) string {
	match := severityNamePattern.FindStringSubmatch(name)
	if match == nil {
		return name
	}
	stripped := strings.TrimLeftFunc(name[len(match[1]):], func(r rune) bool {
		return unicode.IsSpace(r) || r == ':' || r == '-'
	})
	if stripped == "" {
		return "Untitled"
	}
	return stripped
}

func failureLine(failure models.NewmanFailure) int {
	switch failure.At {
	case models.AtPreRequestScript:
		return linePreRequestScript
	case models.AtTestScript:
		return lineTestScript
	}
	if failure.Error.Index == nil {
		return lineRequest
	}
	return *failure.Error.Index
}

func lineStatus(failures []models.NewmanFailure, line int) string {
	for _, failure := range failures {
		if failureLine(failure) == line {
			return models.StatusFailed
		}
	}
	return models.StatusPassed
}

func requestStep(item *models.NewmanItem) string {
	if item.Request == nil {
		return ""
	}
	return item.Request.Method + " " + item.Request.URL.String()
}

func newmanScenarioContent(ns *newmanScenario) string {
	lines := []string{
		fmt.Sprintf("%d:%s:%s", linePreRequestScript, lineStatus(ns.failures, linePreRequestScript), stepPreRequestScript),
	}

	requestStatus := lineStatus(ns.failures, lineRequest)
	for i, requestLine := range strings.Split(strings.ReplaceAll(requestStep(ns.item), "\r\n", "\n"), "\n") {
		prefix := strconv.Itoa(lineRequest) + ":" + requestStatus + ":"
		if i == 0 && ns.execution.Response != nil {
			// 毫秒转纳秒，与 Cucumber 耗时单位一致
			prefix += strconv.FormatInt(ns.execution.Response.ResponseTime*1_000_000, 10) + ":"
		}
		lines = append(lines, prefix+requestLine)
	}

	for i, assertion := range ns.execution.Assertions {
		lines = append(lines, fmt.Sprintf("%d:%s:%s", i, lineStatus(ns.failures, i), assertion.Assertion))
	}

	lines = append(lines, fmt.Sprintf("%d:%s:%s", lineTestScript, lineStatus(ns.failures, lineTestScript), stepTestScript))
	return strings.Join(lines, "\n")
}

func newmanError(ns *newmanScenario, failure models.NewmanFailure) *execmodel.Error {
	exception := failure.Error.Stack
	if exception == "" {
		name, message := failure.Error.Name, failure.Error.Message
		switch {
		case name != "" && message != "":
			exception = name + ": " + message
		case name != "":
			exception = name
		case message != "":
			exception = message
		default:
			exception = "Unknown error"
		}
	}

	line := failureLine(failure)
	step := newmanStep(ns, line)
	return &execmodel.Error{
		Step:           step,
		StepLine:       line,
		StepDefinition: step,
		Exception:      strings.ReplaceAll(exception, "\r\n", "\n"),
	}
}

func newmanStep(ns *newmanScenario, line int) string {
	switch line {
	case linePreRequestScript:
		return stepPreRequestScript
	case lineTestScript:
		return stepTestScript
	}
	if line >= 0 && line < len(ns.execution.Assertions) {
		return ns.execution.Assertions[line].Assertion
	}
	// 不是断言时只可能是请求本身失败
	return requestStep(ns.item)
}
