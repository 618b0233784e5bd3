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
	"time"
	"unicode/utf8"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/models"

	"github.com/sirupsen/logrus"
)

const (
	hookBefore = "@Before"
	hookAfter  = "@After"

	// 钩子没有源码行，使用虚拟行号
	beforeHookFirstLine = -100000
	afterHookFirstLine  = 100000

	severityTagPrefix = "@severity-"
)

// CucumberParser 解析 Cucumber report.json + stepDefinitions.json
type CucumberParser struct{}

// Parse 解析 Cucumber 报告目录
// report.json 不存在时返回空列表，无法解析时返回错误
func (p *CucumberParser) Parse(ctx context.Context, folder string, opts Options) ([]*execmodel.ExecutedScenario, error) {
	reportFile := filepath.Join(folder, opts.ReportPath)
	data, err := os.ReadFile(reportFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.LogIndexation(logrus.InfoLevel, "cucumber report not found", map[string]interface{}{
				"operation": "parse_cucumber",
				"file":      reportFile,
			})
			return nil, nil
		}
		return nil, fmt.Errorf("read cucumber report %s: %w", reportFile, err)
	}

	var features []models.CucumberFeature
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("parse cucumber report %s: %w", reportFile, err)
	}

	stepDefinitions := loadStepDefinitions(filepath.Join(folder, opts.StepDefinitionsPath))
	return extractCucumberScenarios(features, stepDefinitions), nil
}

// loadStepDefinitions 读取并编译步骤定义，失败时返回空列表
func loadStepDefinitions(file string) []*stepDefinition {
	data, err := os.ReadFile(file)
	if err != nil {
		logger.LogIndexation(logrus.WarnLevel, "cannot read step definitions", map[string]interface{}{
			"operation": "parse_cucumber",
			"file":      file,
			"error":     err.Error(),
		})
		return nil
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.LogIndexation(logrus.WarnLevel, "cannot parse step definitions", map[string]interface{}{
			"operation": "parse_cucumber",
			"file":      file,
			"error":     err.Error(),
		})
		return nil
	}
	return compileStepDefinitions(raw)
}

type stepDefinition struct {
	source string
	re     *regexp.Regexp
}

func compileStepDefinitions(raw []string) []*stepDefinition {
	defs := make([]*stepDefinition, 0, len(raw))
	for _, source := range raw {
		// 整串匹配
		re, err := regexp.Compile("^(?:" + source + ")$")
		if err != nil {
			logger.LogIndexation(logrus.WarnLevel, "step definition is not a valid regular expression", map[string]interface{}{
				"operation":       "parse_cucumber",
				"step_definition": source,
			})
			continue
		}
		defs = append(defs, &stepDefinition{source: source, re: re})
	}
	return defs
}

// extractCucumberScenarios 从已解析的 report.json 中提取场景和错误
// 背景不单独成为场景，它的内容和错误并入紧随其后的场景
func extractCucumberScenarios(features []models.CucumberFeature, stepDefinitions []*stepDefinition) []*execmodel.ExecutedScenario {
	var scenarios []*execmodel.ExecutedScenario
	for fi := range features {
		feature := &features[fi]
		featureTags := joinTagNames(feature.Tags)

		var background *models.CucumberElement
		for ei := range feature.Elements {
			element := &feature.Elements[ei]
			if element.IsBackground() {
				background = element
				continue
			}
			if !element.IsScenario() {
				continue
			}

			scenario := &execmodel.ExecutedScenario{
				FeatureFile:   feature.URI,
				FeatureName:   feature.Name,
				FeatureTags:   featureTags,
				Tags:          joinTagNames(element.Tags),
				Severity:      severityFromTags(element.Tags),
				Name:          element.Name,
				CucumberID:    element.ID,
				Line:          element.Line,
				StartDateTime: parseStartTimestamp(element.StartTimestamp),
			}

			backgroundContent := ""
			if background != nil {
				backgroundContent = buildStepsContent(background.Steps)
			}
			scenario.Content = buildScenarioContent(element, backgroundContent)

			scenario.Errors = append(scenario.Errors, extractHookErrors(element.Before, hookBefore)...)
			if background != nil {
				scenario.Errors = append(scenario.Errors, extractStepErrors(background.Steps, stepDefinitions)...)
			}
			scenario.Errors = append(scenario.Errors, extractStepErrors(element.Steps, stepDefinitions)...)
			scenario.Errors = append(scenario.Errors, extractHookErrors(element.After, hookAfter)...)

			scenarios = append(scenarios, scenario)
			background = nil
		}
	}
	return scenarios
}

func joinTagNames(tags []models.CucumberTag) string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return strings.Join(names, " ")
}

func severityFromTags(tags []models.CucumberTag) string {
	for _, tag := range tags {
		if strings.HasPrefix(tag.Name, severityTagPrefix) {
			return strings.TrimPrefix(tag.Name, severityTagPrefix)
		}
	}
	return ""
}

func parseStartTimestamp(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return nil
	}
	return &t
}

// virtualHookLine 钩子的虚拟行号
func virtualHookLine(hookName string, index int) int {
	if hookName == hookAfter {
		return afterHookFirstLine + index
	}
	return beforeHookFirstLine + index
}

// -----------------------------------------------------------------------------
// 场景内容: 每行 "行号:状态:耗时:内容"
// -----------------------------------------------------------------------------

func buildScenarioContent(element *models.CucumberElement, backgroundContent string) string {
	var lines []string
	lines = appendHookLines(lines, element.Before, hookBefore)
	if backgroundContent != "" {
		lines = append(lines, "0:element:Background:", backgroundContent, "0:element:Scenario:")
	}
	if steps := buildStepsContent(element.Steps); steps != "" {
		lines = append(lines, steps)
	}
	lines = appendHookLines(lines, element.After, hookAfter)
	return strings.Join(lines, "\n")
}

func resultStatus(result *models.CucumberResult) (string, int64) {
	if result == nil {
		return models.StatusSkipped, 0
	}
	return result.Status, result.Duration
}

func appendHookLines(lines []string, hooks []models.CucumberHook, hookName string) []string {
	for i, hook := range hooks {
		status, duration := resultStatus(hook.Result)
		location := ""
		if hook.Match != nil {
			location = hook.Match.Location
		}
		lines = append(lines, fmt.Sprintf("%d:%s:%d:%s %s", virtualHookLine(hookName, i), status, duration, hookName, location))
	}
	return lines
}

func buildStepsContent(steps []models.CucumberStep) string {
	var lines []string
	for _, step := range steps {
		status, duration := resultStatus(step.Result)
		lines = append(lines, fmt.Sprintf("%d:%s:%d:%s%s", step.Line, status, duration, step.Keyword, step.Name))
		lines = appendRowLines(lines, step.Rows, status)
		lines = appendDocStringLines(lines, step, status)
	}
	return strings.Join(lines, "\n")
}

// appendRowLines 数据表按列对齐，纯数字右对齐
func appendRowLines(lines []string, rows []models.CucumberRow, status string) []string {
	if len(rows) == 0 {
		return lines
	}
	var sizes []int
	for _, row := range rows {
		for i, cell := range row.Cells {
			if i >= len(sizes) {
				sizes = append(sizes, 0)
			}
			if n := utf8.RuneCountInString(cell); n > sizes[i] {
				sizes[i] = n
			}
		}
	}
	for _, row := range rows {
		var b strings.Builder
		fmt.Fprintf(&b, "%d:%s:", row.Line, status)
		for i, cell := range row.Cells {
			padding := strings.Repeat(" ", sizes[i]-utf8.RuneCountInString(cell))
			if isDigits(cell) {
				cell = padding + cell
			} else {
				cell += padding
			}
			b.WriteString("| " + cell + " ")
		}
		b.WriteString("|")
		lines = append(lines, b.String())
	}
	return lines
}

func appendDocStringLines(lines []string, step models.CucumberStep, status string) []string {
	if step.DocString == nil {
		return lines
	}
	prefix := strconv.Itoa(step.Line) + ":" + status + ":"
	lines = append(lines, prefix+`"""`+step.DocString.ContentType)
	for _, line := range strings.Split(strings.ReplaceAll(step.DocString.Value, "\r\n", "\n"), "\n") {
		lines = append(lines, prefix+line)
	}
	return append(lines, prefix+`"""`)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// 错误提取
// -----------------------------------------------------------------------------

// errorMessage 失败信息，统一为 \n 换行；未定义的步骤生成一条错误
func errorMessage(result *models.CucumberResult, undefinedStepName string, isStep bool) string {
	if result == nil {
		return ""
	}
	message := result.ErrorMessage
	if message == "" && isStep && result.Status == models.StatusUndefined {
		message = "Undefined step: " + undefinedStepName
	}
	return strings.ReplaceAll(message, "\r\n", "\n")
}

func extractHookErrors(hooks []models.CucumberHook, hookName string) []*execmodel.Error {
	var errs []*execmodel.Error
	for i, hook := range hooks {
		message := errorMessage(hook.Result, "", false)
		if message == "" {
			continue
		}
		location := ""
		if hook.Match != nil {
			location = hook.Match.Location
		}
		errs = append(errs, &execmodel.Error{
			Step:           hookName,
			StepLine:       virtualHookLine(hookName, i),
			StepDefinition: location,
			Exception:      message,
		})
	}
	return errs
}

func extractStepErrors(steps []models.CucumberStep, stepDefinitions []*stepDefinition) []*execmodel.Error {
	var errs []*execmodel.Error
	for _, step := range steps {
		message := errorMessage(step.Result, step.Name, true)
		if message == "" {
			continue
		}
		var arguments []models.CucumberArgument
		if step.Match != nil {
			arguments = step.Match.Arguments
		}
		errs = append(errs, &execmodel.Error{
			Step:           step.Name,
			StepLine:       step.Line,
			StepDefinition: matchingStepDefinition(stepDefinitions, step.Name, arguments),
			Exception:      message,
		})
	}
	return errs
}

// matchingStepDefinition 取第一个整串匹配步骤文本的定义，没有时根据参数模拟一个
func matchingStepDefinition(stepDefinitions []*stepDefinition, stepName string, arguments []models.CucumberArgument) string {
	for _, def := range stepDefinitions {
		if def.re.MatchString(stepName) {
			return def.source
		}
	}
	return SimulateStepDefinition(stepName, arguments)
}

// SimulateStepDefinition 把参数替换为捕获组，如 ^I buy (\d+) "([^"]*)"$
// 紧跟在引号后面的数字参数按字符串处理
func SimulateStepDefinition(stepName string, arguments []models.CucumberArgument) string {
	runes := []rune(stepName)
	var b strings.Builder
	b.WriteString("^")

	last := 0
	for _, arg := range arguments {
		offset := arg.Offset
		if offset < last || offset > len(runes) {
			continue
		}
		if offset > last {
			b.WriteString(escapeRegularExpression(string(runes[last:offset])))
		}
		numeric := isDigits(arg.Val)
		if numeric && offset > 0 && runes[offset-1] == '"' {
			numeric = false
		}
		if numeric {
			b.WriteString(`(\d+)`)
		} else {
			b.WriteString(`([^"]*)`)
		}
		last = offset + utf8.RuneCountInString(arg.Val)
		if last > len(runes) {
			last = len(runes)
		}
	}
	if last < len(runes) {
		b.WriteString(escapeRegularExpression(string(runes[last:])))
	}

	b.WriteString("$")
	return b.String()
}

const regexSpecialCharacters = `<([{\^-=$!|]})?*+.>`

func escapeRegularExpression(text string) string {
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(regexSpecialCharacters, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
