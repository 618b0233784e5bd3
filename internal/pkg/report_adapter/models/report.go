// Package models 定义各测试技术原始报告的 JSON 结构
// 解析器把这些结构转换为统一的 ExecutedScenario / Error
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Cucumber report.json
// -----------------------------------------------------------------------------

// CucumberFeature report.json 顶层数组中的一个 .feature 文件
type CucumberFeature struct {
	URI      string            `json:"uri"`
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Keyword  string            `json:"keyword"`
	Line     int               `json:"line"`
	Tags     []CucumberTag     `json:"tags"`
	Elements []CucumberElement `json:"elements"`
}

// CucumberElement 场景、场景大纲实例或背景
type CucumberElement struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Keyword        string         `json:"keyword"`
	Line           int            `json:"line"`
	StartTimestamp string         `json:"start_timestamp"`
	Tags           []CucumberTag  `json:"tags"`
	Steps          []CucumberStep `json:"steps"`
	Before         []CucumberHook `json:"before"`
	After          []CucumberHook `json:"after"`
}

// 元素关键字
const (
	KeywordScenario        = "Scenario"
	KeywordScenarioOutline = "Scenario Outline"
	KeywordBackground      = "Background"
)

// IsScenario 场景或场景大纲实例
func (e *CucumberElement) IsScenario() bool {
	return e.Keyword == KeywordScenario || e.Keyword == KeywordScenarioOutline
}

// IsBackground 背景
func (e *CucumberElement) IsBackground() bool {
	return e.Keyword == KeywordBackground
}

// CucumberTag 标签，Name 带 @ 前缀
type CucumberTag struct {
	Name string `json:"name"`
	Line int    `json:"line"`
}

// CucumberStep 步骤
type CucumberStep struct {
	Keyword   string             `json:"keyword"`
	Name      string             `json:"name"`
	Line      int                `json:"line"`
	Rows      []CucumberRow      `json:"rows"`
	DocString *CucumberDocString `json:"doc_string"`
	Match     *CucumberMatch     `json:"match"`
	Result    *CucumberResult    `json:"result"`
}

// CucumberHook @Before / @After 钩子
type CucumberHook struct {
	Match  *CucumberMatch  `json:"match"`
	Result *CucumberResult `json:"result"`
}

// CucumberRow 数据表的一行
type CucumberRow struct {
	Cells []string `json:"cells"`
	Line  int      `json:"line"`
}

// CucumberDocString 多行文本参数
type CucumberDocString struct {
	ContentType string `json:"content_type"`
	Value       string `json:"value"`
	Line        int    `json:"line"`
}

// CucumberMatch 步骤匹配到的定义
type CucumberMatch struct {
	Location  string             `json:"location"`
	Arguments []CucumberArgument `json:"arguments"`
}

// CucumberArgument 步骤参数及其在步骤文本中的偏移
type CucumberArgument struct {
	Val    string `json:"val"`
	Offset int    `json:"offset"`
}

// CucumberResult 执行结果，Duration 单位纳秒
type CucumberResult struct {
	Status       string `json:"status"`
	Duration     int64  `json:"duration"`
	ErrorMessage string `json:"error_message"`
}

// 步骤状态
const (
	StatusPassed    = "passed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusUndefined = "undefined"
)

// -----------------------------------------------------------------------------
// Newman (Postman) JSON 报告
// -----------------------------------------------------------------------------

// NewmanReport newman --reporters json 的输出
type NewmanReport struct {
	Collection NewmanCollection `json:"collection"`
	Run        NewmanRun        `json:"run"`
}

// NewmanCollection 集合定义(目录树)
type NewmanCollection struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Item []NewmanItem `json:"item"`
}

// NewmanItem 目录或请求，目录带 Item 子节点
type NewmanItem struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Item    []NewmanItem   `json:"item"`
	Request *NewmanRequest `json:"request"`
}

// NewmanRequest 请求
type NewmanRequest struct {
	Method string    `json:"method"`
	URL    NewmanURL `json:"url"`
}

// NewmanURL 请求地址，可能是字符串或拆分后的对象
type NewmanURL struct {
	Raw      string           `json:"raw"`
	Protocol string           `json:"protocol"`
	Host     []string         `json:"host"`
	Port     string           `json:"port"`
	Path     []string         `json:"path"`
	Query    []NewmanKeyValue `json:"query"`
}

// UnmarshalJSON 兼容字符串形式的 url
func (u *NewmanURL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &u.Raw)
	}
	type plain NewmanURL
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*u = NewmanURL(p)
	return nil
}

// String 重新拼接 URL，如 http://server:8080/path?key=value
func (u NewmanURL) String() string {
	if len(u.Host) == 0 && len(u.Path) == 0 && u.Protocol == "" {
		return u.Raw
	}
	var b strings.Builder
	if u.Protocol != "" {
		b.WriteString(u.Protocol + "://")
	}
	b.WriteString(strings.Join(u.Host, "."))
	if u.Port != "" && u.Port != "80" {
		b.WriteString(":" + u.Port)
	}
	if len(u.Path) > 0 {
		b.WriteString("/" + strings.Join(u.Path, "/"))
	}
	for i, q := range u.Query {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(q.Key + "=" + q.Value)
	}
	return b.String()
}

// NewmanKeyValue 查询参数
type NewmanKeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewmanRun 执行结果
type NewmanRun struct {
	Executions []NewmanExecution `json:"executions"`
	Failures   []NewmanFailure   `json:"failures"`
}

// NewmanExecution 一次请求执行
type NewmanExecution struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
	Response   *NewmanResponse   `json:"response"`
	Assertions []NewmanAssertion `json:"assertions"`
}

// NewmanResponse 响应，ResponseTime 单位毫秒
type NewmanResponse struct {
	Code         int   `json:"code"`
	ResponseTime int64 `json:"responseTime"`
}

// NewmanAssertion 断言
type NewmanAssertion struct {
	Assertion string `json:"assertion"`
}

// NewmanFailure 失败记录
type NewmanFailure struct {
	At     string `json:"at"`
	Source struct {
		ID string `json:"id"`
	} `json:"source"`
	Error NewmanError `json:"error"`
}

// Failure.At 取值
const (
	AtPreRequestScript = "prerequest-script"
	AtTestScript       = "test-script"
)

// NewmanError 失败详情，Index 为断言序号
type NewmanError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Index   *int   `json:"index"`
}

// -----------------------------------------------------------------------------
// Generic / Karate 报告(每个文件一个场景)
// -----------------------------------------------------------------------------

// GenericReport 通用场景报告
type GenericReport struct {
	Code        string                `json:"code"`
	Name        string                `json:"name"`
	Cartography []int64               `json:"cartography"`
	ServerName  string                `json:"serverName"`
	Comment     string                `json:"comment"`
	Severity    string                `json:"severity"`
	StartDate   FlexibleTime          `json:"startDate"`
	Tags        []string              `json:"tags"`
	Errors      []*GenericError       `json:"errors"`
	Description *GenericDescription   `json:"description"`
	Display     *GenericResultDisplay `json:"display"`
	Feature     *GenericFeature       `json:"feature"`
	Logs        *GenericLogs          `json:"logs"`
}

// GenericError 场景中的错误
type GenericError struct {
	LineNumber   *int64 `json:"lineNumber"`
	CompleteLine string `json:"completeLine"`
	RawLine      string `json:"rawLine"`
	StackTrace   string `json:"stackTrace"`
}

// GenericDescription 场景内容
type GenericDescription struct {
	StepsContent    string `json:"stepsContent"`
	StartLineNumber int    `json:"startLineNumber"`
}

// GenericResultDisplay 结果展示链接
type GenericResultDisplay struct {
	VideoURL               string `json:"videoUrl"`
	ScreenshotURL          string `json:"screenshotUrl"`
	OtherResultsDisplayURL string `json:"otherResultsDisplayUrl"`
}

// GenericFeature 所属功能
type GenericFeature struct {
	Name     string   `json:"name"`
	FileName string   `json:"fileName"`
	Tags     []string `json:"tags"`
}

// GenericLogs 日志链接
type GenericLogs struct {
	ExecutionTraceURL   string `json:"executionTraceUrl"`
	ErrorStacktraceURL  string `json:"errorStacktraceUrl"`
	ExecutedScenarioURL string `json:"executedScenarioUrl"`
	DiffReportURL       string `json:"diffReportUrl"`
}

// FlexibleTime 接受毫秒时间戳或 RFC3339 字符串
type FlexibleTime struct {
	Time *time.Time
}

// UnmarshalJSON 解析时间，null 和空串保持为空
func (f *FlexibleTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms)
		f.Time = &t
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	f.Time = &t
	return nil
}
