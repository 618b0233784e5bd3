package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/model/system"
)

// testTypesSeparator cycleDefinition.json 中 testTypes 的分隔符
const testTypesSeparator = ","

// Build CI 写入各层目录的 buildInformation.json
type Build struct {
	URL               string           `json:"url"`
	Link              string           `json:"-"` // 所在目录路径 + 分隔符，读取时填充
	DisplayName       string           `json:"displayName"`
	Result            execmodel.Result `json:"result"`
	Building          bool             `json:"building"`
	Duration          int64            `json:"duration"`
	Timestamp         int64            `json:"timestamp"`
	EstimatedDuration int64            `json:"estimatedDuration"`
	Release           string           `json:"release"`
	Version           string           `json:"version"`
	VersionTimestamp  *int64           `json:"versionTimestamp"`
	Comment           string           `json:"comment"`
}

// Status 没有URL为 PENDING，构建中或没有结果为 RUNNING，其余按结果映射
func (b *Build) Status() execmodel.JobStatus {
	if b == nil || b.URL == "" {
		return execmodel.JobStatusPending
	}
	if b.Building || b.Result == "" {
		return execmodel.JobStatusRunning
	}
	return execmodel.StatusFromResult(b.Result)
}

// StartDateTime 构建开始时间
func (b *Build) StartDateTime() *time.Time {
	t := time.UnixMilli(b.Timestamp)
	return &t
}

// childStatus 执行已 DONE 时，子任务 PENDING 视为 UNAVAILABLE，RUNNING 视为 DONE
func childStatus(executionStatus execmodel.JobStatus, build *Build) execmodel.JobStatus {
	if build == nil {
		return execmodel.JobStatusUnavailable
	}
	status := build.Status()
	if executionStatus == execmodel.JobStatusDone {
		switch status {
		case execmodel.JobStatusPending:
			return execmodel.JobStatusUnavailable
		case execmodel.JobStatusRunning:
			return execmodel.JobStatusDone
		}
	}
	return status
}

// CycleDefinitionFile cycleDefinition.json
type CycleDefinitionFile struct {
	BlockingValidation bool                                  `json:"blockingValidation"`
	QualityThresholds  map[string]execmodel.QualityThreshold `json:"qualityThresholds"`
	PlatformsRules     map[string][]PlatformRule             `json:"platformsRules"`
}

// PlatformRule 某平台下一个国家需要执行的测试类型
type PlatformRule struct {
	Country            string `json:"country"`
	TestTypes          string `json:"testTypes"`
	Enabled            bool   `json:"enabled"`
	CountryTags        string `json:"countryTags"`
	SeverityTags       string `json:"severityTags"`
	BlockingValidation bool   `json:"blockingValidation"`
}

// TypeCodes 拆分 testTypes，空白返回空
func (r PlatformRule) TypeCodes() []string {
	if strings.TrimSpace(r.TestTypes) == "" {
		return nil
	}
	return strings.Split(r.TestTypes, testTypesSeparator)
}

// readJSONFile 读取 folder 下相对路径的 JSON 文件，文件不存在返回 false
func readJSONFile(folder, relativePath string, out interface{}) (bool, error) {
	data, err := os.ReadFile(filepath.Join(folder, relativePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Join(folder, relativePath), err)
	}
	return true, nil
}

// readBuild 读取目录的构建信息，文件不存在或损坏时返回 nil
func readBuild(folder, relativePath string) (*Build, error) {
	var build Build
	found, err := readJSONFile(folder, relativePath, &build)
	if err != nil || !found {
		return nil, err
	}
	build.Link = withSeparator(folder)
	return &build, nil
}

// CanonicalLink 原始目录的规范绝对路径(解析符号链接)并以分隔符结尾，作为执行的唯一键
// 超过 execmodel.JobLinkMaxLength 个字符时返回 system.ErrInvalidIndexation
func CanonicalLink(folder string) (string, error) {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	link := withSeparator(filepath.Clean(abs))
	if n := utf8.RuneCountInString(link); n > execmodel.JobLinkMaxLength {
		return "", fmt.Errorf("%w: raw folder path has %d characters, at most %d allowed", system.ErrInvalidIndexation, n, execmodel.JobLinkMaxLength)
	}
	return link, nil
}

func withSeparator(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return path
	}
	return path + string(filepath.Separator)
}

// subFolders 列出直接子目录，目录不存在返回空
func subFolders(folder string) []string {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(folder, entry.Name()))
		}
	}
	return dirs
}

// findFolder 在目录列表中按名称大小写不敏感查找
func findFolder(folders []string, name string) (string, bool) {
	for _, folder := range folders {
		if strings.EqualFold(filepath.Base(folder), name) {
			return folder, true
		}
	}
	return "", false
}
