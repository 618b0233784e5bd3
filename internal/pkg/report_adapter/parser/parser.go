// Package parser 把各技术的原始报告目录转换为 ExecutedScenario 列表
// 解析器无状态，可并发使用；损坏的文件只记录日志，不影响同一运行的其他文件
package parser

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	execmodel "aramaster/internal/model/execution"

	"golang.org/x/sync/errgroup"
)

// Options 单次解析的参数，由组装器根据项目配置构造
type Options struct {
	ReportPath          string // Cucumber report.json 相对路径
	StepDefinitionsPath string // Cucumber stepDefinitions.json 相对路径
	ReportsPath         string // Postman/Karate/Generic 报告目录相对路径
	JobURL              string // 运行的 CI 任务URL，用于拼接报告链接
	Parallelism         int    // 多文件并发解析数
}

// Parser 报告解析器接口
// 返回 error 表示整个报告不可用，调用方记录日志后按空列表处理
type Parser interface {
	Parse(ctx context.Context, folder string, opts Options) ([]*execmodel.ExecutedScenario, error)
}

// listJSONFiles 列出目录下的 *.json 文件，按文件名排序
func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// parseFiles 并发解析多个文件，结果按文件顺序返回
// 单个文件失败时对应位置保持零值，错误放在 errs 的同一位置
func parseFiles[T any](ctx context.Context, files []string, limit int, fn func(path string) (T, error)) ([]T, []error) {
	results := make([]T, len(files))
	errs := make([]error, len(files))
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = fn(file)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
