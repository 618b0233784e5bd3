// Package registry 报告技术到解析器的注册中心
// 运行的类型确定后，根据其来源技术解析出对应的索引函数
package registry

import (
	"context"
	"fmt"
	"sync"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/parser"

	"github.com/sirupsen/logrus"
)

// IndexerFunc 把一个运行目录转换为场景列表，永不返回错误
// 解析失败时记录日志并返回空列表
type IndexerFunc func(ctx context.Context, folder string, opts parser.Options) []*execmodel.ExecutedScenario

// Adapter 封装了一种报告技术的解析逻辑
type Adapter struct {
	Technology projmodel.Technology
	Parser     parser.Parser
}

// IndexerRegistry 报告解析器注册中心
type IndexerRegistry struct {
	adapters map[projmodel.Technology]*Adapter
	mu       sync.RWMutex
}

// NewIndexerRegistry 创建注册中心并注册内置的四种技术
func NewIndexerRegistry() *IndexerRegistry {
	r := &IndexerRegistry{adapters: make(map[projmodel.Technology]*Adapter)}
	r.Register(projmodel.TechnologyCucumber, &parser.CucumberParser{})
	r.Register(projmodel.TechnologyPostman, &parser.PostmanParser{})
	r.Register(projmodel.TechnologyKarate, &parser.GenericParser{Name: "karate"})
	r.Register(projmodel.TechnologyGeneric, &parser.GenericParser{Name: "generic"})
	return r
}

// Register 注册(或替换)一种技术的解析器
func (r *IndexerRegistry) Register(technology projmodel.Technology, p parser.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adapters[technology] = &Adapter{
		Technology: technology,
		Parser:     p,
	}
}

// Resolve 获取指定技术的索引函数
func (r *IndexerRegistry) Resolve(technology projmodel.Technology) (IndexerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[technology]
	if !exists || adapter.Parser == nil {
		return nil, fmt.Errorf("report indexer not found for technology: %s", technology)
	}
	p := adapter.Parser

	return func(ctx context.Context, folder string, opts parser.Options) []*execmodel.ExecutedScenario {
		scenarios, err := p.Parse(ctx, folder, opts)
		if err != nil {
			logger.LogIndexation(logrus.ErrorLevel, "report cannot be indexed, run has no scenario", map[string]interface{}{
				"operation":  "index_run_reports",
				"technology": string(technology),
				"folder":     folder,
				"error":      err.Error(),
			})
			return []*execmodel.ExecutedScenario{}
		}
		if scenarios == nil {
			scenarios = []*execmodel.ExecutedScenario{}
		}
		return scenarios
	}, nil
}

// Technologies 已注册的技术
func (r *IndexerRegistry) Technologies() []projmodel.Technology {
	r.mu.RLock()
	defer r.mu.RUnlock()

	technologies := make([]projmodel.Technology, 0, len(r.adapters))
	for technology := range r.adapters {
		technologies = append(technologies, technology)
	}
	return technologies
}
