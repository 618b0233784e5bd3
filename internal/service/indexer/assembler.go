/**
 * 索引:执行组装
 * @author: sun977
 * @date: 2025.10.21
 * @description: 读取原始任务目录(构建信息、周期定义、各国家/类型报告)，组装内存中的执行聚合，不做任何写入
 * @func: Assemble
 */
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	execmodel "aramaster/internal/model/execution"
	projmodel "aramaster/internal/model/project"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/report_adapter/parser"
	"aramaster/internal/pkg/report_adapter/registry"
	"aramaster/internal/service/project"
	"aramaster/internal/service/quality"
	"aramaster/internal/service/setting"

	"github.com/sirupsen/logrus"
)

// Assembler 执行组装器
type Assembler struct {
	projectService  *project.ProjectService
	settingService  *setting.SettingService
	registry        *registry.IndexerRegistry
	parallelReports int
}

// NewAssembler 创建 Assembler 实例
func NewAssembler(projectService *project.ProjectService, settingService *setting.SettingService, indexers *registry.IndexerRegistry, parallelReports int) *Assembler {
	return &Assembler{
		projectService:  projectService,
		settingService:  settingService,
		registry:        indexers,
		parallelReports: parallelReports,
	}
}

// assembly 单次组装的上下文
type assembly struct {
	folder    string
	settings  *setting.Settings
	reference *project.ReferenceData
	execution *execmodel.Execution
}

// Assemble 组装原始目录对应的执行
// 没有构建信息，或任务未完成且没有周期定义时返回 nil(暂不索引)
// 报告缺失或损坏不会返回错误，只有读取项目数据失败才返回错误
func (a *Assembler) Assemble(ctx context.Context, indexation *execmodel.PlannedIndexation, link string) (*execmodel.Execution, error) {
	settings, err := a.settingService.Load(ctx, indexation.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	buildPath := settings.Get(setting.BuildInformationPath)
	build, err := readBuild(indexation.RawFolder, buildPath)
	if err != nil || build == nil {
		fields := map[string]interface{}{
			"operation": "assemble_execution",
			"job_link":  link,
			"file":      buildPath,
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.LogIndexation(logrus.WarnLevel, "build information file cannot be processed", fields)
		return nil, nil
	}

	execution := newExecution(indexation, build, link)

	var cycle CycleDefinitionFile
	found, err := readJSONFile(indexation.RawFolder, settings.Get(setting.CycleDefinitionPath), &cycle)
	if err != nil || !found {
		if execution.Status == execmodel.JobStatusDone {
			logger.LogIndexation(logrus.WarnLevel, "cycle definition not found in done job, indexing it as failed", map[string]interface{}{
				"operation": "assemble_execution",
				"job_link":  link,
			})
			execution.BlockingValidation = false
			return execution, nil
		}
		logger.LogIndexation(logrus.WarnLevel, "cycle definition not found (too soon?), not indexing it yet", map[string]interface{}{
			"operation": "assemble_execution",
			"job_link":  link,
		})
		return nil, nil
	}

	execution.BlockingValidation = cycle.BlockingValidation
	thresholds, err := json.Marshal(cycle.QualityThresholds)
	if err != nil {
		return nil, err
	}
	execution.QualityThresholds = string(thresholds)

	reference, err := a.projectService.LoadReferenceData(ctx, indexation.ProjectID)
	if err != nil {
		return nil, err
	}

	asm := &assembly{
		folder:    indexation.RawFolder,
		settings:  settings,
		reference: reference,
		execution: execution,
	}
	a.addDeploymentsAndRuns(ctx, asm, &cycle)

	quality.ComputeQuality(execution, reference.Severities)
	if !coversRules(execution, &cycle) {
		execution.QualityStatus = execmodel.QualityIncomplete
	}
	return execution, nil
}

func newExecution(indexation *execmodel.PlannedIndexation, build *Build, link string) *execmodel.Execution {
	execution := &execmodel.Execution{
		ProjectID:         indexation.ProjectID,
		CycleDefinitionID: indexation.CycleDefinition.ID,
		Branch:            indexation.CycleDefinition.Branch,
		Name:              indexation.CycleDefinition.Name,
		Release:           build.Release,
		Version:           build.Version,
		TestDateTime:      *build.StartDateTime(),
		JobURL:            build.URL,
		JobLink:           link,
		Status:            build.Status(),
		Result:            build.Result,
		Acceptance:        execmodel.AcceptanceNew,
		QualityStatus:     execmodel.QualityIncomplete,
		Duration:          build.Duration,
		EstimatedDuration: build.EstimatedDuration,
	}
	if build.VersionTimestamp != nil {
		buildDateTime := time.UnixMilli(*build.VersionTimestamp)
		execution.BuildDateTime = &buildDateTime
	}
	return execution
}

func (a *Assembler) addDeploymentsAndRuns(ctx context.Context, asm *assembly, cycle *CycleDefinitionFile) {
	buildPath := asm.settings.Get(setting.BuildInformationPath)
	countryFolders := subFolders(asm.folder)
	if len(countryFolders) == 0 {
		logger.LogIndexation(logrus.WarnLevel, "execution folder does not contain any country", map[string]interface{}{
			"operation": "assemble_execution",
			"job_link":  asm.execution.JobLink,
		})
	}

	for _, platform := range sortedPlatforms(cycle) {
		for _, rule := range cycle.PlatformsRules[platform] {
			if !rule.Enabled {
				continue
			}
			countryCode := strings.ToLower(rule.Country)
			country := asm.reference.CountryByCode(countryCode)
			if country == nil {
				logger.LogIndexation(logrus.WarnLevel, "unknown country in cycle definition", map[string]interface{}{
					"operation": "assemble_execution",
					"job_link":  asm.execution.JobLink,
					"country":   countryCode,
				})
				continue
			}

			deployment := &execmodel.CountryDeployment{
				CountryID: country.ID,
				Platform:  platform,
				Status:    execmodel.JobStatusUnavailable,
				Country:   country,
			}
			var typeFolders []string
			if countryFolder, ok := findFolder(countryFolders, countryCode); ok {
				build, err := readBuild(countryFolder, buildPath)
				if err != nil {
					logBuildError(asm, countryFolder, err)
				}
				fillDeployment(deployment, build, asm.execution.Status)
				typeFolders = subFolders(countryFolder)
			} else {
				logger.LogIndexation(logrus.WarnLevel, "country of cycle definition has no folder", map[string]interface{}{
					"operation": "assemble_execution",
					"job_link":  asm.execution.JobLink,
					"country":   countryCode,
				})
			}
			asm.execution.CountryDeployments = append(asm.execution.CountryDeployments, deployment)

			for _, typeCode := range rule.TypeCodes() {
				typ := asm.reference.TypeByCode(typeCode)
				if typ == nil {
					logger.LogIndexation(logrus.WarnLevel, "unknown type in cycle definition", map[string]interface{}{
						"operation": "assemble_execution",
						"job_link":  asm.execution.JobLink,
						"type":      typeCode,
					})
					continue
				}
				if typ.Source == nil {
					continue
				}
				run := newRun(country, typ, platform, rule)
				asm.execution.Runs = append(asm.execution.Runs, run)

				typeFolder, ok := findFolder(typeFolders, typeCode)
				if !ok {
					logger.LogIndexation(logrus.WarnLevel, "type of cycle definition has no folder", map[string]interface{}{
						"operation": "assemble_execution",
						"job_link":  asm.execution.JobLink,
						"country":   countryCode,
						"type":      typeCode,
					})
					continue
				}
				build, err := readBuild(typeFolder, buildPath)
				if err != nil {
					logBuildError(asm, typeFolder, err)
				}
				fillRun(run, build, asm.execution.Status)
				run.ExecutedScenarios = a.indexRun(ctx, asm, typ.Source.Technology, typeFolder, run.JobURL)
			}
		}
	}
}

// indexRun 使用来源技术对应的解析器读取运行的报告
func (a *Assembler) indexRun(ctx context.Context, asm *assembly, technology projmodel.Technology, folder, jobURL string) []*execmodel.ExecutedScenario {
	index, err := a.registry.Resolve(technology)
	if err != nil {
		logger.LogIndexation(logrus.ErrorLevel, "no report indexer for technology", map[string]interface{}{
			"operation":  "assemble_execution",
			"job_link":   asm.execution.JobLink,
			"technology": string(technology),
		})
		return nil
	}
	return index(ctx, folder, a.parserOptions(asm.settings, technology, jobURL))
}

func (a *Assembler) parserOptions(settings *setting.Settings, technology projmodel.Technology, jobURL string) parser.Options {
	opts := parser.Options{
		JobURL:      jobURL,
		Parallelism: a.parallelReports,
	}
	switch technology {
	case projmodel.TechnologyCucumber:
		opts.ReportPath = settings.Get(setting.CucumberReportPath)
		opts.StepDefinitionsPath = settings.Get(setting.CucumberStepDefsPath)
	case projmodel.TechnologyPostman:
		opts.ReportsPath = settings.Get(setting.PostmanReportsPath)
	case projmodel.TechnologyKarate:
		opts.ReportsPath = settings.Get(setting.KarateReportsPath)
	case projmodel.TechnologyGeneric:
		opts.ReportsPath = settings.Get(setting.GenericReportsPath)
	}
	return opts
}

func newRun(country *projmodel.Country, typ *projmodel.Type, platform string, rule PlatformRule) *execmodel.Run {
	return &execmodel.Run{
		CountryID:           country.ID,
		TypeID:              typ.ID,
		Platform:            platform,
		Status:              execmodel.JobStatusUnavailable,
		CountryTags:         rule.CountryTags,
		SeverityTags:        rule.SeverityTags,
		IncludeInThresholds: rule.BlockingValidation,
		Country:             country,
		Type:                typ,
	}
}

func fillRun(run *execmodel.Run, build *Build, executionStatus execmodel.JobStatus) {
	run.Status = childStatus(executionStatus, build)
	if build == nil {
		return
	}
	run.JobURL = build.URL
	run.JobLink = build.Link
	run.StartDateTime = build.StartDateTime()
	run.EstimatedDuration = build.EstimatedDuration
	run.Duration = build.Duration
	if build.Comment != "" {
		run.Comment = build.Comment
	}
}

func fillDeployment(deployment *execmodel.CountryDeployment, build *Build, executionStatus execmodel.JobStatus) {
	deployment.Status = childStatus(executionStatus, build)
	if build == nil {
		return
	}
	deployment.JobURL = build.URL
	deployment.JobLink = build.Link
	deployment.StartDateTime = build.StartDateTime()
	deployment.EstimatedDuration = build.EstimatedDuration
	deployment.Duration = build.Duration
	deployment.Result = build.Result
}

func logBuildError(asm *assembly, folder string, err error) {
	logger.LogIndexation(logrus.WarnLevel, "build information file cannot be processed", map[string]interface{}{
		"operation": "assemble_execution",
		"job_link":  asm.execution.JobLink,
		"folder":    folder,
		"error":     err.Error(),
	})
}

// sortedPlatforms JSON 对象无序，按平台名排序保证组装结果稳定
func sortedPlatforms(cycle *CycleDefinitionFile) []string {
	platforms := make([]string, 0, len(cycle.PlatformsRules))
	for platform := range cycle.PlatformsRules {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// coversRules 每条启用的规则都有对应的部署，且每个测试类型都有对应的运行
func coversRules(execution *execmodel.Execution, cycle *CycleDefinitionFile) bool {
	for platform, rules := range cycle.PlatformsRules {
		for _, rule := range rules {
			if !rule.Enabled {
				continue
			}
			if !hasDeployment(execution, rule.Country, platform) {
				return false
			}
			for _, typeCode := range rule.TypeCodes() {
				if !hasRun(execution, rule.Country, typeCode, platform) {
					return false
				}
			}
		}
	}
	return true
}

func hasDeployment(execution *execmodel.Execution, countryCode, platform string) bool {
	for _, d := range execution.CountryDeployments {
		if d.Country != nil && strings.EqualFold(d.Country.Code, countryCode) && strings.EqualFold(d.Platform, platform) {
			return true
		}
	}
	return false
}

func hasRun(execution *execmodel.Execution, countryCode, typeCode, platform string) bool {
	for _, r := range execution.Runs {
		if r.Country != nil && r.Type != nil &&
			strings.EqualFold(r.Country.Code, countryCode) &&
			strings.EqualFold(r.Type.Code, typeCode) &&
			strings.EqualFold(r.Platform, platform) {
			return true
		}
	}
	return false
}
