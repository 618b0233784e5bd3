package problem

import (
	"strconv"

	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/pkg/logger"
	"aramaster/internal/pkg/matcher"

	"github.com/sirupsen/logrus"
)

// 错误上下文中可用于匹配的字段
const (
	fieldFeatureFile    = "featureFile"
	fieldFeatureName    = "featureName"
	fieldScenarioName   = "scenarioName"
	fieldStep           = "step"
	fieldStepDefinition = "stepDefinition"
	fieldException      = "exception"
	fieldRelease        = "release"
	fieldCountryID      = "countryId"
	fieldTypeID         = "typeId"
	fieldTypeIsBrowser  = "typeIsBrowser"
	fieldTypeIsMobile   = "typeIsMobile"
	fieldPlatform       = "platform"
)

// errorRecord 让 ErrorContext 满足 matcher.Record
type errorRecord struct {
	*execmodel.ErrorContext
}

func (r errorRecord) Field(name string) (interface{}, bool) {
	switch name {
	case fieldFeatureFile:
		return r.FeatureFile, true
	case fieldFeatureName:
		return r.FeatureName, true
	case fieldScenarioName:
		return r.ScenarioName, true
	case fieldStep:
		return r.Step, true
	case fieldStepDefinition:
		return r.StepDefinition, true
	case fieldException:
		return r.Exception, true
	case fieldRelease:
		return r.Release, true
	case fieldCountryID:
		return strconv.FormatUint(r.CountryID, 10), true
	case fieldTypeID:
		return strconv.FormatUint(r.TypeID, 10), true
	case fieldTypeIsBrowser:
		return strconv.FormatBool(r.TypeIsBrowser), true
	case fieldTypeIsMobile:
		return strconv.FormatBool(r.TypeIsMobile), true
	case fieldPlatform:
		return r.Platform, true
	}
	return nil, false
}

// patternRule 把问题模式转为 AND 规则树，空条件不参与匹配
// startsWith 条件和 exception 按 LIKE 前缀匹配，其余文本条件要求完全相等(区分大小写)
func patternRule(p *probmodel.ProblemPattern) matcher.MatchRule {
	var and []matcher.MatchRule
	text := func(field, value string, prefix bool) {
		if value == "" {
			return
		}
		op := matcher.OpEquals
		if prefix {
			op = matcher.OpLikePrefix
		}
		and = append(and, matcher.MatchRule{Field: field, Operator: op, Value: value})
	}

	text(fieldFeatureFile, p.FeatureFile, false)
	text(fieldFeatureName, p.FeatureName, false)
	text(fieldScenarioName, p.ScenarioName, p.ScenarioNameStartsWith)
	text(fieldStep, p.Step, p.StepStartsWith)
	text(fieldStepDefinition, p.StepDefinition, p.StepDefinitionStartsWith)
	text(fieldException, p.Exception, true)
	text(fieldRelease, p.Release, false)
	text(fieldPlatform, p.Platform, false)
	if p.CountryID != nil {
		text(fieldCountryID, strconv.FormatUint(*p.CountryID, 10), false)
	}
	if p.TypeID != nil {
		text(fieldTypeID, strconv.FormatUint(*p.TypeID, 10), false)
	}
	if p.TypeIsBrowser != nil {
		text(fieldTypeIsBrowser, strconv.FormatBool(*p.TypeIsBrowser), false)
	}
	if p.TypeIsMobile != nil {
		text(fieldTypeIsMobile, strconv.FormatBool(*p.TypeIsMobile), false)
	}
	return matcher.MatchRule{And: and}
}

// compiledPattern 预编译的问题模式
type compiledPattern struct {
	pattern *probmodel.ProblemPattern
	rule    *matcher.Compiled
}

func (c *compiledPattern) matches(ec *execmodel.ErrorContext) bool {
	return c.rule.Match(errorRecord{ec})
}

// compilePatterns 编译模式，空模式和无法编译的模式被跳过
func compilePatterns(patterns []*probmodel.ProblemPattern) []*compiledPattern {
	compiled := make([]*compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.IsEmpty() {
			continue
		}
		rule, err := matcher.Compile(patternRule(p))
		if err != nil {
			logger.LogIndexation(logrus.WarnLevel, "problem pattern cannot be compiled, skipped", map[string]interface{}{
				"operation":  "compile_problem_pattern",
				"pattern_id": p.ID,
				"problem_id": p.ProblemID,
				"error":      err.Error(),
			})
			continue
		}
		compiled = append(compiled, &compiledPattern{pattern: p, rule: rule})
	}
	return compiled
}

// matchOccurrences 计算错误与模式的全部匹配(多对多)
func matchOccurrences(patterns []*compiledPattern, errors []*execmodel.ErrorContext) []probmodel.ProblemOccurrence {
	var occurrences []probmodel.ProblemOccurrence
	for _, ec := range errors {
		for _, cp := range patterns {
			if cp.matches(ec) {
				occurrences = append(occurrences, probmodel.ProblemOccurrence{
					ErrorID:          ec.ErrorID,
					ProblemPatternID: cp.pattern.ID,
				})
			}
		}
	}
	return occurrences
}
