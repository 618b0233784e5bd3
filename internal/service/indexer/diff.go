package indexer

import (
	execmodel "aramaster/internal/model/execution"
	probmodel "aramaster/internal/model/problem"
)

// errorKey 重索引前后识别同一个错误的业务键
type errorKey struct {
	countryID      uint64
	typeID         uint64
	platform       string
	featureFile    string
	scenarioName   string
	scenarioLine   int
	stepLine       int
	step           string
	stepDefinition string
	exception      string
}

func keyOf(e *execmodel.ErrorContext) errorKey {
	return errorKey{
		countryID:      e.CountryID,
		typeID:         e.TypeID,
		platform:       e.Platform,
		featureFile:    e.FeatureFile,
		scenarioName:   e.ScenarioName,
		scenarioLine:   e.ScenarioLine,
		stepLine:       e.StepLine,
		step:           e.Step,
		stepDefinition: e.StepDefinition,
		exception:      e.Exception,
	}
}

// diffErrors 按业务键把持久化后的错误与旧错误一一配对(相同键出现多次时按ID顺序配对)
// 返回 旧错误ID -> 新错误ID 以及没有配对的新错误ID
func diffErrors(previous, persisted []*execmodel.ErrorContext) (map[uint64]uint64, []uint64) {
	pending := make(map[errorKey][]uint64, len(previous))
	for _, e := range previous {
		k := keyOf(e)
		pending[k] = append(pending[k], e.ErrorID)
	}

	kept := make(map[uint64]uint64)
	var fresh []uint64
	for _, e := range persisted {
		k := keyOf(e)
		if ids := pending[k]; len(ids) > 0 {
			kept[ids[0]] = e.ErrorID
			pending[k] = ids[1:]
			continue
		}
		fresh = append(fresh, e.ErrorID)
	}
	return kept, fresh
}

// carryOccurrences 把旧错误的问题关联转移到配对的新错误上
func carryOccurrences(occurrences []probmodel.ProblemOccurrence, kept map[uint64]uint64) []probmodel.ProblemOccurrence {
	var carried []probmodel.ProblemOccurrence
	for _, o := range occurrences {
		if newID, ok := kept[o.ErrorID]; ok {
			carried = append(carried, probmodel.ProblemOccurrence{ErrorID: newID, ProblemPatternID: o.ProblemPatternID})
		}
	}
	return carried
}

func errorIDs(contexts []*execmodel.ErrorContext) []uint64 {
	ids := make([]uint64, 0, len(contexts))
	for _, c := range contexts {
		ids = append(ids, c.ErrorID)
	}
	return ids
}

func distinctProblems(groups ...[]*probmodel.Problem) []*probmodel.Problem {
	seen := make(map[uint64]struct{})
	var result []*probmodel.Problem
	for _, group := range groups {
		for _, p := range group {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			result = append(result, p)
		}
	}
	return result
}
