package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	execmodel "aramaster/internal/model/execution"
	"aramaster/internal/pkg/report_adapter/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cucumberReport = `[{
  "uri": "features/cart.feature",
  "name": "Cart",
  "tags": [{"name": "@cart"}, {"name": "@web"}],
  "elements": [
    {"keyword": "Background", "steps": [
      {"keyword": "Given ", "name": "I am logged in", "line": 4, "result": {"status": "passed", "duration": 1000}}
    ]},
    {"keyword": "Scenario", "id": "cart;add-to-cart", "name": "Functionality 12: Add to cart", "line": 6,
     "tags": [{"name": "@severity-high"}, {"name": "@smoke"}],
     "before": [{"match": {"location": "Hooks.before()"}, "result": {"status": "passed", "duration": 5}}],
     "steps": [
       {"keyword": "When ", "name": "I add 2 \"shoes\" to the cart", "line": 7,
        "match": {"arguments": [{"val": "2", "offset": 6}, {"val": "shoes", "offset": 9}]},
        "result": {"status": "failed", "duration": 20, "error_message": "java.lang.AssertionError: Cannot add to cart\r\n\tat Steps.add(Steps.java:10)"}},
       {"keyword": "Then ", "name": "the cart has values:", "line": 8,
        "rows": [{"cells": ["Name", "12"], "line": 9}, {"cells": ["Shoes", "3"], "line": 10}],
        "result": {"status": "skipped"}}
     ],
     "after": [{"match": {"location": "Hooks.after()"}, "result": {"status": "passed", "duration": 7}}]
    },
    {"keyword": "Scenario Outline", "id": "cart;undefined;;2", "name": "Undefined step", "line": 12,
     "steps": [{"keyword": "Given ", "name": "something undefined", "line": 13, "result": {"status": "undefined"}}],
     "after": [{"match": {"location": "Hooks.screenshot()"}, "result": {"status": "failed", "duration": 1, "error_message": "boom"}}]
    },
    {"keyword": "Rule", "id": "cart;rule", "name": "Not a scenario", "line": 20}
  ]
}]`

const cucumberStepDefinitions = `["^I am logged in$", "^I add (\\d+) \"([^\"]*)\" to the cart$"]`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func cucumberOptions() Options {
	return Options{ReportPath: "report.json", StepDefinitionsPath: "stepDefinitions.json", Parallelism: 2}
}

func TestCucumberParser_Parse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.json"), cucumberReport)
	writeFile(t, filepath.Join(dir, "stepDefinitions.json"), cucumberStepDefinitions)

	got, err := (&CucumberParser{}).Parse(context.Background(), dir, cucumberOptions())
	require.NoError(t, err)

	want := []*execmodel.ExecutedScenario{
		{
			FeatureFile: "features/cart.feature",
			FeatureName: "Cart",
			FeatureTags: "@cart @web",
			Tags:        "@severity-high @smoke",
			Severity:    "high",
			Name:        "Functionality 12: Add to cart",
			CucumberID:  "cart;add-to-cart",
			Line:        6,
			Content: "-100000:passed:5:@Before Hooks.before()\n" +
				"0:element:Background:\n" +
				"4:passed:1000:Given I am logged in\n" +
				"0:element:Scenario:\n" +
				"7:failed:20:When I add 2 \"shoes\" to the cart\n" +
				"8:skipped:0:Then the cart has values:\n" +
				"9:skipped:| Name  | 12 |\n" +
				"10:skipped:| Shoes |  3 |\n" +
				"100000:passed:7:@After Hooks.after()",
			Errors: []*execmodel.Error{
				{
					Step:           `I add 2 "shoes" to the cart`,
					StepLine:       7,
					StepDefinition: `^I add (\d+) "([^"]*)" to the cart$`,
					Exception:      "java.lang.AssertionError: Cannot add to cart\n\tat Steps.add(Steps.java:10)",
				},
			},
		},
		{
			FeatureFile: "features/cart.feature",
			FeatureName: "Cart",
			FeatureTags: "@cart @web",
			Name:        "Undefined step",
			CucumberID:  "cart;undefined;;2",
			Line:        12,
			Content: "13:undefined:0:Given something undefined\n" +
				"100000:failed:1:@After Hooks.screenshot()",
			Errors: []*execmodel.Error{
				{
					Step:           "something undefined",
					StepLine:       13,
					StepDefinition: "^something undefined$",
					Exception:      "Undefined step: something undefined",
				},
				{
					Step:           "@After",
					StepLine:       100000,
					StepDefinition: "Hooks.screenshot()",
					Exception:      "boom",
				},
			},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cucumber scenarios mismatch (-want +got):\n%s", diff)
	}
}

func TestCucumberParser_MissingReport(t *testing.T) {
	got, err := (&CucumberParser{}).Parse(context.Background(), t.TempDir(), cucumberOptions())
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestCucumberParser_CorruptReport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.json"), `{"not": "a list"`)

	_, err := (&CucumberParser{}).Parse(context.Background(), dir, cucumberOptions())
	assert.Error(t, err)
}

func TestCucumberParser_MissingStepDefinitionsSimulates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "report.json"), cucumberReport)

	got, err := (&CucumberParser{}).Parse(context.Background(), dir, cucumberOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got[0].Errors, 1)
	assert.Equal(t, `^I add (\d+) "([^"]*)" to the cart$`, got[0].Errors[0].StepDefinition)
}

func TestCucumberParser_BeforeHookError(t *testing.T) {
	features := []models.CucumberFeature{{
		URI: "a.feature",
		Elements: []models.CucumberElement{{
			Keyword: "Scenario",
			Name:    "Fail before it",
			Line:    8,
			Before: []models.CucumberHook{
				{Match: &models.CucumberMatch{Location: "Glue.ok()"}, Result: &models.CucumberResult{Status: "passed"}},
				{Match: &models.CucumberMatch{Location: "Glue.fail()"}, Result: &models.CucumberResult{Status: "failed", ErrorMessage: "x"}},
			},
		}},
	}}

	got := extractCucumberScenarios(features, nil)
	require.Len(t, got, 1)
	require.Len(t, got[0].Errors, 1)
	assert.Equal(t, "@Before", got[0].Errors[0].Step)
	assert.Equal(t, -99999, got[0].Errors[0].StepLine)
	assert.Equal(t, "Glue.fail()", got[0].Errors[0].StepDefinition)
}

func TestSimulateStepDefinition(t *testing.T) {
	tests := []struct {
		name      string
		step      string
		arguments []models.CucumberArgument
		want      string
	}{
		{
			name: "no argument escapes special characters",
			step: "the price is 3.5$ (approx)",
			want: `^the price is 3\.5\$ \(approx\)$`,
		},
		{
			name:      "numeric and string arguments",
			step:      `I add 2 "shoes" to the cart`,
			arguments: []models.CucumberArgument{{Val: "2", Offset: 6}, {Val: "shoes", Offset: 9}},
			want:      `^I add (\d+) "([^"]*)" to the cart$`,
		},
		{
			name:      "quoted number is a string",
			step:      `I pay 10 "20"`,
			arguments: []models.CucumberArgument{{Val: "10", Offset: 6}, {Val: "20", Offset: 10}},
			want:      `^I pay (\d+) "([^"]*)"$`,
		},
		{
			name:      "argument at the end",
			step:      "I wait 5",
			arguments: []models.CucumberArgument{{Val: "5", Offset: 7}},
			want:      `^I wait (\d+)$`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimulateStepDefinition(tt.step, tt.arguments))
		})
	}
}

func TestCompileStepDefinitions_SkipsInvalid(t *testing.T) {
	defs := compileStepDefinitions([]string{"^ok$", "^(unclosed$", `^I have (\d+) items$`})
	require.Len(t, defs, 2)
	assert.Equal(t, `^I have (\d+) items$`, matchingStepDefinition(defs, "I have 3 items", nil))
}
