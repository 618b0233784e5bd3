package parser

import (
	"context"
	"path/filepath"
	"testing"

	execmodel "aramaster/internal/model/execution"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const newmanCartReport = `{
  "collection": {
    "info": {"name": "Shop API"},
    "item": [
      {"id": "f1", "name": "@severity-high Cart", "item": [
        {"id": "r1", "name": "Add item", "request": {"method": "POST",
          "url": {"protocol": "https", "host": ["api", "shop", "com"], "path": ["cart"], "query": [{"key": "q", "value": "1"}]}}},
        {"id": "r2", "name": "@severity-medium - List items", "request": {"method": "GET", "url": "https://api.shop.com/cart"}},
        {"id": "r3", "name": "Not run", "request": {"method": "GET", "url": "https://api.shop.com/other"}}
      ]}
    ]
  },
  "run": {
    "executions": [
      {"item": {"id": "r1"}, "response": {"code": 500, "responseTime": 12},
       "assertions": [{"assertion": "Status is 200"}, {"assertion": "Body has id"}]},
      {"item": {"id": "r2"}, "response": {"code": 200, "responseTime": 3},
       "assertions": [{"assertion": "Status is 200"}]}
    ],
    "failures": [
      {"at": "assertion:0 in test-script", "source": {"id": "r1"},
       "error": {"name": "AssertionError", "message": "expected 500 to equal 200", "index": 0}}
    ]
  }
}`

const newmanOrderReport = `{
  "collection": {"info": {"name": "Orders"}, "item": [
    {"id": "o1", "name": "Create order", "request": {"method": "POST", "url": "https://api.shop.com/orders"}}
  ]},
  "run": {
    "executions": [{"item": {"id": "o1"}}],
    "failures": [{"at": "prerequest-script", "source": {"id": "o1"}, "error": {"stack": "TypeError: x is undefined\r\n  at script"}}]
  }
}`

func postmanOptions() Options {
	return Options{ReportsPath: "reports", JobURL: "http://ci/job/42/", Parallelism: 3}
}

func TestPostmanParser_Parse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reports", "a-cart.json"), newmanCartReport)
	writeFile(t, filepath.Join(dir, "reports", "b-broken.json"), `{"collection": [`)
	writeFile(t, filepath.Join(dir, "reports", "c-orders.json"), newmanOrderReport)
	writeFile(t, filepath.Join(dir, "reports", NewmanFinishedMarker), "done")

	got, err := (&PostmanParser{}).Parse(context.Background(), dir, postmanOptions())
	require.NoError(t, err)

	reportURL := "http://ci/job/42/Postman_Collection_Results/"
	want := []*execmodel.ExecutedScenario{
		{
			FeatureFile:       "a-cart.json",
			FeatureName:       "Shop API",
			Tags:              "@severity-high",
			Severity:          "high",
			Name:              "Cart ▶ Add item",
			CucumberID:        "Cart/Add item",
			Line:              2,
			CucumberReportURL: reportURL,
			Content: "-100000:passed:<Pre-Request Script>\n" +
				"-1:passed:12000000:POST https://api.shop.com/cart?q=1\n" +
				"0:failed:Status is 200\n" +
				"1:passed:Body has id\n" +
				"100000:passed:<Test Script>",
			Errors: []*execmodel.Error{{
				Step:           "Status is 200",
				StepLine:       0,
				StepDefinition: "Status is 200",
				Exception:      "AssertionError: expected 500 to equal 200",
			}},
		},
		{
			FeatureFile:       "a-cart.json",
			FeatureName:       "Shop API",
			Tags:              "@severity-medium",
			Severity:          "medium",
			Name:              "Cart ▶ List items",
			CucumberID:        "Cart/List items",
			Line:              3,
			CucumberReportURL: reportURL,
			Content: "-100000:passed:<Pre-Request Script>\n" +
				"-1:passed:3000000:GET https://api.shop.com/cart\n" +
				"0:passed:Status is 200\n" +
				"100000:passed:<Test Script>",
		},
		{
			// 第一个文件消耗了 4 个序号(目录 + 3 个请求)，损坏的文件被跳过
			FeatureFile:       "c-orders.json",
			FeatureName:       "Orders",
			Name:              "Create order",
			CucumberID:        "Create order",
			Line:              5,
			CucumberReportURL: reportURL,
			Content: "-100000:failed:<Pre-Request Script>\n" +
				"-1:passed:POST https://api.shop.com/orders\n" +
				"100000:passed:<Test Script>",
			Errors: []*execmodel.Error{{
				Step:           "<Pre-Request Script>",
				StepLine:       -100000,
				StepDefinition: "<Pre-Request Script>",
				Exception:      "TypeError: x is undefined\n  at script",
			}},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("postman scenarios mismatch (-want +got):\n%s", diff)
	}
}

func TestPostmanParser_WaitsForResultMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reports", "a-cart.json"), newmanCartReport)

	got, err := (&PostmanParser{}).Parse(context.Background(), dir, postmanOptions())
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemoveSeverityTag(t *testing.T) {
	tests := map[string]string{
		"@severity-high Title":     "Title",
		"@severity-high : Title":   "Title",
		"@severity-high - Title":   "Title",
		"Title":                    "Title",
		"@severity-high : - ":      "Untitled",
		"@severity-sanity-check X": "X",
	}
	for name, want := range tests {
		assert.Equal(t, want, removeSeverityTag(name), name)
	}
	assert.Equal(t, "sanity-check", severityOfName("@severity-sanity-check X"))
	assert.Equal(t, "", severityOfName("severity-high X"))
}
