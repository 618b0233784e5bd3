package parser

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genericLoginReport = `{
  "code": "login-01",
  "name": "Login with valid credentials",
  "cartography": [12, 7],
  "serverName": "api-eu-1",
  "comment": "node-3",
  "severity": "high",
  "startDate": 1700000000000,
  "tags": ["smoke", "auth"],
  "errors": [
    {"lineNumber": 5, "completeLine": "Then I see my account", "rawLine": "Then I see my account", "stackTrace": "AssertionError\r\n  at login.feature:5"},
    null
  ],
  "description": {"stepsContent": "4:passed:When I log in\n5:failed:Then I see my account", "startLineNumber": 3},
  "display": {"videoUrl": "http://v/1.mp4", "screenshotUrl": "http://s/1.png", "otherResultsDisplayUrl": "http://r/1"},
  "feature": {"name": "Login", "fileName": "login.feature", "tags": ["web"]},
  "logs": {"executionTraceUrl": "http://l/trace", "errorStacktraceUrl": "http://l/js", "executedScenarioUrl": "http://l/http", "diffReportUrl": "http://l/diff"}
}`

func TestGenericParser_Parse(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reports", "login.json"), genericLoginReport)
	writeFile(t, filepath.Join(dir, "reports", "broken.json"), `{"code": `)
	writeFile(t, filepath.Join(dir, "reports", "notes.txt"), `ignored`)

	got, err := (&GenericParser{Name: "generic"}).Parse(context.Background(), dir, Options{ReportsPath: "reports", Parallelism: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)

	s := got[0]
	assert.Equal(t, "login-01", s.CucumberID)
	assert.Equal(t, "Functionality 12, 7: Login with valid credentials", s.Name)
	assert.Equal(t, "@smoke @auth", s.Tags)
	assert.Equal(t, "high", s.Severity)
	assert.Equal(t, "api-eu-1", s.APIServer)
	assert.Equal(t, "node-3", s.SeleniumNode)
	require.NotNil(t, s.StartDateTime)
	assert.True(t, s.StartDateTime.Equal(time.UnixMilli(1700000000000)))
	assert.Equal(t, 3, s.Line)
	assert.Equal(t, "4:passed:When I log in\n5:failed:Then I see my account", s.Content)
	assert.Equal(t, "Login", s.FeatureName)
	assert.Equal(t, "login.feature", s.FeatureFile)
	assert.Equal(t, "@web", s.FeatureTags)
	assert.Equal(t, "http://v/1.mp4", s.VideoURL)
	assert.Equal(t, "http://s/1.png", s.ScreenshotURL)
	assert.Equal(t, "http://r/1", s.CucumberReportURL)
	assert.Equal(t, "http://l/trace", s.LogsURL)
	assert.Equal(t, "http://l/js", s.JavaScriptErrorsURL)
	assert.Equal(t, "http://l/http", s.HTTPRequestsURL)
	assert.Equal(t, "http://l/diff", s.DiffReportURL)

	require.Len(t, s.Errors, 1)
	assert.Equal(t, 5, s.Errors[0].StepLine)
	assert.Equal(t, "Then I see my account", s.Errors[0].Step)
	assert.Equal(t, "AssertionError\n  at login.feature:5", s.Errors[0].Exception)
}

func TestGenericParser_MissingFolder(t *testing.T) {
	got, err := (&GenericParser{Name: "karate"}).Parse(context.Background(), t.TempDir(), Options{ReportsPath: "karate"})
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestGenericParser_RFC3339StartDate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "r", "a.json"), `{"name": "plain", "startDate": "2024-03-01T10:00:00Z"}`)

	got, err := (&GenericParser{Name: "generic"}).Parse(context.Background(), dir, Options{ReportsPath: "r"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "plain", got[0].Name)
	assert.Equal(t, "", got[0].Tags)
	require.NotNil(t, got[0].StartDateTime)
	assert.Equal(t, 2024, got[0].StartDateTime.Year())
}
