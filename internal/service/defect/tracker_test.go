package defect

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	probmodel "aramaster/internal/model/problem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGithubTracker_Statuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/repos/ara/web/issues/1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"number": 1, "state": "open"})
		case "/repos/ara/web/issues/2":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"number": 2, "state": "closed", "closed_at": "2026-03-01T10:00:00Z"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tracker, err := NewGithubTracker(srv.Client(), "ara", "web", "secret").withBaseURL(srv.URL)
	require.NoError(t, err)
	defects, err := tracker.Statuses(t.Context(), []string{"1", "2", "3", "not-a-number"})
	require.NoError(t, err)
	require.Len(t, defects, 2)

	assert.Equal(t, Defect{ID: "1", Status: probmodel.StatusOpen}, defects[0])
	assert.Equal(t, "2", defects[1].ID)
	assert.Equal(t, probmodel.StatusClosed, defects[1].Status)
	require.NotNil(t, defects[1].CloseDateTime)
	assert.True(t, defects[1].CloseDateTime.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestGithubTracker_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	tracker, err := NewGithubTracker(srv.Client(), "ara", "web", "").withBaseURL(srv.URL)
	require.NoError(t, err)
	_, err = tracker.Statuses(t.Context(), []string{"1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestJiraTracker_StatusesPaginates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/rest/api/2/search", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))
		assert.Equal(t, "issueKey in (ARA-1, ARA-2)", r.URL.Query().Get("jql"))

		issue := func(key, category, resolved string) map[string]interface{} {
			fields := map[string]interface{}{
				"status": map[string]interface{}{"statusCategory": map[string]interface{}{"key": category}},
			}
			if resolved != "" {
				fields["resolutiondate"] = resolved
			}
			return map[string]interface{}{"key": key, "fields": fields}
		}
		page := map[string]interface{}{"total": 2}
		// 第一页不带 startAt 参数
		if start := r.URL.Query().Get("startAt"); start == "" || start == "0" {
			page["issues"] = []interface{}{issue("ARA-1", "indeterminate", "")}
		} else {
			page["issues"] = []interface{}{issue("ARA-2", "done", "2026-03-01T10:00:00.000+0100")}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	tracker, err := NewJiraTracker(srv.Client(), srv.URL, "bot", "t")
	require.NoError(t, err)
	defects, err := tracker.Statuses(t.Context(), []string{"ARA-1", "ARA-2", "bad key"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, defects, 2)
	assert.Equal(t, probmodel.StatusOpen, defects[0].Status)
	assert.Equal(t, probmodel.StatusClosed, defects[1].Status)
	require.NotNil(t, defects[1].CloseDateTime)
	assert.True(t, defects[1].CloseDateTime.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
}

func TestJiraTracker_IsValidID(t *testing.T) {
	tracker := &JiraTracker{}
	assert.True(t, tracker.IsValidID("ARA-12"))
	assert.False(t, tracker.IsValidID("ara-12"))
	assert.False(t, tracker.IsValidID("ARA-0"))
	assert.False(t, tracker.IsValidID("12"))
}
