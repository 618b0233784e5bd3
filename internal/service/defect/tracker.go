/**
 * 缺陷系统客户端
 * @author: sun977
 * @date: 2025.10.20
 * @description: 通过 go-github / go-jira 查询缺陷状态，用于同步问题的缺陷状态
 * @func: Tracker, NewTracker, GithubTracker, JiraTracker
 */
package defect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	probmodel "aramaster/internal/model/problem"
	"aramaster/internal/service/setting"

	jira "github.com/andygrunwald/go-jira"
	"github.com/google/go-github/github"
)

const (
	TrackerGithub = "github"
	TrackerJira   = "jira"
)

// Defect 缺陷系统中某个缺陷的状态
type Defect struct {
	ID            string
	Status        probmodel.Status
	CloseDateTime *time.Time
}

// Tracker 缺陷系统客户端
// Statuses 只返回存在的缺陷，不存在的ID不出现在结果中
type Tracker interface {
	Code() string
	IsValidID(id string) bool
	Statuses(ctx context.Context, ids []string) ([]Defect, error)
}

// NewTracker 根据项目配置创建客户端，未配置缺陷系统时返回 nil
func NewTracker(settings *setting.Settings, timeout time.Duration) (Tracker, error) {
	switch code := strings.TrimSpace(settings.Get(setting.DefectIndexer)); code {
	case "":
		return nil, nil
	case TrackerGithub:
		return NewGithubTracker(
			&http.Client{Timeout: timeout},
			settings.Get(setting.DefectGithubOwner),
			settings.Get(setting.DefectGithubRepository),
			settings.Get(setting.DefectGithubToken),
		), nil
	case TrackerJira:
		baseURL := strings.TrimSpace(settings.Get(setting.DefectJiraBaseURL))
		if baseURL == "" {
			return nil, fmt.Errorf("jira base url is not configured")
		}
		return NewJiraTracker(&http.Client{Timeout: timeout}, baseURL, settings.Get(setting.DefectJiraLogin), settings.Get(setting.DefectJiraToken))
	default:
		return nil, fmt.Errorf("unknown defect tracker: %s", code)
	}
}

// -----------------------------------------------------------------------------
// GitHub
// -----------------------------------------------------------------------------

// GithubTracker GitHub issue，ID 为正整数
type GithubTracker struct {
	client     *github.Client
	owner      string
	repository string
}

// tokenTransport 为每个请求加上 GitHub 个人令牌
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewGithubTracker 创建 GitHub 客户端，token 为空时匿名访问
func NewGithubTracker(httpClient *http.Client, owner, repository, token string) *GithubTracker {
	if token != "" {
		authed := *httpClient
		authed.Transport = &tokenTransport{token: token, base: httpClient.Transport}
		httpClient = &authed
	}
	return &GithubTracker{
		client:     github.NewClient(httpClient),
		owner:      owner,
		repository: repository,
	}
}

// withBaseURL 指向 GitHub Enterprise 或测试服务器
func (t *GithubTracker) withBaseURL(raw string) (*GithubTracker, error) {
	u, err := url.Parse(strings.TrimSuffix(raw, "/") + "/")
	if err != nil {
		return nil, err
	}
	t.client.BaseURL = u
	return t, nil
}

func (t *GithubTracker) Code() string { return TrackerGithub }

func (t *GithubTracker) IsValidID(id string) bool {
	n, err := strconv.Atoi(id)
	return err == nil && n > 0
}

// Statuses 逐个请求 issue，404/410 视为不存在
func (t *GithubTracker) Statuses(ctx context.Context, ids []string) ([]Defect, error) {
	var defects []Defect
	for _, id := range ids {
		if !t.IsValidID(id) {
			continue
		}
		number, _ := strconv.Atoi(id)

		issue, resp, err := t.client.Issues.Get(ctx, t.owner, t.repository, number)
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("request github issue %s: %w", id, err)
		}

		defect := Defect{ID: strconv.Itoa(issue.GetNumber()), Status: probmodel.StatusClosed, CloseDateTime: issue.ClosedAt}
		if issue.GetState() == "open" {
			defect.Status = probmodel.StatusOpen
			defect.CloseDateTime = nil
		}
		defects = append(defects, defect)
	}
	return defects, nil
}

// -----------------------------------------------------------------------------
// Jira
// -----------------------------------------------------------------------------

var jiraKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-[1-9][0-9]*$`)

// jiraPageSize 单次搜索的最大结果数
const jiraPageSize = 100

// JiraTracker Jira issue，ID 为 issue key(如 ARA-123)
type JiraTracker struct {
	client *jira.Client
}

// NewJiraTracker 创建 Jira 客户端，使用登录名和 API 令牌做基本认证
func NewJiraTracker(httpClient *http.Client, baseURL, login, token string) (*JiraTracker, error) {
	authed := *httpClient
	authed.Transport = &jira.BasicAuthTransport{Username: login, Password: token, Transport: httpClient.Transport}
	client, err := jira.NewClient(&authed, strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	return &JiraTracker{client: client}, nil
}

func (t *JiraTracker) Code() string { return TrackerJira }

func (t *JiraTracker) IsValidID(id string) bool {
	return jiraKeyPattern.MatchString(id)
}

// Statuses 通过 JQL "issueKey in (...)" 分页搜索
func (t *JiraTracker) Statuses(ctx context.Context, ids []string) ([]Defect, error) {
	var keys []string
	for _, id := range ids {
		if t.IsValidID(id) {
			keys = append(keys, id)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	jql := fmt.Sprintf("issueKey in (%s)", strings.Join(keys, ", "))
	var defects []Defect
	for startAt := 0; ; {
		issues, resp, err := t.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: jiraPageSize,
			Fields:     []string{"status", "resolutiondate"},
		})
		if err != nil {
			return nil, fmt.Errorf("search jira issues: %w", err)
		}
		for _, issue := range issues {
			defects = append(defects, jiraToDefect(issue))
		}

		startAt += len(issues)
		if len(issues) == 0 || resp == nil || startAt >= resp.Total {
			return defects, nil
		}
	}
}

func jiraToDefect(issue jira.Issue) Defect {
	defect := Defect{ID: issue.Key, Status: probmodel.StatusOpen}
	if issue.Fields == nil || issue.Fields.Status == nil {
		return defect
	}
	if issue.Fields.Status.StatusCategory.Key == "done" {
		defect.Status = probmodel.StatusClosed
		if closed := time.Time(issue.Fields.Resolutiondate); !closed.IsZero() {
			defect.CloseDateTime = &closed
		}
	}
	return defect
}
