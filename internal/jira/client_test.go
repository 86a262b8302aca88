package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/robby/stevenson/internal/dispatch"
	"github.com/robby/stevenson/internal/document"
	"github.com/robby/stevenson/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(testr.New(t)), WithFallbackDelay(5 * time.Millisecond)}, opts...)
	c, err := New(Config{BaseURL: srv.URL + "/", Email: "bot@acme.io", Token: "secret"}, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, srv
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Email: "a", Token: "b"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.KindMissingParameter, verr.Kind)

	_, err = New(Config{BaseURL: "https://x", Token: "b"})
	require.ErrorAs(t, err, &verr)

	_, err = New(Config{BaseURL: "https://x", Email: "a"})
	require.ErrorAs(t, err, &verr)
}

func TestCreateIssue(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/issue", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "bot@acme.io", user)
		assert.Equal(t, "secret", pass)

		var body struct {
			Fields struct {
				Project     map[string]string `json:"project"`
				IssueType   map[string]string `json:"issuetype"`
				Summary     string            `json:"summary"`
				Description document.Node     `json:"description"`
			} `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "REL", body.Fields.Project["key"])
		assert.Equal(t, "Task", body.Fields.IssueType["name"])
		assert.Equal(t, "Release mobile 1.0.0", body.Fields.Summary)
		assert.Equal(t, document.TypeDoc, body.Fields.Description.Type)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"10001","key":"REL-7","self":"x"}`)
	})

	issue, err := c.CreateIssue(context.Background(), IssueFields{
		ProjectKey:  "REL",
		IssueType:   "Task",
		Summary:     "Release mobile 1.0.0",
		Description: document.Node{Type: document.TypeDoc, Version: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "REL-7", issue.Key)
	assert.Equal(t, "10001", issue.ID)
	assert.Contains(t, issue.URL, "/browse/REL-7")
}

func TestCreateVersion_ReplaysAfterThrottle(t *testing.T) {
	var calls int32
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "app 1.0.0", body["name"])
		assert.Equal(t, float64(10200), body["projectId"])
		assert.Equal(t, "2026-10-15", body["startDate"])

		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"id":"555","name":"app 1.0.0","projectId":10200}`)
	})

	v, err := c.CreateVersion(context.Background(), domain.VersionRecord{
		ProjectID: 10200,
		Name:      "app 1.0.0",
		StartDate: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "555", v.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLinkVersion(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/api/3/issue/ABC-1", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"update":{"fixVersions":[{"add":{"id":"555"}}]}}`, string(raw))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.LinkVersion(context.Background(), "555", "ABC-1"))
}

func TestAPIError(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"errorMessages":["Issue does not exist"],"errors":{"b":"two","a":"one"}}`)
	})

	err := c.LinkVersion(context.Background(), "1", "NOPE-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, []string{"Issue does not exist", "a: one", "b: two"}, apiErr.Messages)
	assert.Contains(t, err.Error(), "NOPE-1")
}

func TestAPIError_PlainBody(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	})

	_, err := c.Search(context.Background(), "project = ABC", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"gateway exploded"}, apiErr.Messages)
}

func TestSearch(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, `fixVersion = "app 1.0.0" ORDER BY key ASC`, body["jql"])
		assert.Equal(t, float64(50), body["maxResults"])

		_, _ = io.WriteString(w, `{"issues":[
			{"id":"1","key":"ABC-1","fields":{"summary":"Login","status":{"name":"Done"}}},
			{"id":"2","key":"ABC-2","fields":{"summary":"Logout","status":{"name":"To Do"}}}
		]}`)
	})

	issues, err := c.Search(context.Background(), FixVersionJQL("app 1.0.0"), 0)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, domain.Issue{ID: "1", Key: "ABC-1", Summary: "Login", Status: "Done"}, issues[0])
}

func TestTransportErrorIsNotRetried(t *testing.T) {
	var calls int32
	c, srv := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	srv.Close()

	_, err := c.CreateIssue(context.Background(), IssueFields{ProjectKey: "REL"})
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestMaxAttemptsSurfacesExhaustion(t *testing.T) {
	c, _ := createTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithMaxAttempts(2))

	err := c.LinkVersion(context.Background(), "1", "ABC-1")
	require.ErrorIs(t, err, dispatch.ErrRetriesExhausted)
	assert.Equal(t, dispatch.StateIdle, waitIdle(t, c))
}

func waitIdle(t *testing.T, c *Client) dispatch.State {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Snapshot().State == dispatch.StateIdle
	}, time.Second, 5*time.Millisecond)
	return c.Snapshot().State
}
