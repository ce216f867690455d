package jira_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synetech/synepoints/integrations/jira"
)

// fakeJira serves the two endpoints the client uses: paged issue search
// and per-issue transitions.
func fakeJira(t *testing.T, totalIssues int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		require.True(t, ok, "client must send basic auth")
		require.Equal(t, "dev@synetech.cz", user)

		switch {
		case r.URL.Path == "/rest/api/2/search":
			startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
			maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
			assert.Contains(t, r.URL.Query().Get("jql"), "assignee=currentUser()")

			type issue struct {
				Key    string `json:"key"`
				Fields struct {
					Summary string `json:"summary"`
					Status  struct {
						Name string `json:"name"`
					} `json:"status"`
				} `json:"fields"`
			}
			issues := []issue{}
			for i := startAt; i < totalIssues && i < startAt+maxResults; i++ {
				var is issue
				is.Key = fmt.Sprintf("SP-%d", i+1)
				is.Fields.Summary = fmt.Sprintf("Task %d", i+1)
				is.Fields.Status.Name = "In Progress"
				issues = append(issues, is)
			}
			json.NewEncoder(w).Encode(map[string]any{"issues": issues})

		case strings.HasSuffix(r.URL.Path, "/transitions"):
			json.NewEncoder(w).Encode(map[string]any{
				"transitions": []map[string]string{
					{"id": "21", "name": "Resolve"},
					{"id": "31", "name": "Close"},
				},
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func TestJira_OpenIssues_SinglePage(t *testing.T) {
	srv := fakeJira(t, 2)
	defer srv.Close()

	c := jira.New(srv.URL, "dev@synetech.cz", "api-token")
	issues, err := c.OpenIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, "SP-1", issues[0].Key)
	assert.Equal(t, "Task 1", issues[0].Summary)
	assert.Equal(t, "In Progress", issues[0].Status)
	require.Len(t, issues[0].Transitions, 2)
	assert.Equal(t, "Resolve", issues[0].Transitions[0].Name)
}

func TestJira_OpenIssues_PagesThroughBlocks(t *testing.T) {
	// 150 issues means two search pages (100 + 50) before the empty page
	// terminates the loop.

	srv := fakeJira(t, 150)
	defer srv.Close()

	c := jira.New(srv.URL, "dev@synetech.cz", "api-token")
	issues, err := c.OpenIssues(context.Background())
	require.NoError(t, err)
	assert.Len(t, issues, 150)
	assert.Equal(t, "SP-150", issues[149].Key)
}

func TestJira_OpenIssues_NoIssues(t *testing.T) {
	srv := fakeJira(t, 0)
	defer srv.Close()

	c := jira.New(srv.URL, "dev@synetech.cz", "api-token")
	issues, err := c.OpenIssues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestJira_ServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := jira.New(srv.URL, "dev@synetech.cz", "api-token")
	_, err := c.OpenIssues(context.Background())
	assert.ErrorContains(t, err, "status 500")
}
