// Package jira is a read-only client for the tasks view: it lists the
// signed-in user's open issues together with their available workflow
// transitions. It never touches the points ledger.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// searchBlockSize is the page size for issue search; Jira caps result
// pages, so OpenIssues pages through blocks until one comes back empty.
const searchBlockSize = 100

type Client struct {
	baseURL  string
	username string
	token    string
	http     *http.Client
}

// New builds a client using the caller's personal credentials (basic
// auth with an API token, decrypted by the vault).
func New(baseURL, username, token string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		token:    token,
		http:     http.DefaultClient,
	}
}

// WithHTTPClient overrides the underlying HTTP client (tests, timeouts).
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Issue struct {
	Key         string       `json:"key"`
	Summary     string       `json:"summary"`
	Status      string       `json:"status"`
	Transitions []Transition `json:"transitions"`
}

// OpenIssues returns the user's unresolved issues created within the
// last year, each with its available transitions.
func (c *Client) OpenIssues(ctx context.Context) ([]Issue, error) {
	jql := "assignee=currentUser() AND status not in (Resolved, Closed) AND createdDate >= -365d"

	var issues []Issue
	for start := 0; ; start += searchBlockSize {
		page, err := c.searchPage(ctx, jql, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		issues = append(issues, page...)
	}

	for i := range issues {
		transitions, err := c.transitions(ctx, issues[i].Key)
		if err != nil {
			return nil, err
		}
		issues[i].Transitions = transitions
	}
	return issues, nil
}

type searchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
		} `json:"fields"`
	} `json:"issues"`
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) ([]Issue, error) {
	q := url.Values{
		"jql":        {jql},
		"startAt":    {strconv.Itoa(startAt)},
		"maxResults": {strconv.Itoa(searchBlockSize)},
		"fields":     {"summary,status"},
	}
	var resp searchResponse
	if err := c.get(ctx, "/rest/api/2/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	page := make([]Issue, len(resp.Issues))
	for i, raw := range resp.Issues {
		page[i] = Issue{
			Key:     raw.Key,
			Summary: raw.Fields.Summary,
			Status:  raw.Fields.Status.Name,
		}
	}
	return page, nil
}

type transitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

func (c *Client) transitions(ctx context.Context, issueKey string) ([]Transition, error) {
	var resp transitionsResponse
	if err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(issueKey)+"/transitions", &resp); err != nil {
		return nil, err
	}
	return resp.Transitions, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jira request %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
