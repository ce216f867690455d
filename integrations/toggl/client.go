// Package toggl wraps the Toggl track API for the in-app time tracking
// buttons: find the task matching a Jira issue key, start a billable
// time entry on it, stop it, and show what's currently running.
package toggl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrProjectNotFound is returned when no Toggl project matches the task
// keyword - usually a permissions problem or a renamed project.
var ErrProjectNotFound = errors.New("toggl project not found")

type Client struct {
	baseURL   string
	apiToken  string
	userAgent string
	http      *http.Client
}

func New(baseURL, apiToken, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		apiToken:  apiToken,
		userAgent: userAgent,
		http:      http.DefaultClient,
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Task struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ProjectID int64  `json:"pid"`
}

type TimeEntry struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	TaskID      int64  `json:"tid"`
	ProjectID   int64  `json:"pid"`
	Billable    bool   `json:"billable"`
}

func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var out []Workspace
	if err := c.do(ctx, http.MethodGet, "/workspaces", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Projects(ctx context.Context, workspaceID int64) ([]Project, error) {
	var out []Project
	path := "/workspaces/" + strconv.FormatInt(workspaceID, 10) + "/projects"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProjectTasks(ctx context.Context, projectID int64) ([]Task, error) {
	if projectID == 0 {
		return nil, errors.New("project id cannot be zero; is the project named correctly?")
	}
	var out []Task
	path := "/projects/" + strconv.FormatInt(projectID, 10) + "/tasks"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProjectIDByKeyword returns the first project whose name contains the
// keyword, or ErrProjectNotFound.
func (c *Client) ProjectIDByKeyword(ctx context.Context, workspaceID int64, keyword string) (int64, error) {
	projects, err := c.Projects(ctx, workspaceID)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		if strings.Contains(p.Name, keyword) {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("keyword %q: %w", keyword, ErrProjectNotFound)
}

// TaskByName resolves a Jira-style task name ("SP-123 fix login") to the
// Toggl task. The project is located by the issue-key prefix before the
// dash, mirroring the project naming convention.
func (c *Client) TaskByName(ctx context.Context, workspaceID int64, taskName string) (*Task, error) {
	keyword := strings.SplitN(taskName, "-", 2)[0] + " "
	projectID, err := c.ProjectIDByKeyword(ctx, workspaceID, keyword)
	if err != nil {
		return nil, err
	}
	tasks, err := c.ProjectTasks(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if strings.Contains(t.Name, taskName) {
			task := t
			return &task, nil
		}
	}
	return nil, nil
}

type currentResponse struct {
	Data *TimeEntry `json:"data"`
}

// CurrentTimeEntry returns the running entry, or nil when idle.
func (c *Client) CurrentTimeEntry(ctx context.Context) (*TimeEntry, error) {
	var out currentResponse
	if err := c.do(ctx, http.MethodGet, "/time_entries/current", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type startRequest struct {
	TimeEntry startEntry `json:"time_entry"`
}

type startEntry struct {
	Description string `json:"description"`
	Billable    bool   `json:"billable"`
	ProjectID   int64  `json:"pid"`
	TaskID      int64  `json:"tid"`
	CreatedWith string `json:"created_with"`
}

// StartTimeEntry starts a billable entry on the task matching taskName.
// Returns nil without starting anything when the task cannot be found.
func (c *Client) StartTimeEntry(ctx context.Context, workspaceID int64, taskName string) (*TimeEntry, error) {
	task, err := c.TaskByName(ctx, workspaceID, taskName)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	body := startRequest{TimeEntry: startEntry{
		Description: task.Name,
		Billable:    true,
		ProjectID:   task.ProjectID,
		TaskID:      task.ID,
		CreatedWith: "SynePoints",
	}}
	var out currentResponse
	if err := c.do(ctx, http.MethodPost, "/time_entries/start", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// StopTimeEntry stops the running entry, but only when it belongs to the
// named task. Stopping while a different task runs is a no-op.
func (c *Client) StopTimeEntry(ctx context.Context, workspaceID int64, taskName string) (*TimeEntry, error) {
	task, err := c.TaskByName(ctx, workspaceID, taskName)
	if err != nil {
		return nil, err
	}
	current, err := c.CurrentTimeEntry(ctx)
	if err != nil {
		return nil, err
	}
	if task == nil || current == nil || current.TaskID != task.ID {
		return nil, nil
	}

	var out currentResponse
	path := "/time_entries/" + strconv.FormatInt(current.ID, 10) + "/stop"
	if err := c.do(ctx, http.MethodPut, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CurrentTaskKey returns the issue key of the running task ("SP-123"),
// or "" when nothing is running.
func (c *Client) CurrentTaskKey(ctx context.Context) (string, error) {
	current, err := c.CurrentTimeEntry(ctx)
	if err != nil {
		return "", err
	}
	if current == nil || current.TaskID == 0 {
		return "", nil
	}
	tasks, err := c.ProjectTasks(ctx, current.ProjectID)
	if err != nil {
		return "", err
	}
	for _, t := range tasks {
		if t.ID == current.TaskID {
			return strings.SplitN(t.Name, " ", 2)[0], nil
		}
	}
	return "", nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.apiToken, "api_token")
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("toggl request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("toggl request %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
