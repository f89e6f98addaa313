package backend

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

const (
	StatusTodo       = "TODO"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// Statuses lists the task statuses in display order.
var Statuses = []string{StatusTodo, StatusInProgress, StatusDone}

func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate,omitempty"`
}

func taskPath(id int64) string {
	return "/api/tasks/" + strconv.FormatInt(id, 10)
}

func (c *Client) ListTasks(ctx context.Context, token string) ([]Task, error) {
	var out []Task
	err := c.do(ctx, call{endpoint: "list_tasks", method: http.MethodGet, path: "/api/tasks", token: token, out: &out})
	return out, err
}

func (c *Client) GetTask(ctx context.Context, token string, id int64) (*Task, error) {
	var out Task
	if err := c.do(ctx, call{endpoint: "get_task", method: http.MethodGet, path: taskPath(id), token: token, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTask posts a new task. Field errors from the API come back as a *RemoteError with ValidationErrors.
func (c *Client) CreateTask(ctx context.Context, token string, t NewTask) (*Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return nil, invalid("title is required")
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	var out Task
	if err := c.do(ctx, call{endpoint: "create_task", method: http.MethodPost, path: "/api/tasks", token: token, body: t, out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, token string, id int64, status string) (*Task, error) {
	if !ValidStatus(status) {
		return nil, invalid("unknown status " + strconv.Quote(status))
	}
	var out Task
	err := c.do(ctx, call{
		endpoint: "update_task_status",
		method:   http.MethodPatch,
		path:     taskPath(id) + "/status",
		token:    token,
		body:     map[string]string{"status": status},
		out:      &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, token string, id int64) error {
	return c.do(ctx, call{endpoint: "delete_task", method: http.MethodDelete, path: taskPath(id), token: token})
}
