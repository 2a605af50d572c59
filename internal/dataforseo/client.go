// Package dataforseo is a thin HTTP client for the DataForSEO v3 API.
// It covers the three call shapes the dashboard uses: synchronous live
// endpoints, task submission (task_post) and task polling (task_get), plus
// cancellation via force_stop where the endpoint family supports it.
package dataforseo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Provider status codes. 20000 is success; 40601/40602 mean the task exists
// but its result is not ready yet.
const (
	statusOK           = 20000
	statusTaskCreated  = 20100
	statusTaskInQueue  = 40601
	statusTaskNotReady = 40602
)

// SubmissionError marks a failure to hand the job to the provider: the task
// was never accepted, so no external task ID exists.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("task submission rejected (status %d): %s", e.StatusCode, e.Message)
}

// JobError is a provider-side failure for a task that was accepted earlier.
type JobError struct {
	StatusCode int
	Message    string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("provider job failed (status %d): %s", e.StatusCode, e.Message)
}

// JobStatus is the outcome of one poll. Exactly one of the three shapes
// applies: not ready (Ready=false), done (Ready=true, Result set) or failed
// (Ready=true, Err set).
type JobStatus struct {
	Ready  bool
	Result map[string]interface{}
	Err    error
}

// envelope is the common DataForSEO response wrapper.
type envelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		ID            string                   `json:"id"`
		StatusCode    int                      `json:"status_code"`
		StatusMessage string                   `json:"status_message"`
		Result        []map[string]interface{} `json:"result"`
	} `json:"tasks"`
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	login      string
	password   string
}

func NewClient(baseURL, login, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		login:      login,
		password:   password,
	}
}

// LiveCall runs a synchronous endpoint and returns the first task result.
func (c *Client) LiveCall(ctx context.Context, endpointPath string, input map[string]interface{}) (map[string]interface{}, error) {
	env, err := c.post(ctx, endpointPath, input)
	if err != nil {
		return nil, err
	}
	if env.StatusCode != statusOK {
		return nil, &JobError{StatusCode: env.StatusCode, Message: env.StatusMessage}
	}
	if len(env.Tasks) == 0 {
		return nil, fmt.Errorf("empty tasks array in response")
	}
	task := env.Tasks[0]
	if task.StatusCode != statusOK {
		return nil, &JobError{StatusCode: task.StatusCode, Message: task.StatusMessage}
	}
	return firstResult(task.Result), nil
}

// SubmitJob posts a new task and returns the provider task ID.
func (c *Client) SubmitJob(ctx context.Context, endpointPath string, input map[string]interface{}) (string, error) {
	env, err := c.post(ctx, endpointPath+"/task_post", input)
	if err != nil {
		return "", &SubmissionError{Message: err.Error()}
	}
	if env.StatusCode != statusOK {
		return "", &SubmissionError{StatusCode: env.StatusCode, Message: env.StatusMessage}
	}
	if len(env.Tasks) == 0 {
		return "", &SubmissionError{Message: "empty tasks array in response"}
	}
	task := env.Tasks[0]
	if task.StatusCode != statusOK && task.StatusCode != statusTaskCreated {
		return "", &SubmissionError{StatusCode: task.StatusCode, Message: task.StatusMessage}
	}
	if strings.TrimSpace(task.ID) == "" {
		return "", &SubmissionError{Message: "provider returned no task id"}
	}

	logrus.WithFields(logrus.Fields{
		"endpoint": endpointPath,
		"task_id":  task.ID,
	}).Debug("task submitted to provider")
	return task.ID, nil
}

// FetchJobStatus polls a task. A transport or decode failure is returned as
// err; provider-level "not ready" codes map to Ready=false.
func (c *Client) FetchJobStatus(ctx context.Context, endpointPath, taskID string) (*JobStatus, error) {
	env, err := c.get(ctx, endpointPath+"/task_get/"+taskID)
	if err != nil {
		return nil, err
	}
	if env.StatusCode != statusOK {
		return &JobStatus{Ready: true, Err: &JobError{StatusCode: env.StatusCode, Message: env.StatusMessage}}, nil
	}
	if len(env.Tasks) == 0 {
		return nil, fmt.Errorf("empty tasks array in response")
	}

	task := env.Tasks[0]
	switch task.StatusCode {
	case statusOK:
		return &JobStatus{Ready: true, Result: firstResult(task.Result)}, nil
	case statusTaskInQueue, statusTaskNotReady:
		return &JobStatus{Ready: false}, nil
	default:
		return &JobStatus{Ready: true, Err: &JobError{StatusCode: task.StatusCode, Message: task.StatusMessage}}, nil
	}
}

// CancelJob asks the provider to stop a running task. Only endpoint families
// with a force_stop route support this.
func (c *Client) CancelJob(ctx context.Context, endpointPath, taskID string) error {
	payload := map[string]interface{}{"id": taskID}
	env, err := c.post(ctx, endpointPath+"/force_stop", payload)
	if err != nil {
		return err
	}
	if env.StatusCode != statusOK {
		return &JobError{StatusCode: env.StatusCode, Message: env.StatusMessage}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, input map[string]interface{}) (*envelope, error) {
	// DataForSEO expects every POST body to be an array of task objects.
	body, err := json.Marshal([]map[string]interface{}{input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ensureLeadingSlash(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.login, c.password)

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ensureLeadingSlash(path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.login, c.password)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &env, nil
}

func firstResult(results []map[string]interface{}) map[string]interface{} {
	if len(results) == 0 {
		return nil
	}
	return results[0]
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
