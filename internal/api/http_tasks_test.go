package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
	"yourank/internal/dataforseo"
	"yourank/internal/entity"
	"yourank/internal/model"
	"yourank/internal/tasks"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// fakeRepo 只实现任务接口用到的方法，其余继承嵌入接口（调用即 panic）。
type fakeRepo struct {
	model.Repository
	mu      sync.Mutex
	records map[string]*entity.DbAnalysisRecord
}

func newFakeRepo(records ...*entity.DbAnalysisRecord) *fakeRepo {
	repo := &fakeRepo{records: make(map[string]*entity.DbAnalysisRecord)}
	for _, record := range records {
		repo.records[record.TaskID] = record
	}
	return repo
}

func (r *fakeRepo) GetAnalysisByTaskID(_ context.Context, taskID string) (*entity.DbAnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[taskID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *fakeRepo) UpdateAnalysisIfStatus(_ context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ID != id {
			continue
		}
		if record.Status != fromStatus {
			return false, nil
		}
		if updates.Status != nil {
			record.Status = *updates.Status
		}
		if updates.Result != nil {
			record.Result = *updates.Result
		}
		if updates.ErrorCode != nil {
			record.ErrorCode = *updates.ErrorCode
		}
		if updates.ErrorMessage != nil {
			record.ErrorMessage = *updates.ErrorMessage
		}
		return true, nil
	}
	return false, nil
}

func (r *fakeRepo) GetAnalysis(_ context.Context, id uint) (*entity.DbAnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ID == id {
			copied := *record
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) ListAnalysesByStatus(_ context.Context, status string) ([]entity.DbAnalysisRecord, error) {
	return nil, nil
}

type noopJobClient struct {
	mu        sync.Mutex
	cancelled []string
}

func (c *noopJobClient) SubmitJob(_ context.Context, _ string, _ map[string]interface{}) (string, error) {
	return "task-x", nil
}

func (c *noopJobClient) FetchJobStatus(_ context.Context, _, _ string) (*dataforseo.JobStatus, error) {
	return &dataforseo.JobStatus{Ready: false}, nil
}

func (c *noopJobClient) CancelJob(_ context.Context, _, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, taskID)
	return nil
}

func newTaskHandler(repo *fakeRepo) (*HTTPHandler, *noopJobClient) {
	client := &noopJobClient{}
	mgr := tasks.NewManager(repo, client, nil, tasks.PollConfig{
		PollInterval:    time.Second,
		MaxDuration:     time.Minute,
		MaxPollFailures: 3,
	})
	return &HTTPHandler{repo: repo, tasksManager: mgr}, client
}

func taskRequest(t *testing.T, handler func(*gin.Context), taskID string, user *RequestUser) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Params = gin.Params{{Key: "task_id", Value: taskID}}
	if user != nil {
		c.Set(currentUserContextKey, user)
	}
	handler(c)
	return w
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return apiErr
}

func onpageRecord(status string) *entity.DbAnalysisRecord {
	return &entity.DbAnalysisRecord{
		ID:          11,
		CreatedAt:   time.Now().Add(-time.Minute),
		UserID:      3,
		Type:        "onpage_audit",
		TaskID:      "task-11",
		Status:      status,
		CreditsUsed: 20,
	}
}

func TestTaskStatusUnknownTask(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo())
	w := taskRequest(t, handler.TaskStatus, "no-such-task", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if apiErr := decodeAPIError(t, w); apiErr.Code != ErrCodeTaskNotFound {
		t.Fatalf("expected %s, got %s", ErrCodeTaskNotFound, apiErr.Code)
	}
}

func TestTaskStatusCrossUserYields404(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo(onpageRecord(entity.AnalysisStatusProcessing)))
	w := taskRequest(t, handler.TaskStatus, "task-11", &RequestUser{ID: 99, Role: entity.UserRoleUser})

	// 他人的任务与不存在的任务响应一致，不泄露存在性
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if apiErr := decodeAPIError(t, w); apiErr.Code != ErrCodeTaskNotFound {
		t.Fatalf("expected %s, got %s", ErrCodeTaskNotFound, apiErr.Code)
	}
}

func TestTaskStatusAdminCanReadAnyTask(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo(onpageRecord(entity.AnalysisStatusProcessing)))
	w := taskRequest(t, handler.TaskStatus, "task-11", &RequestUser{ID: 99, Role: entity.UserRoleAdmin})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTaskStatusProcessingIncludesProgress(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo(onpageRecord(entity.AnalysisStatusProcessing)))
	w := taskRequest(t, handler.TaskStatus, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp entity.TaskStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != entity.AnalysisStatusProcessing {
		t.Fatalf("expected processing, got %s", resp.Status)
	}
	if resp.Progress == nil {
		t.Fatal("expected progress for processing task")
	}
	if *resp.Progress < 0 || *resp.Progress > 99 {
		t.Fatalf("progress out of bounds: %d", *resp.Progress)
	}
}

func TestTaskStatusCompletedIncludesResult(t *testing.T) {
	record := onpageRecord(entity.AnalysisStatusCompleted)
	record.Result = entity.JSONMap{"score": float64(87)}
	handler, _ := newTaskHandler(newFakeRepo(record))
	w := taskRequest(t, handler.TaskStatus, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	var resp entity.TaskStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != entity.AnalysisStatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Status)
	}
	if resp.Progress != nil {
		t.Fatal("terminal status must not carry progress")
	}
	if score, ok := resp.Result["score"].(float64); !ok || score != 87 {
		t.Fatalf("expected score 87 in result, got %v", resp.Result)
	}
}

func TestTaskStatusFailedIncludesError(t *testing.T) {
	record := onpageRecord(entity.AnalysisStatusFailed)
	record.ErrorCode = entity.AnalysisErrorTimeout
	record.ErrorMessage = "task did not finish within 15m0s"
	handler, _ := newTaskHandler(newFakeRepo(record))
	w := taskRequest(t, handler.TaskStatus, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	var resp entity.TaskStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != entity.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", resp.Status)
	}
	if resp.Error == "" {
		t.Fatal("expected error message for failed task")
	}
}

func TestCancelTaskUnknownTask(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo())
	w := taskRequest(t, handler.CancelTask, "no-such-task", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCancelTaskUnsupportedType(t *testing.T) {
	record := onpageRecord(entity.AnalysisStatusProcessing)
	record.Type = "serp_analysis"
	handler, _ := newTaskHandler(newFakeRepo(record))
	w := taskRequest(t, handler.CancelTask, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if apiErr := decodeAPIError(t, w); apiErr.Code != ErrCodeCancelUnsupported {
		t.Fatalf("expected %s, got %s", ErrCodeCancelUnsupported, apiErr.Code)
	}
}

func TestCancelTaskNotProcessing(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo(onpageRecord(entity.AnalysisStatusCompleted)))
	w := taskRequest(t, handler.CancelTask, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if apiErr := decodeAPIError(t, w); apiErr.Code != ErrCodeInvalidState {
		t.Fatalf("expected %s, got %s", ErrCodeInvalidState, apiErr.Code)
	}
}

func TestCancelTaskSuccess(t *testing.T) {
	repo := newFakeRepo(onpageRecord(entity.AnalysisStatusProcessing))
	handler, client := newTaskHandler(repo)
	w := taskRequest(t, handler.CancelTask, "task-11", &RequestUser{ID: 3, Role: entity.UserRoleUser})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp entity.CancelTaskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected successful cancel")
	}

	record, err := repo.GetAnalysisByTaskID(context.Background(), "task-11")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != entity.AnalysisStatusFailed || record.ErrorCode != entity.AnalysisErrorCancelled {
		t.Fatalf("expected failed/cancelled record, got %s/%s", record.Status, record.ErrorCode)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.cancelled) != 1 {
		t.Fatalf("expected one provider cancel call, got %d", len(client.cancelled))
	}
}

func TestTaskStatusRequiresAuth(t *testing.T) {
	handler, _ := newTaskHandler(newFakeRepo())
	w := taskRequest(t, handler.TaskStatus, "task-11", nil)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
