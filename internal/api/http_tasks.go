package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"yourank/internal/catalog"
	"yourank/internal/entity"
	"yourank/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskStatus 任务状态轮询接口。终态记录直接读库返回，不会再访问服务商。
func (h *HTTPHandler) TaskStatus(c *gin.Context) {
	record, ok := h.loadOwnedTask(c)
	if !ok {
		return
	}

	resp := entity.TaskStatusResponse{Status: record.Status}

	switch record.Status {
	case entity.AnalysisStatusProcessing:
		expected := 5 * time.Minute
		if at, found := catalog.Lookup(record.Type); found && at.ExpectedDuration > 0 {
			expected = at.ExpectedDuration
		}
		progress := tasks.Progress(time.Since(record.CreatedAt), expected)
		resp.Progress = &progress
	case entity.AnalysisStatusCompleted:
		resp.Result = record.Result
	case entity.AnalysisStatusFailed:
		resp.Error = record.ErrorMessage
		if resp.Error == "" {
			resp.Error = record.ErrorCode
		}
	}

	c.JSON(http.StatusOK, resp)
}

// CancelTask 取消一个处理中的任务
func (h *HTTPHandler) CancelTask(c *gin.Context) {
	record, ok := h.loadOwnedTask(c)
	if !ok {
		return
	}

	analysisType, found := catalog.Lookup(record.Type)
	if !found || !analysisType.SupportsCancel {
		BadRequest(c, ErrCodeCancelUnsupported, "this analysis type does not support cancellation")
		return
	}

	if record.Status != entity.AnalysisStatusProcessing {
		BadRequest(c, ErrCodeInvalidState, "task is not in a cancellable state")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	won, err := h.tasksManager.CancelTask(ctx, record, analysisType.EndpointPath)
	if err != nil {
		if errors.Is(err, tasks.ErrInvalidState) {
			BadRequest(c, ErrCodeInvalidState, "task is not in a cancellable state")
			return
		}
		logrus.WithError(err).WithField("task_id", record.TaskID).Error("failed to cancel task")
		InternalError(c, "failed to cancel task")
		return
	}

	if !won {
		c.JSON(http.StatusOK, entity.CancelTaskResponse{
			Success: false,
			Message: "task already reached a terminal state",
		})
		return
	}

	c.JSON(http.StatusOK, entity.CancelTaskResponse{Success: true})
}

// loadOwnedTask 按外部任务ID加载记录并做所有权校验。未知任务与他人任务
// 都返回 404，避免泄露任务是否存在。
func (h *HTTPHandler) loadOwnedTask(c *gin.Context) (*entity.DbAnalysisRecord, bool) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	taskID := strings.TrimSpace(c.Param("task_id"))
	if taskID == "" {
		BadRequest(c, ErrCodeInvalidRequest, "task id is required")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	record, err := h.repo.GetAnalysisByTaskID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeTaskNotFound, "task not found")
			return nil, false
		}
		logrus.WithError(err).WithField("task_id", taskID).Error("failed to load task")
		InternalError(c, "failed to load task")
		return nil, false
	}

	if !requestUser.IsAdmin() && record.UserID != requestUser.ID {
		NotFound(c, ErrCodeTaskNotFound, "task not found")
		return nil, false
	}

	return record, true
}
