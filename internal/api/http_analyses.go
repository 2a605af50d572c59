package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"yourank/internal/catalog"
	"yourank/internal/credits"
	"yourank/internal/entity"
	"yourank/internal/service"
	"yourank/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListAnalysisTypes 返回目录中全部分析类型
func (h *HTTPHandler) ListAnalysisTypes(c *gin.Context) {
	types := catalog.List()
	items := make([]entity.AnalysisTypeInfo, 0, len(types))
	for _, at := range types {
		items = append(items, entity.AnalysisTypeInfo{
			ID:             at.ID,
			Name:           at.Name,
			Cost:           at.Cost,
			Async:          at.Async,
			SupportsCancel: at.SupportsCancel,
		})
	}
	c.JSON(http.StatusOK, entity.AnalysisTypeListResponse{Types: items})
}

// SubmitAnalysis 提交一次分析
func (h *HTTPHandler) SubmitAnalysis(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.SubmitAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 90*time.Second)
	defer cancel()

	if req.ProjectID != nil {
		project, err := h.repo.GetProject(ctx, *req.ProjectID)
		if err != nil || project.UserID != requestUser.ID {
			NotFound(c, ErrCodeProjectNotFound, "project not found")
			return
		}
	}

	user := &entity.DbUser{ID: requestUser.ID, Email: requestUser.Email, Role: requestUser.Role}
	resp, err := h.analysisService.Submit(ctx, user, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownType):
			BadRequest(c, ErrCodeTypeUnknown, fmt.Sprintf("unknown analysis type %q", req.Type))
		case errors.Is(err, credits.ErrInsufficient):
			PaymentRequired(c, "insufficient credits for this analysis")
		default:
			var invalidErr *service.InvalidInputError
			if errors.As(err, &invalidErr) {
				BadRequest(c, ErrCodeInvalidRequest, invalidErr.Error())
				return
			}
			logrus.WithError(err).WithField("user_id", requestUser.ID).Error("analysis submission failed")
			InternalError(c, "failed to submit analysis")
		}
		return
	}

	status := http.StatusCreated
	if resp.Status == entity.AnalysisStatusProcessing {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

// ListAnalyses 分页查询分析记录
func (h *HTTPHandler) ListAnalyses(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.AnalysisQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		BadRequest(c, ErrCodeInvalidRequest, "invalid query parameters")
		return
	}

	if params.Page <= 0 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	if requestUser.IsAdmin() {
		params.IncludeAll = true
		if userFilter := strings.TrimSpace(c.Query("user_id")); userFilter != "" {
			if parsed, err := strconv.ParseUint(userFilter, 10, 64); err == nil && parsed > 0 {
				params.UserID = uint(parsed)
				params.IncludeAll = false
			}
		}
	} else {
		params.UserID = requestUser.ID
		params.IncludeAll = false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, meta, err := h.repo.ListAnalyses(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list analyses")
		InternalError(c, "failed to load analyses")
		return
	}

	items := make([]entity.AnalysisItem, 0, len(records))
	for _, record := range records {
		items = append(items, h.makeAnalysisItem(record))
	}

	if meta == nil {
		meta = &entity.Meta{Page: int64(params.Page), PageSize: int64(params.PageSize), Total: int64(len(items))}
	}

	c.JSON(http.StatusOK, entity.AnalysisListResponse{Records: items, Meta: meta})
}

// GetAnalysis 查询单条分析记录
func (h *HTTPHandler) GetAnalysis(c *gin.Context) {
	record, ok := h.loadOwnedAnalysis(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entity.AnalysisDetailResponse{Record: h.makeAnalysisItem(*record)})
}

// DeleteAnalysis 删除分析记录
func (h *HTTPHandler) DeleteAnalysis(c *gin.Context) {
	record, ok := h.loadOwnedAnalysis(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.repo.DeleteAnalysis(ctx, record.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeRecordNotFound, "analysis record not found")
			return
		}
		logrus.WithError(err).WithField("id", record.ID).Error("failed to delete analysis record")
		InternalError(c, "failed to delete analysis record")
		return
	}

	c.Status(http.StatusNoContent)
}

// ExportAnalysis 将已完成记录的结果渲染成 JSON 或 CSV 并写入存储后端
func (h *HTTPHandler) ExportAnalysis(c *gin.Context) {
	record, ok := h.loadOwnedAnalysis(c)
	if !ok {
		return
	}

	if record.Status != entity.AnalysisStatusCompleted {
		BadRequest(c, ErrCodeInvalidState, "only completed analyses can be exported")
		return
	}

	// 空请求体默认导出 JSON
	var req entity.ExportAnalysisRequest
	_ = c.ShouldBindJSON(&req)
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "json"
	}

	var data []byte
	var err error
	switch format {
	case "json":
		data, err = json.MarshalIndent(record.Result, "", "  ")
	case "csv":
		data, err = renderResultCSV(record.Result)
	default:
		BadRequest(c, ErrCodeInvalidRequest, "unsupported export format: "+format)
		return
	}
	if err != nil {
		logrus.WithError(err).WithField("id", record.ID).Error("failed to render export")
		InternalError(c, "failed to render export")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	baseName := fmt.Sprintf("%s-%d-%s", record.Type, record.ID, uuid.NewString()[:8])
	path, err := h.storage.Save(ctx, data, storage.SaveOptions{
		Category:  "exports",
		Extension: format,
		BaseName:  baseName,
	})
	if err != nil {
		logrus.WithError(err).WithField("id", record.ID).Error("failed to save export")
		InternalError(c, "failed to save export")
		return
	}

	paths := append(entity.StringArray{}, record.ExportPaths...)
	paths = append(paths, path)
	if err := h.repo.UpdateAnalysis(ctx, record.ID, entity.AnalysisUpdates{ExportPaths: &paths}); err != nil {
		logrus.WithError(err).WithField("id", record.ID).Error("failed to record export path")
	}

	c.JSON(http.StatusCreated, entity.ExportAnalysisResponse{
		Path: path,
		URL:  h.publicURL(path),
	})
}

// StreamTaskEvents SSE 推送当前用户的任务终态事件
func (h *HTTPHandler) StreamTaskEvents(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	key := userChannelKey(requestUser.ID)
	ctx := c.Request.Context()
	events := make(chan sseMessage, 8)
	h.registerSSEClient(key, events)
	defer h.unregisterSSEClient(key, events)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	heartbeatTicker := time.NewTicker(10 * time.Second)
	defer heartbeatTicker.Stop()

	logrus.WithField("user_id", requestUser.ID).Info("task sse connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			logrus.WithField("user_id", requestUser.ID).Info("task sse disconnected")
			return false
		case <-heartbeatTicker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UnixMilli()})
			return true
		case msg, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(msg.event, msg.data)
			return true
		}
	})
}

// loadOwnedAnalysis 解析 :id 并做所有权校验。越权访问一律返回 404，
// 不暴露记录是否存在。
func (h *HTTPHandler) loadOwnedAnalysis(c *gin.Context) (*entity.DbAnalysisRecord, bool) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return nil, false
	}

	idValue := strings.TrimSpace(c.Param("id"))
	id, err := strconv.ParseUint(idValue, 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid analysis record id")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	record, err := h.repo.GetAnalysis(ctx, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeRecordNotFound, "analysis record not found")
			return nil, false
		}
		logrus.WithError(err).WithField("id", id).Error("failed to load analysis record")
		InternalError(c, "failed to load analysis record")
		return nil, false
	}

	if !requestUser.IsAdmin() && record.UserID != requestUser.ID {
		NotFound(c, ErrCodeRecordNotFound, "analysis record not found")
		return nil, false
	}

	return record, true
}

func (h *HTTPHandler) makeAnalysisItem(record entity.DbAnalysisRecord) entity.AnalysisItem {
	paths := make([]string, 0, len(record.ExportPaths))
	for _, p := range record.ExportPaths {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	return entity.AnalysisItem{
		ID:           record.ID,
		Type:         record.Type,
		ProjectID:    record.ProjectID,
		Input:        record.Input,
		TaskID:       record.TaskID,
		Status:       record.Status,
		Result:       record.Result,
		ErrorCode:    record.ErrorCode,
		ErrorMessage: record.ErrorMessage,
		CreditsUsed:  record.CreditsUsed,
		ExportPaths:  paths,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
		User:         makeUserSummary(record.User),
	}
}

// renderResultCSV 将结果 JSON 的顶层键值对渲染为两列 CSV。
// 嵌套结构序列化为 JSON 字符串。
func renderResultCSV(result entity.JSONMap) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"key", "value"}); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := result[key]
		var rendered string
		switch v := value.(type) {
		case string:
			rendered = v
		case nil:
			rendered = ""
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			rendered = string(encoded)
		}
		if err := writer.Write([]string{key, rendered}); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
