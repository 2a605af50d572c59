package api

import (
	"strings"
	"sync"
	"time"
	"yourank/internal/auth"
	"yourank/internal/config"
	"yourank/internal/credits"
	"yourank/internal/model"
	"yourank/internal/service"
	"yourank/internal/storage"
	"yourank/internal/tasks"

	"github.com/gin-gonic/gin"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	// 服务层
	ledger          *credits.Ledger
	tasksManager    *tasks.Manager
	analysisService *service.AnalysisService

	// SSE 客户端管理
	sseClients map[string][]chan sseMessage
	sseMu      sync.Mutex
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, ledger *credits.Ledger, manager *tasks.Manager, analysisSvc *service.AnalysisService) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	handler := &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		ledger:            ledger,
		tasksManager:      manager,
		analysisService:   analysisSvc,
		sseClients:        make(map[string][]chan sseMessage),
	}

	// 任务终态通过 SSE 推送给提交方
	if manager != nil {
		manager.Notify = handler.notifyTaskComplete
	}

	return handler, nil
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// notifyTaskComplete 任务到达终态时的 SSE 推送
func (h *HTTPHandler) notifyTaskComplete(userID uint, event tasks.CompletionEvent) {
	payload := gin.H{
		"record_id": event.RecordID,
		"task_id":   event.TaskID,
		"status":    event.Status,
	}
	if event.ErrorCode != "" {
		payload["error_code"] = event.ErrorCode
	}
	h.publishSSEMessage(userChannelKey(userID), sseMessage{
		event: "task_completed",
		data:  payload,
	})
}
