package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"yourank/internal/api"
	"yourank/internal/catalog"
	"yourank/internal/config"
	"yourank/internal/credits"
	"yourank/internal/dataforseo"
	"yourank/internal/model"
	"yourank/internal/service"
	"yourank/internal/storage"
	"yourank/internal/tasks"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// 初始化配置
	cfg, err := config.ParseConfig()
	if err != nil {
		logrus.WithError(err).Error("Failed to parse config")
		return
	}

	// 初始化logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	repo, err := model.InitRepository(&cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise repository")
		return
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise storage")
		return
	}

	providerClient := dataforseo.NewClient(
		cfg.DataForSEOBaseURL,
		cfg.DataForSEOLogin,
		cfg.DataForSEOPassword,
		time.Duration(cfg.DataForSEOTimeoutSeconds)*time.Second,
	)

	ledger := credits.NewLedger(repo)

	tasksManager := tasks.NewManager(repo, providerClient, ledger, tasks.PollConfig{
		PollInterval:    time.Duration(cfg.TaskPollIntervalSeconds) * time.Second,
		MaxDuration:     time.Duration(cfg.TaskMaxDurationSeconds) * time.Second,
		MaxPollFailures: cfg.TaskMaxPollFailures,
		RefundOnFailure: cfg.CreditRefundOnFailure,
	})

	analysisService := service.NewAnalysisService(repo, providerClient, ledger, tasksManager, cfg.CreditRefundOnFailure)

	httpHandler, err := api.NewHTTPHandler(cfg, repo, store, ledger, tasksManager, analysisService)
	if err != nil {
		logrus.WithError(err).Error("failed to initialise http handler")
		return
	}

	// 恢复上一次进程遗留的处理中任务
	resumeCtx, cancelResume := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tasksManager.Resume(resumeCtx, func(typeTag string) (string, bool) {
		analysisType, ok := catalog.Lookup(typeTag)
		if !ok {
			return "", false
		}
		return analysisType.EndpointPath, true
	}); err != nil {
		logrus.WithError(err).Warn("failed to resume in-flight tasks")
	}
	cancelResume()

	// 设置Gin模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// 添加中间件
	r.Use(LoggingMiddleware())
	r.Use(CORSMiddleware())
	r.Use(api.MetricsMiddleware())
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.GET("/status", httpHandler.AuthStatus)
	authGroup.POST("/register", httpHandler.Register)
	authGroup.POST("/login", httpHandler.Login)
	authGroup.GET("/me", httpHandler.AuthMiddleware(), httpHandler.Me)

	protected := apiGroup.Group("")
	protected.Use(httpHandler.AuthMiddleware())
	protected.GET("/analyses/types", httpHandler.ListAnalysisTypes)
	protected.POST("/analyses", httpHandler.SubmitAnalysis)
	protected.GET("/analyses", httpHandler.ListAnalyses)
	protected.GET("/analyses/:id", httpHandler.GetAnalysis)
	protected.DELETE("/analyses/:id", httpHandler.DeleteAnalysis)
	protected.POST("/analyses/:id/export", httpHandler.ExportAnalysis)
	protected.GET("/tasks/:task_id/status", httpHandler.TaskStatus)
	protected.POST("/tasks/:task_id/cancel", httpHandler.CancelTask)
	protected.GET("/events", httpHandler.StreamTaskEvents)
	protected.GET("/credits", httpHandler.GetCreditBalance)

	projectGroup := protected.Group("/projects")
	projectGroup.GET("", httpHandler.ListProjects)
	projectGroup.POST("", httpHandler.CreateProject)
	projectGroup.PATCH(":id", httpHandler.UpdateProject)
	projectGroup.DELETE(":id", httpHandler.DeleteProject)

	userAdmin := protected.Group("/users")
	userAdmin.Use(httpHandler.RequireAdmin())
	userAdmin.GET("", httpHandler.ListUsers)
	userAdmin.POST("", httpHandler.CreateUser)
	userAdmin.PATCH(":id", httpHandler.UpdateUser)
	userAdmin.DELETE(":id", httpHandler.DeleteUser)
	userAdmin.POST(":id/credits", httpHandler.GrantCredits)

	if localProvider, ok := store.(storage.LocalBaseDirProvider); ok {
		publicPrefix := strings.TrimSpace(cfg.StoragePublicBaseURL)
		if publicPrefix == "" {
			publicPrefix = "/files"
		}
		if !strings.HasPrefix(publicPrefix, "http://") && !strings.HasPrefix(publicPrefix, "https://") {
			if !strings.HasPrefix(publicPrefix, "/") {
				publicPrefix = "/" + publicPrefix
			}
			r.Static(publicPrefix, localProvider.LocalBaseDir())
		}
	}

	serverHost := fmt.Sprintf("0.0.0.0:%s", cfg.HTTPPort)
	logger.WithField("host", serverHost).Info("服务器启动")
	// 创建HTTP服务器
	httpServer := &http.Server{
		Addr:         serverHost,
		Handler:      r,
		ReadTimeout:  900 * time.Second,
		WriteTimeout: 900 * time.Second,
		IdleTimeout:  1200 * time.Second,
	}
	err = httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("服务器启动失败")
	}
}

// CORSMiddleware CORS跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggingMiddleware 日志记录中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// 处理请求
		c.Next()
		// 记录请求结束
		duration := time.Since(start)
		logrus.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"duration":  duration.String(),
			"size":      c.Writer.Size(),
			"client_ip": c.ClientIP(),
		}).Info("http_request")
	}
}
