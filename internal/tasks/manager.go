// Package tasks drives the lifecycle of asynchronous analyses: submission to
// the provider, the detached polling loop, cancellation, timeout and the
// terminal state transition. Every terminal write goes through a conditional
// status update so racing writers (a cancel and a late completion poll)
// resolve to exactly one winner.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
	"yourank/internal/credits"
	"yourank/internal/dataforseo"
	"yourank/internal/entity"
	"yourank/internal/metrics"

	"github.com/sirupsen/logrus"
)

// ErrInvalidState 在记录不处于 processing 状态时的取消请求上返回。
var ErrInvalidState = errors.New("task is not in a cancellable state")

// JobClient is the provider surface the manager needs.
type JobClient interface {
	SubmitJob(ctx context.Context, endpointPath string, input map[string]interface{}) (string, error)
	FetchJobStatus(ctx context.Context, endpointPath, taskID string) (*dataforseo.JobStatus, error)
	CancelJob(ctx context.Context, endpointPath, taskID string) error
}

// Store is the persistence surface the manager needs.
type Store interface {
	UpdateAnalysisIfStatus(ctx context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error)
	GetAnalysis(ctx context.Context, id uint) (*entity.DbAnalysisRecord, error)
	ListAnalysesByStatus(ctx context.Context, status string) ([]entity.DbAnalysisRecord, error)
}

// CompletionEvent is pushed to the notify hook when a task reaches a
// terminal state.
type CompletionEvent struct {
	RecordID  uint   `json:"record_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
}

// PollConfig 轮询参数。MaxDuration 从记录的 created_at 起算，进程重启后
// 恢复的任务不会因此获得新的时间窗口。
type PollConfig struct {
	PollInterval    time.Duration
	MaxDuration     time.Duration
	MaxPollFailures int
	RefundOnFailure bool
}

type Manager struct {
	store  Store
	client JobClient
	ledger *credits.Ledger
	cfg    PollConfig

	// Notify 任务终态回调（SSE 推送），可为 nil。
	Notify func(userID uint, event CompletionEvent)
}

func NewManager(store Store, client JobClient, ledger *credits.Ledger, cfg PollConfig) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 15 * time.Minute
	}
	if cfg.MaxPollFailures <= 0 {
		cfg.MaxPollFailures = 3
	}
	return &Manager{store: store, client: client, ledger: ledger, cfg: cfg}
}

// Config returns the poll parameters, surfaced to clients in the submit
// response.
func (m *Manager) Config() PollConfig {
	return m.cfg
}

// CreateTask hands the job to the provider and returns the external task ID.
func (m *Manager) CreateTask(ctx context.Context, endpointPath string, payload map[string]interface{}) (string, error) {
	return m.client.SubmitJob(ctx, endpointPath, payload)
}

// ProcessTaskAsync starts the detached polling loop for a processing record.
// The record must already carry its task ID and be in the processing state.
func (m *Manager) ProcessTaskAsync(record *entity.DbAnalysisRecord, endpointPath string) {
	go m.pollLoop(record, endpointPath)
}

func (m *Manager) pollLoop(record *entity.DbAnalysisRecord, endpointPath string) {
	metrics.TasksProcessing.Inc()
	defer metrics.TasksProcessing.Dec()

	deadline := record.CreatedAt.Add(m.cfg.MaxDuration)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	log := logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"task_id":     record.TaskID,
	})
	log.Info("task poll loop started")

	consecutiveFailures := 0
	for range ticker.C {
		if time.Now().After(deadline) {
			m.finishFailed(record, entity.AnalysisErrorTimeout,
				fmt.Sprintf("task did not finish within %s", m.cfg.MaxDuration))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.PollInterval*2)
		status, err := m.client.FetchJobStatus(ctx, endpointPath, record.TaskID)
		cancel()

		if err != nil {
			consecutiveFailures++
			log.WithError(err).WithField("consecutive_failures", consecutiveFailures).Warn("task poll failed")
			if consecutiveFailures >= m.cfg.MaxPollFailures {
				m.finishFailed(record, entity.AnalysisErrorProvider,
					fmt.Sprintf("polling failed %d times in a row: %v", consecutiveFailures, err))
				return
			}
			continue
		}
		consecutiveFailures = 0

		if !status.Ready {
			continue
		}
		if status.Err != nil {
			m.finishFailed(record, entity.AnalysisErrorProvider, status.Err.Error())
			return
		}
		m.finishCompleted(record, status.Result)
		return
	}
}

// finishCompleted writes the terminal completed state. Losing the conditional
// update means another writer (a cancel) got there first; the result is
// dropped.
func (m *Manager) finishCompleted(record *entity.DbAnalysisRecord, result map[string]interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := entity.AnalysisStatusCompleted
	jsonResult := entity.JSONMap(result)
	won, err := m.store.UpdateAnalysisIfStatus(ctx, record.ID, entity.AnalysisStatusProcessing, entity.AnalysisUpdates{
		Status: &status,
		Result: &jsonResult,
	})
	if err != nil {
		logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to persist task completion")
		return
	}
	if !won {
		logrus.WithField("analysis_id", record.ID).Info("task completion dropped: record already terminal")
		return
	}

	metrics.TasksCompleted.Inc()
	logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"task_id":     record.TaskID,
	}).Info("task completed")

	m.notify(record.UserID, CompletionEvent{
		RecordID: record.ID,
		TaskID:   record.TaskID,
		Status:   entity.AnalysisStatusCompleted,
	})
}

// finishFailed writes the terminal failed state with a failure classification
// and, when the policy is enabled, refunds the charge. The refund only
// happens for the writer that wins the transition, so it runs at most once.
func (m *Manager) finishFailed(record *entity.DbAnalysisRecord, errorCode, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := entity.AnalysisStatusFailed
	won, err := m.store.UpdateAnalysisIfStatus(ctx, record.ID, entity.AnalysisStatusProcessing, entity.AnalysisUpdates{
		Status:       &status,
		ErrorCode:    &errorCode,
		ErrorMessage: &message,
	})
	if err != nil {
		logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to persist task failure")
		return
	}
	if !won {
		return
	}

	metrics.TasksFailed.WithLabelValues(errorCode).Inc()
	logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"task_id":     record.TaskID,
		"error_code":  errorCode,
	}).Info("task failed")

	if m.cfg.RefundOnFailure && m.ledger != nil && record.CreditsUsed > 0 {
		if err := m.ledger.Refund(ctx, record.UserID, record.CreditsUsed); err != nil {
			logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to refund credits")
		}
	}

	m.notify(record.UserID, CompletionEvent{
		RecordID:  record.ID,
		TaskID:    record.TaskID,
		Status:    entity.AnalysisStatusFailed,
		ErrorCode: errorCode,
	})
}

// CancelTask cancels a processing task: best-effort provider stop, then the
// conditional transition to failed/cancelled. Returns whether this call won
// the transition.
func (m *Manager) CancelTask(ctx context.Context, record *entity.DbAnalysisRecord, endpointPath string) (bool, error) {
	if record.Status != entity.AnalysisStatusProcessing {
		return false, ErrInvalidState
	}

	// 向服务商发停止请求；失败只记日志。本地状态转换才是取消的依据，
	// 即使远端停止失败，迟到的完成结果也会被条件更新丢弃。
	if err := m.client.CancelJob(ctx, endpointPath, record.TaskID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"analysis_id": record.ID,
			"task_id":     record.TaskID,
		}).Warn("provider cancel request failed")
	}

	status := entity.AnalysisStatusFailed
	errorCode := entity.AnalysisErrorCancelled
	message := "cancelled by user"
	won, err := m.store.UpdateAnalysisIfStatus(ctx, record.ID, entity.AnalysisStatusProcessing, entity.AnalysisUpdates{
		Status:       &status,
		ErrorCode:    &errorCode,
		ErrorMessage: &message,
	})
	if err != nil {
		return false, err
	}
	if !won {
		// 任务在取消前已经完成或失败
		return false, nil
	}

	metrics.TasksFailed.WithLabelValues(entity.AnalysisErrorCancelled).Inc()
	logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"task_id":     record.TaskID,
	}).Info("task cancelled")

	if m.cfg.RefundOnFailure && m.ledger != nil && record.CreditsUsed > 0 {
		if err := m.ledger.Refund(ctx, record.UserID, record.CreditsUsed); err != nil {
			logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to refund credits")
		}
	}

	m.notify(record.UserID, CompletionEvent{
		RecordID:  record.ID,
		TaskID:    record.TaskID,
		Status:    entity.AnalysisStatusFailed,
		ErrorCode: entity.AnalysisErrorCancelled,
	})
	return true, nil
}

// Resume restarts poll loops for records left in processing by a previous
// process. Records stuck in processing without a task ID never reached the
// provider and are marked failed.
func (m *Manager) Resume(ctx context.Context, endpointFor func(typeTag string) (string, bool)) error {
	records, err := m.store.ListAnalysesByStatus(ctx, entity.AnalysisStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing analyses: %w", err)
	}

	resumed := 0
	for i := range records {
		record := records[i]
		endpointPath, ok := endpointFor(record.Type)
		if !ok || record.TaskID == "" {
			m.finishFailed(&record, entity.AnalysisErrorSubmission,
				"task state lost before provider submission completed")
			continue
		}
		m.ProcessTaskAsync(&record, endpointPath)
		resumed++
	}

	if resumed > 0 {
		logrus.WithField("count", resumed).Info("resumed in-flight task poll loops")
	}
	return nil
}

func (m *Manager) notify(userID uint, event CompletionEvent) {
	if m.Notify != nil {
		m.Notify(userID, event)
	}
}

// Progress estimates completion percentage from elapsed wall-clock time.
// Display-only: it never reaches 100 while the task is still processing.
func Progress(elapsed, expected time.Duration) int {
	if elapsed <= 0 || expected <= 0 {
		return 0
	}
	pct := int(elapsed * 100 / expected)
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	return pct
}
