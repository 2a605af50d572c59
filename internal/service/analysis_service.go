// Package service orchestrates analysis submission: catalog validation,
// the up-front credit charge, record creation and dispatch to either the
// synchronous provider call or the async task lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"yourank/internal/catalog"
	"yourank/internal/credits"
	"yourank/internal/dataforseo"
	"yourank/internal/entity"
	"yourank/internal/metrics"
	"yourank/internal/tasks"

	"github.com/sirupsen/logrus"
)

// ErrUnknownType 提交的分析类型不在目录中。
var ErrUnknownType = errors.New("unknown analysis type")

// InvalidInputError wraps a catalog validation failure so the API layer can
// surface the detail as a 400.
type InvalidInputError struct {
	Reason error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid analysis input: %v", e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return e.Reason
}

// Provider is the synchronous provider surface the service needs.
type Provider interface {
	LiveCall(ctx context.Context, endpointPath string, input map[string]interface{}) (map[string]interface{}, error)
}

// Store is the persistence surface the service needs.
type Store interface {
	CreateAnalysis(ctx context.Context, record *entity.DbAnalysisRecord) error
	UpdateAnalysisIfStatus(ctx context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error)
}

type AnalysisService struct {
	store    Store
	provider Provider
	ledger   *credits.Ledger
	manager  *tasks.Manager

	refundOnFailure bool
}

func NewAnalysisService(store Store, provider Provider, ledger *credits.Ledger, manager *tasks.Manager, refundOnFailure bool) *AnalysisService {
	return &AnalysisService{
		store:           store,
		provider:        provider,
		ledger:          ledger,
		manager:         manager,
		refundOnFailure: refundOnFailure,
	}
}

// Submit runs one analysis for the user. Credits are charged before any
// external call; the charge fails the whole submission when the balance is
// short. Sync types block until the provider answers; async types return
// immediately with the record in processing and a detached poll loop running.
func (s *AnalysisService) Submit(ctx context.Context, user *entity.DbUser, req *entity.SubmitAnalysisRequest) (*entity.SubmitAnalysisResponse, error) {
	analysisType, ok := catalog.Lookup(req.Type)
	if !ok {
		return nil, ErrUnknownType
	}
	if err := catalog.ValidateInput(analysisType, req.Input); err != nil {
		return nil, &InvalidInputError{Reason: err}
	}

	if err := s.ledger.Charge(ctx, user.ID, analysisType.Cost); err != nil {
		return nil, err
	}

	record := &entity.DbAnalysisRecord{
		UserID:      user.ID,
		ProjectID:   req.ProjectID,
		Type:        analysisType.ID,
		Input:       req.Input,
		Status:      entity.AnalysisStatusPending,
		CreditsUsed: analysisType.Cost,
	}
	if err := s.store.CreateAnalysis(ctx, record); err != nil {
		// 记录都没建起来，扣掉的点数无条件退还
		if refundErr := s.ledger.Refund(ctx, user.ID, analysisType.Cost); refundErr != nil {
			logrus.WithError(refundErr).WithField("user_id", user.ID).Error("failed to refund after record creation failure")
		}
		return nil, fmt.Errorf("failed to create analysis record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"user_id":     user.ID,
		"type":        analysisType.ID,
		"async":       analysisType.Async,
	}).Info("analysis submitted")

	if analysisType.Async {
		return s.runAsync(ctx, record, analysisType)
	}
	return s.runSync(ctx, record, analysisType)
}

func (s *AnalysisService) runSync(ctx context.Context, record *entity.DbAnalysisRecord, analysisType catalog.AnalysisType) (*entity.SubmitAnalysisResponse, error) {
	metrics.AnalysesSubmitted.WithLabelValues(analysisType.ID, "sync").Inc()

	result, err := s.provider.LiveCall(ctx, analysisType.EndpointPath, record.Input)
	if err != nil {
		s.markFailed(ctx, record, entity.AnalysisStatusPending, entity.AnalysisErrorProvider, err.Error())
		return &entity.SubmitAnalysisResponse{
			RecordID:    record.ID,
			Status:      entity.AnalysisStatusFailed,
			CreditsUsed: record.CreditsUsed,
		}, nil
	}

	status := entity.AnalysisStatusCompleted
	jsonResult := entity.JSONMap(result)
	if _, err := s.store.UpdateAnalysisIfStatus(ctx, record.ID, entity.AnalysisStatusPending, entity.AnalysisUpdates{
		Status: &status,
		Result: &jsonResult,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist analysis result: %w", err)
	}

	return &entity.SubmitAnalysisResponse{
		RecordID:    record.ID,
		Status:      entity.AnalysisStatusCompleted,
		CreditsUsed: record.CreditsUsed,
	}, nil
}

func (s *AnalysisService) runAsync(ctx context.Context, record *entity.DbAnalysisRecord, analysisType catalog.AnalysisType) (*entity.SubmitAnalysisResponse, error) {
	metrics.AnalysesSubmitted.WithLabelValues(analysisType.ID, "async").Inc()

	taskID, err := s.manager.CreateTask(ctx, analysisType.EndpointPath, record.Input)
	if err != nil {
		var subErr *dataforseo.SubmissionError
		message := err.Error()
		if errors.As(err, &subErr) {
			message = subErr.Message
		}
		s.markFailed(ctx, record, entity.AnalysisStatusPending, entity.AnalysisErrorSubmission, message)
		return &entity.SubmitAnalysisResponse{
			RecordID:    record.ID,
			Status:      entity.AnalysisStatusFailed,
			CreditsUsed: record.CreditsUsed,
		}, nil
	}

	// task_id 只写这一次，同时把状态推进到 processing
	status := entity.AnalysisStatusProcessing
	won, err := s.store.UpdateAnalysisIfStatus(ctx, record.ID, entity.AnalysisStatusPending, entity.AnalysisUpdates{
		TaskID: &taskID,
		Status: &status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist task id: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("analysis %d left the pending state unexpectedly", record.ID)
	}

	record.TaskID = taskID
	record.Status = entity.AnalysisStatusProcessing
	s.manager.ProcessTaskAsync(record, analysisType.EndpointPath)

	cfg := s.manager.Config()
	return &entity.SubmitAnalysisResponse{
		RecordID:            record.ID,
		TaskID:              taskID,
		Status:              entity.AnalysisStatusProcessing,
		CreditsUsed:         record.CreditsUsed,
		PollIntervalSeconds: int(cfg.PollInterval.Seconds()),
		MaxDurationSeconds:  int(cfg.MaxDuration.Seconds()),
	}, nil
}

// markFailed writes a terminal failure from the given state and applies the
// refund policy when the transition wins.
func (s *AnalysisService) markFailed(ctx context.Context, record *entity.DbAnalysisRecord, fromStatus, errorCode, message string) {
	status := entity.AnalysisStatusFailed
	won, err := s.store.UpdateAnalysisIfStatus(ctx, record.ID, fromStatus, entity.AnalysisUpdates{
		Status:       &status,
		ErrorCode:    &errorCode,
		ErrorMessage: &message,
	})
	if err != nil {
		logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to persist analysis failure")
		return
	}
	if !won {
		return
	}

	metrics.TasksFailed.WithLabelValues(errorCode).Inc()
	logrus.WithFields(logrus.Fields{
		"analysis_id": record.ID,
		"error_code":  errorCode,
	}).Info("analysis failed")

	if s.refundOnFailure && record.CreditsUsed > 0 {
		if err := s.ledger.Refund(ctx, record.UserID, record.CreditsUsed); err != nil {
			logrus.WithError(err).WithField("analysis_id", record.ID).Error("failed to refund credits")
		}
	}
}
