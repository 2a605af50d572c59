package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"yourank/internal/catalog"
	"yourank/internal/credits"
	"yourank/internal/dataforseo"
	"yourank/internal/entity"
	"yourank/internal/tasks"
)

type svcStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]*entity.DbAnalysisRecord

	createErr error
}

func newSvcStore() *svcStore {
	return &svcStore{nextID: 1, records: make(map[uint]*entity.DbAnalysisRecord)}
}

func (s *svcStore) CreateAnalysis(_ context.Context, record *entity.DbAnalysisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	record.ID = s.nextID
	record.CreatedAt = time.Now()
	s.nextID++
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *svcStore) UpdateAnalysisIfStatus(_ context.Context, id uint, fromStatus string, updates entity.AnalysisUpdates) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.Status != fromStatus {
		return false, nil
	}
	if updates.TaskID != nil {
		record.TaskID = *updates.TaskID
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

func (s *svcStore) GetAnalysis(_ context.Context, id uint) (*entity.DbAnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *record
	return &copied, nil
}

func (s *svcStore) ListAnalysesByStatus(_ context.Context, status string) ([]entity.DbAnalysisRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.DbAnalysisRecord
	for _, record := range s.records {
		if record.Status == status {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (s *svcStore) get(t *testing.T, id uint) entity.DbAnalysisRecord {
	t.Helper()
	record, err := s.GetAnalysis(context.Background(), id)
	if err != nil {
		t.Fatalf("record %d not found", id)
	}
	return *record
}

type creditAccount struct {
	mu      sync.Mutex
	balance int64
}

func (a *creditAccount) DeductCredits(_ context.Context, _ uint, amount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance < amount {
		return credits.ErrInsufficient
	}
	a.balance -= amount
	return nil
}

func (a *creditAccount) AddCredits(_ context.Context, _ uint, amount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance += amount
	return nil
}

func (a *creditAccount) current() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

type fakeProvider struct {
	result map[string]interface{}
	err    error
	calls  int
}

func (p *fakeProvider) LiveCall(_ context.Context, _ string, _ map[string]interface{}) (map[string]interface{}, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

type fakeJobClient struct {
	taskID    string
	submitErr error
	status    *dataforseo.JobStatus
}

func (c *fakeJobClient) SubmitJob(_ context.Context, _ string, _ map[string]interface{}) (string, error) {
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return c.taskID, nil
}

func (c *fakeJobClient) FetchJobStatus(_ context.Context, _, _ string) (*dataforseo.JobStatus, error) {
	if c.status != nil {
		return c.status, nil
	}
	return &dataforseo.JobStatus{Ready: false}, nil
}

func (c *fakeJobClient) CancelJob(_ context.Context, _, _ string) error { return nil }

func newService(store *svcStore, account *creditAccount, provider Provider, client tasks.JobClient, refund bool) *AnalysisService {
	ledger := credits.NewLedger(account)
	mgr := tasks.NewManager(store, client, ledger, tasks.PollConfig{
		PollInterval:    2 * time.Millisecond,
		MaxDuration:     2 * time.Second,
		MaxPollFailures: 3,
		RefundOnFailure: refund,
	})
	return NewAnalysisService(store, provider, ledger, mgr, refund)
}

func testUser() *entity.DbUser {
	return &entity.DbUser{ID: 5, Email: "user@example.com", Credits: 100}
}

func TestSubmitUnknownType(t *testing.T) {
	account := &creditAccount{balance: 100}
	svc := newService(newSvcStore(), account, &fakeProvider{}, &fakeJobClient{}, false)

	_, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{Type: "no_such_type"})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if account.current() != 100 {
		t.Fatal("unknown type must not charge credits")
	}
}

func TestSubmitInvalidInput(t *testing.T) {
	account := &creditAccount{balance: 100}
	svc := newService(newSvcStore(), account, &fakeProvider{}, &fakeJobClient{}, false)

	_, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeSerpAnalysis,
		Input: entity.JSONMap{},
	})
	var invalidErr *InvalidInputError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidInputError, got %v", err)
	}
	if account.current() != 100 {
		t.Fatal("invalid input must not charge credits")
	}
}

func TestSubmitInsufficientCredits(t *testing.T) {
	account := &creditAccount{balance: 1}
	store := newSvcStore()
	svc := newService(store, account, &fakeProvider{}, &fakeJobClient{}, false)

	_, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeSerpAnalysis,
		Input: entity.JSONMap{"keyword": "golang"},
	})
	if !errors.Is(err, credits.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("no record must be created when the charge is rejected")
	}
}

func TestSubmitSyncSuccess(t *testing.T) {
	account := &creditAccount{balance: 100}
	store := newSvcStore()
	provider := &fakeProvider{result: map[string]interface{}{"items": "data"}}
	svc := newService(store, account, provider, &fakeJobClient{}, false)

	resp, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeSerpAnalysis,
		Input: entity.JSONMap{"keyword": "golang"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != entity.AnalysisStatusCompleted {
		t.Fatalf("expected completed, got %s", resp.Status)
	}
	if resp.CreditsUsed != 3 {
		t.Fatalf("expected serp cost 3, got %d", resp.CreditsUsed)
	}
	if account.current() != 97 {
		t.Fatalf("expected balance 97, got %d", account.current())
	}

	record := store.get(t, resp.RecordID)
	if record.Status != entity.AnalysisStatusCompleted {
		t.Fatalf("expected completed record, got %s", record.Status)
	}
	if record.Result["items"] != "data" {
		t.Fatalf("expected result to be persisted, got %v", record.Result)
	}
}

func TestSubmitSyncProviderFailureWithRefund(t *testing.T) {
	account := &creditAccount{balance: 100}
	store := newSvcStore()
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	svc := newService(store, account, provider, &fakeJobClient{}, true)

	resp, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeSerpAnalysis,
		Input: entity.JSONMap{"keyword": "golang"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != entity.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", resp.Status)
	}

	record := store.get(t, resp.RecordID)
	if record.ErrorCode != entity.AnalysisErrorProvider {
		t.Fatalf("expected provider error code, got %q", record.ErrorCode)
	}
	if account.current() != 100 {
		t.Fatalf("expected refunded balance 100, got %d", account.current())
	}
}

func TestSubmitSyncProviderFailureWithoutRefund(t *testing.T) {
	account := &creditAccount{balance: 100}
	store := newSvcStore()
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	svc := newService(store, account, provider, &fakeJobClient{}, false)

	resp, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeSerpAnalysis,
		Input: entity.JSONMap{"keyword": "golang"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != entity.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", resp.Status)
	}
	if account.current() != 97 {
		t.Fatalf("expected balance 97 without refund, got %d", account.current())
	}
}

func TestSubmitAsyncSuccess(t *testing.T) {
	account := &creditAccount{balance: 100}
	store := newSvcStore()
	client := &fakeJobClient{
		taskID: "task-abc",
		status: &dataforseo.JobStatus{Ready: true, Result: map[string]interface{}{"score": 87}},
	}
	svc := newService(store, account, &fakeProvider{}, client, false)

	resp, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeOnPageAudit,
		Input: entity.JSONMap{"target": "example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != entity.AnalysisStatusProcessing {
		t.Fatalf("expected processing, got %s", resp.Status)
	}
	if resp.TaskID != "task-abc" {
		t.Fatalf("expected task id in response, got %q", resp.TaskID)
	}
	if resp.PollIntervalSeconds <= 0 && resp.MaxDurationSeconds <= 0 {
		t.Fatal("expected poll parameters in async response")
	}
	if account.current() != 80 {
		t.Fatalf("expected balance 80 after onpage charge, got %d", account.current())
	}

	// 后台轮询应将记录推进到 completed
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.get(t, resp.RecordID).Status == entity.AnalysisStatusCompleted {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	record := store.get(t, resp.RecordID)
	if record.Status != entity.AnalysisStatusCompleted {
		t.Fatalf("expected completed record, got %s", record.Status)
	}
	if record.TaskID != "task-abc" {
		t.Fatalf("task id must be persisted, got %q", record.TaskID)
	}
}

func TestSubmitAsyncSubmissionFailure(t *testing.T) {
	account := &creditAccount{balance: 100}
	store := newSvcStore()
	client := &fakeJobClient{submitErr: &dataforseo.SubmissionError{StatusCode: 40101, Message: "auth failed"}}
	svc := newService(store, account, &fakeProvider{}, client, true)

	resp, err := svc.Submit(context.Background(), testUser(), &entity.SubmitAnalysisRequest{
		Type:  catalog.TypeOnPageAudit,
		Input: entity.JSONMap{"target": "example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != entity.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", resp.Status)
	}

	record := store.get(t, resp.RecordID)
	if record.ErrorCode != entity.AnalysisErrorSubmission {
		t.Fatalf("expected submission error code, got %q", record.ErrorCode)
	}
	if record.TaskID != "" {
		t.Fatalf("failed submission must not persist a task id, got %q", record.TaskID)
	}
	if account.current() != 100 {
		t.Fatalf("expected refunded balance 100, got %d", account.current())
	}
}
