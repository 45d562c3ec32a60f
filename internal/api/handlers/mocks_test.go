package handlers

import (
	"context"
	"errors"
	"sync"

	"copytrade/internal/models"
	"copytrade/internal/service"
)

var ErrMockDatabase = errors.New("mock database error")

// ============ MockDispatcher ============

type MockDispatcher struct {
	mu       sync.Mutex
	signals  []*models.TradeSignal
	outcomes []models.TradeOutcome
	err      error
}

func (m *MockDispatcher) Dispatch(ctx context.Context, signal *models.TradeSignal) ([]models.TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, signal)
	if m.err != nil {
		return nil, m.err
	}
	signal.ID = "sig-1"
	return m.outcomes, nil
}

func (m *MockDispatcher) received() []*models.TradeSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.TradeSignal(nil), m.signals...)
}

// ============ MockCredentialManager ============

type MockCredentialManager struct {
	saved   []service.SaveCredentialsRequest
	deleted []string
	views   []models.CredentialView
	errors  map[string]error
}

func NewMockCredentialManager() *MockCredentialManager {
	return &MockCredentialManager{errors: make(map[string]error)}
}

func (m *MockCredentialManager) SetError(method string, err error) {
	m.errors[method] = err
}

func (m *MockCredentialManager) SaveCredentials(ctx context.Context, userID int64, req service.SaveCredentialsRequest) (*models.CredentialView, error) {
	if err := m.errors["save"]; err != nil {
		return nil, err
	}
	m.saved = append(m.saved, req)
	return &models.CredentialView{
		Exchange:      req.Exchange,
		AccountType:   models.AccountType(req.AccountType),
		HasPassphrase: req.Passphrase != "",
	}, nil
}

func (m *MockCredentialManager) DeleteCredentials(ctx context.Context, userID int64, exchangeName, accountType string) error {
	if err := m.errors["delete"]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, exchangeName+"/"+accountType)
	return nil
}

func (m *MockCredentialManager) ListCredentials(ctx context.Context, userID int64) ([]models.CredentialView, error) {
	if err := m.errors["list"]; err != nil {
		return nil, err
	}
	return m.views, nil
}

// ============ MockSyncRunner ============

type MockSyncRunner struct {
	mu      sync.Mutex
	synced  []int64
	allRuns int
	release chan struct{}
	err     error
}

func (m *MockSyncRunner) SyncOne(ctx context.Context, userID int64) service.SyncReport {
	m.mu.Lock()
	m.synced = append(m.synced, userID)
	m.mu.Unlock()
	return service.SyncReport{
		UserID:  userID,
		Results: []models.ExchangeSyncResult{{Exchange: "bybit", Type: models.AccountTypeFutures}},
	}
}

func (m *MockSyncRunner) SyncAll(ctx context.Context) ([]service.SyncReport, error) {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	m.allRuns++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return []service.SyncReport{{UserID: 1}}, nil
}

func (m *MockSyncRunner) runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allRuns
}

// ============ MockAuditReader ============

type MockAuditReader struct {
	events    []*models.AuditEvent
	lastUser  int64
	lastLimit int
	err       error
}

func (m *MockAuditReader) Recent(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error) {
	m.lastUser = userID
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}
