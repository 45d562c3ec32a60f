package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/pkg/crypto"
)

// ============ Mock CredentialRepository ============

type MockCredentialRepository struct {
	mu        sync.Mutex
	creds     []*models.ExchangeCredential
	listErr   error
	upsertErr error
	deleteErr error
	updateErr error
	updated   map[int64][3]string
	nextID    int64
}

func NewMockCredentialRepository(creds ...*models.ExchangeCredential) *MockCredentialRepository {
	m := &MockCredentialRepository{
		updated: make(map[int64][3]string),
		nextID:  1,
	}
	for _, c := range creds {
		if c.ID == 0 {
			c.ID = m.nextID
		}
		m.nextID = c.ID + 1
		m.creds = append(m.creds, c)
	}
	return m
}

func (m *MockCredentialRepository) ListByUser(ctx context.Context, userID int64) ([]*models.ExchangeCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.ExchangeCredential
	for _, c := range m.creds {
		if c.UserID == userID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockCredentialRepository) ListByExchange(ctx context.Context, exchangeName string) ([]*models.ExchangeCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.ExchangeCredential
	for _, c := range m.creds {
		if c.Exchange == exchangeName {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MockCredentialRepository) Upsert(ctx context.Context, c *models.ExchangeCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	now := time.Now()
	for _, existing := range m.creds {
		if existing.UserID == c.UserID && existing.Exchange == c.Exchange && existing.AccountType == c.AccountType {
			existing.APIKey, existing.APISecret, existing.Passphrase = c.APIKey, c.APISecret, c.Passphrase
			existing.UpdatedAt = now
			c.ID, c.CreatedAt, c.UpdatedAt = existing.ID, existing.CreatedAt, now
			return nil
		}
	}
	c.ID = m.nextID
	m.nextID++
	c.CreatedAt, c.UpdatedAt = now, now
	copied := *c
	m.creds = append(m.creds, &copied)
	return nil
}

func (m *MockCredentialRepository) UpdateSecrets(ctx context.Context, id int64, apiKey, apiSecret, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, c := range m.creds {
		if c.ID == id {
			c.APIKey, c.APISecret, c.Passphrase = apiKey, apiSecret, passphrase
			m.updated[id] = [3]string{apiKey, apiSecret, passphrase}
			return nil
		}
	}
	return repository.ErrCredentialNotFound
}

func (m *MockCredentialRepository) Delete(ctx context.Context, userID int64, exchangeName string, accountType models.AccountType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, c := range m.creds {
		if c.UserID == userID && c.Exchange == exchangeName && c.AccountType == accountType {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			return nil
		}
	}
	return repository.ErrCredentialNotFound
}

func (m *MockCredentialRepository) get(userID int64, exchangeName string) *models.ExchangeCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.UserID == userID && c.Exchange == exchangeName {
			copied := *c
			return &copied
		}
	}
	return nil
}

// ============ Mock UserRepository ============

type MockUserRepository struct {
	statuses  map[int64]models.UserStatus
	order     []int64
	listErr   error
	statusErr error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{statuses: make(map[int64]models.UserStatus)}
}

func (m *MockUserRepository) add(id int64, status models.UserStatus) {
	m.statuses[id] = status
	m.order = append(m.order, id)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	status, ok := m.statuses[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &models.User{ID: id, Status: status}, nil
}

func (m *MockUserRepository) ListIDs(ctx context.Context, statuses ...models.UserStatus) ([]int64, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]int64, 0, len(m.order))
	for _, id := range m.order {
		if len(statuses) == 0 {
			ids = append(ids, id)
			continue
		}
		for _, s := range statuses {
			if m.statuses[id] == s {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (m *MockUserRepository) GetStatuses(ctx context.Context, ids []int64) (map[int64]models.UserStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	out := make(map[int64]models.UserStatus, len(ids))
	for _, id := range ids {
		if s, ok := m.statuses[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// ============ Mock SignalRepository ============

type MockSignalRepository struct {
	mu               sync.Mutex
	signals          []*models.TradeSignal
	outcomes         []*models.TradeOutcome
	createSignalErr  error
	createOutcomeErr error
}

func NewMockSignalRepository() *MockSignalRepository {
	return &MockSignalRepository{}
}

func (m *MockSignalRepository) CreateSignal(ctx context.Context, s *models.TradeSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// как database/sql: отменённый контекст до запроса не доходит
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.createSignalErr != nil {
		return m.createSignalErr
	}
	m.signals = append(m.signals, s)
	return nil
}

func (m *MockSignalRepository) CreateOutcome(ctx context.Context, o *models.TradeOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.createOutcomeErr != nil {
		return m.createOutcomeErr
	}
	copied := *o
	m.outcomes = append(m.outcomes, &copied)
	return nil
}

func (m *MockSignalRepository) GetOutcomesBySignal(ctx context.Context, signalID string) ([]*models.TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TradeOutcome
	for _, o := range m.outcomes {
		if o.SignalID == signalID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ============ Mock AuditRepository ============

type MockAuditRepository struct {
	mu        sync.Mutex
	events    []*models.AuditEvent
	createErr error
	gate      chan struct{} // если задан, Create ждёт сигнала
	deleted   int64
	lastLimit int
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Create(ctx context.Context, e *models.AuditEvent) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	copied := *e
	copied.ID = int64(len(m.events) + 1)
	m.events = append(m.events, &copied)
	return nil
}

func (m *MockAuditRepository) GetRecentByUser(ctx context.Context, userID int64, limit int) ([]*models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []*models.AuditEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.events[i]; e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockAuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, e := range m.events {
		if e.CreatedAt.Before(before) {
			m.deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return m.deleted, nil
}

func (m *MockAuditRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// ============ Mock Auditor ============

type mockAuditor struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (m *mockAuditor) Record(event models.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockAuditor) kinds() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, e := range m.events {
		out[e.Kind]++
	}
	return out
}

// ============ Mock Notifier ============

type mockNotifier struct {
	mu         sync.Mutex
	notified   map[int64]int
	broadcasts [][]int64
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{notified: make(map[int64]int)}
}

func (m *mockNotifier) Notify(userID int64, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[userID]++
}

func (m *mockNotifier) Broadcast(userIDs []int64, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, append([]int64(nil), userIDs...))
}

// ============ Mock exchange.Client ============

type mockClient struct {
	id          exchange.ID
	accountType models.AccountType

	balance      *exchange.RawBalance
	balanceErr   error
	orders       []models.OpenOrder
	ordersErr    error
	positions    []exchange.RawPosition
	positionsErr error
	createErr    error
	panicOnSync  bool
	hangBalance  bool         // FetchBalance ждёт отмены контекста
	barrier      *callBarrier // если задан, каждый fetch ждёт остальных
	afterCreate  func()       // вызывается после принятого ордера

	mu             sync.Mutex
	created        []exchange.OrderRequest
	positionsCalls int
}

func newMockClient(id exchange.ID, at models.AccountType) *mockClient {
	return &mockClient{
		id:          id,
		accountType: at,
		balance:     &exchange.RawBalance{Exchange: id, AccountType: at, Info: []byte(`{}`)},
	}
}

func (c *mockClient) Exchange() exchange.ID           { return c.id }
func (c *mockClient) AccountType() models.AccountType { return c.accountType }
func (c *mockClient) Setup(ctx context.Context) error { return nil }

func (c *mockClient) CancelOrder(ctx context.Context, orderID, symbol string) error {
	return nil
}

func (c *mockClient) FetchBalance(ctx context.Context) (*exchange.RawBalance, error) {
	if c.panicOnSync {
		panic("balance exploded")
	}
	if err := c.barrier.arrive(ctx); err != nil {
		return nil, err
	}
	if c.hangBalance {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.balanceErr != nil {
		return nil, c.balanceErr
	}
	return c.balance, nil
}

func (c *mockClient) FetchOpenOrders(ctx context.Context, symbol string) ([]models.OpenOrder, error) {
	if err := c.barrier.arrive(ctx); err != nil {
		return nil, err
	}
	if c.ordersErr != nil {
		return nil, c.ordersErr
	}
	return c.orders, nil
}

func (c *mockClient) FetchPositions(ctx context.Context) ([]exchange.RawPosition, error) {
	c.mu.Lock()
	c.positionsCalls++
	c.mu.Unlock()
	if err := c.barrier.arrive(ctx); err != nil {
		return nil, err
	}
	if c.positionsErr != nil {
		return nil, c.positionsErr
	}
	return c.positions, nil
}

func (c *mockClient) CreateOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	c.mu.Lock()
	if c.createErr != nil {
		c.mu.Unlock()
		return nil, c.createErr
	}
	c.created = append(c.created, req)
	after := c.afterCreate
	c.mu.Unlock()

	if after != nil {
		after()
	}
	return &exchange.OrderResult{ID: "ord-" + req.ClientID, Symbol: req.Symbol, Side: req.Side, Type: req.Type}, nil
}

// callBarrier отпускает вызовы только когда пришли все n участников.
// Последовательные вызовы упираются в свой таймаут.
type callBarrier struct {
	mu        sync.Mutex
	remaining int
	all       chan struct{}
}

func newCallBarrier(n int) *callBarrier {
	return &callBarrier{remaining: n, all: make(chan struct{})}
}

func (b *callBarrier) arrive(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	b.remaining--
	if b.remaining == 0 {
		close(b.all)
	}
	b.mu.Unlock()

	select {
	case <-b.all:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *mockClient) createdOrders() []exchange.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]exchange.OrderRequest(nil), c.created...)
}

// ============ Mock ClientProvider ============

// mockClientProvider выдаёт клиентов по расшифрованному API ключу
type mockClientProvider struct {
	mu      sync.Mutex
	clients map[string]*mockClient
	errs    map[string]error
	evicted []string
}

func newMockClientProvider() *mockClientProvider {
	return &mockClientProvider{
		clients: make(map[string]*mockClient),
		errs:    make(map[string]error),
	}
}

func (p *mockClientProvider) Get(ctx context.Context, id exchange.ID, cred models.DecryptedCredential, at models.AccountType) (exchange.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[cred.APIKey]; err != nil {
		return nil, err
	}
	if c, ok := p.clients[cred.APIKey]; ok {
		return c, nil
	}
	return nil, errors.New("no client for key")
}

func (p *mockClientProvider) Evict(id exchange.ID, apiKey string, at models.AccountType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evicted = append(p.evicted, apiKey)
	return true
}

func (p *mockClientProvider) evictedKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.evicted...)
}

// ============ Helpers ============

const testVaultKey = "0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T) *crypto.Vault {
	t.Helper()
	v, err := crypto.NewVault(testVaultKey)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v
}

// encryptedCred создаёт привязку с ключами, зашифрованными vault
func encryptedCred(t *testing.T, v *crypto.Vault, userID int64, exchangeName string, at models.AccountType, apiKey string) *models.ExchangeCredential {
	t.Helper()
	key, err := v.Encrypt(apiKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	secret, err := v.Encrypt("secret-" + apiKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pass, err := v.Encrypt("pass-" + apiKey)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return &models.ExchangeCredential{
		UserID:      userID,
		Exchange:    exchangeName,
		AccountType: at,
		APIKey:      key,
		APISecret:   secret,
		Passphrase:  pass,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
