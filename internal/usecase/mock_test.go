//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func int64Ptr(n int64) *int64 { return &n }

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu       sync.Mutex
	Provider model.Provider
	Calls    []adapter.InitiationRequest

	InitiateFunc func(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error)
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (m *MockGateway) Name() model.Provider { return m.Provider }

func (m *MockGateway) Initiate(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	m.mu.Unlock()
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, req)
	}
	return adapter.InitiationResult{
		Provider:   m.Provider,
		Reference:  req.Reference,
		PaymentURL: "https://pay.test/" + req.Reference,
		Initiated:  true,
		Payload:    map[string]any{"payment_url": "https://pay.test/" + req.Reference},
	}, nil
}

func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockVerifyingGateway adds status queries and webhook decoding.
type MockVerifyingGateway struct {
	MockGateway
	VerifyFunc func(ctx context.Context, reference string) (model.VerifyStatus, error)
	DecodeFunc func(header http.Header, body []byte) (model.ConfirmationEvent, error)
}

var (
	_ adapter.StatusVerifier = (*MockVerifyingGateway)(nil)
	_ adapter.WebhookDecoder = (*MockVerifyingGateway)(nil)
)

func (m *MockVerifyingGateway) Verify(ctx context.Context, reference string) (model.VerifyStatus, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, reference)
	}
	return model.VerifyStatusPending, nil
}

func (m *MockVerifyingGateway) DecodeWebhook(header http.Header, body []byte) (model.ConfirmationEvent, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(header, body)
	}
	return model.ConfirmationEvent{}, domain.ErrMalformedWebhook
}

// MockIssuingGateway mints references like the CinetPay adapter.
type MockIssuingGateway struct {
	MockGateway
}

var _ adapter.ReferenceIssuer = (*MockIssuingGateway)(nil)

func (m *MockIssuingGateway) IssueReference(serviceType, userID string, at time.Time) (string, bool) {
	if serviceType == "" || userID == "" {
		return "", false
	}
	return fmt.Sprintf("TOKENS_%s_%s_%d", serviceType, userID, at.Unix()), true
}

// ---- Recording CreditListener ----

type MockListener struct {
	mu     sync.Mutex
	Events []model.Credited
}

func (m *MockListener) OnCredited(ctx context.Context, ev model.Credited) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
}

func (m *MockListener) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentAttemptRepository ----

type MockAttemptRepo struct {
	mu       sync.Mutex
	attempts map[string]*model.PaymentAttempt

	RecordErr   error
	FindErr     error
	CompleteErr error
}

func NewMockAttemptRepo() *MockAttemptRepo {
	return &MockAttemptRepo{attempts: make(map[string]*model.PaymentAttempt)}
}

var _ repository.PaymentAttemptRepository = (*MockAttemptRepo)(nil)

func (m *MockAttemptRepo) Record(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) (bool, error) {
	if m.RecordErr != nil {
		return false, m.RecordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.Reference]; ok {
		return false, nil
	}
	cp := *a
	m.attempts[a.Reference] = &cp
	return true, nil
}

func (m *MockAttemptRepo) FindLatestByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentAttempt, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// CompleteIfPending mirrors the storage upsert: absent rows are created completed,
// pending rows move to completed, anything else is left alone.
func (m *MockAttemptRepo) CompleteIfPending(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) (bool, error) {
	if m.CompleteErr != nil {
		return false, m.CompleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cur, ok := m.attempts[a.Reference]
	if !ok {
		cp := *a
		cp.Status = model.PaymentStatusCompleted
		cp.CompletedAt = &now
		m.attempts[a.Reference] = &cp
		return true, nil
	}
	if cur.Status != model.PaymentStatusPending {
		return false, nil
	}
	cur.Status = model.PaymentStatusCompleted
	cur.CompletedAt = &now
	return true, nil
}

func (m *MockAttemptRepo) FailIfPending(ctx context.Context, tx repository.Tx, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.attempts[reference]
	if !ok || cur.Status != model.PaymentStatusPending {
		return false, nil
	}
	cur.Status = model.PaymentStatusFailed
	return true, nil
}

func (m *MockAttemptRepo) ListStalePending(ctx context.Context, tx repository.Tx, providers []model.Provider, olderThan time.Time, limit int) ([]*model.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[model.Provider]bool, len(providers))
	for _, p := range providers {
		wanted[p] = true
	}
	var out []*model.PaymentAttempt
	for _, a := range m.attempts {
		if a.Status == model.PaymentStatusPending && a.CreatedAt.Before(olderThan) && wanted[a.Method] {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := out[i].LastCheckedAt, out[j].LastCheckedAt
		switch {
		case ci == nil && cj != nil:
			return true
		case ci != nil && cj == nil:
			return false
		case ci != nil && !ci.Equal(*cj):
			return ci.Before(*cj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockAttemptRepo) MarkChecked(ctx context.Context, tx repository.Tx, ids []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	marked := make(map[string]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for _, a := range m.attempts {
		if marked[a.ID] {
			ts := at
			a.LastCheckedAt = &ts
		}
	}
	return nil
}

func (m *MockAttemptRepo) ExpirePending(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.attempts {
		if a.Status == model.PaymentStatusPending && a.CreatedAt.Before(olderThan) {
			a.Status = model.PaymentStatusFailed
			n++
		}
	}
	return n, nil
}

func (m *MockAttemptRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.PaymentStatus]int{}
	for _, a := range m.attempts {
		out[a.Status]++
	}
	return out, nil
}

func (m *MockAttemptRepo) Get(reference string) *model.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[reference]; ok {
		cp := *a
		return &cp
	}
	return nil
}

func (m *MockAttemptRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// ---- Mock Subscription + TokenTransaction repositories ----

type MockTokenTxRepo struct {
	mu   sync.Mutex
	rows []*model.TokenTransaction

	SaveErr error
}

var _ repository.TokenTransactionRepository = (*MockTokenTxRepo)(nil)

func (m *MockTokenTxRepo) Save(ctx context.Context, tx repository.Tx, t *model.TokenTransaction) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *MockTokenTxRepo) CountPurchases(ctx context.Context, tx repository.Tx, subscriptionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.SubscriptionID == subscriptionID && r.Type == model.TokenTransactionPurchase {
			n++
		}
	}
	return n, nil
}

func (m *MockTokenTxRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) ([]*model.TokenTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TokenTransaction
	for _, r := range m.rows {
		if r.SubscriptionID == subscriptionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTokenTxRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *MockTokenTxRepo) sum(subscriptionID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s int64
	for _, r := range m.rows {
		if r.SubscriptionID == subscriptionID {
			s += r.TokenAmount
		}
	}
	return s
}

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription
	txns *MockTokenTxRepo

	FindErr error
}

func NewMockSubscriptionRepo(txns *MockTokenTxRepo) *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription), txns: txns}
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindActiveByUserAndService(ctx context.Context, tx repository.Tx, userID, serviceType string) (*model.Subscription, error) {
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.ServiceType == serviceType && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) AddTokens(ctx context.Context, tx repository.Tx, id string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.TokenBalance += delta
	return nil
}

func (m *MockSubscriptionRepo) ListLedgerDrift(ctx context.Context, tx repository.Tx) ([]model.LedgerDrift, error) {
	m.mu.Lock()
	subs := make([]*model.Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		cp := *s
		subs = append(subs, &cp)
	}
	m.mu.Unlock()

	var out []model.LedgerDrift
	for _, s := range subs {
		sum := m.txns.sum(s.ID)
		if sum != s.TokenBalance {
			out = append(out, model.LedgerDrift{SubscriptionID: s.ID, UserID: s.UserID, ServiceType: s.ServiceType, TokenBalance: s.TokenBalance, LedgerSum: sum})
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) Balance(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id].TokenBalance
}

// SetBalance corrupts a balance to simulate drift.
func (m *MockSubscriptionRepo) SetBalance(id string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[id].TokenBalance = n
}

// ---- Mock referral repositories ----

type MockReferrerRepo struct {
	mu    sync.Mutex
	users map[string]*model.Referrer

	AddCommissionErr error
}

func NewMockReferrerRepo() *MockReferrerRepo {
	return &MockReferrerRepo{users: make(map[string]*model.Referrer)}
}

var _ repository.ReferrerRepository = (*MockReferrerRepo)(nil)

func (m *MockReferrerRepo) Save(ctx context.Context, tx repository.Tx, r *model.Referrer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.users[r.UserID] = &cp
	return nil
}

func (m *MockReferrerRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.Referrer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockReferrerRepo) AddCommission(ctx context.Context, tx repository.Tx, userID string, amount int64) error {
	if m.AddCommissionErr != nil {
		return m.AddCommissionErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.TotalCommissionsEarned += amount
	u.AvailableCommissions += amount
	return nil
}

func (m *MockReferrerRepo) AddCredits(ctx context.Context, tx repository.Tx, userID string, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.CurrentCredits += points
	return nil
}

func (m *MockReferrerRepo) Get(userID string) model.Referrer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[userID]
}

type MockReferralRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Referral
}

func NewMockReferralRepo() *MockReferralRepo {
	return &MockReferralRepo{rows: make(map[string]*model.Referral)}
}

var _ repository.ReferralRepository = (*MockReferralRepo)(nil)

func (m *MockReferralRepo) Save(ctx context.Context, tx repository.Tx, r *model.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *MockReferralRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReferralRepo) FindByPair(ctx context.Context, tx repository.Tx, referrerID, referredUserID string) (*model.Referral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ReferrerID == referrerID && r.ReferredUserID == referredUserID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockReferralRepo) RecordPayment(ctx context.Context, tx repository.Tx, id string, commission int64, pt model.PaymentType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.TotalCommissionsGenerated += commission
	if pt == model.PaymentTypeInitial {
		if r.FirstPaymentDate == nil {
			r.FirstPaymentDate = &at
		}
	} else {
		r.LastRenewalDate = &at
	}
	return nil
}

func (m *MockReferralRepo) Get(id string) model.Referral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type MockCommissionRepo struct {
	mu    sync.Mutex
	byRef map[string]*model.Commission
}

func NewMockCommissionRepo() *MockCommissionRepo {
	return &MockCommissionRepo{byRef: make(map[string]*model.Commission)}
}

var _ repository.CommissionRepository = (*MockCommissionRepo)(nil)

func (m *MockCommissionRepo) Insert(ctx context.Context, tx repository.Tx, c *model.Commission) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[c.PaymentReference]; ok {
		return false, nil
	}
	cp := *c
	m.byRef[c.PaymentReference] = &cp
	return true, nil
}

func (m *MockCommissionRepo) ListByReferrer(ctx context.Context, tx repository.Tx, referrerID string) ([]*model.Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Commission
	for _, c := range m.byRef {
		if c.ReferrerID == referrerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type MockRewardRepo struct {
	mu         sync.Mutex
	byReferral map[string]*model.AffiliateReward
}

func NewMockRewardRepo() *MockRewardRepo {
	return &MockRewardRepo{byReferral: make(map[string]*model.AffiliateReward)}
}

var _ repository.AffiliateRewardRepository = (*MockRewardRepo)(nil)

func (m *MockRewardRepo) Insert(ctx context.Context, tx repository.Tx, r *model.AffiliateReward) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byReferral[r.ReferralID]; ok {
		return false, nil
	}
	cp := *r
	m.byReferral[r.ReferralID] = &cp
	return true, nil
}

func (m *MockRewardRepo) FindByReferral(ctx context.Context, tx repository.Tx, referralID string) (*model.AffiliateReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byReferral[referralID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockRewardRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byReferral)
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}
