//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paygate/internal/domain/model"
	"paygate/internal/usecase"
)

type creditFixture struct {
	attempts *MockAttemptRepo
	subs     *MockSubscriptionRepo
	txns     *MockTokenTxRepo
	listener *MockListener
	uc       usecase.CreditUseCase
}

func newCreditFixture(t *testing.T) *creditFixture {
	t.Helper()
	txns := &MockTokenTxRepo{}
	f := &creditFixture{
		attempts: NewMockAttemptRepo(),
		subs:     NewMockSubscriptionRepo(txns),
		txns:     txns,
		listener: &MockListener{},
	}
	f.uc = usecase.NewCreditUseCase(f.attempts, f.subs, f.txns, NewMockTxManager(), newTestLogger(), f.listener)
	return f
}

func (f *creditFixture) addSubscription(t *testing.T, id, userID, serviceType string) {
	t.Helper()
	s, err := model.NewSubscription(id, userID, serviceType)
	if err != nil {
		t.Fatalf("NewSubscription: %v", err)
	}
	_ = f.subs.Save(context.Background(), nil, s)
}

func (f *creditFixture) addPendingAttempt(t *testing.T, ref, userID, serviceType string, amount int64, method model.Provider) {
	t.Helper()
	f.addPendingAttemptAt(t, ref, userID, serviceType, amount, method, time.Now().Add(-time.Hour))
}

func (f *creditFixture) addPendingAttemptAt(t *testing.T, ref, userID, serviceType string, amount int64, method model.Provider, createdAt time.Time) {
	t.Helper()
	a, err := model.NewPaymentAttempt("att-"+ref, ref, userID, serviceType, nil, amount, "XOF", method)
	if err != nil {
		t.Fatalf("NewPaymentAttempt: %v", err)
	}
	a.CreatedAt = createdAt
	if _, err := f.attempts.Record(context.Background(), nil, a); err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestCreditUseCase_Credit(t *testing.T) {
	ctx := context.Background()

	t.Run("should credit floor(amount/value) tokens and complete the attempt", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		f.addPendingAttempt(t, "R1", "user-1", "auto", 5000, model.ProviderOrange)

		res, err := f.uc.Credit(ctx, model.CreditInput{Reference: "R1", AmountMinor: 5000, Method: model.ProviderOrange, Source: model.CreditSourceWebhook})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.IsCredited() || res.Tokens != 6 || res.TokenValue != 750 {
			t.Fatalf("unexpected result: %+v", res)
		}
		if got := f.subs.Balance("sub-1"); got != 6 {
			t.Errorf("expected balance 6, got %d", got)
		}
		if a := f.attempts.Get("R1"); a.Status != model.PaymentStatusCompleted || a.CompletedAt == nil {
			t.Errorf("expected completed attempt, got %+v", a)
		}
		if f.txns.Len() != 1 {
			t.Errorf("expected one ledger line, got %d", f.txns.Len())
		}
	})

	t.Run("should credit exactly once for duplicate deliveries", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		f.addPendingAttempt(t, "R1", "user-1", "auto", 5000, model.ProviderOrange)
		in := model.CreditInput{Reference: "R1", AmountMinor: 5000, Method: model.ProviderOrange, Source: model.CreditSourceWebhook}

		first, _ := f.uc.Credit(ctx, in)
		second, err := f.uc.Credit(ctx, in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !first.IsCredited() {
			t.Fatalf("expected first delivery to credit, got %+v", first)
		}
		if second.IsCredited() || second.Reason != model.SkipAlreadyProcessed {
			t.Errorf("expected second delivery to be skipped as already processed, got %+v", second)
		}
		if got := f.subs.Balance("sub-1"); got != 6 {
			t.Errorf("expected balance to stay 6, got %d", got)
		}
		if f.listener.Count() != 1 {
			t.Errorf("expected one Credited event, got %d", f.listener.Count())
		}
	})

	t.Run("should credit exactly once under concurrent deliveries", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		in := model.CreditInput{Reference: "R9", UserID: "user-1", ServiceType: "auto", AmountMinor: 7500, Method: model.ProviderCinetPay, Source: model.CreditSourceWebhook}

		const n = 16
		var wg sync.WaitGroup
		results := make(chan model.CreditResult, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, _ := f.uc.Credit(ctx, in)
				results <- res
			}()
		}
		wg.Wait()
		close(results)

		credited := 0
		for r := range results {
			if r.IsCredited() {
				credited++
			}
		}
		if credited != 1 {
			t.Errorf("expected exactly one credit, got %d", credited)
		}
		if got := f.subs.Balance("sub-1"); got != 10 {
			t.Errorf("expected balance 10, got %d", got)
		}
	})

	t.Run("should skip when identity cannot be resolved", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")

		res, err := f.uc.Credit(ctx, model.CreditInput{Reference: "UNKNOWN", AmountMinor: 5000, Source: model.CreditSourceWebhook})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Reason != model.SkipUnresolvedIdentity {
			t.Errorf("expected UnresolvedIdentity, got %+v", res)
		}
		if f.txns.Len() != 0 || f.attempts.Len() != 0 || f.subs.Balance("sub-1") != 0 {
			t.Error("expected no rows to be written")
		}
	})

	t.Run("should skip when the user has no subscription for the service", func(t *testing.T) {
		f := newCreditFixture(t)
		res, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "R2", UserID: "user-1", ServiceType: "moto", AmountMinor: 5000})
		if res.Reason != model.SkipNoSubscription {
			t.Errorf("expected NoSubscription, got %+v", res)
		}
		if f.attempts.Len() != 0 {
			t.Error("expected the attempt to stay untouched")
		}
	})

	t.Run("should skip a service without a token price", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "bateau")
		res, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "R3", UserID: "user-1", ServiceType: "bateau", AmountMinor: 5000})
		if res.Reason != model.SkipInvalidTokenValue {
			t.Errorf("expected InvalidTokenValue, got %+v", res)
		}
		if f.txns.Len() != 0 {
			t.Error("expected no ledger line")
		}
	})

	t.Run("should skip amounts below one token", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "voyage")
		res, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "R4", UserID: "user-1", ServiceType: "voyage", AmountMinor: 1000})
		if res.Reason != model.SkipZeroTokens {
			t.Errorf("expected ZeroTokens, got %+v", res)
		}
	})

	t.Run("should prefer supplied tokens over the computed amount", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		res, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "R5", UserID: "user-1", ServiceType: "auto", Tokens: int64Ptr(3), AmountMinor: 7500})
		if res.Tokens != 3 || f.subs.Balance("sub-1") != 3 {
			t.Errorf("expected 3 tokens, got %+v", res)
		}
	})

	t.Run("should mark the first purchase initial and later ones renewal", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		first, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "A", UserID: "user-1", ServiceType: "auto", AmountMinor: 750})
		second, _ := f.uc.Credit(ctx, model.CreditInput{Reference: "B", UserID: "user-1", ServiceType: "auto", AmountMinor: 750})
		if first.PaymentType != model.PaymentTypeInitial || second.PaymentType != model.PaymentTypeRenewal {
			t.Errorf("unexpected payment types %s, %s", first.PaymentType, second.PaymentType)
		}
	})

	t.Run("should swallow storage errors as a StorageError skip", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		f.attempts.CompleteErr = errors.New("connection reset")

		res, err := f.uc.Credit(ctx, model.CreditInput{Reference: "R6", UserID: "user-1", ServiceType: "auto", AmountMinor: 5000})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Reason != model.SkipStorageError {
			t.Errorf("expected StorageError, got %+v", res)
		}
		if f.listener.Count() != 0 {
			t.Error("expected no Credited event")
		}
	})

	t.Run("should return the context error when cancelled", func(t *testing.T) {
		f := newCreditFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.uc.Credit(cctx, model.CreditInput{Reference: "R7", UserID: "user-1", ServiceType: "auto", AmountMinor: 5000})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("should emit a Credited event with a sortable id", func(t *testing.T) {
		f := newCreditFixture(t)
		f.addSubscription(t, "sub-1", "user-1", "auto")
		_, _ = f.uc.Credit(ctx, model.CreditInput{Reference: "R8", UserID: "user-1", ServiceType: "auto", AmountMinor: 1500, Method: model.ProviderSama, Source: model.CreditSourceVerify})

		if f.listener.Count() != 1 {
			t.Fatalf("expected one event, got %d", f.listener.Count())
		}
		ev := f.listener.Events[0]
		if len(ev.EventID) != 26 {
			t.Errorf("expected a 26 char ULID, got %q", ev.EventID)
		}
		if ev.Reference != "R8" || ev.Tokens != 2 || ev.AmountMinor != 1500 || ev.PaymentType != model.PaymentTypeInitial {
			t.Errorf("unexpected event: %+v", ev)
		}
	})
}

func TestCreditUseCase_LedgerConsistency(t *testing.T) {
	ctx := context.Background()
	f := newCreditFixture(t)
	f.addSubscription(t, "sub-a", "user-1", "auto")
	f.addSubscription(t, "sub-m", "user-1", "moto")

	inputs := []model.CreditInput{
		{Reference: "L1", UserID: "user-1", ServiceType: "auto", AmountMinor: 5000},
		{Reference: "L1", UserID: "user-1", ServiceType: "auto", AmountMinor: 5000},
		{Reference: "L2", UserID: "user-1", ServiceType: "moto", AmountMinor: 2600},
		{Reference: "L3", UserID: "user-1", ServiceType: "auto", Tokens: int64Ptr(4)},
		{Reference: "L2", UserID: "user-1", ServiceType: "moto", AmountMinor: 2600},
	}
	for _, in := range inputs {
		_, _ = f.uc.Credit(ctx, in)
	}

	for _, id := range []string{"sub-a", "sub-m"} {
		if bal, sum := f.subs.Balance(id), f.txns.sum(id); bal != sum {
			t.Errorf("%s: balance %d != ledger sum %d", id, bal, sum)
		}
	}
	if got := f.subs.Balance("sub-a"); got != 10 {
		t.Errorf("expected sub-a balance 10, got %d", got)
	}
	if got := f.subs.Balance("sub-m"); got != 5 {
		t.Errorf("expected sub-m balance 5, got %d", got)
	}
}

func TestCreditUseCase_ResolveAttempt(t *testing.T) {
	f := newCreditFixture(t)
	f.addPendingAttempt(t, "R1", "user-1", "sante", 3000, model.ProviderSama)

	res := f.uc.ResolveAttempt(context.Background(), "R1")
	if !res.Found || res.UserID != "user-1" || res.ServiceType != "sante" || res.AmountMinor != 3000 || res.Method != model.ProviderSama {
		t.Errorf("unexpected resolution: %+v", res)
	}
	if f.uc.ResolveAttempt(context.Background(), "missing").Found {
		t.Error("expected a missing reference not to resolve")
	}
}
