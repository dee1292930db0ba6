//go:build !integration

package sched

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type mockReconcileUC struct {
	ReconcileFunc func(ctx context.Context) (usecase.ReconcileReport, error)
	AuditFunc     func(ctx context.Context) ([]model.LedgerDrift, error)
	reconciled    atomic.Int32
	audited       atomic.Int32
}

func (m *mockReconcileUC) ReconcileStale(ctx context.Context) (usecase.ReconcileReport, error) {
	m.reconciled.Add(1)
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx)
	}
	return usecase.ReconcileReport{}, nil
}

func (m *mockReconcileUC) AuditLedger(ctx context.Context) ([]model.LedgerDrift, error) {
	m.audited.Add(1)
	if m.AuditFunc != nil {
		return m.AuditFunc(ctx)
	}
	return nil, nil
}

// memLocker mimics SET NX semantics in memory.
type memLocker struct {
	mu       sync.Mutex
	held     map[string]string
	LockErr  error
	unlocked []string
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if l.LockErr != nil {
		return "", l.LockErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]string{}
	}
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	l.held[key] = "tok-" + key
	return l.held[key], nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	l.unlocked = append(l.unlocked, key)
	return nil
}

func TestPaymentReconciler_RunOnce(t *testing.T) {
	t.Run("should reconcile under the lock and release it", func(t *testing.T) {
		uc := &mockReconcileUC{}
		locker := &memLocker{}
		w := NewPaymentReconciler(uc, locker, time.Minute, newTestLogger())

		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if uc.reconciled.Load() != 1 {
			t.Fatalf("expected one reconcile pass, got %d", uc.reconciled.Load())
		}
		if len(locker.unlocked) != 1 || locker.unlocked[0] != ReconcileLockKey {
			t.Errorf("expected %s to be released, got %v", ReconcileLockKey, locker.unlocked)
		}
	})

	t.Run("should skip when another replica holds the lock", func(t *testing.T) {
		uc := &mockReconcileUC{}
		locker := &memLocker{held: map[string]string{ReconcileLockKey: "other"}}
		w := NewPaymentReconciler(uc, locker, time.Minute, newTestLogger())

		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("a held lock is not an error, got %v", err)
		}
		if uc.reconciled.Load() != 0 {
			t.Errorf("reconcile must not run without the lock")
		}
		if locker.held[ReconcileLockKey] != "other" {
			t.Errorf("foreign lock must stay in place")
		}
	})

	t.Run("should surface lock backend errors", func(t *testing.T) {
		uc := &mockReconcileUC{}
		locker := &memLocker{LockErr: errors.New("redis down")}
		w := NewPaymentReconciler(uc, locker, time.Minute, newTestLogger())
		if err := w.RunOnce(context.Background()); err == nil {
			t.Fatal("expected error")
		}
		if uc.reconciled.Load() != 0 {
			t.Errorf("reconcile must not run")
		}
	})

	t.Run("should run without a locker", func(t *testing.T) {
		uc := &mockReconcileUC{}
		w := NewPaymentReconciler(uc, nil, 0, newTestLogger())
		if err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if uc.reconciled.Load() != 1 {
			t.Errorf("expected reconcile to run")
		}
	})

	t.Run("should release the lock when the pass fails", func(t *testing.T) {
		uc := &mockReconcileUC{ReconcileFunc: func(ctx context.Context) (usecase.ReconcileReport, error) {
			return usecase.ReconcileReport{}, domain.ErrOperationFailed
		}}
		locker := &memLocker{}
		w := NewPaymentReconciler(uc, locker, time.Minute, newTestLogger())
		if err := w.RunOnce(context.Background()); !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected ErrOperationFailed, got %v", err)
		}
		if _, still := locker.held[ReconcileLockKey]; still {
			t.Errorf("lock must be released after failure")
		}
	})
}

func TestLedgerAuditor_RunOnce(t *testing.T) {
	t.Run("should audit under its own lock", func(t *testing.T) {
		uc := &mockReconcileUC{AuditFunc: func(ctx context.Context) ([]model.LedgerDrift, error) {
			return []model.LedgerDrift{{SubscriptionID: "s1", TokenBalance: 10, LedgerSum: 7}}, nil
		}}
		locker := &memLocker{held: map[string]string{ReconcileLockKey: "other"}}
		a := NewLedgerAuditor(uc, locker, 0, newTestLogger())
		if err := a.RunOnce(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if uc.audited.Load() != 1 {
			t.Errorf("audit should not be blocked by the reconcile lock")
		}
	})
}

func TestScheduler(t *testing.T) {
	t.Run("should reject an invalid cron expression", func(t *testing.T) {
		s := NewScheduler(time.Second, newTestLogger())
		if err := s.Add("every tuesday-ish", NewPaymentReconciler(&mockReconcileUC{}, nil, 0, newTestLogger())); err == nil {
			t.Fatal("expected error for invalid cron expression")
		}
	})

	t.Run("should run jobs on schedule and stop", func(t *testing.T) {
		uc := &mockReconcileUC{}
		s := NewScheduler(time.Second, newTestLogger())
		if err := s.Add("@every 1s", NewPaymentReconciler(uc, nil, 0, newTestLogger())); err != nil {
			t.Fatalf("add: %v", err)
		}
		s.Start()
		deadline := time.Now().Add(3 * time.Second)
		for uc.reconciled.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
		if uc.reconciled.Load() == 0 {
			t.Fatal("expected the job to run at least once")
		}
	})

	t.Run("should recover from a panicking job", func(t *testing.T) {
		s := NewScheduler(time.Second, newTestLogger())
		uc := &mockReconcileUC{ReconcileFunc: func(ctx context.Context) (usecase.ReconcileReport, error) {
			panic("boom")
		}}
		if err := s.Add("@every 1s", NewPaymentReconciler(uc, nil, 0, newTestLogger())); err != nil {
			t.Fatalf("add: %v", err)
		}
		s.Start()
		deadline := time.Now().Add(3 * time.Second)
		for uc.reconciled.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
		if uc.reconciled.Load() == 0 {
			t.Fatal("expected the job to run")
		}
	})
}
