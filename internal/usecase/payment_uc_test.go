//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"paygate/internal/domain"
	"paygate/internal/domain/model"
	"paygate/internal/domain/ports/adapter"
	"paygate/internal/infra/i18n"
	"paygate/internal/usecase"
)

func newTranslator(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, i18n.DefaultLang)
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	return tr
}

type paymentFixture struct {
	credit  *creditFixture
	gateway *MockVerifyingGateway
	uc      usecase.PaymentUseCase
}

func newPaymentFixture(t *testing.T, opts usecase.PaymentOptions) *paymentFixture {
	t.Helper()
	cf := newCreditFixture(t)
	gw := &MockVerifyingGateway{MockGateway: MockGateway{Provider: model.ProviderSama}}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	uc := usecase.NewPaymentUseCase([]adapter.PaymentGateway{gw}, cf.attempts, cf.uc, newTranslator(t), opts, newTestLogger())
	return &paymentFixture{credit: cf, gateway: gw, uc: uc}
}

func TestPaymentUseCase_Initiate(t *testing.T) {
	ctx := context.Background()
	cmd := usecase.InitiateCommand{
		Provider:    model.ProviderSama,
		Reference:   "R1",
		AmountMinor: 3000,
		UserID:      "user-1",
		ServiceType: "sante",
		Tokens:      int64Ptr(3),
		Payer:       adapter.Payer{Phone: "+22670000000"},
	}

	t.Run("should record a pending attempt with the gateway payload", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{})
		res, err := f.uc.Initiate(ctx, cmd)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Initiated {
			t.Error("expected initiated result")
		}
		a := f.credit.attempts.Get("R1")
		if a == nil || a.Status != model.PaymentStatusPending || a.Method != model.ProviderSama || a.Currency != "XOF" {
			t.Fatalf("unexpected attempt: %+v", a)
		}
		if a.GatewayPayload["payment_url"] == nil {
			t.Error("expected gateway payload to be stored")
		}
		if got := f.gateway.Calls[0].Description; got != "Achat de 3 jeton(s) sante" {
			t.Errorf("unexpected default description %q", got)
		}
	})

	t.Run("should not credit tokens on initiation", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{})
		f.credit.addSubscription(t, "sub-1", "user-1", "sante")
		_, _ = f.uc.Initiate(ctx, cmd)
		if f.credit.subs.Balance("sub-1") != 0 || f.credit.txns.Len() != 0 {
			t.Error("expected no credit before confirmation")
		}
	})

	t.Run("should succeed even when the attempt cannot be recorded", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{})
		f.credit.attempts.RecordErr = domain.ErrOperationFailed
		if _, err := f.uc.Initiate(ctx, cmd); err != nil {
			t.Fatalf("expected record failure to be swallowed, got %v", err)
		}
	})

	t.Run("should retry connection failures up to the configured attempts", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{RetryAttempts: 2})
		f.gateway.InitiateFunc = func(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
			return adapter.InitiationResult{}, &domain.NetworkError{Provider: "sama", Op: "pay", Err: errors.New("connection refused")}
		}
		_, err := f.uc.Initiate(ctx, cmd)
		var ne *domain.NetworkError
		if !errors.As(err, &ne) {
			t.Fatalf("expected NetworkError, got %v", err)
		}
		if f.gateway.CallCount() != 3 {
			t.Errorf("expected 3 calls, got %d", f.gateway.CallCount())
		}
		if f.credit.attempts.Len() != 0 {
			t.Error("expected no attempt for a request that never reached the provider")
		}
	})

	t.Run("should recover when a retry succeeds", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{RetryAttempts: 2})
		calls := 0
		f.gateway.InitiateFunc = func(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
			calls++
			if calls == 1 {
				return adapter.InitiationResult{}, &domain.NetworkError{Provider: "sama", Op: "pay", Err: errors.New("reset")}
			}
			return adapter.InitiationResult{Provider: model.ProviderSama, Reference: req.Reference, Initiated: true}, nil
		}
		if _, err := f.uc.Initiate(ctx, cmd); err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if f.credit.attempts.Get("R1") == nil {
			t.Error("expected attempt after a successful retry")
		}
	})

	t.Run("should never retry a provider rejection", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{RetryAttempts: 3})
		f.gateway.InitiateFunc = func(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
			return adapter.InitiationResult{}, &domain.GatewayRequestError{Provider: "sama", Code: "1013", Message: "Solde insuffisant"}
		}
		_, err := f.uc.Initiate(ctx, cmd)
		var reqErr *domain.GatewayRequestError
		if !errors.As(err, &reqErr) || reqErr.Code != "1013" {
			t.Fatalf("expected the provider rejection, got %v", err)
		}
		if f.gateway.CallCount() != 1 {
			t.Errorf("expected 1 call, got %d", f.gateway.CallCount())
		}
	})

	t.Run("should not retry a timeout but keep the attempt for reconciliation", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{RetryAttempts: 3})
		f.gateway.InitiateFunc = func(ctx context.Context, req adapter.InitiationRequest) (adapter.InitiationResult, error) {
			return adapter.InitiationResult{}, &domain.NetworkError{Provider: "sama", Op: "pay", Timeout: true, Err: context.DeadlineExceeded}
		}
		if _, err := f.uc.Initiate(ctx, cmd); err == nil {
			t.Fatal("expected an error")
		}
		if f.gateway.CallCount() != 1 {
			t.Errorf("expected 1 call, got %d", f.gateway.CallCount())
		}
		if a := f.credit.attempts.Get("R1"); a == nil || !a.IsPending() {
			t.Errorf("expected a pending attempt, got %+v", a)
		}
	})

	t.Run("should let the gateway issue a missing reference", func(t *testing.T) {
		cf := newCreditFixture(t)
		gw := &MockIssuingGateway{MockGateway: MockGateway{Provider: model.ProviderCinetPay}}
		uc := usecase.NewPaymentUseCase([]adapter.PaymentGateway{gw}, cf.attempts, cf.uc, nil, usecase.PaymentOptions{}, newTestLogger())

		noRef := cmd
		noRef.Provider = model.ProviderCinetPay
		noRef.Reference = ""
		res, err := uc.Initiate(ctx, noRef)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(res.Reference, "TOKENS_sante_user-1_") {
			t.Fatalf("unexpected reference %q", res.Reference)
		}
		if a := cf.attempts.Get(res.Reference); a == nil || a.UserID != "user-1" {
			t.Errorf("expected the attempt under the issued reference, got %+v", a)
		}

		noRef.UserID = ""
		if _, err := uc.Initiate(ctx, noRef); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument without an identity, got %v", err)
		}
	})

	t.Run("should reject unknown providers and invalid input", func(t *testing.T) {
		f := newPaymentFixture(t, usecase.PaymentOptions{})
		bad := cmd
		bad.Provider = model.ProviderOrange
		if _, err := f.uc.Initiate(ctx, bad); !errors.Is(err, domain.ErrUnknownProvider) {
			t.Errorf("expected ErrUnknownProvider, got %v", err)
		}
		bad = cmd
		bad.AmountMinor = 0
		if _, err := f.uc.Initiate(ctx, bad); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		bad = cmd
		bad.Reference = "  "
		if _, err := f.uc.Initiate(ctx, bad); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaymentUseCase_Verify(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, creditOnVerify bool, status model.VerifyStatus) *paymentFixture {
		f := newPaymentFixture(t, usecase.PaymentOptions{CreditOnVerify: creditOnVerify})
		f.credit.addSubscription(t, "sub-1", "user-1", "sante")
		f.credit.addPendingAttempt(t, "R1", "user-1", "sante", 3000, model.ProviderSama)
		f.gateway.VerifyFunc = func(ctx context.Context, reference string) (model.VerifyStatus, error) {
			return status, nil
		}
		return f
	}

	t.Run("should credit a verified payment when enabled", func(t *testing.T) {
		f := setup(t, true, model.VerifyStatusCompleted)
		status, err := f.uc.Verify(ctx, model.ProviderSama, "R1")
		if err != nil || status != model.VerifyStatusCompleted {
			t.Fatalf("unexpected result %s, %v", status, err)
		}
		if got := f.credit.subs.Balance("sub-1"); got != 3 {
			t.Errorf("expected balance 3, got %d", got)
		}
		// a webhook arriving afterwards must not credit again
		res, _ := f.credit.uc.Credit(ctx, model.CreditInput{Reference: "R1", AmountMinor: 3000, Source: model.CreditSourceWebhook})
		if res.Reason != model.SkipAlreadyProcessed {
			t.Errorf("expected late webhook to be skipped, got %+v", res)
		}
	})

	t.Run("should only report status when crediting on verify is disabled", func(t *testing.T) {
		f := setup(t, false, model.VerifyStatusCompleted)
		if _, err := f.uc.Verify(ctx, model.ProviderSama, "R1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got := f.credit.subs.Balance("sub-1"); got != 0 {
			t.Errorf("expected no credit, got %d", got)
		}
	})

	t.Run("should mark the attempt failed", func(t *testing.T) {
		f := setup(t, true, model.VerifyStatusFailed)
		_, _ = f.uc.Verify(ctx, model.ProviderSama, "R1")
		if a := f.credit.attempts.Get("R1"); a.Status != model.PaymentStatusFailed {
			t.Errorf("expected failed attempt, got %s", a.Status)
		}
	})

	t.Run("should leave pending attempts untouched", func(t *testing.T) {
		f := setup(t, true, model.VerifyStatusPending)
		_, _ = f.uc.Verify(ctx, model.ProviderSama, "R1")
		if a := f.credit.attempts.Get("R1"); !a.IsPending() {
			t.Errorf("expected pending attempt, got %s", a.Status)
		}
	})

	t.Run("should keep the attempt creditable when the status query errors", func(t *testing.T) {
		f := setup(t, true, model.VerifyStatusPending)
		f.gateway.VerifyFunc = func(ctx context.Context, reference string) (model.VerifyStatus, error) {
			return "", &domain.GatewayRequestError{Provider: "sama", Message: "unreadable transaction status"}
		}
		if _, err := f.uc.Verify(ctx, model.ProviderSama, "R1"); err == nil {
			t.Fatal("expected the status error to surface")
		}
		if a := f.credit.attempts.Get("R1"); !a.IsPending() {
			t.Fatalf("expected pending attempt, got %s", a.Status)
		}
		res, _ := f.credit.uc.Credit(ctx, model.CreditInput{Reference: "R1", AmountMinor: 3000, Source: model.CreditSourceWebhook})
		if !res.IsCredited() {
			t.Errorf("expected a later webhook to credit, got %+v", res)
		}
	})

	t.Run("should report providers without a status query", func(t *testing.T) {
		cf := newCreditFixture(t)
		plain := &MockGateway{Provider: model.ProviderOrange}
		uc := usecase.NewPaymentUseCase([]adapter.PaymentGateway{plain}, cf.attempts, cf.uc, nil, usecase.PaymentOptions{}, newTestLogger())
		if _, err := uc.Verify(ctx, model.ProviderOrange, "R1"); !errors.Is(err, domain.ErrVerifyNotSupported) {
			t.Errorf("expected ErrVerifyNotSupported, got %v", err)
		}
	})
}

func TestPaymentUseCase_Providers(t *testing.T) {
	cf := newCreditFixture(t)
	uc := usecase.NewPaymentUseCase([]adapter.PaymentGateway{
		&MockGateway{Provider: model.ProviderSama},
		&MockGateway{Provider: model.ProviderCinetPay},
	}, cf.attempts, cf.uc, nil, usecase.PaymentOptions{}, newTestLogger())
	got := uc.Providers()
	if len(got) != 2 || got[0] != model.ProviderCinetPay || got[1] != model.ProviderSama {
		t.Errorf("unexpected providers %v", got)
	}

	t.Run("should list only providers with a status query", func(t *testing.T) {
		uc := usecase.NewPaymentUseCase([]adapter.PaymentGateway{
			&MockGateway{Provider: model.ProviderOrange},
			&MockVerifyingGateway{MockGateway: MockGateway{Provider: model.ProviderSama}},
		}, cf.attempts, cf.uc, nil, usecase.PaymentOptions{}, newTestLogger())
		got := uc.VerifiableProviders()
		if len(got) != 1 || got[0] != model.ProviderSama {
			t.Errorf("expected only sama, got %v", got)
		}
	})
}
