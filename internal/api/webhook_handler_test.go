package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/HeartyTjan/bukafresh-store/internal/app"
	"github.com/HeartyTjan/bukafresh-store/internal/domain"
	"github.com/HeartyTjan/bukafresh-store/internal/store"
	"github.com/HeartyTjan/bukafresh-store/pkg/rabbitmq"
)

type webhookRepoStub struct {
	store.Repository

	resolveErr     error
	resolved       *domain.Payment
	byReference    *domain.Payment
	byReferenceErr error
	resolveCalled  bool
}

func (s *webhookRepoStub) ResolvePayment(ctx context.Context, reference string, succeeded bool, responseSummary string, failureReason *string) (*domain.Payment, error) {
	s.resolveCalled = true
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.resolved, nil
}

func (s *webhookRepoStub) FindPaymentByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	if s.byReferenceErr != nil {
		return nil, s.byReferenceErr
	}
	return s.byReference, nil
}

func (s *webhookRepoStub) FindSubscriptionByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return nil, store.ErrSubscriptionNotFound
}

func newWebhookHandler(repo store.Repository, secret string) *WebhookHandler {
	service := app.NewService(repo, nil, &rabbitmq.EventProducerFallback{})
	return NewWebhookHandler(service, secret)
}

func postWebhook(t *testing.T, handler *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/onepipe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-OnePipe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_MalformedJSONReturns400(t *testing.T) {
	handler := newWebhookHandler(&webhookRepoStub{}, "")

	rec := postWebhook(t, handler, []byte(`{not json`), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestWebhook_MissingStatusReturns400(t *testing.T) {
	repo := &webhookRepoStub{}
	handler := newWebhookHandler(repo, "")

	body := []byte(`{"details":{"transaction_ref":"PAY_AAAA000011112222"}}`)
	rec := postWebhook(t, handler, body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a payload without status, got %d", rec.Code)
	}
	if repo.resolveCalled {
		t.Fatal("a payload without status must not resolve any payment")
	}
}

func TestWebhook_MissingTransactionRefReturns400(t *testing.T) {
	repo := &webhookRepoStub{}
	handler := newWebhookHandler(repo, "")

	body := []byte(`{"details":{"status":"Successful"}}`)
	rec := postWebhook(t, handler, body, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a payload without transaction_ref, got %d", rec.Code)
	}
	if repo.resolveCalled {
		t.Fatal("a payload without transaction_ref must not touch any payment")
	}
}

func TestWebhook_FailedPaymentStillReturns200(t *testing.T) {
	repo := &webhookRepoStub{
		resolved: &domain.Payment{Status: domain.PaymentFailed, PaymentReference: "PAY_AAAA000011112222"},
	}
	handler := newWebhookHandler(repo, "")

	body := []byte(`{"details":{"status":"Failed","transaction_ref":"PAY_AAAA000011112222"}}`)
	rec := postWebhook(t, handler, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !repo.resolveCalled {
		t.Fatal("expected the payment to be resolved")
	}
}

func TestWebhook_DuplicateDeliveryReturns200(t *testing.T) {
	repo := &webhookRepoStub{
		resolveErr:  store.ErrPaymentAlreadyResolved,
		byReference: &domain.Payment{Status: domain.PaymentPaid, PaymentReference: "PAY_BBBB000011112222"},
	}
	handler := newWebhookHandler(repo, "")

	body := []byte(`{"details":{"status":"Successful","transaction_ref":"PAY_BBBB000011112222"}}`)
	rec := postWebhook(t, handler, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a duplicate delivery, got %d", rec.Code)
	}
}

func TestWebhook_UnknownReferenceReturns200(t *testing.T) {
	repo := &webhookRepoStub{
		resolveErr:     store.ErrPaymentAlreadyResolved,
		byReferenceErr: store.ErrPaymentNotFound,
	}
	handler := newWebhookHandler(repo, "")

	body := []byte(`{"details":{"status":"Successful","transaction_ref":"PAY_UNKNOWN000000000"}}`)
	rec := postWebhook(t, handler, body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unknown reference, got %d", rec.Code)
	}
}

func TestWebhook_SignatureVerification(t *testing.T) {
	secret := "whsec_test"
	repo := &webhookRepoStub{
		resolved: &domain.Payment{Status: domain.PaymentFailed, PaymentReference: "PAY_CCCC000011112222"},
	}
	handler := newWebhookHandler(repo, secret)

	body := []byte(`{"details":{"status":"Failed","transaction_ref":"PAY_CCCC000011112222"}}`)

	t.Run("missing signature is rejected", func(t *testing.T) {
		rec := postWebhook(t, handler, body, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong signature is rejected", func(t *testing.T) {
		rec := postWebhook(t, handler, body, "deadbeef")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid signature is accepted", func(t *testing.T) {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		rec := postWebhook(t, handler, body, hex.EncodeToString(mac.Sum(nil)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}
