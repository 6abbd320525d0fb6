package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/ledger"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/store"
)

// EventCheckoutCompleted is the only event type that moves money. All
// other event types are acknowledged and dropped.
const EventCheckoutCompleted = "checkout.session.completed"

// CheckoutSession is the payment event payload. Customer and payment
// intent arrive as either a bare id string or an expanded object.
type CheckoutSession struct {
	ID              string            `json:"id"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	PaymentStatus   string            `json:"payment_status"`
	Status          string            `json:"status"`
	Metadata        map[string]string `json:"metadata"`
	ClientReference string            `json:"client_reference_id"`
	Customer        IDRef             `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentIntent IDRef `json:"payment_intent"`
}

// IDRef accepts both "cus_123" and {"id": "cus_123"}.
type IDRef struct {
	ID string
}

func (r *IDRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.ID = s
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		r.ID = ""
		return nil
	}
	r.ID = obj.ID
	return nil
}

// Ingester applies verified payment events to the ledger.
type Ingester struct {
	store    store.Store
	ledger   *ledger.Ledger
	currency string
	now      func() time.Time
}

// NewIngester creates an ingester. currency is the only accepted checkout
// currency; empty defaults to usd.
func NewIngester(st store.Store, led *ledger.Ledger, currency string) *Ingester {
	if currency == "" {
		currency = "usd"
	}
	return &Ingester{
		store:    st,
		ledger:   led,
		currency: strings.ToLower(currency),
		now:      time.Now,
	}
}

// Process applies one verified event. Events that fail business filters
// (wrong type, unpaid, zero amount, no caller identity, foreign currency)
// are acknowledged without side effects: the provider must not redeliver
// them. Only infrastructure failures return an error.
func (i *Ingester) Process(ctx context.Context, event *Event) error {
	log := zap.L().With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if event.Type != EventCheckoutCompleted {
		return nil
	}

	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		log.Warn("webhook: checkout payload undecodable", zap.Error(err))
		return nil
	}

	callerID := callerIDFrom(session)
	if callerID == "" {
		log.Warn("webhook: checkout session missing caller identity", zap.String("session_id", session.ID))
		return nil
	}
	if session.AmountTotal <= 0 {
		log.Warn("webhook: checkout session amount missing or zero", zap.String("session_id", session.ID))
		return nil
	}
	if status := normalizeStatus(session.PaymentStatus); status != "" && status != "paid" {
		log.Warn("webhook: ignoring unpaid checkout session", zap.String("session_id", session.ID), zap.String("payment_status", status))
		return nil
	}
	if status := normalizeStatus(session.Status); status != "" && status != "complete" {
		log.Warn("webhook: checkout session not complete", zap.String("session_id", session.ID), zap.String("status", status))
		return nil
	}
	if currency := normalizeStatus(session.Currency); currency != "" && currency != i.currency {
		log.Warn("webhook: ignoring foreign-currency checkout session", zap.String("session_id", session.ID), zap.String("currency", currency))
		return nil
	}

	// Idempotency. A marker row means a previous delivery already
	// credited this event.
	existing, err := i.store.GetWebhookEvent(ctx, event.ID)
	if err != nil {
		return eris.Wrap(err, "webhook: check event marker")
	}
	if existing != nil {
		return nil
	}

	credit, err := i.ledger.Credit(ctx, callerID, session.AmountTotal, map[string]any{
		"eventId":          event.ID,
		"sessionId":        session.ID,
		"customerId":       session.Customer.ID,
		"paymentIntentId":  session.PaymentIntent.ID,
		"amountTotalCents": session.AmountTotal,
		"currency":         session.Currency,
		"paymentStatus":    session.PaymentStatus,
		"checkoutStatus":   session.Status,
	})
	if err != nil {
		return eris.Wrap(err, "webhook: credit balance")
	}

	profile := store.AccountProfile{
		CustomerID:    session.Customer.ID,
		CustomerEmail: customerEmailFrom(session),
	}
	if profile.CustomerID != "" || profile.CustomerEmail != "" {
		if err := i.store.MergeAccountProfile(ctx, callerID, profile); err != nil {
			return eris.Wrap(err, "webhook: merge account profile")
		}
	}

	// The credit and the marker are separate writes. A crash between
	// them can double-credit on redelivery; the transaction metadata
	// carries the event id so the audit log exposes it.
	if err := i.store.PutWebhookEvent(ctx, model.WebhookEvent{
		EventID:     event.ID,
		Type:        event.Type,
		SessionID:   session.ID,
		CallerID:    callerID,
		AmountTotal: session.AmountTotal,
		Currency:    session.Currency,
		ProcessedAt: i.now().UTC(),
	}); err != nil {
		return eris.Wrap(err, "webhook: write event marker")
	}

	log.Info("webhook: checkout credited",
		zap.String("caller_id", callerID),
		zap.Int64("amount_cents", session.AmountTotal),
		zap.Int64("credited_cents", credit.CreditedCents),
	)
	return nil
}

func callerIDFrom(session CheckoutSession) string {
	if id := strings.TrimSpace(session.Metadata["userId"]); id != "" {
		return id
	}
	return strings.TrimSpace(session.ClientReference)
}

func customerEmailFrom(session CheckoutSession) string {
	if session.CustomerDetails != nil {
		if email := strings.TrimSpace(session.CustomerDetails.Email); email != "" {
			return email
		}
	}
	return strings.TrimSpace(session.CustomerEmail)
}

func normalizeStatus(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
