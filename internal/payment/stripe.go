package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/joao-fontenele/storefront/internal/domain"
)

const signatureTolerance = 5 * time.Minute

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the Stripe API base URL; empty uses the live API.
	APIURL     string
	HTTPClient *http.Client
}

type Stripe struct {
	sessions      *session.Client
	webhookSecret string
}

func NewStripe(cfg StripeConfig) *Stripe {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	return &Stripe{
		sessions: &session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
		webhookSecret: cfg.WebhookSecret,
	}
}

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		Metadata: map[string]string{
			MetadataOrderID: req.OrderID,
			MetadataUserID:  req.UserID,
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				MetadataOrderID: req.OrderID,
				MetadataUserID:  req.UserID,
			},
		},
	}
	params.Context = ctx

	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.ProductName),
				},
				UnitAmount: stripe.Int64(MinorUnits(line.ProductPrice)),
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}

	displayName := "Frete grátis"
	if req.ShippingFee.IsPositive() {
		displayName = "Frete"
	}
	params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
		ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
			DisplayName: stripe.String(displayName),
			Type:        stripe.String("fixed_amount"),
			FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
				Amount:   stripe.Int64(MinorUnits(req.ShippingFee)),
				Currency: stripe.String(req.Currency),
			},
		},
	}}

	sess, err := s.sessions.New(params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPaymentProvider, ctxErr)
		}
		return nil, fmt.Errorf("%w: create checkout session: %w", domain.ErrPaymentProvider, err)
	}
	if sess.URL == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no url", domain.ErrPaymentProvider, sess.ID)
	}

	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header before looking at the
// payload. Nothing is decoded from an unverified body.
func (s *Stripe) ParseEvent(payload []byte, signatureHeader string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                signatureTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSignatureInvalid, err)
	}

	switch string(event.Type) {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := decodeObject(event, &sess); err != nil {
			return nil, err
		}
		completed := CheckoutCompleted{
			EventID:   event.ID,
			SessionID: sess.ID,
			OrderID:   sess.Metadata[MetadataOrderID],
			UserID:    sess.Metadata[MetadataUserID],
		}
		if sess.PaymentIntent != nil {
			completed.PaymentIntentID = sess.PaymentIntent.ID
		}
		return completed, nil

	case EventPaymentSucceeded:
		var intent stripe.PaymentIntent
		if err := decodeObject(event, &intent); err != nil {
			return nil, err
		}
		return PaymentSucceeded{EventID: event.ID, PaymentIntentID: intent.ID}, nil

	case EventPaymentFailed:
		var intent stripe.PaymentIntent
		if err := decodeObject(event, &intent); err != nil {
			return nil, err
		}
		failed := PaymentFailed{EventID: event.ID, PaymentIntentID: intent.ID}
		if intent.LastPaymentError != nil {
			failed.Reason = intent.LastPaymentError.Msg
		}
		return failed, nil

	default:
		return Unhandled{EventID: event.ID, Type: string(event.Type)}, nil
	}
}

var ErrMalformedEvent = errors.New("malformed event payload")

func decodeObject(event stripe.Event, dst any) error {
	if event.Data == nil {
		return fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.Type)
	}
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedEvent, event.Type, err)
	}
	return nil
}
