package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"

	"spkr/internal/submission"
	"spkr/pkg/config"
	"spkr/pkg/logger"
	"spkr/pkg/models"
	"spkr/pkg/queue"
)

var (
	ErrNotPromoted      = errors.New("submission is not a promoted post")
	ErrAlreadyPaid      = errors.New("submission is already paid for")
	ErrInvalidSignature = errors.New("webhook signature verification failed")
)

// CheckoutGateway wraps checkout session creation at the payment provider.
type CheckoutGateway interface {
	CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeGateway struct{}

// NewStripeGateway configures the global Stripe client key and returns the
// live gateway.
func NewStripeGateway(secretKey string) CheckoutGateway {
	stripe.Key = secretKey
	return &stripeGateway{}
}

func (g *stripeGateway) CreateCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

type CheckoutInfo struct {
	PaymentID   string `json:"payment_id"`
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Service interface {
	// CreateCheckout opens (or refreshes) a checkout session for a promoted
	// submission and returns the hosted payment page URL.
	CreateCheckout(ctx context.Context, submissionID string) (*CheckoutInfo, error)
	// HandleWebhook verifies, deduplicates and applies one provider event.
	// Replayed event ids are acknowledged without side effects.
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error
	GetBySubmissionID(ctx context.Context, submissionID string) (*models.Payment, error)
}

type service struct {
	repo          Repository
	subs          submission.Repository
	gateway       CheckoutGateway
	events        submission.EventPublisher
	logger        *logger.Logger
	webhookSecret string
	imagePrice    int64
	videoPrice    int64
	publicBaseURL string
}

func NewService(
	repo Repository,
	subs submission.Repository,
	gateway CheckoutGateway,
	events submission.EventPublisher,
	log *logger.Logger,
	cfg *config.Config,
) Service {
	return &service{
		repo:          repo,
		subs:          subs,
		gateway:       gateway,
		events:        events,
		logger:        log,
		webhookSecret: cfg.StripeWebhookSecret,
		imagePrice:    cfg.PromoImagePriceCents,
		videoPrice:    cfg.PromoVideoPriceCents,
		publicBaseURL: cfg.PublicBaseURL,
	}
}

func (s *service) CreateCheckout(ctx context.Context, submissionID string) (*CheckoutInfo, error) {
	sub, err := s.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Kind != models.PostKindPromoted {
		return nil, ErrNotPromoted
	}

	existing, err := s.repo.GetBySubmissionID(ctx, submissionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != models.PaymentStatusCreated && existing.Status != models.PaymentStatusFailed {
		return nil, ErrAlreadyPaid
	}

	amount := s.imagePrice
	if sub.MediaType == models.MediaTypeVideo {
		amount = s.videoPrice
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String("usd"),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Promoted %s post", sub.MediaType)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.publicBaseURL + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.publicBaseURL + "/payment/cancel"),
	}
	params.AddMetadata("submission_id", sub.ID)

	checkoutSession, err := s.gateway.CreateCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	payment := existing
	if payment == nil {
		payment = &models.Payment{
			SubmissionID:    sub.ID,
			AmountCents:     amount,
			Currency:        "usd",
			StripeSessionID: checkoutSession.ID,
			Status:          models.PaymentStatusCreated,
		}
		if err := s.repo.Create(ctx, payment); err != nil {
			return nil, err
		}
	} else {
		err := s.repo.UpdateStatus(ctx, payment.ID,
			[]models.PaymentStatus{models.PaymentStatusCreated, models.PaymentStatusFailed},
			models.PaymentStatusCreated,
			map[string]interface{}{"stripe_session_id": checkoutSession.ID})
		if err != nil {
			return nil, err
		}
		payment.StripeSessionID = checkoutSession.ID
		payment.Status = models.PaymentStatusCreated
	}

	s.logger.Info("Created checkout session %s for submission %s (%d cents)", checkoutSession.ID, sub.ID, amount)
	return &CheckoutInfo{
		PaymentID:   payment.ID,
		SessionID:   checkoutSession.ID,
		CheckoutURL: checkoutSession.URL,
		AmountCents: amount,
		Currency:    "usd",
	}, nil
}

func (s *service) GetBySubmissionID(ctx context.Context, submissionID string) (*models.Payment, error) {
	return s.repo.GetBySubmissionID(ctx, submissionID)
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	first, err := s.repo.MarkEventProcessed(ctx, "stripe", event.ID, string(event.Type))
	if err != nil {
		return err
	}
	if !first {
		s.logger.Info("Skipping replayed stripe event %s", event.ID)
		return nil
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		err = s.handleSessionCompleted(ctx, event.Data.Raw)
	case "checkout.session.expired":
		err = s.handleSessionExpired(ctx, event.Data.Raw)
	case "charge.refunded":
		err = s.handleChargeRefunded(ctx, event.Data.Raw)
	default:
		s.logger.Info("Ignoring stripe event type %s", event.Type)
		return nil
	}
	if err != nil {
		// Release the dedup claim so the provider's redelivery is not
		// mistaken for a replay.
		if unmarkErr := s.repo.UnmarkEvent(ctx, "stripe", event.ID); unmarkErr != nil {
			s.logger.Error("Failed to release webhook event %s: %v", event.ID, unmarkErr)
		}
		return err
	}
	return nil
}

func (s *service) handleSessionCompleted(ctx context.Context, raw json.RawMessage) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}

	payment, err := s.repo.GetBySessionID(ctx, sess.ID)
	if errors.Is(err, ErrNotFound) && sess.Metadata["submission_id"] != "" {
		// A refreshed checkout replaced this session id on the payment row.
		// The user may still have paid through the older session, so
		// reconcile via the submission id carried in the session metadata.
		payment, err = s.repo.GetBySubmissionID(ctx, sess.Metadata["submission_id"])
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"paid_at":           &now,
		"stripe_session_id": sess.ID,
	}
	if sess.PaymentIntent != nil {
		updates["stripe_payment_intent_id"] = sess.PaymentIntent.ID
	}
	if sess.CustomerDetails != nil {
		updates["payer_email"] = sess.CustomerDetails.Email
	}

	err = s.repo.UpdateStatus(ctx, payment.ID,
		[]models.PaymentStatus{models.PaymentStatusCreated},
		models.PaymentStatusPaid, updates)
	if errors.Is(err, ErrInvalidStatus) {
		// A previous delivery already settled this payment. That delivery
		// may have failed after the status write, before the priority flag
		// stuck, so re-assert it while the payment is still paid.
		current, getErr := s.repo.GetBySubmissionID(ctx, payment.SubmissionID)
		if getErr != nil {
			return getErr
		}
		if current.Status == models.PaymentStatusPaid {
			return s.subs.SetPriority(ctx, payment.SubmissionID, true)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.subs.SetPriority(ctx, payment.SubmissionID, true); err != nil {
		return err
	}

	s.emit(queue.SubmissionEvent{
		Kind:         queue.EventPaid,
		SubmissionID: payment.SubmissionID,
		Detail:       sess.ID,
		OccurredAt:   now,
	})
	s.logger.Info("Payment for submission %s settled via session %s", payment.SubmissionID, sess.ID)
	return nil
}

func (s *service) handleSessionExpired(ctx context.Context, raw json.RawMessage) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}

	payment, err := s.repo.GetBySessionID(ctx, sess.ID)
	if errors.Is(err, ErrNotFound) {
		// Expiry of a superseded session; the payment row already points
		// at the refreshed checkout.
		return nil
	}
	if err != nil {
		return err
	}

	err = s.repo.UpdateStatus(ctx, payment.ID,
		[]models.PaymentStatus{models.PaymentStatusCreated},
		models.PaymentStatusFailed, nil)
	if errors.Is(err, ErrInvalidStatus) {
		return nil
	}
	return err
}

func (s *service) handleChargeRefunded(ctx context.Context, raw json.RawMessage) error {
	var charge stripe.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return fmt.Errorf("decode charge: %w", err)
	}
	if charge.PaymentIntent == nil {
		return nil
	}

	payment, err := s.repo.GetByPaymentIntentID(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return err
	}

	err = s.repo.UpdateStatus(ctx, payment.ID,
		[]models.PaymentStatus{models.PaymentStatusPaid},
		models.PaymentStatusRefunded, nil)
	if errors.Is(err, ErrInvalidStatus) {
		return nil
	}
	if err != nil {
		return err
	}

	// A refund withdraws the paid priority but never touches moderation
	// or publish state.
	return s.subs.SetPriority(ctx, payment.SubmissionID, false)
}

func (s *service) emit(event queue.SubmissionEvent) {
	if err := s.events.PublishEvent(context.Background(), event); err != nil {
		s.logger.Warn("Failed to publish submission event: %v", err)
	}
}
