package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/payflow/internal/auth"
	checkoutdomain "github.com/smallbiznis/payflow/internal/checkout/domain"
	"github.com/smallbiznis/payflow/internal/config"
	creditdomain "github.com/smallbiznis/payflow/internal/credit/domain"
	"github.com/smallbiznis/payflow/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/payflow/internal/subscription/domain"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Cfg           config.Config
	Node          *snowflake.Node
	Catalog       *pricing.Catalog
	Adapters      *adapters.Registry
	Orders        orderdomain.Repository
	Subscriptions subscriptiondomain.Repository
	Credits       creditdomain.Repository
	Metrics       *metrics.Metrics `optional:"true"`
}

// Service owns the checkout initiator and the callback/webhook reconciler.
// All multi-row writes happen inside one gorm transaction.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           config.Config
	node          *snowflake.Node
	catalog       *pricing.Catalog
	adapters      *adapters.Registry
	orders        orderdomain.Repository
	subscriptions subscriptiondomain.Repository
	credits       creditdomain.Repository
	metrics       *metrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("checkout.service"),
		cfg:           p.Cfg,
		node:          p.Node,
		catalog:       p.Catalog,
		adapters:      p.Adapters,
		orders:        p.Orders,
		subscriptions: p.Subscriptions,
		credits:       p.Credits,
		metrics:       p.Metrics,
	}
}

// Checkout resolves the pricing selection, persists a pending order before
// any network call, and asks the provider for a hosted session. A provider
// failure leaves the order in the terminal "completed" state so every
// attempt stays auditable.
func (s *Service) Checkout(ctx context.Context, req checkoutdomain.CheckoutRequest, user auth.User) (*checkoutdomain.CheckoutResult, error) {
	if !user.Authenticated() {
		return nil, checkoutdomain.ErrUnauthenticated
	}

	item, err := s.catalog.Find(req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", checkoutdomain.ErrInvalidProduct, req.ProductID)
	}

	adapter, err := s.resolveAdapter(req.Provider)
	if err != nil {
		return nil, err
	}
	provider := adapter.Name()

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToLower(item.Currency)
	}

	paymentType := orderdomain.PaymentTypeOneTime
	if item.IsSubscription() {
		paymentType = orderdomain.PaymentTypeSubscription
	}

	orderNo := s.node.Generate().String()
	now := time.Now().UTC()

	paymentReq := s.buildPaymentRequest(req, item, user, provider, orderNo, currency)
	checkoutInfo, _ := json.Marshal(paymentReq)

	order := &orderdomain.Order{
		ID:               uuid.NewString(),
		OrderNo:          orderNo,
		UserID:           user.ID,
		UserEmail:        user.Email,
		Status:           orderdomain.StatusPending,
		Amount:           item.Amount,
		Currency:         currency,
		ProductID:        item.ProductID,
		ProductName:      item.ProductName,
		Description:      item.Description,
		PaymentType:      paymentType,
		PaymentInterval:  item.Interval,
		PaymentProvider:  provider,
		PaymentProductID: providerProductID(item, provider),
		CheckoutInfo:     checkoutInfo,
		CallbackURL:      s.callbackURL(req.Locale, paymentType),
		CreditsAmount:    item.Credits,
		CreditsValidDays: item.ValidDays,
		PlanName:         item.PlanName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.orders.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	session, err := adapter.CreatePayment(ctx, paymentReq)
	if err != nil {
		s.recordCheckout(ctx, provider, "failed")
		checkoutResult, _ := json.Marshal(map[string]string{"error": err.Error()})
		if updateErr := s.orders.UpdateByOrderNo(ctx, s.db, orderNo, map[string]any{
			"status":          orderdomain.StatusCompleted,
			"checkout_result": checkoutResult,
			"updated_at":      time.Now().UTC(),
		}); updateErr != nil {
			s.log.Error("failed to mark order completed after provider failure",
				zap.String("order_no", orderNo), zap.Error(updateErr))
		}
		return nil, fmt.Errorf("%w: %v", checkoutdomain.ErrProviderRequestFailed, err)
	}

	if err := s.orders.UpdateByOrderNo(ctx, s.db, orderNo, map[string]any{
		"status":             orderdomain.StatusCreated,
		"payment_session_id": session.ID,
		"checkout_url":       session.URL,
		"checkout_result":    session.Raw,
		"updated_at":         time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	s.recordCheckout(ctx, provider, "created")
	s.log.Info("checkout session created",
		zap.String("order_no", orderNo),
		zap.String("provider", provider),
		zap.String("product_id", item.ProductID),
	)

	return &checkoutdomain.CheckoutResult{
		OrderNo:     orderNo,
		SessionID:   session.ID,
		CheckoutURL: session.URL,
		Provider:    provider,
	}, nil
}

// Reconcile fetches the authoritative session state from the provider and
// applies it to the order, creating the subscription and credit rows in the
// same transaction when the payment settled. It returns the redirect URL
// the browser should land on. Terminal orders are never rewritten; the
// redirect is derived from their stored outcome.
func (s *Service) Reconcile(ctx context.Context, orderNo string, params url.Values, user auth.User) (string, error) {
	order, err := s.orders.FindByOrderNo(ctx, s.db, orderNo)
	if err != nil {
		return s.cfg.PricingURL(), err
	}
	if order == nil {
		return s.cfg.PricingURL(), checkoutdomain.ErrOrderNotFound
	}
	if user.Authenticated() && order.UserID != user.ID {
		return s.cfg.PricingURL(), checkoutdomain.ErrOwnershipMismatch
	}

	if order.Status.Terminal() {
		return s.redirectForTerminal(order), nil
	}
	if strings.TrimSpace(order.PaymentSessionID) == "" {
		return s.cfg.PricingURL(), checkoutdomain.ErrUnknownPaymentStatus
	}

	adapter, err := s.adapters.Get(order.PaymentProvider)
	if err != nil {
		return s.cfg.PricingURL(), fmt.Errorf("%w: %q", checkoutdomain.ErrProviderNotFound, order.PaymentProvider)
	}

	session, err := adapter.GetSession(ctx, paymentdomain.SessionQuery{
		SessionID: order.PaymentSessionID,
		Params:    params,
	})
	if err != nil || session == nil {
		s.recordReconciliation(ctx, order.PaymentProvider, "unknown")
		if err != nil {
			s.log.Warn("session retrieval failed",
				zap.String("order_no", orderNo), zap.Error(err))
		}
		return s.cfg.PricingURL(), checkoutdomain.ErrUnknownPaymentStatus
	}

	switch session.Status {
	case paymentdomain.StatusCompleted:
		if err := s.applyPaid(ctx, order, session); err != nil {
			return s.cfg.PricingURL(), err
		}
		s.recordReconciliation(ctx, order.PaymentProvider, string(orderdomain.StatusPaid))
		return s.successRedirect(order), nil

	case paymentdomain.StatusFailed, paymentdomain.StatusCancelled:
		if err := s.orders.UpdateByOrderNo(ctx, s.db, order.OrderNo, map[string]any{
			"status":         orderdomain.StatusFailed,
			"payment_result": session.Raw,
			"updated_at":     time.Now().UTC(),
		}); err != nil {
			return s.cfg.PricingURL(), err
		}
		s.recordReconciliation(ctx, order.PaymentProvider, string(orderdomain.StatusFailed))
		return s.cfg.PricingURL(), nil

	case paymentdomain.StatusProcessing:
		if err := s.orders.UpdateByOrderNo(ctx, s.db, order.OrderNo, map[string]any{
			"payment_result": session.Raw,
			"updated_at":     time.Now().UTC(),
		}); err != nil {
			return s.cfg.PricingURL(), err
		}
		s.recordReconciliation(ctx, order.PaymentProvider, "processing")
		return s.cfg.BillingSettingsURL(), nil

	default:
		s.recordReconciliation(ctx, order.PaymentProvider, "unknown")
		return s.cfg.PricingURL(), checkoutdomain.ErrUnknownPaymentStatus
	}
}

// ReconcileWebhook runs the callback reconciliation for a verified webhook
// event. Events without an order reference are ignored; duplicate
// deliveries are safe because terminal orders are never rewritten.
func (s *Service) ReconcileWebhook(ctx context.Context, event *paymentdomain.WebhookEvent) error {
	if event == nil {
		return paymentdomain.ErrEventIgnored
	}

	orderNo := strings.TrimSpace(event.OrderNo)
	if orderNo == "" {
		s.log.Debug("webhook event without order reference",
			zap.String("provider", event.Provider), zap.String("event_type", event.Type))
		return paymentdomain.ErrEventIgnored
	}

	params := url.Values{}
	if event.SessionID != "" {
		params.Set("session_id", event.SessionID)
	}

	_, err := s.Reconcile(ctx, orderNo, params, auth.User{})
	if errors.Is(err, checkoutdomain.ErrUnknownPaymentStatus) {
		// The provider has not settled yet; the next delivery or the
		// callback will finish the job.
		return nil
	}
	return err
}

func (s *Service) applyPaid(ctx context.Context, order *orderdomain.Order, session *paymentdomain.Session) error {
	now := time.Now().UTC()

	fields := map[string]any{
		"status":         orderdomain.StatusPaid,
		"payment_result": session.Raw,
		"updated_at":     now,
	}
	paidAt := now
	if session.Payment != nil {
		if session.Payment.Amount > 0 {
			fields["payment_amount"] = session.Payment.Amount
		}
		if session.Payment.Currency != "" {
			fields["payment_currency"] = strings.ToLower(session.Payment.Currency)
		}
		if session.Payment.Email != "" {
			fields["payment_email"] = session.Payment.Email
		}
		if !session.Payment.PaidAt.IsZero() {
			paidAt = session.Payment.PaidAt
		}
	}
	fields["paid_at"] = paidAt
	if session.Subscription != nil {
		fields["subscription_id"] = session.Subscription.ID
		fields["subscription_result"] = session.Raw
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.UpdateByOrderNo(ctx, tx, order.OrderNo, fields); err != nil {
			return err
		}

		if session.Subscription != nil && session.Subscription.ID != "" {
			if err := s.ensureSubscription(ctx, tx, order, session); err != nil {
				return err
			}
		}

		if order.CreditsAmount > 0 {
			if err := s.grantCredits(ctx, tx, order, paidAt); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *Service) ensureSubscription(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, session *paymentdomain.Session) error {
	existing, err := s.subscriptions.FindByProviderSubscriptionID(ctx, tx, order.PaymentProvider, session.Subscription.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	email := order.UserEmail
	if session.Payment != nil && session.Payment.Email != "" {
		email = session.Payment.Email
	}

	subscription := &subscriptiondomain.Subscription{
		ID:                 uuid.NewString(),
		SubscriptionNo:     s.node.Generate().String(),
		UserID:             order.UserID,
		UserEmail:          email,
		Status:             subscriptiondomain.StatusActive,
		PaymentProvider:    order.PaymentProvider,
		SubscriptionID:     session.Subscription.ID,
		SubscriptionResult: session.Raw,
		ProductID:          order.ProductID,
		Description:        order.Description,
		PlanName:           order.PlanName,
		Amount:             order.Amount,
		Currency:           order.Currency,
		Interval:           order.PaymentInterval,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !session.Subscription.CurrentPeriodStart.IsZero() {
		start := session.Subscription.CurrentPeriodStart
		subscription.CurrentPeriodStart = &start
	}
	if !session.Subscription.CurrentPeriodEnd.IsZero() {
		end := session.Subscription.CurrentPeriodEnd
		subscription.CurrentPeriodEnd = &end
	}

	inserted, err := s.subscriptions.Insert(ctx, tx, subscription)
	if err != nil {
		return err
	}
	if !inserted {
		// A concurrent reconciliation won the insert. Fine.
		return nil
	}

	s.log.Info("subscription created",
		zap.String("order_no", order.OrderNo),
		zap.String("provider", order.PaymentProvider),
		zap.String("subscription_id", session.Subscription.ID),
	)
	return nil
}

func (s *Service) grantCredits(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, paidAt time.Time) error {
	credit := &creditdomain.Credit{
		ID:        uuid.NewString(),
		UserID:    order.UserID,
		OrderNo:   order.OrderNo,
		Amount:    order.CreditsAmount,
		ValidDays: order.CreditsValidDays,
		CreatedAt: time.Now().UTC(),
	}
	if order.CreditsValidDays > 0 {
		expiredAt := paidAt.Add(time.Duration(order.CreditsValidDays) * 24 * time.Hour)
		credit.ExpiredAt = &expiredAt
	}

	inserted, err := s.credits.Insert(ctx, tx, credit)
	if err != nil {
		return err
	}
	if inserted {
		s.log.Info("credits granted",
			zap.String("order_no", order.OrderNo),
			zap.Int64("amount", order.CreditsAmount),
		)
	}
	return nil
}

func (s *Service) resolveAdapter(provider string) (paymentdomain.Adapter, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return s.adapters.Default(), nil
	}
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", checkoutdomain.ErrProviderUnavailable, provider)
	}
	return adapter, nil
}

func (s *Service) buildPaymentRequest(req checkoutdomain.CheckoutRequest, item pricing.Item, user auth.User, provider, orderNo, currency string) paymentdomain.CheckoutRequest {
	metadata := map[string]string{}
	for key, value := range req.Metadata {
		metadata[key] = value
	}
	if id := item.ProviderProductIDs["creem"]; id != "" {
		metadata["creem_product_id"] = id
	}
	if id := item.ProviderProductIDs["paypal"]; id != "" {
		metadata["paypal_plan_id"] = id
	}

	out := paymentdomain.CheckoutRequest{
		OrderNo:     orderNo,
		Description: item.Description,
		Type:        "one-time",
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Price:       paymentdomain.Price{Amount: item.Amount, Currency: currency},
		Customer:    paymentdomain.Customer{Name: user.Name, Email: user.Email},
		Metadata:    metadata,
		SuccessURL:  s.cfg.AppURL + "/api/checkout/callback?order_no=" + orderNo,
		CancelURL:   s.cfg.PricingURL(),
	}

	if item.IsSubscription() {
		out.Type = "subscription"
		out.Plan = &paymentdomain.Plan{
			Name:            item.PlanName,
			Interval:        item.Interval,
			IntervalCount:   item.IntervalCount,
			TrialPeriodDays: item.TrialDays,
			Price:           paymentdomain.Price{Amount: item.Amount, Currency: currency},
		}
	}

	return out
}

// callbackURL is the post-payment destination captured at checkout time:
// billing settings for subscriptions, payment history for one-time
// purchases, prefixed with the locale when it is not the default.
func (s *Service) callbackURL(locale, paymentType string) string {
	path := "/settings/payments"
	if paymentType == orderdomain.PaymentTypeSubscription {
		path = "/settings/billing"
	}

	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale != "" && locale != strings.ToLower(s.cfg.DefaultLocale) {
		path = "/" + locale + path
	}
	return s.cfg.AppURL + path
}

func (s *Service) successRedirect(order *orderdomain.Order) string {
	if strings.TrimSpace(order.CallbackURL) != "" {
		return order.CallbackURL
	}
	return s.cfg.AppURL
}

func (s *Service) redirectForTerminal(order *orderdomain.Order) string {
	if order.Status == orderdomain.StatusPaid {
		return s.successRedirect(order)
	}
	return s.cfg.PricingURL()
}

func (s *Service) recordCheckout(ctx context.Context, provider, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCheckout(ctx, provider, outcome)
	}
}

func (s *Service) recordReconciliation(ctx context.Context, provider, status string) {
	if s.metrics != nil {
		s.metrics.RecordReconciliation(ctx, provider, status)
	}
}

func providerProductID(item pricing.Item, provider string) string {
	if id := item.ProviderProductIDs[provider]; id != "" {
		return id
	}
	return item.ProductID
}
