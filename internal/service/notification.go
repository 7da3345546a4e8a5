package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/repository"

	"github.com/sirupsen/logrus"
)

// TrackingClient registers push notification trackings with the provider.
type TrackingClient interface {
	RegisterTracking(ctx context.Context, apiKey string, trackings []keepa.TrackingRequest, listName string) (*keepa.TrackingResult, error)
}

// NotificationService registers trackings with the provider and records the
// push events it sends back.
type NotificationService struct {
	client        TrackingClient
	credentials   repository.CredentialRepository
	notifications repository.NotificationRepository
	callLogs      repository.CallLogRepository
	now           func() time.Time
	log           *logrus.Entry
}

// NewNotificationService creates a new notification service.
func NewNotificationService(
	client TrackingClient,
	credentials repository.CredentialRepository,
	notifications repository.NotificationRepository,
	callLogs repository.CallLogRepository,
) *NotificationService {
	return &NotificationService{
		client:        client,
		credentials:   credentials,
		notifications: notifications,
		callLogs:      callLogs,
		now:           time.Now,
		log:           logrus.WithField("component", "NotificationService"),
	}
}

// TrackInput describes a tracking registration.
type TrackInput struct {
	Identifiers         []string
	Marketplace         model.Marketplace
	UpdateIntervalHours int
	ListName            string
}

// Track registers identifiers for push notifications and makes sure each one
// has a store product to attach incoming events to.
func (s *NotificationService) Track(ctx context.Context, in TrackInput) (*keepa.TrackingResult, error) {
	if in.Marketplace == "" {
		in.Marketplace = model.MarketplaceUS
	}
	domain, ok := keepa.DomainFor(in.Marketplace)
	if !ok {
		return nil, pricing.InvalidConfig("unknown marketplace %q", in.Marketplace)
	}

	cred, err := s.credentials.ActiveCredential(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.DataProviderUnavailable("no active Keepa API key configured")
		}
		return nil, fmt.Errorf("failed to load provider credential: %w", err)
	}

	identifiers := make([]string, 0, len(in.Identifiers))
	trackings := make([]keepa.TrackingRequest, 0, len(in.Identifiers))
	for _, id := range in.Identifiers {
		id = NormalizeIdentifier(id)
		if id == "" {
			continue
		}
		identifiers = append(identifiers, id)
		trackings = append(trackings, keepa.NewTrackingRequest(id, domain, in.UpdateIntervalHours, in.ListName))
	}

	start := time.Now()
	result, err := s.client.RegisterTracking(ctx, cred.APIKey, trackings, in.ListName)
	s.recordCall(ctx, identifiers, time.Since(start), err)
	if err != nil {
		return nil, pricing.DataProviderError(strings.Join(identifiers, ","), err)
	}

	for _, id := range identifiers {
		if _, err := s.notifications.EnsureStoreProduct(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to register store product %s: %w", id, err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"count":       len(identifiers),
		"marketplace": in.Marketplace,
		"tokens_left": result.TokensLeft,
	}).Info("trackings registered")
	return result, nil
}

func (s *NotificationService) recordCall(ctx context.Context, identifiers []string, elapsed time.Duration, callErr error) {
	entry := &model.ProviderCallLog{
		Endpoint:        "tracking",
		RequestParams:   "type=add&asin=" + strings.Join(identifiers, ","),
		ResponseStatus:  200,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if callErr != nil {
		entry.ResponseStatus = 500
		var statusErr *keepa.StatusError
		if errors.As(callErr, &statusErr) {
			entry.ResponseStatus = statusErr.StatusCode
		}
		entry.ErrorMessage = callErr.Error()
	}
	if err := s.callLogs.InsertCallLog(ctx, entry); err != nil {
		s.log.WithError(err).Warn("failed to write call log")
	}
}

// RecordEvent stores one push event. The payload is kept as received; the
// identifier, marketplace and event type are read from whichever of their
// alternative keys is present. Events for unknown identifiers are stored
// without a store product.
func (s *NotificationService) RecordEvent(ctx context.Context, payload json.RawMessage) (*model.ProviderNotification, error) {
	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			fields = map[string]any{}
		}
	}
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage("{}")
	}

	n := &model.ProviderNotification{
		Identifier:  NormalizeIdentifier(firstField(fields, "asin", "ASIN")),
		Marketplace: firstField(fields, "domain", "domainId", "marketplace"),
		EventType:   firstField(fields, "type", "eventType"),
		Payload:     payload,
		CreatedAt:   s.now().UTC(),
	}

	var product *model.StoreProduct
	if n.Identifier != "" {
		p, err := s.notifications.FindStoreProduct(ctx, n.Identifier)
		switch {
		case err == nil:
			product = p
			n.StoreProductID = p.ID
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to look up store product: %w", err)
		}
	}

	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	if product != nil {
		if err := s.notifications.TouchStoreProduct(ctx, product.ID, n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to stamp store product: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"asin":       n.Identifier,
		"event_type": n.EventType,
		"matched":    product != nil,
	}).Info("provider notification received")
	return n, nil
}

// firstField returns the first present, non-empty key as a string.
func firstField(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = fmt.Sprintf("%g", t)
		case bool:
			if !t {
				continue
			}
			s = "true"
		default:
			s = fmt.Sprint(t)
		}
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
