package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/dukerupert/tasknotify/internal/model"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// topicPattern is the header-safe form the push service accepts for Topic.
var topicPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Payload is the JSON sent to the push service.
type Payload struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Silent bool   `json:"silent,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
}

// Enabled reports whether both VAPID keys are present.
func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// SubscriptionStore lists targets and drops expired ones.
type SubscriptionStore interface {
	List() ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Service relays native notifications to every registered web push
// subscription.
type Service struct {
	cfg        Config
	subs       SubscriptionStore
	httpClient *http.Client
	logger     *slog.Logger
}

// NewService creates a new push service with VAPID keys.
func NewService(cfg Config, subs SubscriptionStore, logger *slog.Logger) *Service {
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:noreply@tasknotify.app"
	}
	return &Service{
		cfg:        cfg,
		subs:       subs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send sends a push notification to a subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	opts := &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             3600,
		Urgency:         webpush.UrgencyHigh,
	}
	// A pending message with the same topic is replaced by the push service.
	if topicPattern.MatchString(payload.Tag) {
		opts.Topic = payload.Tag
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, opts)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// Notify delivers n to every subscription. Expired subscriptions are
// removed; other failures are joined into the returned error.
func (s *Service) Notify(ctx context.Context, n model.NativeNotification) error {
	subs, err := s.subs.List()
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}

	payload := Payload{
		Title:  n.Title,
		Body:   n.Body,
		URL:    n.URL,
		Tag:    n.Tag,
		Silent: n.Silent,
	}

	var errs []error
	for i := range subs {
		sub := &subs[i]
		err := s.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			s.logger.Info("removing expired push subscription", "device", sub.DeviceName)
			if err := s.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
		default:
			errs = append(errs, fmt.Errorf("%s: %w", sub.DeviceName, err))
		}
	}
	return errors.Join(errs...)
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
