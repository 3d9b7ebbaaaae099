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
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// Payload is the JSON sent to the push service.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// Config holds VAPID configuration.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
}

type sendFunc func(ctx context.Context, message []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Service handles sending web push notifications.
type Service struct {
	cfg    Config
	subs   *store.PushStore
	logger *slog.Logger
	send   sendFunc
}

func NewService(cfg Config, subs *store.PushStore, logger *slog.Logger) *Service {
	if cfg.Subject == "" {
		cfg.Subject = "mailto:noreply@chorequest.app"
	}
	return &Service{cfg: cfg, subs: subs, logger: logger, send: webpush.SendNotificationWithContext}
}

// Enabled reports whether VAPID keys are configured.
func (s *Service) Enabled() bool {
	return s.cfg.VAPIDPublicKey != "" && s.cfg.VAPIDPrivateKey != ""
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Subscribe registers a browser subscription for the actor. Re-subscribing
// the same endpoint replaces its keys.
func (s *Service) Subscribe(ctx context.Context, actor auth.AuthContext, sub *model.PushSubscription) (*model.PushSubscription, error) {
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return nil, apperr.InvalidInput("endpoint must be an https URL")
	}
	if sub.P256dhKey == "" || sub.AuthKey == "" {
		return nil, apperr.InvalidInput("subscription keys are required")
	}
	sub.UserID = actor.UserID
	sub.FamilyID = actor.FamilyID
	return s.subs.CreateSubscription(ctx, sub, time.Now())
}

func (s *Service) Unsubscribe(ctx context.Context, endpoint string) error {
	return s.subs.DeleteByEndpoint(ctx, endpoint)
}

// Send sends a push notification to a subscription.
func (s *Service) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := s.send(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subject,
		TTL:             86400,
	})
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

// NotifyUsers delivers payload to every device of the given users.
// Expired subscriptions are removed; other failures are logged.
func (s *Service) NotifyUsers(ctx context.Context, userIDs []int64, payload Payload) {
	if !s.Enabled() {
		return
	}
	for _, uid := range userIDs {
		subs, err := s.subs.ListByUser(ctx, uid)
		if err != nil {
			s.logger.Error("list push subscriptions", "user_id", uid, "error", err)
			continue
		}
		for i := range subs {
			sub := &subs[i]
			err := s.Send(ctx, sub, payload)
			switch {
			case errors.Is(err, ErrExpired):
				if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "user_id", uid, "error", err)
				}
			case err != nil:
				s.logger.Warn("push delivery failed", "user_id", uid, "error", err)
			}
		}
	}
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pubBytes := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	publicKey = base64.RawURLEncoding.EncodeToString(pubBytes)
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.Bytes())

	return publicKey, privateKey, nil
}
