package push

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) == 0 || len(privBytes) > 32 {
		t.Errorf("private key length = %d, want at most 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

type sent struct {
	endpoint string
	payload  Payload
}

type fixture struct {
	svc    *Service
	subs   *store.PushStore
	sent   []sent
	status map[string]int
	parent auth.AuthContext
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	parent, err := store.NewUserStore(db).Create(context.Background(), store.NewUser{
		Username: "mom", PasswordHash: "x", Role: model.RoleParent, FamilyID: "fam-1",
	}, time.Now())
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	f := &fixture{
		subs:   store.NewPushStore(db),
		status: map[string]int{},
		parent: auth.AuthContext{UserID: parent.ID, FamilyID: "fam-1", Role: model.RoleParent},
	}
	f.svc = NewService(Config{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv"}, f.subs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc.send = func(_ context.Context, msg []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
		var p Payload
		if err := json.Unmarshal(msg, &p); err != nil {
			return nil, err
		}
		f.sent = append(f.sent, sent{endpoint: sub.Endpoint, payload: p})
		code := http.StatusCreated
		if c, ok := f.status[sub.Endpoint]; ok {
			code = c
		}
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return f
}

func (f *fixture) subscribe(t *testing.T, endpoint string) {
	t.Helper()
	_, err := f.svc.Subscribe(context.Background(), f.parent, &model.PushSubscription{
		Endpoint: endpoint, P256dhKey: "p", AuthKey: "a",
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", endpoint, err)
	}
}

func TestSubscribeValidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Subscribe(ctx, f.parent, &model.PushSubscription{Endpoint: "http://insecure", P256dhKey: "p", AuthKey: "a"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("http endpoint err = %v, want invalid input", err)
	}
	_, err = f.svc.Subscribe(ctx, f.parent, &model.PushSubscription{Endpoint: "https://push.example.com/1"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing keys err = %v, want invalid input", err)
	}

	f.subscribe(t, "https://push.example.com/1")
	subs, _ := f.subs.ListByUser(ctx, f.parent.UserID)
	if len(subs) != 1 || subs[0].FamilyID != "fam-1" {
		t.Errorf("subscriptions = %+v", subs)
	}
}

func TestNotifyUsersRemovesExpired(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.subscribe(t, "https://push.example.com/phone")
	f.subscribe(t, "https://push.example.com/old-laptop")
	f.status["https://push.example.com/old-laptop"] = http.StatusGone

	f.svc.NotifyUsers(ctx, []int64{f.parent.UserID}, Payload{Title: "Task submitted", Body: "Sam finished Feed cat"})

	if len(f.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(f.sent))
	}
	if f.sent[0].payload.Title != "Task submitted" {
		t.Errorf("payload = %+v", f.sent[0].payload)
	}
	subs, _ := f.subs.ListByUser(ctx, f.parent.UserID)
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example.com/phone" {
		t.Errorf("remaining subscriptions = %+v, want only the phone", subs)
	}
}

func TestSendErrorStatus(t *testing.T) {
	f := setup(t)
	f.status["https://push.example.com/1"] = http.StatusInternalServerError
	err := f.svc.Send(context.Background(), &model.PushSubscription{Endpoint: "https://push.example.com/1"}, Payload{Title: "x"})
	if err == nil || errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want non-expiry failure", err)
	}
}

func TestNotifyUsersDisabled(t *testing.T) {
	f := setup(t)
	f.subscribe(t, "https://push.example.com/1")
	f.svc.cfg.VAPIDPrivateKey = ""

	f.svc.NotifyUsers(context.Background(), []int64{f.parent.UserID}, Payload{Title: "x"})
	if len(f.sent) != 0 {
		t.Errorf("sent %d without VAPID keys", len(f.sent))
	}
}
