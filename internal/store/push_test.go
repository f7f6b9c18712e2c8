package store

import (
	"testing"

	"github.com/dukerupert/tasknotify/internal/database"
)

func setupTestDB(t *testing.T) (*PushStore, *PermissionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db), NewPermissionStore(db)
}

func TestCreateSubscription(t *testing.T) {
	ps, _ := setupTestDB(t)

	sub, err := ps.CreateSubscription("https://push.example.com/sub1", "p256dh_key1", "auth_key1", "Chrome Desktop")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if sub.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if sub.Endpoint != "https://push.example.com/sub1" {
		t.Errorf("endpoint = %q, want %q", sub.Endpoint, "https://push.example.com/sub1")
	}
	if sub.DeviceName != "Chrome Desktop" {
		t.Errorf("device_name = %q, want %q", sub.DeviceName, "Chrome Desktop")
	}
}

func TestCreateSubscriptionUpsert(t *testing.T) {
	ps, _ := setupTestDB(t)

	sub1, _ := ps.CreateSubscription("https://push.example.com/sub1", "key1", "auth1", "Device A")
	sub2, err := ps.CreateSubscription("https://push.example.com/sub1", "key2", "auth2", "Device B")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	// Should be same subscription, updated keys
	if sub2.ID != sub1.ID {
		t.Errorf("expected same ID on upsert, got %d != %d", sub2.ID, sub1.ID)
	}
	if sub2.P256dhKey != "key2" {
		t.Errorf("p256dh = %q, want %q", sub2.P256dhKey, "key2")
	}

	subs, err := ps.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription after upsert, got %d", len(subs))
	}
}

func TestDeleteSubscription(t *testing.T) {
	ps, _ := setupTestDB(t)

	a, _ := ps.CreateSubscription("https://push.example.com/a", "k", "a", "")
	ps.CreateSubscription("https://push.example.com/b", "k", "a", "")

	if err := ps.DeleteSubscription(a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := ps.DeleteByEndpoint("https://push.example.com/b"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}

	subs, _ := ps.List()
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions, got %d", len(subs))
	}
}
