package store

import (
	"context"
	"testing"
	"time"
)

func setupSessionTestDB(t *testing.T) (*SessionStore, *UserStore) {
	t.Helper()
	db := setupTestDB(t)
	return NewSessionStore(db), NewUserStore(db)
}

func TestSessionCreate(t *testing.T) {
	ss, us := setupSessionTestDB(t)
	ctx := context.Background()

	u, err := us.Create(ctx, "Alice", ptr("alice@example.com"), "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	sess, err := ss.Create(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 { // 32 bytes hex-encoded
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.UserID != u.ID {
		t.Errorf("user_id = %q, want %q", sess.UserID, u.ID)
	}
	wantExpiry := time.Now().Add(DefaultSessionTTL)
	if d := sess.ExpiresAt.Sub(wantExpiry); d > time.Minute || d < -time.Minute {
		t.Errorf("expires_at = %v, want about %v", sess.ExpiresAt, wantExpiry)
	}
}

func TestSessionGetByToken(t *testing.T) {
	ss, us := setupSessionTestDB(t)
	ctx := context.Background()

	u, _ := us.Create(ctx, "Alice", nil, "")
	created, _ := ss.Create(ctx, u.ID, time.Hour)

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session, got nil")
	}
	if sess.ID != created.ID {
		t.Errorf("id = %d, want %d", sess.ID, created.ID)
	}

	missing, err := ss.GetByToken(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestSessionExpired(t *testing.T) {
	ss, us := setupSessionTestDB(t)
	ctx := context.Background()

	u, _ := us.Create(ctx, "Alice", nil, "")
	created, _ := ss.Create(ctx, u.ID, time.Hour)

	_, err := ss.db.Exec(ss.db.Rebind(`UPDATE sessions SET expires_at = ? WHERE id = ?`),
		time.Now().UTC().Add(-time.Hour), created.ID)
	if err != nil {
		t.Fatalf("expire session: %v", err)
	}

	sess, err := ss.GetByToken(ctx, created.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if sess != nil {
		t.Error("expected nil for expired session")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

func TestSessionDeleteByToken(t *testing.T) {
	ss, us := setupSessionTestDB(t)
	ctx := context.Background()

	u, _ := us.Create(ctx, "Alice", nil, "")
	created, _ := ss.Create(ctx, u.ID, time.Hour)

	if err := ss.DeleteByToken(ctx, created.Token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sess, _ := ss.GetByToken(ctx, created.Token)
	if sess != nil {
		t.Error("expected session to be deleted")
	}
}

func TestSessionDeleteByUserID(t *testing.T) {
	ss, us := setupSessionTestDB(t)
	ctx := context.Background()

	alice, _ := us.Create(ctx, "Alice", nil, "")
	bob, _ := us.Create(ctx, "Bob", nil, "")
	a1, _ := ss.Create(ctx, alice.ID, time.Hour)
	a2, _ := ss.Create(ctx, alice.ID, time.Hour)
	b1, _ := ss.Create(ctx, bob.ID, time.Hour)

	if err := ss.DeleteByUserID(ctx, alice.ID); err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	for _, tok := range []string{a1.Token, a2.Token} {
		if sess, _ := ss.GetByToken(ctx, tok); sess != nil {
			t.Error("expected alice's sessions to be deleted")
		}
	}
	if sess, _ := ss.GetByToken(ctx, b1.Token); sess == nil {
		t.Error("expected bob's session to remain")
	}
}
