package collab

import (
	"testing"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

func testCollabConfig() *config.CollabConfig {
	return &config.CollabConfig{
		HistoryWindow:        200,
		ReconnectTokenTTL:    config.Duration(time.Hour),
		ReconnectBackoffBase: config.Duration(time.Second),
		ReconnectBackoffMax:  config.Duration(60 * time.Second),
		ReconnectMaxAttempts: 5,
		PresenceLeaveGrace:   config.Duration(5 * time.Second),
	}
}

func TestReconnect_IssueThenRedeem(t *testing.T) {
	rm := NewReconnectManager(testCollabConfig())
	now := time.Now()
	token, err := rm.IssueToken(RecoveryRecord{UserID: "u1", DocumentID: "d1", LastAckVersion: 7}, now)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := rm.Redeem(token, now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.LastAckVersion != 7 || rec.DocumentID != "d1" {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestReconnect_UnknownToken_Errors(t *testing.T) {
	rm := NewReconnectManager(testCollabConfig())
	_, err := rm.Redeem("ghost", time.Now())
	if err != ErrTokenNotFound {
		t.Fatalf("err = %v, want ErrTokenNotFound", err)
	}
}

func TestReconnect_ExpiredToken_Errors(t *testing.T) {
	rm := NewReconnectManager(testCollabConfig())
	now := time.Now()
	token, _ := rm.IssueToken(RecoveryRecord{UserID: "u1", DocumentID: "d1"}, now)

	_, err := rm.Redeem(token, now.Add(2*time.Hour))
	if err != ErrTokenNotFound {
		t.Fatalf("err = %v, want ErrTokenNotFound for expired token", err)
	}
}

func TestReconnect_RedeemAgainBeforeBackoffElapses_Rejected(t *testing.T) {
	rm := NewReconnectManager(testCollabConfig())
	now := time.Now()

	token, _ := rm.IssueToken(RecoveryRecord{UserID: "u1", DocumentID: "d1"}, now)
	if _, err := rm.Redeem(token, now); err != nil {
		t.Fatal(err)
	}
	// Immediately retrying the same token, before the backoff gate
	// (base 1s after the 1st attempt) elapses, must be rejected.
	if _, err := rm.Redeem(token, now); err != ErrBackoffNotElapsed {
		t.Fatalf("err = %v, want ErrBackoffNotElapsed", err)
	}
	// After the gate elapses, the same token redeems again successfully.
	if _, err := rm.Redeem(token, now.Add(2*time.Second)); err != nil {
		t.Fatalf("err = %v, want success after backoff elapses", err)
	}
}

func TestReconnect_ExhaustsAfterMaxAttempts(t *testing.T) {
	cfg := testCollabConfig()
	cfg.ReconnectMaxAttempts = 2
	rm := NewReconnectManager(cfg)
	now := time.Now()

	token, _ := rm.IssueToken(RecoveryRecord{UserID: "u1", DocumentID: "d1"}, now)
	if _, err := rm.Redeem(token, now); err != nil {
		t.Fatal(err)
	}
	if _, err := rm.Redeem(token, now.Add(10*time.Second)); err != nil {
		t.Fatal(err)
	}
	// The 2nd attempt consumed the token's budget; a 3rd must be rejected.
	if _, err := rm.Redeem(token, now.Add(100*time.Second)); err != ErrTooManyAttempts {
		t.Fatalf("err = %v, want ErrTooManyAttempts", err)
	}
}

func TestBackoffDelay_DoublesAndCaps(t *testing.T) {
	cfg := testCollabConfig()
	if got := backoffDelay(cfg, 0); got != time.Second {
		t.Fatalf("attempts=0: got %v, want 1s", got)
	}
	if got := backoffDelay(cfg, 1); got != 2*time.Second {
		t.Fatalf("attempts=1: got %v, want 2s", got)
	}
	if got := backoffDelay(cfg, 2); got != 4*time.Second {
		t.Fatalf("attempts=2: got %v, want 4s", got)
	}
	if got := backoffDelay(cfg, 10); got != 60*time.Second {
		t.Fatalf("attempts=10: got %v, want capped at 60s", got)
	}
}
