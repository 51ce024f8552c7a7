package app

import (
	"context"
	"path/filepath"
	"testing"

	"imgchat/internal/transport"
)

func TestNewApplication_MockMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserID = "u1"
	cfg.Username = "alice"
	cfg.LogFile = filepath.Join(t.TempDir(), "imgchat.log")

	application := NewApplication(cfg, true)

	if _, ok := application.Backend.(*transport.Mock); !ok {
		t.Fatalf("expected mock backend, got %T", application.Backend)
	}
	user := application.Identity.CurrentUser()
	if user.ID != "u1" || user.Username != "alice" {
		t.Fatalf("identity not wired from config: %+v", user)
	}

	if err := application.Controller.RefreshHistory(context.Background()); err != nil {
		t.Fatalf("RefreshHistory: %v", err)
	}
	history := application.Controller.History()
	if len(history) != 1 || history[0].ImageID != "demo-cat" {
		t.Fatalf("expected seeded demo conversation, got %+v", history)
	}
}

func TestNewApplication_AnonymousDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "imgchat.log")

	application := NewApplication(cfg, true)
	if !application.Identity.CurrentUser().IsAnonymous() {
		t.Fatal("expected anonymous identity when no user is configured")
	}
}
