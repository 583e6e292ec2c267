package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"colorflow/internal/config"
	"colorflow/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyFileRejected(context.Background(), "spot.mov", "bad header"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	var captured struct {
		title    string
		tags     string
		priority string
		body     string
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		captured.title = r.Header.Get("Title")
		captured.tags = r.Header.Get("Tags")
		captured.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		captured.body = string(body)
		_ = r.Body.Close()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestTimeout = 5
	cfg.Notifications.Rejections = true
	svc := notifications.NewService(&cfg)

	t.Run("file rejected", func(t *testing.T) {
		if err := svc.NotifyFileRejected(context.Background(), "spot.mov", "checksum mismatch"); err != nil {
			t.Fatalf("notification returned error: %v", err)
		}
		if captured.title != "Colorflow - File Rejected" {
			t.Fatalf("unexpected title %q", captured.title)
		}
		if captured.body != "File rejected: spot.mov\nReason: checksum mismatch" {
			t.Fatalf("unexpected message %q", captured.body)
		}
		if captured.tags != "colorflow,reject" {
			t.Fatalf("unexpected tags %q", captured.tags)
		}
	})

	t.Run("stuck tasks", func(t *testing.T) {
		if err := svc.NotifyStuckTasks(context.Background(), 2, 1, 90*time.Minute); err != nil {
			t.Fatalf("notification returned error: %v", err)
		}
		if captured.title != "Colorflow - Stuck Tasks" {
			t.Fatalf("unexpected title %q", captured.title)
		}
		if captured.priority != "high" {
			t.Fatalf("expected high priority, got %q", captured.priority)
		}
		if captured.body != "2 cleanup and 1 retransfer tasks pending, oldest for 1h30m0s. A site daemon may be down." {
			t.Fatalf("unexpected message %q", captured.body)
		}
	})

	t.Run("error", func(t *testing.T) {
		if err := svc.NotifyError(context.Background(), io.ErrUnexpectedEOF, "transfer"); err != nil {
			t.Fatalf("notification returned error: %v", err)
		}
		if captured.body != "Error with transfer: unexpected EOF" {
			t.Fatalf("unexpected message %q", captured.body)
		}
	})

	t.Run("site offline", func(t *testing.T) {
		lastSeen := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
		if err := svc.NotifySiteOffline(context.Background(), "tustin", lastSeen); err != nil {
			t.Fatalf("notification returned error: %v", err)
		}
		if captured.body != "Site tustin has stopped heartbeating (last seen 2026-08-20T12:00:00Z)" {
			t.Fatalf("unexpected message %q", captured.body)
		}
		if captured.priority != "high" {
			t.Fatalf("expected high priority, got %q", captured.priority)
		}
	})
}

func TestNotificationTypesGatedByConfig(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.StuckTasks = false
	cfg.Notifications.Rejections = false
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyFileRejected(context.Background(), "spot.mov", "bad header"); err != nil {
		t.Fatalf("gated rejection notice returned error: %v", err)
	}
	if err := svc.NotifyStuckTasks(context.Background(), 1, 0, time.Hour); err != nil {
		t.Fatalf("gated stuck notice returned error: %v", err)
	}
	if requests != 0 {
		t.Fatalf("disabled notification types must not reach ntfy, saw %d requests", requests)
	}

	// Test pushes are never gated; they exist to verify the topic works.
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if requests != 1 {
		t.Fatalf("expected the test push to go through, saw %d requests", requests)
	}
}
