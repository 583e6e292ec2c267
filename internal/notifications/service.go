package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"colorflow/internal/config"
)

const userAgent = "Colorflow/0.1.0"

// Service defines the notification surface exposed to orchestrator components.
type Service interface {
	NotifyFileRejected(ctx context.Context, filename, reason string) error
	NotifyStuckTasks(ctx context.Context, cleanup, retransfer int, oldest time.Duration) error
	NotifySiteOffline(ctx context.Context, site string, lastSeen time.Time) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned. The
// stuck_tasks and rejections config flags gate their notification types
// individually.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:   topic,
		client:     client,
		stuckTasks: cfg.Notifications.StuckTasks,
		rejections: cfg.Notifications.Rejections,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	stuckTasks bool
	rejections bool
}

func (n *ntfyService) NotifyFileRejected(ctx context.Context, filename, reason string) error {
	if !n.rejections {
		return nil
	}
	filename = strings.TrimSpace(filename)
	message := fmt.Sprintf("File rejected: %s", filename)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:   "Colorflow - File Rejected",
		message: message,
		tags:    []string{"colorflow", "reject"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStuckTasks(ctx context.Context, cleanup, retransfer int, oldest time.Duration) error {
	if !n.stuckTasks {
		return nil
	}
	oldest = oldest.Round(time.Minute)
	data := payload{
		title: "Colorflow - Stuck Tasks",
		message: fmt.Sprintf("%d cleanup and %d retransfer tasks pending, oldest for %s. A site daemon may be down.",
			cleanup, retransfer, oldest),
		tags:     []string{"colorflow", "tasks", "stuck"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySiteOffline(ctx context.Context, site string, lastSeen time.Time) error {
	site = strings.TrimSpace(site)
	message := fmt.Sprintf("Site %s has stopped heartbeating", site)
	if !lastSeen.IsZero() {
		message = fmt.Sprintf("%s (last seen %s)", message, lastSeen.UTC().Format(time.RFC3339))
	}
	data := payload{
		title:    "Colorflow - Site Offline",
		message:  message,
		tags:     []string{"colorflow", "site", "offline"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Colorflow - Error",
		message:  builder.String(),
		tags:     []string{"colorflow", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Colorflow - Test",
		message:  "Notification system test",
		tags:     []string{"colorflow", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyFileRejected(context.Context, string, string) error              { return nil }
func (noopService) NotifyStuckTasks(context.Context, int, int, time.Duration) error       { return nil }
func (noopService) NotifySiteOffline(context.Context, string, time.Time) error            { return nil }
func (noopService) NotifyError(context.Context, error, string) error                      { return nil }
func (noopService) TestNotification(context.Context) error                                { return nil }
