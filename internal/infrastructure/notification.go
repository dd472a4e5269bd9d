package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/dl-progress/internal/domain"
)

// commandRunner runs an external notifier binary
type commandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NotificationService sends desktop notifications when downloads finish.
// It is an observer: titles are remembered from progress events so the
// completion message can name the item.
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    commandRunner
	mu     sync.Mutex
	titles map[string]string
	wg     sync.WaitGroup
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run:    runCommand,
		titles: make(map[string]string),
	}
}

// DownloadDidUpdate remembers the display title of the download
func (n *NotificationService) DownloadDidUpdate(progress domain.DownloadRequest) {
	if progress.Title == "" {
		return
	}
	n.mu.Lock()
	n.titles[progress.ID] = progress.Title
	n.mu.Unlock()
}

// DownloadWasCompleted sends the notification off the dispatch goroutine
func (n *NotificationService) DownloadWasCompleted(id string, response domain.FetcherResponse) {
	n.mu.Lock()
	name, ok := n.titles[id]
	delete(n.titles, id)
	n.mu.Unlock()
	if !ok {
		name = id
	}

	var title, message string
	if response.Succeeded() {
		title = "Download Completed"
		message = fmt.Sprintf("Success: %s", truncateString(name, 40))
	} else {
		title = "Download Failed"
		message = fmt.Sprintf("Failed: %s (%s)", truncateString(name, 40), truncateString(response.ErrorMessage(), 60))
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.Send(title, message)
	}()
}

// Wait blocks until in-flight notifications are sent
func (n *NotificationService) Wait() {
	n.wg.Wait()
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %q with title %q`, message, title)
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
