package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/dl-progress/internal/domain"
)

// envKeys are bound explicitly so DLPROGRESS_* overrides apply even when
// no config file mentions the key.
var envKeys = []string{
	"server.host",
	"server.port",
	"fetch.download_dir",
	"fetch.logs_dir",
	"fetch.max_retries",
	"fetch.retry_delay",
	"fetch.concurrent_limit",
	"fetch.progress_interval",
	"fetch.request_timeout",
	"fetch.min_free_bytes",
	"fetch.auto_start_workers",
	"queue.database_path",
	"queue.check_interval",
	"queue.auto_exit_on_empty",
	"queue.empty_wait_time",
	"dispatch.queue_size",
	"dispatch.publish_timeout",
	"registry.persist_snapshots",
	"registry.restore_on_start",
	"notification.enabled",
	"notification.method",
	"logging.level",
	"logging.format",
	"logging.output_path",
}

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.dl-progress")
		v.AddConfigPath("/etc/dl-progress")
	}

	v.SetEnvPrefix("DLPROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Fetch.DownloadDir = expandPath(config.Fetch.DownloadDir)
	config.Fetch.LogsDir = expandPath(config.Fetch.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Fetch.DownloadDir == "" {
		return fmt.Errorf("download directory not configured")
	}

	if config.Fetch.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if config.Fetch.ConcurrentLimit < 1 {
		return fmt.Errorf("concurrent limit must be at least 1")
	}

	if config.Fetch.ProgressInterval <= 0 {
		return fmt.Errorf("progress interval must be positive")
	}

	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}

	if config.Queue.CheckInterval <= 0 {
		return fmt.Errorf("queue check interval must be positive")
	}

	if config.Dispatch.QueueSize < 1 {
		return fmt.Errorf("dispatch queue size must be at least 1")
	}

	if config.Dispatch.PublishTimeout < 0 {
		return fmt.Errorf("dispatch publish timeout cannot be negative")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("fetch.download_dir", config.Fetch.DownloadDir)
	v.Set("fetch.logs_dir", config.Fetch.LogsDir)
	v.Set("fetch.max_retries", config.Fetch.MaxRetries)
	v.Set("fetch.retry_delay", config.Fetch.RetryDelay.String())
	v.Set("fetch.concurrent_limit", config.Fetch.ConcurrentLimit)
	v.Set("fetch.progress_interval", config.Fetch.ProgressInterval.String())
	v.Set("fetch.request_timeout", config.Fetch.RequestTimeout.String())
	v.Set("fetch.min_free_bytes", config.Fetch.MinFreeBytes)
	v.Set("fetch.auto_start_workers", config.Fetch.AutoStartWorkers)
	v.Set("queue.database_path", config.Queue.DatabasePath)
	v.Set("queue.check_interval", config.Queue.CheckInterval.String())
	v.Set("queue.auto_exit_on_empty", config.Queue.AutoExitOnEmpty)
	v.Set("queue.empty_wait_time", config.Queue.EmptyWaitTime.String())
	v.Set("dispatch.queue_size", config.Dispatch.QueueSize)
	v.Set("dispatch.publish_timeout", config.Dispatch.PublishTimeout.String())
	v.Set("registry.persist_snapshots", config.Registry.PersistSnapshots)
	v.Set("registry.restore_on_start", config.Registry.RestoreOnStart)
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.method", config.Notification.Method)
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
