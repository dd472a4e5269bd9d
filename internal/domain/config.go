package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FetchConfig contains configuration for the fetch engine
type FetchConfig struct {
	DownloadDir      string        `mapstructure:"download_dir"`
	LogsDir          string        `mapstructure:"logs_dir"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MinFreeBytes     uint64        `mapstructure:"min_free_bytes"`
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// DispatchConfig controls the event loop that delivers observer callbacks
type DispatchConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"` // 0 drops immediately when the queue is full
}

// RegistryConfig controls snapshot persistence
type RegistryConfig struct {
	PersistSnapshots bool `mapstructure:"persist_snapshots"`
	RestoreOnStart   bool `mapstructure:"restore_on_start"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Fetch: FetchConfig{
			DownloadDir:      "$HOME/Downloads/dl-progress",
			LogsDir:          "$HOME/.dl-progress/logs",
			MaxRetries:       3,
			RetryDelay:       10 * time.Second,
			ConcurrentLimit:  2,
			ProgressInterval: 500 * time.Millisecond,
			RequestTimeout:   0,
			MinFreeBytes:     64 << 20,
			AutoStartWorkers: true,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/.dl-progress/registry.db",
			CheckInterval:   2 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Dispatch: DispatchConfig{
			QueueSize:      256,
			PublishTimeout: 100 * time.Millisecond,
		},
		Registry: RegistryConfig{
			PersistSnapshots: true,
			RestoreOnStart:   true,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
