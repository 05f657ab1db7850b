package internal

import "time"

// Config is the server configuration, loaded from the environment.
type Config struct {
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	AuthSecret string `env:"AUTH_SECRET,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	OfflineQueueCapacity int           `env:"OFFLINE_QUEUE_CAPACITY,default=100"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	HandoffAckTimeout    time.Duration `env:"HANDOFF_ACK_TIMEOUT,default=10s"`

	// DebugPort exposes the /inspect device-store dump when non-zero.
	DebugPort int `env:"DEBUG_PORT,default=0"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=3s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	// Comma-separated origin patterns accepted on the websocket handshake.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=*"`
}
