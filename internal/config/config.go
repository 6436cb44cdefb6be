package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	URL       string          `mapstructure:"url"`
	SocketURL string          `mapstructure:"socket_url"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
}

type WebsocketConfig struct {
	WriteWait         time.Duration `mapstructure:"write_wait"`
	PongWait          time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
}

type ClientConfig struct {
	DataDir       string         `mapstructure:"data_dir"`
	ModelType     string         `mapstructure:"model_type"`
	StatusAddr    string         `mapstructure:"status_addr"`
	Training      TrainingConfig `mapstructure:"training"`
	MaxBufferSize int            `mapstructure:"max_buffer_size"`
}

type TrainingConfig struct {
	Epochs          int     `mapstructure:"epochs"`
	BatchSize       int     `mapstructure:"batch_size"`
	ValidationSplit float64 `mapstructure:"validation_split"`
	MinSamples      int     `mapstructure:"min_samples"`
}

type TelemetryConfig struct {
	Enabled       bool                `mapstructure:"enabled"`
	ServiceName   string              `mapstructure:"service_name"`
	OTELCollector OTELCollectorConfig `mapstructure:"otel_collector"`
}

type OTELCollectorConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Websocket.ReconnectAttempts == 0 {
		config.Server.Websocket.ReconnectAttempts = 5
	}
	if config.Server.Websocket.ReconnectDelay == 0 {
		config.Server.Websocket.ReconnectDelay = time.Second
	}
	if config.Server.Websocket.WriteWait == 0 {
		config.Server.Websocket.WriteWait = 10 * time.Second
	}
	if config.Server.Websocket.PongWait == 0 {
		config.Server.Websocket.PongWait = 60 * time.Second
	}
	if config.Client.ModelType == "" {
		config.Client.ModelType = "recommendation"
	}
	if config.Client.StatusAddr == "" {
		config.Client.StatusAddr = "localhost:8090"
	}
	if config.Client.MaxBufferSize == 0 {
		config.Client.MaxBufferSize = 500
	}
	if config.Client.Training.Epochs == 0 {
		config.Client.Training.Epochs = 5
	}
	if config.Client.Training.BatchSize == 0 {
		config.Client.Training.BatchSize = 32
	}
	if config.Client.Training.ValidationSplit == 0 {
		config.Client.Training.ValidationSplit = 0.2
	}
	if config.Client.Training.MinSamples == 0 {
		config.Client.Training.MinSamples = 10
	}
	if config.Telemetry.ServiceName == "" {
		config.Telemetry.ServiceName = "fedclient"
	}
}
