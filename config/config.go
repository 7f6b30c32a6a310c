package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Source kinds.
const (
	SourceSerial = "serial"
	SourceDHT    = "dht"
)

// ErrInvalidConfig indicates a configuration value that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application
type Config struct {
	Source SourceConfig `mapstructure:"source"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Logger LoggerConfig `mapstructure:"logger"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	HTTP   HTTPConfig   `mapstructure:"http"`
}

// SourceConfig holds the sensor source configuration
type SourceConfig struct {
	Kind       string        `mapstructure:"kind"`
	Port       string        `mapstructure:"port"`
	Baud       int           `mapstructure:"baud"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BufferSize int           `mapstructure:"buffer_size"`
	ErrorKey   string        `mapstructure:"error_key"`
	DHT        DHTConfig     `mapstructure:"dht"`
}

// DHTConfig holds the locally attached DHT sensor configuration
type DHTConfig struct {
	Pin        string `mapstructure:"pin"`
	Label      string `mapstructure:"label"`
	SensorType string `mapstructure:"sensor_type"`
}

// RetryConfig holds the read retry configuration
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// LoggerConfig holds the log output and UDP channel configuration
type LoggerConfig struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`
	Verbose bool     `mapstructure:"verbose"`
	UDP     []string `mapstructure:"udp"`
}

// MQTTConfig holds MQTT connection configuration
type MQTTConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Broker   string        `mapstructure:"broker"`
	Port     int           `mapstructure:"port"`
	ClientID string        `mapstructure:"client_id"`
	Topic    string        `mapstructure:"topic"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	QoS      byte          `mapstructure:"qos"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// HTTPConfig holds the live view and metrics server configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoadConfig loads configuration from config.yaml in path and/or environment variables
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	return load(v)
}

// LoadConfigFile loads configuration from the given file and/or environment variables
func LoadConfigFile(file string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(file)
	return load(v)
}

func newViper() *viper.Viper {
	// A .env file only seeds variables that are not already set.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	v := viper.New()

	// Set default values first (lowest precedence)
	def := GetDefaultConfig()
	v.SetDefault("source.kind", def.Source.Kind)
	v.SetDefault("source.port", def.Source.Port)
	v.SetDefault("source.baud", def.Source.Baud)
	v.SetDefault("source.timeout", def.Source.Timeout)
	v.SetDefault("source.buffer_size", def.Source.BufferSize)
	v.SetDefault("source.error_key", def.Source.ErrorKey)
	v.SetDefault("source.dht.pin", def.Source.DHT.Pin)
	v.SetDefault("source.dht.label", def.Source.DHT.Label)
	v.SetDefault("source.dht.sensor_type", def.Source.DHT.SensorType)

	v.SetDefault("retry.attempts", def.Retry.Attempts)
	v.SetDefault("retry.backoff", def.Retry.Backoff)

	v.SetDefault("logger.level", def.Logger.Level)
	v.SetDefault("logger.format", def.Logger.Format)
	v.SetDefault("logger.verbose", def.Logger.Verbose)
	v.SetDefault("logger.udp", def.Logger.UDP)

	v.SetDefault("mqtt.enabled", def.MQTT.Enabled)
	v.SetDefault("mqtt.broker", def.MQTT.Broker)
	v.SetDefault("mqtt.port", def.MQTT.Port)
	v.SetDefault("mqtt.client_id", def.MQTT.ClientID)
	v.SetDefault("mqtt.topic", def.MQTT.Topic)
	v.SetDefault("mqtt.username", def.MQTT.Username)
	v.SetDefault("mqtt.password", def.MQTT.Password)
	v.SetDefault("mqtt.qos", def.MQTT.QoS)
	v.SetDefault("mqtt.timeout", def.MQTT.Timeout)

	v.SetDefault("kafka.enabled", def.Kafka.Enabled)
	v.SetDefault("kafka.brokers", def.Kafka.Brokers)
	v.SetDefault("kafka.topic", def.Kafka.Topic)

	v.SetDefault("http.enabled", def.HTTP.Enabled)
	v.SetDefault("http.address", def.HTTP.Address)

	// Map all configuration keys to environment variables (highest precedence)
	// Example: source.port -> SOURCE_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keep backward compatibility with MQTT_BROKER_URL
	v.BindEnv("mqtt.broker", "MQTT_BROKER", "MQTT_BROKER_URL")
	v.BindEnv("source.dht.sensor_type", "SOURCE_DHT_SENSOR_TYPE")
	v.BindEnv("logger.udp", "LOGGER_UDP")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")

	return v
}

func load(v *viper.Viper) (*Config, error) {
	// Try to read config file, but don't fail if it doesn't exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Println("No config file found, using environment variables and defaults")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:       SourceSerial,
			Port:       "/dev/ttyUSB0",
			Baud:       115200,
			Timeout:    4 * time.Second,
			BufferSize: 1024,
			ErrorKey:   "error",
			DHT: DHTConfig{
				Pin:        "GPIO4",
				Label:      "dht",
				SensorType: "dht22",
			},
		},
		Retry: RetryConfig{
			Attempts: 10,
			Backoff:  100 * time.Millisecond,
		},
		Logger: LoggerConfig{
			Level:   "info",
			Format:  "text",
			Verbose: false,
			UDP:     []string{},
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost",
			Port:     1883,
			ClientID: "dht-logger",
			Topic:    "sensors/dht",
			QoS:      0,
			Timeout:  5 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "dht-snapshots",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: ":8080",
		},
	}
}

// Validate reports the first configuration value that cannot be used. A retry
// budget below one is raised to one.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceSerial:
		if c.Source.Port == "" {
			return fmt.Errorf("%w: source.port must be set", ErrInvalidConfig)
		}
		if c.Source.Baud <= 0 {
			return fmt.Errorf("%w: source.baud must be positive, got %d", ErrInvalidConfig, c.Source.Baud)
		}
	case SourceDHT:
		if c.Source.DHT.Pin == "" || c.Source.DHT.Label == "" {
			return fmt.Errorf("%w: source.dht.pin and source.dht.label must be set", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown source.kind %q", ErrInvalidConfig, c.Source.Kind)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("%w: source.timeout must be positive, got %s", ErrInvalidConfig, c.Source.Timeout)
	}
	if c.Source.ErrorKey != "error" && c.Source.ErrorKey != "e" {
		return fmt.Errorf("%w: source.error_key must be \"error\" or \"e\", got %q", ErrInvalidConfig, c.Source.ErrorKey)
	}

	if c.Retry.Attempts < 1 {
		c.Retry.Attempts = 1
	}

	switch strings.ToLower(c.Logger.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logger.level %q", ErrInvalidConfig, c.Logger.Level)
	}
	for _, addr := range c.Logger.UDP {
		if _, err := net.ResolveUDPAddr("udp4", addr); err != nil {
			return fmt.Errorf("%w: failed to parse IP:PORT %q: %v", ErrInvalidConfig, addr, err)
		}
	}

	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return fmt.Errorf("%w: mqtt.topic must be set", ErrInvalidConfig)
	}
	if c.MQTT.Enabled && c.MQTT.Timeout <= 0 {
		return fmt.Errorf("%w: mqtt.timeout must be positive, got %s", ErrInvalidConfig, c.MQTT.Timeout)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2, got %d", ErrInvalidConfig, c.MQTT.QoS)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topic must be set", ErrInvalidConfig)
	}
	return nil
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	brokerURL := c.MQTT.Broker

	// If the URL already has a protocol, use it as is
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://"} {
		if strings.HasPrefix(brokerURL, scheme) {
			// If there's no port in the URL, add the default port
			if !strings.Contains(brokerURL[len(scheme):], ":") {
				brokerURL = fmt.Sprintf("%s:%d", brokerURL, c.MQTT.Port)
			}
			return brokerURL
		}
	}

	// Handle http:// and https:// protocols by converting to mqtt protocols
	if host, ok := strings.CutPrefix(brokerURL, "http://"); ok {
		if !strings.Contains(host, ":") {
			host = fmt.Sprintf("%s:%d", host, c.MQTT.Port)
		}
		return fmt.Sprintf("tcp://%s", host)
	}

	if host, ok := strings.CutPrefix(brokerURL, "https://"); ok {
		if !strings.Contains(host, ":") {
			host = fmt.Sprintf("%s:%d", host, c.MQTT.Port)
		}
		return fmt.Sprintf("ssl://%s", host)
	}

	// If no protocol is specified, use tcp:// with the configured port
	log.Printf("No protocol specified in broker URL '%s', defaulting to tcp://", brokerURL)
	return fmt.Sprintf("tcp://%s:%d", brokerURL, c.MQTT.Port)
}
