package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables honoured on top of the YAML file.
const (
	EnvBrokerHost  = "RABBITMQ__HOSTNAME"
	EnvImageFolder = "IMAGE_FOLDER"
)

// ErrConfiguration marks a missing or invalid required setting. It is fatal
// and never retried.
var ErrConfiguration = errors.New("configuration error")

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Logging     LoggingConfig     `yaml:"logging"`
	App         AppConfig         `yaml:"app"`
	Images      ImagesConfig      `yaml:"images"`
	Engine      EngineConfig      `yaml:"engine"`
	Worker      WorkerConfig      `yaml:"worker"`
	Publisher   PublisherConfig   `yaml:"publisher"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. An empty host
// disables the result ledger.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// Enabled reports whether a database was configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// RedisConfig holds the Redis connection used by the attempt tracker.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RabbitMQConfig holds RabbitMQ connection and topology configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Topology   TopologyConfig   `yaml:"topology"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// TopologyConfig names the exchanges and queues of the pipeline.
type TopologyConfig struct {
	CPUJobs      string   `yaml:"cpu_jobs"`
	GPUJobs      string   `yaml:"gpu_jobs"`
	ImageJobs    string   `yaml:"image_jobs"`
	Results      string   `yaml:"results"`
	BroadcastTo  []string `yaml:"broadcast_to"`
	DeadLetterOn bool     `yaml:"dead_letter"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish settings
type PublishConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Confirms bool          `yaml:"confirms"`
}

// ConsumerConfig holds RabbitMQ consumer settings. Workers process one
// delivery at a time, so only a prefetch_count of 1 is accepted for them.
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ImagesConfig locates the shared image folder.
type ImagesConfig struct {
	BaseFolder  string `yaml:"base_folder"`
	Extension   string `yaml:"extension"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// EngineConfig selects the convolution kernel. Weights, when set, win over
// the preset name.
type EngineConfig struct {
	Kernel  string       `yaml:"kernel"`
	Weights [][]float32  `yaml:"weights"`
	Device  DeviceConfig `yaml:"device"`
}

// DeviceConfig selects the accelerator driver for the GPU backend. There is
// no default: a GPU backend without a driver is a configuration error.
type DeviceConfig struct {
	Driver string `yaml:"driver"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Backend     string `yaml:"backend"`
	Queue       string `yaml:"queue"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// PublisherConfig controls how jobs are published.
type PublisherConfig struct {
	Exchange    string `yaml:"exchange"`
	Inline      bool   `yaml:"inline"`
	ReadWorkers int    `yaml:"read_workers"`
}

// CoordinatorConfig controls the completion barrier.
type CoordinatorConfig struct {
	Expected      int `yaml:"expected"`
	ResultsPerJob int `yaml:"results_per_job"`
	BatchWorkers  int `yaml:"batch_workers"`
}

// Load reads and parses the configuration file, fills defaults and applies
// environment overrides.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.ApplyEnv()

	return &config, nil
}

// ApplyDefaults fills zero values with the values the pipeline was designed around.
func (c *Config) ApplyDefaults() {
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.User == "" {
		c.RabbitMQ.User = "guest"
	}
	if c.RabbitMQ.Password == "" {
		c.RabbitMQ.Password = "guest"
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat == 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
	if c.RabbitMQ.Publish.Timeout == 0 {
		c.RabbitMQ.Publish.Timeout = 5 * time.Second
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = 1
	}

	t := &c.RabbitMQ.Topology
	if t.CPUJobs == "" {
		t.CPUJobs = "cpu_jobs"
	}
	if t.GPUJobs == "" {
		t.GPUJobs = "gpu_jobs"
	}
	if t.ImageJobs == "" {
		t.ImageJobs = "image_jobs"
	}
	if t.Results == "" {
		t.Results = "image_results"
	}

	if c.Images.Extension == "" {
		c.Images.Extension = ".jpg"
	}
	if c.Images.JPEGQuality == 0 {
		c.Images.JPEGQuality = 90
	}

	if c.Engine.Kernel == "" {
		c.Engine.Kernel = "sharpen"
	}

	if c.Worker.Backend == "" {
		c.Worker.Backend = "scalar"
	}

	if c.Publisher.Exchange == "" {
		c.Publisher.Exchange = t.ImageJobs
	}
	if c.Publisher.ReadWorkers == 0 {
		c.Publisher.ReadWorkers = 4
	}

	if c.Coordinator.ResultsPerJob == 0 {
		c.Coordinator.ResultsPerJob = 1
	}
	if c.Coordinator.BatchWorkers == 0 {
		c.Coordinator.BatchWorkers = 4
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "sharpen:attempts"
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 24 * time.Hour
	}
}

// ApplyEnv overrides the broker host and image folder from the environment.
func (c *Config) ApplyEnv() {
	if host := strings.TrimSpace(os.Getenv(EnvBrokerHost)); host != "" {
		c.RabbitMQ.Host = host
	}
	if folder := strings.TrimSpace(os.Getenv(EnvImageFolder)); folder != "" {
		c.Images.BaseFolder = folder
	}
}

// WorkerQueue returns the queue the worker consumes from. Unless set
// explicitly, GPU workers read gpu_jobs and CPU workers read cpu_jobs.
func (c *Config) WorkerQueue() string {
	if c.Worker.Queue != "" {
		return c.Worker.Queue
	}
	if c.Worker.Backend == "gpu" {
		return c.RabbitMQ.Topology.GPUJobs
	}
	return c.RabbitMQ.Topology.CPUJobs
}

func (c *Config) validateBroker() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("%w: rabbitmq host is required", ErrConfiguration)
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("%w: invalid rabbitmq port: %d (must be between %d and %d)", ErrConfiguration, c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Connection.RetryAttempts <= 0 {
		return fmt.Errorf("%w: rabbitmq retry_attempts must be greater than 0", ErrConfiguration)
	}

	return nil
}

func (c *Config) validateImages() error {
	if c.Images.BaseFolder == "" {
		return fmt.Errorf("%w: image base folder is required (set images.base_folder or %s)", ErrConfiguration, EnvImageFolder)
	}

	if c.Images.JPEGQuality < 1 || c.Images.JPEGQuality > 100 {
		return fmt.Errorf("%w: jpeg_quality must be between 1 and 100", ErrConfiguration)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if !c.Database.Enabled() {
		return nil
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("%w: invalid database port: %d (must be between %d and %d)", ErrConfiguration, c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("%w: database name is required", ErrConfiguration)
	}

	return nil
}

func (c *Config) validateBackend() error {
	switch c.Worker.Backend {
	case "scalar", "simd":
	case "gpu":
		if c.Engine.Device.Driver == "" {
			return fmt.Errorf("%w: engine.device.driver is required for the gpu backend", ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown worker backend %q", ErrConfiguration, c.Worker.Backend)
	}
	return nil
}

// ValidateWorkerConfig checks the settings a worker needs to start
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateBroker(); err != nil {
		return err
	}

	if err := c.validateImages(); err != nil {
		return err
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("%w: worker max_attempts must not be negative", ErrConfiguration)
	}

	// The worker settles one delivery before receiving the next.
	if c.RabbitMQ.Consumer.PrefetchCount != 1 {
		return fmt.Errorf("%w: consumer prefetch_count must be 1, got %d", ErrConfiguration, c.RabbitMQ.Consumer.PrefetchCount)
	}

	return nil
}

// ValidateDispatcherConfig checks the settings the publisher and coordinator need
func (c *Config) ValidateDispatcherConfig() error {
	if err := c.validateBroker(); err != nil {
		return err
	}

	if err := c.validateImages(); err != nil {
		return err
	}

	if c.Coordinator.Expected < 0 {
		return fmt.Errorf("%w: coordinator expected must not be negative", ErrConfiguration)
	}

	return c.validateDatabase()
}

// ValidateAPIConfig checks the settings the results API needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("%w: invalid server port: %d (must be between %d and %d)", ErrConfiguration, c.Server.Port, MinPort, MaxPort)
	}

	if !c.Database.Enabled() {
		return fmt.Errorf("%w: database host is required", ErrConfiguration)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateBroker(); err != nil {
		return err
	}

	return c.validateImages()
}

// ValidateBatchConfig checks the settings for local, broker-less processing
func (c *Config) ValidateBatchConfig() error {
	if err := c.validateImages(); err != nil {
		return err
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	if c.Coordinator.BatchWorkers <= 0 {
		return fmt.Errorf("%w: batch_workers must be greater than 0", ErrConfiguration)
	}

	return nil
}
