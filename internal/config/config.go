package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Webhook struct {
		Secret string `mapstructure:"secret"` // shared secret expected in the apikey header or token query param
	} `mapstructure:"webhook"`
	NATS struct {
		URL            string             `mapstructure:"url"`
		Events         ConsumerNatsConfig `mapstructure:"events"`
		RealtimePrefix string             `mapstructure:"realtimePrefix"` // subject prefix for UI broadcast events
		PublishAckWait time.Duration      `mapstructure:"publishAckWait"` // max wait for JetStream publish ack
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Account struct {
		ID string `mapstructure:"id"`
	} `mapstructure:"account"`
	Gateway struct {
		BaseURL string        `mapstructure:"baseURL"`
		APIKey  string        `mapstructure:"apiKey"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"gateway"`
	AI struct {
		BaseURL      string        `mapstructure:"baseURL"`
		APIKey       string        `mapstructure:"apiKey"`
		Model        string        `mapstructure:"model"`
		Timeout      time.Duration `mapstructure:"timeout"`      // single-attempt completion budget
		MaxTokens    int           `mapstructure:"maxTokens"`
		HistoryLimit int           `mapstructure:"historyLimit"` // messages of context given to the model
	} `mapstructure:"ai"`
	Processing struct {
		ReadOverrideWindow time.Duration `mapstructure:"readOverrideWindow"` // suppress stale unread overwrites after a read action
	} `mapstructure:"processing"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		AIReply AIReplyWorkerPoolConfig `mapstructure:"aiReply"`
	} `mapstructure:"workerPools"`
}

// AIReplyWorkerPoolConfig holds configuration for the AI reply worker pool
type AIReplyWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	TaskBudget time.Duration `mapstructure:"taskBudget"` // Wall-clock budget per AI continuation
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// ConsumerNatsConfig holds configuration specific to the event trigger consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	Subject      string        `mapstructure:"subject"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before giving up
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("nats.realtimePrefix", "realtime")
	v.SetDefault("nats.publishAckWait", 5*time.Second)
	v.SetDefault("nats.events.stream", "crm_events")
	v.SetDefault("nats.events.consumer", "crm-event-processor-")
	v.SetDefault("nats.events.group", "crm-event-group-")
	v.SetDefault("nats.events.subject", "v1.crm.events")
	v.SetDefault("nats.events.maxAge", 7)
	v.SetDefault("nats.events.maxDeliver", 5)
	v.SetDefault("nats.events.nakBaseDelay", time.Second)
	v.SetDefault("nats.events.nakMaxDelay", 30*time.Second)

	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("ai.baseURL", "https://api.openai.com/v1")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.timeout", 45*time.Second)
	v.SetDefault("ai.maxTokens", 1024)
	v.SetDefault("ai.historyLimit", 10)

	v.SetDefault("processing.readOverrideWindow", 10*time.Second)

	// WorkerPools defaults
	v.SetDefault("workerPools.aiReply.poolSize", 8)
	v.SetDefault("workerPools.aiReply.queueSize", 1000)
	v.SetDefault("workerPools.aiReply.taskBudget", time.Minute)
	v.SetDefault("workerPools.aiReply.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.nexcrm")
	v.AddConfigPath("/etc/nexcrm")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if account := os.Getenv("ACCOUNT_ID"); account != "" {
		v.Set("account.id", account)
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		v.Set("webhook.secret", secret)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		v.Set("ai.apiKey", key)
	}
	if key := os.Getenv("GATEWAY_API_KEY"); key != "" {
		v.Set("gateway.apiKey", key)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
