package configs

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	RabbitMQ   RabbitMQConfig
	Prediction PredictionConfig
	Consumer   ConsumerConfig
	Training   TrainingConfig
	Redis      RedisConfig
	Exporter   ExporterConfig
	Service    PredictionServiceConfig
}

// PredictionServiceConfig configures the standalone prediction service.
type PredictionServiceConfig struct {
	Port              string `envconfig:"PREDICTION_SERVICE_PORT" default:"8090"`
	TrainingBufferCap int    `envconfig:"TRAINING_BUFFER_CAP" default:"10000"`
	MinRetrainRecords int    `envconfig:"MIN_RETRAIN_RECORDS" default:"50"`
	JitterEnabled     bool   `envconfig:"PREDICTION_JITTER_ENABLED" default:"false"`
}

type AppConfig struct {
	ServerPort       string `envconfig:"SERVER_PORT" default:"8080"`
	AutoSendEnabled  bool   `envconfig:"AUTO_SEND_ENABLED" default:"false"`
	AutoSendSchedule string `envconfig:"AUTO_SEND_SCHEDULE" default:"@every 10s"`
}

type RabbitMQConfig struct {
	Username string `envconfig:"RABBIT_USERNAME" default:"guest"`
	Password string `envconfig:"RABBIT_PASSWORD" default:"guest"`
	Host     string `envconfig:"RABBIT_HOST" default:"localhost"`
	Port     string `envconfig:"RABBIT_PORT" default:"5672"`
	VHost    string `envconfig:"RABBIT_VHOST" default:"/"`
}

type PredictionConfig struct {
	BaseURL                  string `envconfig:"PREDICTION_BASE_URL" default:"http://localhost:8090"`
	TimeoutSeconds           int64  `envconfig:"PREDICTION_TIMEOUT_IN_SECONDS" default:"10"`
	HealthCacheWindowSeconds int64  `envconfig:"PREDICTION_HEALTH_CACHE_IN_SECONDS" default:"30"`
	BatchEnabled             bool   `envconfig:"PREDICTION_BATCH_ENABLED" default:"true"`
	BatchSize                int    `envconfig:"PREDICTION_BATCH_SIZE" default:"100"`
}

// DestinationOverride holds the per-destination consumer knobs. A zero value
// means "use the built-in policy table".
type DestinationOverride struct {
	Concurrency       int
	Prefetch          int
	MaxRetries        int
	RetryDelaySeconds int
}

type ConsumerConfig struct {
	CriticalConcurrency int `envconfig:"CONSUMER_CRITICAL_CONCURRENCY" default:"0"`
	CriticalPrefetch    int `envconfig:"CONSUMER_CRITICAL_PREFETCH" default:"0"`
	CriticalMaxRetries  int `envconfig:"CONSUMER_CRITICAL_MAX_RETRIES" default:"0"`
	CriticalRetryDelay  int `envconfig:"CONSUMER_CRITICAL_RETRY_DELAY_IN_SECONDS" default:"0"`

	HighConcurrency int `envconfig:"CONSUMER_HIGH_CONCURRENCY" default:"0"`
	HighPrefetch    int `envconfig:"CONSUMER_HIGH_PREFETCH" default:"0"`
	HighMaxRetries  int `envconfig:"CONSUMER_HIGH_MAX_RETRIES" default:"0"`
	HighRetryDelay  int `envconfig:"CONSUMER_HIGH_RETRY_DELAY_IN_SECONDS" default:"0"`

	NormalConcurrency int `envconfig:"CONSUMER_NORMAL_CONCURRENCY" default:"0"`
	NormalPrefetch    int `envconfig:"CONSUMER_NORMAL_PREFETCH" default:"0"`
	NormalMaxRetries  int `envconfig:"CONSUMER_NORMAL_MAX_RETRIES" default:"0"`
	NormalRetryDelay  int `envconfig:"CONSUMER_NORMAL_RETRY_DELAY_IN_SECONDS" default:"0"`

	LowConcurrency int `envconfig:"CONSUMER_LOW_CONCURRENCY" default:"0"`
	LowPrefetch    int `envconfig:"CONSUMER_LOW_PREFETCH" default:"0"`
	LowMaxRetries  int `envconfig:"CONSUMER_LOW_MAX_RETRIES" default:"0"`
	LowRetryDelay  int `envconfig:"CONSUMER_LOW_RETRY_DELAY_IN_SECONDS" default:"0"`

	BatchConcurrency int `envconfig:"CONSUMER_BATCH_CONCURRENCY" default:"0"`
	BatchPrefetch    int `envconfig:"CONSUMER_BATCH_PREFETCH" default:"0"`
	BatchMaxRetries  int `envconfig:"CONSUMER_BATCH_MAX_RETRIES" default:"0"`
	BatchRetryDelay  int `envconfig:"CONSUMER_BATCH_RETRY_DELAY_IN_SECONDS" default:"0"`

	AnomalyConcurrency int `envconfig:"CONSUMER_ANOMALY_CONCURRENCY" default:"0"`
	AnomalyPrefetch    int `envconfig:"CONSUMER_ANOMALY_PREFETCH" default:"0"`
	AnomalyMaxRetries  int `envconfig:"CONSUMER_ANOMALY_MAX_RETRIES" default:"0"`
	AnomalyRetryDelay  int `envconfig:"CONSUMER_ANOMALY_RETRY_DELAY_IN_SECONDS" default:"0"`
}

type TrainingConfig struct {
	ReportFailures bool `envconfig:"TRAINING_REPORT_FAILURES" default:"false"`
	QueueSize      int  `envconfig:"TRAINING_QUEUE_SIZE" default:"256"`
}

type RedisConfig struct {
	Username string `envconfig:"REDIS_USERNAME"`
	Password string `envconfig:"REDIS_PASSWORD"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	DBIndex  int32  `envconfig:"REDIS_DB_INDEX" default:"0"`
}

type ExporterConfig struct {
	OTLPEndpoint string `envconfig:"OTLP_TRACE_ENDPOINT"`
	MetricsPath  string `envconfig:"METRICS_PATH" default:"/metrics"`
}

// ToRabbitConnectionUri returns a connection URI to be used with the rabbitmq/amqp091-go package
func (d RabbitMQConfig) ToRabbitConnectionUri() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.VHost,
	)
}

// ToRedisConnectionUri returns a connection URI to be used with the redis/go-redis/v9 package
func (d RedisConfig) ToRedisConnectionUri() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/%d",
		d.Username,
		d.Password,
		d.Host,
		d.Port,
		d.DBIndex,
	)
}

func (p PredictionConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p PredictionConfig) HealthCacheWindow() time.Duration {
	return time.Duration(p.HealthCacheWindowSeconds) * time.Second
}

// Override returns the configured override for one destination.
func (c ConsumerConfig) Override(dest string) DestinationOverride {
	switch dest {
	case "critical":
		return DestinationOverride{c.CriticalConcurrency, c.CriticalPrefetch, c.CriticalMaxRetries, c.CriticalRetryDelay}
	case "high":
		return DestinationOverride{c.HighConcurrency, c.HighPrefetch, c.HighMaxRetries, c.HighRetryDelay}
	case "normal":
		return DestinationOverride{c.NormalConcurrency, c.NormalPrefetch, c.NormalMaxRetries, c.NormalRetryDelay}
	case "low":
		return DestinationOverride{c.LowConcurrency, c.LowPrefetch, c.LowMaxRetries, c.LowRetryDelay}
	case "batch":
		return DestinationOverride{c.BatchConcurrency, c.BatchPrefetch, c.BatchMaxRetries, c.BatchRetryDelay}
	case "anomaly":
		return DestinationOverride{c.AnomalyConcurrency, c.AnomalyPrefetch, c.AnomalyMaxRetries, c.AnomalyRetryDelay}
	default:
		return DestinationOverride{}
	}
}

func InitConfig() *Config {
	err := godotenv.Load()

	if err != nil && !os.IsNotExist(err) {
		log.Fatalf("Unable to load .env %v", err)
	}

	var cfg Config
	err = envconfig.Process("", &cfg)
	if err != nil {
		fmt.Print("Cannot load env")
	}

	return &cfg
}
