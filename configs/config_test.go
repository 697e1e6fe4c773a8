package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToRabbitConnectionUri(t *testing.T) {
	cfg := RabbitMQConfig{Username: "admin", Password: "secret", Host: "mq", Port: "5672", VHost: "/"}
	assert.Equal(t, "amqp://admin:secret@mq:5672/", cfg.ToRabbitConnectionUri())
}

func TestToRedisConnectionUri(t *testing.T) {
	cfg := RedisConfig{Username: "u", Password: "p", Host: "cache", Port: "6379", DBIndex: 2}
	assert.Equal(t, "redis://u:p@cache:6379/2", cfg.ToRedisConnectionUri())
}

func TestPredictionDurations(t *testing.T) {
	cfg := PredictionConfig{TimeoutSeconds: 10, HealthCacheWindowSeconds: 30}
	assert.Equal(t, 10*time.Second, cfg.Timeout())
	assert.Equal(t, 30*time.Second, cfg.HealthCacheWindow())
}

func TestConsumerOverrideLookup(t *testing.T) {
	cfg := ConsumerConfig{
		CriticalConcurrency: 8,
		BatchRetryDelay:     20,
	}

	critical := cfg.Override("critical")
	assert.Equal(t, 8, critical.Concurrency)
	assert.Zero(t, critical.Prefetch)

	batch := cfg.Override("batch")
	assert.Equal(t, 20, batch.RetryDelaySeconds)

	assert.Equal(t, DestinationOverride{}, cfg.Override("nonexistent"))
}
