package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("IDEMPOTENCY_REPLAY", "")

	cfg := Load()

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Kafka.PublishTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Idempotency.ProcessingTTL)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.ProcessedTTL)
	assert.True(t, cfg.Idempotency.Replay)
	assert.False(t, cfg.Business.ReleaseInventoryOnPaymentFailure)
	assert.Equal(t, 1.0, cfg.Business.PaymentSuccessRate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PUBLISH_TIMEOUT", "3s")
	t.Setenv("IDEMPOTENCY_REPLAY", "false")
	t.Setenv("RELEASE_INVENTORY_ON_PAYMENT_FAILURE", "true")
	t.Setenv("PAYMENT_SUCCESS_RATE", "0.8")
	t.Setenv("REDIS_DB", "2")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Kafka.PublishTimeout)
	assert.False(t, cfg.Idempotency.Replay)
	assert.True(t, cfg.Business.ReleaseInventoryOnPaymentFailure)
	assert.Equal(t, 0.8, cfg.Business.PaymentSuccessRate)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "none")
	t.Setenv("PUBLISH_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "x")

	cfg := Load()

	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Kafka.PublishTimeout)
	assert.Equal(t, 0, cfg.Redis.DB)
}
