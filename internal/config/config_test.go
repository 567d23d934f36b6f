package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 環境変数をクリア
	envVars := []string{
		"PORT", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB",
		"NATS_URL",
		"RESERVATION_HOLD_TTL", "CAPACITY_SPARE_THRESHOLD", "CAPACITY_TIGHT_THRESHOLD",
		"SWEEP_INTERVAL", "SWEEP_BATCH_SIZE", "DISPATCH_INTERVAL", "DISPATCH_BATCH_SIZE",
		"METRICS_USERNAME", "METRICS_PASSWORD",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}

	cfg := Load()

	// Server defaults
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)

	// Database defaults
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "tour_reservation", cfg.Database.DBName)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	// Redis defaults
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	// NATS defaults
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)

	// Reservation defaults
	assert.Equal(t, 30*time.Minute, cfg.Reservation.HoldTTL)
	assert.Equal(t, 0.5, cfg.Reservation.SpareThreshold)
	assert.Equal(t, 0.1, cfg.Reservation.TightThreshold)

	// Worker defaults
	assert.Equal(t, time.Minute, cfg.Worker.SweepInterval)
	assert.Equal(t, 100, cfg.Worker.SweepBatchSize)
	assert.Equal(t, 5*time.Second, cfg.Worker.DispatchInterval)
	assert.Equal(t, 100, cfg.Worker.DispatchBatch)
}

func TestLoad_CustomValues(t *testing.T) {
	// 環境変数を設定
	os.Setenv("PORT", "9090")
	os.Setenv("DB_HOST", "db.example.com")
	os.Setenv("DB_NAME", "testdb")
	os.Setenv("REDIS_HOST", "redis.example.com")
	os.Setenv("REDIS_DB", "1")
	os.Setenv("NATS_URL", "nats://broker:4222")
	os.Setenv("RESERVATION_HOLD_TTL", "15m")
	os.Setenv("CAPACITY_SPARE_THRESHOLD", "0.6")
	os.Setenv("SWEEP_INTERVAL", "30s")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_HOST")
		os.Unsetenv("DB_NAME")
		os.Unsetenv("REDIS_HOST")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("NATS_URL")
		os.Unsetenv("RESERVATION_HOLD_TTL")
		os.Unsetenv("CAPACITY_SPARE_THRESHOLD")
		os.Unsetenv("SWEEP_INTERVAL")
	}()

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "testdb", cfg.Database.DBName)
	assert.Equal(t, "redis.example.com", cfg.Redis.Host)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 15*time.Minute, cfg.Reservation.HoldTTL)
	assert.Equal(t, 0.6, cfg.Reservation.SpareThreshold)
	assert.Equal(t, 30*time.Second, cfg.Worker.SweepInterval)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	dsn := cfg.DSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "user=postgres")
	assert.Contains(t, dsn, "password=secret")
	assert.Contains(t, dsn, "dbname=testdb")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := &RedisConfig{
		Host: "localhost",
		Port: "6379",
	}

	assert.Equal(t, "localhost:6379", cfg.Addr())
}

func TestGetEnv(t *testing.T) {
	// 環境変数が設定されている場合
	os.Setenv("TEST_ENV_VAR", "custom_value")
	defer os.Unsetenv("TEST_ENV_VAR")

	assert.Equal(t, "custom_value", getEnv("TEST_ENV_VAR", "default"))

	// 環境変数が設定されていない場合
	assert.Equal(t, "default", getEnv("NON_EXISTENT_VAR", "default"))
}

func TestGetIntEnv(t *testing.T) {
	// 有効な整数
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")

	assert.Equal(t, 42, getIntEnv("TEST_INT", 0))

	// 無効な整数
	os.Setenv("TEST_INVALID_INT", "not_a_number")
	defer os.Unsetenv("TEST_INVALID_INT")

	assert.Equal(t, 99, getIntEnv("TEST_INVALID_INT", 99))

	// 存在しない変数
	assert.Equal(t, 100, getIntEnv("NON_EXISTENT_INT", 100))
}

func TestGetFloatEnv(t *testing.T) {
	// 有効な実数
	os.Setenv("TEST_FLOAT", "0.25")
	defer os.Unsetenv("TEST_FLOAT")

	assert.Equal(t, 0.25, getFloatEnv("TEST_FLOAT", 0))

	// 無効な実数
	os.Setenv("TEST_INVALID_FLOAT", "invalid")
	defer os.Unsetenv("TEST_INVALID_FLOAT")

	assert.Equal(t, 0.5, getFloatEnv("TEST_INVALID_FLOAT", 0.5))
}

func TestGetDurationEnv(t *testing.T) {
	// 有効な期間
	os.Setenv("TEST_DURATION", "5m")
	defer os.Unsetenv("TEST_DURATION")

	assert.Equal(t, 5*time.Minute, getDurationEnv("TEST_DURATION", time.Second))

	// 無効な期間
	os.Setenv("TEST_INVALID_DURATION", "invalid")
	defer os.Unsetenv("TEST_INVALID_DURATION")

	assert.Equal(t, 30*time.Second, getDurationEnv("TEST_INVALID_DURATION", 30*time.Second))
}
