package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("LINK_BLACKLIST", " scam.com, ,phishing ,")
	assert.Equal(t, []string{"scam.com", "phishing"}, getEnvAsList("LINK_BLACKLIST", nil))

	t.Setenv("LINK_BLACKLIST", "")
	assert.Equal(t, DefaultBlacklist, getEnvAsList("LINK_BLACKLIST", DefaultBlacklist))
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "750ms", want: 750 * time.Millisecond},
		{name: "plain seconds", value: "3", want: 3 * time.Second},
		{name: "garbage falls back", value: "soon", want: 10 * time.Second},
		{name: "unset falls back", value: "", want: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FETCH_TIMEOUT", tt.value)
			assert.Equal(t, tt.want, getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second))
		})
	}
}

func TestValidateForWorker(t *testing.T) {
	valid := Config{
		WorkerConcurrency:    5,
		ValidationRatePerSec: 10,
		FetchTimeout:         10 * time.Second,
		FetchMaxRedirects:    5,
		FetchMaxBodyBytes:    1 << 20,
		DequeueTimeout:       5 * time.Second,
		RetryPollInterval:    5 * time.Second,
	}
	assert.NoError(t, valid.ValidateForWorker())

	noWorkers := valid
	noWorkers.WorkerConcurrency = 0
	assert.Error(t, noWorkers.ValidateForWorker())

	noRate := valid
	noRate.ValidationRatePerSec = 0
	assert.Error(t, noRate.ValidateForWorker())

	noBody := valid
	noBody.FetchMaxBodyBytes = 0
	assert.Error(t, noBody.ValidateForWorker())

	noPoll := valid
	noPoll.RetryPollInterval = 0
	assert.Error(t, noPoll.ValidateForWorker())
}

func TestFromEnvLeavesStoresOptional(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("WORKER_CONCURRENCY", "8")

	cfg := fromEnv()
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 8, cfg.WorkerConcurrency)
	assert.Error(t, cfg.ValidateForStores())

	t.Setenv("DATABASE_URL", "postgres://localhost/fitfeed")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg = fromEnv()
	assert.NoError(t, cfg.ValidateForStores())
}

func TestValidateForStores(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/fitfeed"}
	assert.ErrorContains(t, cfg.ValidateForStores(), "REDIS_URL")

	cfg = Config{RedisURL: "redis://localhost:6379/0"}
	assert.ErrorContains(t, cfg.ValidateForStores(), "DATABASE_URL")
}
