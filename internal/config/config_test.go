package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PUBLIC_URL", "https://courier.example.com/")

	cfg := New()

	assert.Equal(t, "courier", cfg.App.Name)
	assert.False(t, cfg.App.LogPretty)
	assert.Equal(t, "https://courier.example.com", cfg.API.PublicURL)
	assert.Equal(t, "https://courier.example.com/l/", cfg.API.ClickURL)
	assert.Equal(t, "https://courier.example.com/webhook/mandrill/", cfg.Mandrill.WebhookURL)
	assert.Equal(t, time.Hour, cfg.Quota.Window)
}

func TestNewOverrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "3")
	t.Setenv("QUOTA_WINDOW", "90s")
	t.Setenv("MESSAGEBIRD_DEFAULT_PRICE", "0.04")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("DB_PORT", "not-a-number")

	cfg := New()

	assert.Equal(t, 3, cfg.Worker.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Quota.Window)
	assert.InDelta(t, 0.04, cfg.MessageBird.DefaultSMSPrice, 1e-9)
	assert.True(t, cfg.App.LogPretty)
	assert.Equal(t, 5432, cfg.DB.Port)
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{}
	cfg.DB.Host = "localhost"
	cfg.DB.Port = 5433
	cfg.DB.User = "u"
	cfg.DB.Password = "p"
	cfg.DB.Name = "courier"
	cfg.DB.SSLMode = "disable"

	assert.Equal(t, "host=localhost port=5433 user=u password=p dbname=courier sslmode=disable", cfg.PostgresDSN())
}
