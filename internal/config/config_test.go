package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "postgres")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_NAME", "realestate_crm")
	t.Setenv("DB_SSLMODE", "disable")

	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.QueueDriver)
	assert.Equal(t, "@every 5m", cfg.SchedulerSpec)
	assert.Equal(t, 100*time.Millisecond, cfg.SendInterval)
	assert.Equal(t, 3, cfg.QueueMaxRetries)
	assert.Equal(t, "postgres://postgres:s3cret@db:5432/realestate_crm?sslmode=disable", cfg.DSN())
}

func TestDatabaseURLWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@h/n")
	cfg, _, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/n", cfg.DSN())
}

func TestRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", "kafka")
	_, _, err := Load()
	assert.ErrorContains(t, err, "QUEUE_DRIVER")

	t.Setenv("QUEUE_DRIVER", "amqp")
	t.Setenv("MAIL_TRANSPORT", "carrier-pigeon")
	_, _, err = Load()
	assert.ErrorContains(t, err, "MAIL_TRANSPORT")
}
