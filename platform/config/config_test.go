package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTOMATION_SECRET", "s3cret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRequiresAutomationSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("AUTOMATION_SECRET", "   ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOMATION_SECRET")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/crm")
	t.Setenv("AUTOMATION_SECRET", "s3cret")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("AUTOMATION_SEQUENCE_PAGE_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.GetSequencePageSize())
	assert.Equal(t, 14, cfg.GetWitheringThresholdDays())
	assert.Equal(t, 15*time.Minute, cfg.GetTaskProcessingTimeout())
	assert.False(t, cfg.GetEmailEnabled())
}
