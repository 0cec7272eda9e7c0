package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remindcal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "remindcal.db", cfg.Store.Path)
	assert.Equal(t, time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, 5*time.Second, cfg.Reminder.Grace)
	assert.Equal(t, 10*time.Second, cfg.Reminder.SendTimeout)
	assert.Equal(t, "*/15 * * * *", cfg.Import.Cron)
	assert.Equal(t, 30, cfg.Import.HorizonDays)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.Equal(t, "tokens", cfg.Google.TokenDir)
	assert.Empty(t, cfg.ICS)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
log_level: DEBUG
store:
  driver: memory
reminder:
  interval: 30s
  send_timeout: 2s
import:
  cron: "0 * * * *"
  horizon_days: 14
notify:
  webhook_url: https://hooks.example.com/remind
ics:
  - owner: 42
    url: https://example.com/team.ics
caldav:
  - owner: 7
    endpoint: https://caldav.example.com/
    username: alice
    password: secret
    calendar: Work
`)
	t.Setenv("REMINDCAL_HTTP_LISTEN", "127.0.0.1:9090")
	t.Setenv("REMINDCAL_IMPORT_HORIZON_DAYS", "21")
	t.Setenv("GOOGLE_CLIENT_ID", "client-from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 30*time.Second, cfg.Reminder.Interval)
	assert.Equal(t, 2*time.Second, cfg.Reminder.SendTimeout)
	assert.Equal(t, "0 * * * *", cfg.Import.Cron)
	assert.Equal(t, 21, cfg.Import.HorizonDays)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Listen)
	assert.Equal(t, "https://hooks.example.com/remind", cfg.Notify.WebhookURL)
	assert.Equal(t, "client-from-env", cfg.Google.ClientID)
	assert.Equal(t, []ICSFeed{{Owner: 42, URL: "https://example.com/team.ics"}}, cfg.ICS)
	require.Len(t, cfg.CalDAV, 1)
	assert.Equal(t, "Work", cfg.CalDAV[0].Calendar)
	assert.Equal(t, int64(7), cfg.CalDAV[0].Owner)
}

func TestLoad_ClampsValues(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
reminder:
  interval: 10ms
import:
  horizon_days: 5000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Reminder.Interval)
	assert.Equal(t, 366, cfg.Import.HorizonDays)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown driver", body: "store:\n  driver: mongo\n"},
		{name: "postgres without dsn", body: "store:\n  driver: postgres\n"},
		{name: "bad timezone", body: "timezone: Mars/Olympus\n"},
		{name: "bad cron", body: "import:\n  cron: every tuesday\n"},
		{name: "ics without owner", body: "ics:\n  - url: https://example.com/a.ics\n"},
		{name: "caldav without calendar", body: "caldav:\n  - owner: 1\n    endpoint: https://x/\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
