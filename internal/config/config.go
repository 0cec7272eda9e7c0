// Package config loads runtime settings from an optional YAML file and REMINDCAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Timezone string `mapstructure:"timezone"`

	Store    StoreConfig    `mapstructure:"store"`
	Reminder ReminderConfig `mapstructure:"reminder"`
	Import   ImportConfig   `mapstructure:"import"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Google   GoogleConfig   `mapstructure:"google"`

	ICS    []ICSFeed       `mapstructure:"ics"`
	CalDAV []CalDAVAccount `mapstructure:"caldav"`

	// Location is Timezone resolved by Load.
	Location *time.Location `mapstructure:"-"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type ReminderConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Grace       time.Duration `mapstructure:"grace"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type ImportConfig struct {
	// Cron is a standard five-field schedule; empty disables scheduled imports.
	Cron        string `mapstructure:"cron"`
	HorizonDays int    `mapstructure:"horizon_days"`
}

type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenDir     string `mapstructure:"token_dir"`
}

// ICSFeed imports a subscription feed into an owner's calendar.
type ICSFeed struct {
	Owner int64  `mapstructure:"owner"`
	URL   string `mapstructure:"url"`
}

// CalDAVAccount imports a named CalDAV calendar into an owner's calendar.
type CalDAVAccount struct {
	Owner    int64  `mapstructure:"owner"`
	Endpoint string `mapstructure:"endpoint"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Calendar string `mapstructure:"calendar"`
}

// Load reads path, or ./remindcal.yaml when path is empty and the file exists, then
// applies environment overrides such as REMINDCAL_STORE_DRIVER.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("REMINDCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("log_level", "REMINDCAL_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("timezone", "REMINDCAL_TIMEZONE", "PRIMARY_TIMEZONE")
	_ = v.BindEnv("google.client_id", "REMINDCAL_GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_ID")
	_ = v.BindEnv("google.client_secret", "REMINDCAL_GOOGLE_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET")

	v.SetDefault("log_level", "info")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "remindcal.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("reminder.interval", time.Minute)
	v.SetDefault("reminder.grace", 5*time.Second)
	v.SetDefault("reminder.send_timeout", 10*time.Second)
	v.SetDefault("import.cron", "*/15 * * * *")
	v.SetDefault("import.horizon_days", 30)
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.token_dir", "tokens")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("remindcal")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))

	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	c.Location = loc

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.Reminder.Interval < time.Second {
		c.Reminder.Interval = time.Second
	}
	if c.Reminder.Grace <= 0 {
		c.Reminder.Grace = 5 * time.Second
	}
	if c.Reminder.SendTimeout <= 0 {
		c.Reminder.SendTimeout = 10 * time.Second
	}
	if c.Notify.Timeout <= 0 {
		c.Notify.Timeout = 10 * time.Second
	}
	if c.Import.HorizonDays < 1 {
		c.Import.HorizonDays = 1
	}
	if c.Import.HorizonDays > 366 {
		c.Import.HorizonDays = 366
	}

	c.Import.Cron = strings.TrimSpace(c.Import.Cron)
	if c.Import.Cron != "" {
		if _, err := cron.ParseStandard(c.Import.Cron); err != nil {
			return fmt.Errorf("invalid import.cron %q: %w", c.Import.Cron, err)
		}
	}

	for i, f := range c.ICS {
		if f.Owner == 0 || strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("ics[%d]: owner and url are required", i)
		}
	}
	for i, a := range c.CalDAV {
		if a.Owner == 0 || strings.TrimSpace(a.Endpoint) == "" || strings.TrimSpace(a.Calendar) == "" {
			return fmt.Errorf("caldav[%d]: owner, endpoint and calendar are required", i)
		}
	}
	return nil
}
