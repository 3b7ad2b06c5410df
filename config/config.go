// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required credentials (Twitch client id/secret), use ValidatePollReady.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultTemplate is used when a tracker has no custom message template.
const DefaultTemplate = ":red_circle: {streamer} is now live on Twitch!\n{title}\nViewers: {viewers}\n{url}"

type Config struct {
	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchUserLogin    string // default streamer for the status command

	// Polling
	PollInterval time.Duration

	// Persistence
	DataDir   string
	StatePath string // derived: DataDir/streamspy.json
	DBDsn     string // when set, state is kept in Postgres instead of the JSON file

	// Notifications
	NotifySink        string // log | webhook | irc
	TwitchBotUsername string // irc sink
	TwitchOAuthToken  string // irc sink

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds
// are missing; use ValidatePollReady() before starting the poller. Missing optional
// variables disable features (e.g., Postgres state, the IRC sink).
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchUserLogin = os.Getenv("TWITCH_USER_LOGIN")
	if cfg.TwitchUserLogin == "" {
		cfg.TwitchUserLogin = "streamer_login"
	}

	cfg.PollInterval = 60 * time.Second
	if v := os.Getenv("POLL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid POLL_SECONDS (positive integer): %q", v)
		}
		cfg.PollInterval = time.Duration(n) * time.Second
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	cfg.StatePath = filepath.Join(cfg.DataDir, "streamspy.json")
	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.NotifySink = os.Getenv("NOTIFY_SINK")
	if cfg.NotifySink == "" {
		cfg.NotifySink = "log"
	}
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidatePollReady checks required fields for the live-status poller.
func (c *Config) ValidatePollReady() error {
	if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET")
	}
	return nil
}

// ValidateIRCReady checks required fields when the IRC notification sink is selected.
func (c *Config) ValidateIRCReady() error {
	if c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN for NOTIFY_SINK=irc")
	}
	return nil
}
