// Package config loads runtime settings from the environment, with an
// optional .env file for local development. Missing credentials for optional
// integrations (mail, Drive) only log; missing core credentials fail the
// load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"minutesbot/app/pkg/logger"
)

type Config struct {
	OpenAIAPIKey string

	SlackBotToken      string
	SlackSigningSecret string
	SlackChannelID     string

	GmailUser string
	GmailPass string

	DriveAccessToken  string
	DriveFolderID     string
	DriveWatchFolder  string
	WatchEnabled      bool
	WebhookSecret     string
	PollInterval      time.Duration
	DefaultRemindHour int

	ListenAddr string
	// BaseURL is the public origin Drive pushes notifications to.
	BaseURL string
	DataDir string
	LogDir  string

	// UserMap resolves assignee display names to Slack user ids.
	UserMap map[string]string
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("config: .env not loaded: %v", err)
	}

	cfg := Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),
		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		SlackChannelID:     os.Getenv("SLACK_CHANNEL_ID"),
		GmailUser:          os.Getenv("GMAIL_USER"),
		GmailPass:          os.Getenv("GMAIL_PASS"),
		DriveAccessToken:   os.Getenv("GOOGLE_DRIVE_ACCESS_TOKEN"),
		DriveFolderID:      os.Getenv("GOOGLE_DRIVE_FOLDER_ID"),
		DriveWatchFolder:   os.Getenv("GOOGLE_DRIVE_WATCH_FOLDER_ID"),
		WatchEnabled:       envBool("WATCH_ENABLED", false),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
		PollInterval:       time.Duration(envInt("POLL_INTERVAL_SEC", 60)) * time.Second,
		DefaultRemindHour:  envInt("DEFAULT_REMIND_HOUR", 10),
		ListenAddr:         envDefault("LISTEN_ADDR", ":8080"),
		BaseURL:            strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		DataDir:            envDefault("DATA_DIR", "data"),
		LogDir:             envDefault("LOG_DIR", "logs"),
	}

	userMap, err := loadUserMap()
	if err != nil {
		return Config{}, err
	}
	cfg.UserMap = userMap

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.warnOptional()
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(c.SlackBotToken) == "" {
		problems = append(problems, "SLACK_BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.SlackSigningSecret) == "" {
		problems = append(problems, "SLACK_SIGNING_SECRET is required")
	}
	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	if c.DefaultRemindHour < 0 || c.DefaultRemindHour > 23 {
		return fmt.Errorf("config: DEFAULT_REMIND_HOUR must be 0-23, got %d", c.DefaultRemindHour)
	}
	return nil
}

func (c Config) warnOptional() {
	if c.GmailUser == "" || c.GmailPass == "" {
		logger.Warn("config: Gmail credentials not set, mail delivery disabled")
	}
	if c.DriveAccessToken == "" {
		logger.Warn("config: Drive access token not set, Drive upload and watch disabled")
	}
	if c.WatchEnabled && c.BaseURL == "" {
		logger.Warn("config: WATCH_ENABLED without BASE_URL, falling back to polling only")
	}
}

// MailEnabled reports whether mail delivery is configured.
func (c Config) MailEnabled() bool {
	return c.GmailUser != "" && c.GmailPass != ""
}

// DriveEnabled reports whether the Drive integration is configured.
func (c Config) DriveEnabled() bool {
	return c.DriveAccessToken != ""
}

// NotificationURL is the push-notification endpoint derived from BaseURL.
func (c Config) NotificationURL() string {
	if c.BaseURL == "" {
		return ""
	}
	return c.BaseURL + "/drive/notifications"
}

// loadUserMap reads the name-to-Slack-id map from SLACK_USER_MAP_FILE or the
// inline SLACK_USER_MAP value. Both are YAML; JSON is valid YAML, so the
// inline form accepts either.
func loadUserMap() (map[string]string, error) {
	var raw []byte
	if path := os.Getenv("SLACK_USER_MAP_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read user map %s: %w", path, err)
		}
		raw = data
	} else if inline := os.Getenv("SLACK_USER_MAP"); inline != "" {
		raw = []byte(inline)
	} else {
		return map[string]string{}, nil
	}

	userMap := map[string]string{}
	if err := yaml.Unmarshal(raw, &userMap); err != nil {
		return nil, fmt.Errorf("config: parse user map: %w", err)
	}
	return userMap, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("config: %s=%q is not a number, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warn("config: %s=%q is not a boolean, using %v", key, v, fallback)
		return fallback
	}
	return b
}
