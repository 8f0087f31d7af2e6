// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Spotify    SpotifyConfig           `yaml:"spotify"`
	Twitch     TwitchConfig            `yaml:"twitch"`
	Requests   RequestsConfig          `yaml:"requests"`
	Playback   PlaybackConfig          `yaml:"playback"`
	Blocklist  BlocklistConfig         `yaml:"blocklist"`
	Filters    map[string]FilterConfig `yaml:"filters"`
	Messages   MessagesConfig          `yaml:"messages"`
	SessionLog SessionLogConfig        `yaml:"session_log"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	Addr string `yaml:"addr" default:"127.0.0.1:5174"`
	// AllowRemote disables the loopback-only guard on the dashboard API.
	AllowRemote bool `yaml:"allow_remote"`
}

// SpotifyConfig represents Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	RedirectURL  string `yaml:"redirect_url" default:"http://127.0.0.1:8888/callback"`
	Market       string `yaml:"market" validate:"omitempty,len=2"`
}

// TwitchConfig represents the chat connection configuration.
type TwitchConfig struct {
	Channel string `yaml:"channel" validate:"required"`
	// Nick is the account the bot chats as. Empty means the channel name.
	Nick  string `yaml:"nick"`
	Token string `yaml:"token" validate:"required"`
	// RewardID pins redemption matching to one Channel Points reward.
	RewardID string `yaml:"reward_id"`
	// RewardTitles are reward names treated as song requests.
	RewardTitles []string `yaml:"reward_titles"`
}

// RequestsConfig holds the initial runtime settings. They are clamped
// and adjustable at runtime through the dashboard.
type RequestsConfig struct {
	MaxQueueSize    int `yaml:"max_queue_size" default:"10" validate:"gte=1,lte=100"`
	CooldownSeconds int `yaml:"cooldown_seconds" default:"300" validate:"gte=0,lte=3600"`
	SkipThreshold   int `yaml:"skip_threshold" default:"5" validate:"gte=1,lte=100"`
}

// PlaybackConfig represents reconciler tuning.
type PlaybackConfig struct {
	PollIntervalMs       int `yaml:"poll_interval_ms" default:"2000" validate:"gte=500,lte=30000"`
	CommandAttempts      int `yaml:"command_attempts" default:"3" validate:"gte=1,lte=10"`
	CommandRetryDelayMs  int `yaml:"command_retry_delay_ms" default:"1000" validate:"gte=100,lte=10000"`
	TransitionDeadlineMs int `yaml:"transition_deadline_ms" default:"10000" validate:"gte=1000,lte=60000"`
	FailureBackoffMs     int `yaml:"failure_backoff_ms" default:"15000" validate:"gte=1000,lte=120000"`
}

// BlocklistConfig seeds the blocklist at startup.
type BlocklistConfig struct {
	Artists  []string `yaml:"artists"`
	TrackIDs []string `yaml:"track_ids"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  *bool          `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents chat reply templates. Placeholders in braces
// are expanded per reply: {user}, {title}, {artist}, {position}, {max},
// {wait}, {kind}.
type MessagesConfig struct {
	Accepted      string `yaml:"accepted" default:"@{user} added to the queue at position {position}: {title} by {artist}"`
	QueueFull     string `yaml:"queue_full" default:"@{user} the request queue is full ({max} songs), try again later"`
	Duplicate     string `yaml:"duplicate" default:"@{user} that song was already requested this stream"`
	Blocked       string `yaml:"blocked" default:"@{user} that song is not allowed here"`
	Cooldown      string `yaml:"cooldown" default:"@{user} please wait {wait} before requesting another song"`
	TrackNotFound string `yaml:"track_not_found" default:"@{user} could not find that song on Spotify"`
	WrongLinkKind string `yaml:"wrong_link_kind" default:"@{user} that is a {kind} link, send a single track instead"`
	DefaultError  string `yaml:"default_error" default:"@{user} something went wrong, please try again"`
}

// SessionLogConfig represents the per-session CSV history log.
type SessionLogConfig struct {
	// Enabled is on unless the file turns it off.
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir" default:"logs/sessions"`
}

// IsEnabled reports whether the session log should be written.
func (s SessionLogConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// LoggingConfig represents logger configuration.
type LoggingConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
	File   string `yaml:"file"`
}

// defaultRewardTitles match a redemption to a song request by its reward
// name when no reward ID is pinned.
var defaultRewardTitles = []string{"songredeem", "song request", "songrequest", "song", "sr"}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	cfg.normalize()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("TWITCH_TOKEN"); v != "" {
		c.Twitch.Token = v
	}
	if v := os.Getenv("TWITCH_CHANNEL"); v != "" {
		c.Twitch.Channel = v
	}
	if v := os.Getenv("TWITCH_NICK"); v != "" {
		c.Twitch.Nick = v
	}
}

// normalize cleans up values that have more than one accepted spelling.
func (c *Config) normalize() {
	c.Twitch.Channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Twitch.Channel), "#"))
	if c.Twitch.Nick == "" {
		c.Twitch.Nick = c.Twitch.Channel
	}
	c.Twitch.Nick = strings.ToLower(strings.TrimSpace(c.Twitch.Nick))
	if c.Twitch.Token != "" && !strings.HasPrefix(c.Twitch.Token, "oauth:") {
		c.Twitch.Token = "oauth:" + c.Twitch.Token
	}
	if len(c.Twitch.RewardTitles) == 0 {
		c.Twitch.RewardTitles = append([]string(nil), defaultRewardTitles...)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// GetMessage returns the reply template for the given reject code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "accepted":
		return c.Messages.Accepted
	case "queue_full":
		return c.Messages.QueueFull
	case "duplicate":
		return c.Messages.Duplicate
	case "blocked":
		return c.Messages.Blocked
	case "cooldown":
		return c.Messages.Cooldown
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "wrong_link_kind":
		return c.Messages.WrongLinkKind
	default:
		return c.Messages.DefaultError
	}
}

// IsFilterEnabled checks if a filter is enabled. Filters default to
// enabled; a filter is off only when the file says so.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok && f.Enabled != nil {
		return *f.Enabled
	}
	return true
}

// FilterSettings returns the settings map for a filter, never nil.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok && f.Settings != nil {
		return f.Settings
	}
	return map[string]any{}
}
