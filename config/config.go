// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup; call Validate
// before starting the server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/onnwee/liveroom/session"
)

type Config struct {
	// HTTP
	Port        string
	StaticDir   string
	CORSOrigins []string
	AdminToken  string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Authorization
	AccessPIN string
	HostsFile string
	Hosts     []session.Host

	// Sessions
	DefaultUsername     string
	LegacyDefaultMirror bool
	Grace               time.Duration

	// Live source
	LiveSource         string
	WebcastURL         string
	WebcastAPIKey      string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchHelixURL     string
	YouTubeAPIKey      string

	// Database (optional journal)
	DBDsn string

	// Redis (optional external event mirror)
	RedisURL string

	// Voice commentary
	OpenAIKey         string
	ElevenLabsKey     string
	ElevenLabsVoiceID string
}

// Load reads environment variables and applies defaults. Missing optional
// variables disable features (journal, voice, Helix lookups).
func Load() (*Config, error) {
	cfg := &Config{
		Port:                env("PORT", "3000"),
		StaticDir:           env("STATIC_DIR", "public"),
		AdminToken:          os.Getenv("ADMIN_TOKEN"),
		LogLevel:            env("LOG_LEVEL", "info"),
		LogFormat:           env("LOG_FORMAT", "text"),
		LogFile:             os.Getenv("LOG_FILE"),
		AccessPIN:           os.Getenv("ACCESS_PIN"),
		HostsFile:           os.Getenv("HOSTS_FILE"),
		DefaultUsername:     env("TIKTOK_USERNAME", "broneotodak"),
		LiveSource:          os.Getenv("LIVE_SOURCE"),
		WebcastURL:          os.Getenv("WEBCAST_URL"),
		WebcastAPIKey:       os.Getenv("EULER_API_KEY"),
		TwitchClientID:      os.Getenv("TWITCH_CLIENT_ID"),
		TwitchClientSecret:  os.Getenv("TWITCH_CLIENT_SECRET"),
		TwitchHelixURL:      os.Getenv("TWITCH_HELIX_URL"),
		YouTubeAPIKey:       os.Getenv("YOUTUBE_API_KEY"),
		DBDsn:               os.Getenv("DB_DSN"),
		RedisURL:            os.Getenv("REDIS_URL"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		ElevenLabsKey:       os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:   os.Getenv("ELEVENLABS_VOICE_ID"),
		LegacyDefaultMirror: true,
		Grace:               session.DefaultGrace,
	}

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if v := os.Getenv("LEGACY_DEFAULT_MIRROR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LEGACY_DEFAULT_MIRROR: %w", err)
		}
		cfg.LegacyDefaultMirror = b
	}

	if v := os.Getenv("GRACE_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GRACE_PERIOD (duration): %w", err)
		}
		cfg.Grace = d
	}

	if cfg.HostsFile != "" {
		hosts, err := LoadHosts(cfg.HostsFile)
		if err != nil {
			return nil, err
		}
		cfg.Hosts = hosts
	}

	return cfg, nil
}

// hostsDoc is the HOSTS_FILE layout: a map from host token to its entry.
//
//	hosts:
//	  s3cret:
//	    displayName: Alice
//	    roomId: alice
type hostsDoc struct {
	Hosts map[string]session.Host `yaml:"hosts"`
}

// LoadHosts reads the host token table from a YAML file.
func LoadHosts(path string) ([]session.Host, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	return ParseHosts(b)
}

// ParseHosts decodes a host token table. Tokens and room ids must be unique.
func ParseHosts(b []byte) ([]session.Host, error) {
	var doc hostsDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse hosts file: %w", err)
	}
	rooms := make(map[string]string, len(doc.Hosts))
	hosts := make([]session.Host, 0, len(doc.Hosts))
	for token, h := range doc.Hosts {
		h.Token = token
		if h.RoomID == "" {
			return nil, fmt.Errorf("hosts file: token for %q has no roomId", h.DisplayName)
		}
		if other, dup := rooms[h.RoomID]; dup {
			return nil, fmt.Errorf("hosts file: room %q assigned to both %q and %q", h.RoomID, other, h.DisplayName)
		}
		rooms[h.RoomID] = h.DisplayName
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	switch c.SourceKind() {
	case "webcast":
		if c.WebcastURL == "" {
			errs = append(errs, errors.New("LIVE_SOURCE=webcast requires WEBCAST_URL"))
		}
	case "youtube":
		if c.YouTubeAPIKey == "" {
			errs = append(errs, errors.New("LIVE_SOURCE=youtube requires YOUTUBE_API_KEY"))
		}
	case "twitch", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown LIVE_SOURCE %q", c.LiveSource))
	}
	if c.Grace < 0 {
		errs = append(errs, errors.New("GRACE_PERIOD must not be negative"))
	}
	return errors.Join(errs...)
}

// SourceKind is the live source to build. An unset LIVE_SOURCE means the
// webcast relay when WEBCAST_URL is set and no live source otherwise.
func (c *Config) SourceKind() string {
	if c.LiveSource != "" {
		return c.LiveSource
	}
	if c.WebcastURL != "" {
		return "webcast"
	}
	return "none"
}

// VoiceEnabled reports whether both commentary keys are set.
func (c *Config) VoiceEnabled() bool {
	return c.OpenAIKey != "" && c.ElevenLabsKey != ""
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
