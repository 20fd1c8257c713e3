package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the TuneHub API root.
	DefaultBaseURL = "https://tunehub.sayqz.com/api/v1"
	// DefaultQuality is the quality requested when none is configured.
	DefaultQuality = "320k"
	// DefaultDownloadTimeout bounds a single asset download.
	DefaultDownloadTimeout = 10 * time.Minute
	// DefaultSearchTimeout bounds a descriptor fetch plus the search request.
	DefaultSearchTimeout = 15 * time.Second
	// DefaultResolveTimeout bounds a parse call to the resolver.
	DefaultResolveTimeout = 30 * time.Second
	// DefaultMaxRedirects bounds redirect chains followed by the downloader.
	DefaultMaxRedirects = 10
	// DefaultFloodLimitPerMinute is the API request budget per client.
	DefaultFloodLimitPerMinute = 60
	// DefaultLanguage is used for user-facing messages.
	DefaultLanguage = "en"
)

// Qualities lists the quality tags the resolver accepts.
func Qualities() []string {
	return []string{"128k", "320k", "flac", "flac24bit"}
}

type Config struct {
	TuneHub  TuneHubConfig
	Download DownloadConfig
	Search   SearchConfig
	Server   ServerConfig
	Log      LogConfig
	App      AppConfig
}

type TuneHubConfig struct {
	BaseURL        string
	APIKey         string
	Quality        string
	ResolveTimeout time.Duration
}

type DownloadConfig struct {
	Dir          string
	Timeout      time.Duration
	MaxRedirects int
}

type SearchConfig struct {
	Timeout time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	HistoryDB           string
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		TuneHub: TuneHubConfig{
			BaseURL:        DefaultBaseURL,
			Quality:        DefaultQuality,
			ResolveTimeout: DefaultResolveTimeout,
		},
		Download: DownloadConfig{
			Dir:          DefaultDownloadDir(),
			Timeout:      DefaultDownloadTimeout,
			MaxRedirects: DefaultMaxRedirects,
		},
		Search: SearchConfig{
			Timeout: DefaultSearchTimeout,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8787,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            DefaultLanguage,
			HistoryDB:           "",
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}

// DefaultDownloadDir is ~/Downloads, falling back to the working directory.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

// ValidateResolve checks what a parse call needs.
func (c *Config) ValidateResolve() error {
	var errs []error
	if strings.TrimSpace(c.TuneHub.APIKey) == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if !validQuality(c.TuneHub.Quality) {
		errs = append(errs, fmt.Errorf("quality must be one of %s, got %q",
			strings.Join(Qualities(), ", "), c.TuneHub.Quality))
	}
	return errors.Join(append(errs, c.validateCommon()...)...)
}

// ValidateSearch checks what a search call needs.
func (c *Config) ValidateSearch() error {
	return errors.Join(c.validateCommon()...)
}

func (c *Config) validateCommon() []error {
	var errs []error
	if strings.TrimSpace(c.TuneHub.BaseURL) == "" {
		errs = append(errs, errors.New("base url must not be empty"))
	}
	if strings.TrimSpace(c.Download.Dir) == "" {
		errs = append(errs, errors.New("download dir must not be empty"))
	}
	if c.Download.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("max redirects must not be negative, got %d", c.Download.MaxRedirects))
	}
	return errs
}

func validQuality(q string) bool {
	for _, v := range Qualities() {
		if q == v {
			return true
		}
	}
	return false
}
