// Package app wires link parsing, the resolver, search, downloads and history
// into the operations the CLI and the local API expose.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"songgrab/internal/assets"
	"songgrab/internal/core"
	"songgrab/internal/download"
	"songgrab/internal/i18n"
	"songgrab/internal/search"
	"songgrab/internal/store"
	"songgrab/internal/tunehub"
	"songgrab/pkg/musiclink"
)

// ErrUnsupportedQuality is returned by Parse for a quality the resolver does not know.
var ErrUnsupportedQuality = errors.New("unsupported quality")

// Recorder collects the metrics of every component.
type Recorder interface {
	download.Recorder
	assets.Observer
	search.Recorder
	tunehub.Recorder
}

// ParseResult is the outcome of one parse call.
type ParseResult struct {
	Platform     core.Platform `json:"platform"`
	IDs          string        `json:"ids"`
	AutoDetected bool          `json:"autoDetected"`
	Quality      string        `json:"quality"`
	Songs        []core.Song   `json:"songs"`
}

// Service is the application facade.
type Service struct {
	config     *core.Config
	links      *musiclink.Manager
	resolver   *tunehub.Client
	search     *search.Resolver
	downloader *download.Downloader
	history    *store.History
	historyDB  *store.SQLiteStore
	locker     *assets.KeyedLocker
	localizer  *i18n.Localizer
	revealer   assets.Revealer
	recorder   Recorder
	logger     *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder attaches metrics to every component.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithRevealer sets how already downloaded assets are shown to the user.
func WithRevealer(r assets.Revealer) Option {
	return func(s *Service) { s.revealer = r }
}

// New builds the service from config. When a history database is configured it
// is opened and loaded.
func New(ctx context.Context, config *core.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		config:    config,
		links:     musiclink.NewManager(),
		history:   store.NewHistory(store.MaxHistory, store.DefaultFalsePositiveRate),
		locker:    assets.NewKeyedLocker(),
		localizer: i18n.NewLocalizer(config.App.Language),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.revealer == nil {
		s.revealer = assets.LogRevealer{Logger: logger}
	}

	var (
		tunehubOpts  []tunehub.Option
		searchOpts   []search.Option
		downloadOpts []download.Option
	)
	if s.recorder != nil {
		tunehubOpts = append(tunehubOpts, tunehub.WithRecorder(s.recorder))
		searchOpts = append(searchOpts, search.WithRecorder(s.recorder))
		downloadOpts = append(downloadOpts, download.WithRecorder(s.recorder))
	}

	client, err := tunehub.NewClient(config.TuneHub, logger, tunehubOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver client: %w", err)
	}
	s.resolver = client
	s.search = search.NewResolver(client, tunehub.NewHTTPRequester(nil), config.Search, logger, searchOpts...)
	s.downloader = download.New(config.Download, logger.Named("download"), downloadOpts...)

	if path := strings.TrimSpace(config.App.HistoryDB); path != "" {
		db, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		entries, err := db.Load(ctx, store.MaxHistory)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		s.history.Load(entries)
		s.historyDB = db
		logger.Info("Loaded history", zap.Int("entries", len(entries)), zap.String("path", path))
	}
	return s, nil
}

// Close releases the history database.
func (s *Service) Close() error {
	if s.historyDB != nil {
		return s.historyDB.Close()
	}
	return nil
}

// Localizer returns the localizer for user-facing messages.
func (s *Service) Localizer() *i18n.Localizer { return s.localizer }

// Parse resolves pasted text, a link or an id list, into songs and records
// the successful ones in the history.
func (s *Service) Parse(ctx context.Context, text string, selected core.Platform, quality string) (*ParseResult, error) {
	if strings.TrimSpace(s.config.TuneHub.APIKey) == "" {
		return nil, core.ErrMissingAPIKey
	}
	if quality == "" {
		quality = s.config.TuneHub.Quality
	}
	if !isQuality(quality) {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedQuality, quality)
	}
	if selected == "" {
		selected = core.PlatformNetease
	}

	req, err := s.links.BuildRequest(ctx, text, selected)
	if err != nil {
		return nil, err
	}

	songs, err := s.resolver.Parse(ctx, tunehub.ParseRequest{
		Platform: req.Platform,
		IDs:      req.IDs,
		Quality:  quality,
	})
	if err != nil {
		return nil, err
	}

	if added := s.history.Record(songs, time.Now()); len(added) > 0 {
		s.persistHistory(ctx)
	}

	return &ParseResult{
		Platform:     req.Platform,
		IDs:          req.IDs,
		AutoDetected: req.AutoDetected,
		Quality:      quality,
		Songs:        songs,
	}, nil
}

// Search runs a catalog search.
func (s *Service) Search(ctx context.Context, platform core.Platform, keyword string) (*search.Outcome, error) {
	return s.search.Search(ctx, platform, keyword)
}

// Assets returns a freshly probed reconciler for song under the download dir.
func (s *Service) Assets(song core.Song) (*assets.Reconciler, error) {
	var observer assets.Observer
	if s.recorder != nil {
		observer = s.recorder
	}
	return assets.New(song, assets.Options{
		Root:      s.config.Download.Dir,
		Fetcher:   s.downloader,
		Revealer:  s.revealer,
		Locker:    s.locker,
		Localizer: s.localizer,
		Observer:  observer,
		Logger:    s.logger,
	})
}

// Song looks a song up in the history by its platform:id key.
func (s *Service) Song(key string) (core.Song, bool) {
	e, ok := s.history.Get(key)
	return e.Song, ok
}

// History lists the history, newest first.
func (s *Service) History() []store.Entry {
	return s.history.List()
}

// FindHistory returns the history entries matching a free-text query, best match first.
func (s *Service) FindHistory(query string) []store.Entry {
	return s.history.Find(query, store.DefaultMinScore)
}

// ClearHistory empties the in-memory and the persisted history.
func (s *Service) ClearHistory(ctx context.Context) error {
	s.history.Clear()
	if s.historyDB != nil {
		if err := s.historyDB.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
	}
	return nil
}

func (s *Service) persistHistory(ctx context.Context) {
	if s.historyDB == nil {
		return
	}
	if err := s.historyDB.Save(ctx, s.history.List()); err != nil {
		s.logger.Warn("Failed to save history", zap.Error(err))
	}
}

// Describe turns an error of Parse or Search into a localized message.
func (s *Service) Describe(err error) string {
	var (
		cfgErr       *core.ConfigurationMissingError
		transformErr *core.TransformEvaluationError
		statusErr    *core.HTTPStatusError
		netErr       *core.NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return s.localizer.T("error.cancelled")
	case errors.Is(err, core.ErrMissingAPIKey):
		return s.localizer.T("error.missing_api_key")
	case errors.Is(err, musiclink.ErrEmptyInput), errors.Is(err, search.ErrEmptyKeyword):
		return s.localizer.T("error.empty_input")
	case errors.As(err, &cfgErr):
		return s.localizer.T("error.unsupported", cfgErr.Platform, cfgErr.Capability)
	case errors.As(err, &transformErr):
		return s.localizer.T("error.transform", transformErr.Platform)
	case errors.As(err, &statusErr):
		detail := fmt.Sprintf("%d", statusErr.StatusCode)
		if msg := strings.TrimSpace(statusErr.Message); msg != "" {
			detail += " - " + msg
		}
		return s.localizer.T("error.resolve_failed", detail)
	case errors.As(err, &netErr):
		return s.localizer.T("error.network")
	default:
		return s.localizer.T("error.resolve_failed", err.Error())
	}
}

func isQuality(q string) bool {
	for _, v := range core.Qualities() {
		if v == q {
			return true
		}
	}
	return false
}
