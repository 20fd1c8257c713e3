// Package assets keeps the local copies of a song's music, lyrics and cover in
// step with what the user asked for.
package assets

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"songgrab/internal/core"
	"songgrab/internal/fsx"
	"songgrab/internal/i18n"
	"songgrab/pkg/pathplan"
)

// Fetcher downloads a URL into a file. download.Downloader implements it.
type Fetcher interface {
	FetchToFile(ctx context.Context, sourceURL, destination string) (int64, error)
}

// Observer is told the outcome of every asset transfer.
type Observer interface {
	ObserveAsset(kind core.AssetKind, outcome string)
}

// Status maps each applicable kind to whether its file exists.
type Status map[core.AssetKind]bool

// Result is what every reconciler operation reports. Kinds holds the kinds
// that were downloaded or removed by the call.
type Result struct {
	Kinds   []core.AssetKind `json:"kinds"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

// Options carries the collaborators of a Reconciler. Only Root and Fetcher are required.
type Options struct {
	Root      string
	Fetcher   Fetcher
	Revealer  Revealer
	Locker    *KeyedLocker
	Localizer *i18n.Localizer
	Observer  Observer
	Logger    *zap.Logger
}

// Reconciler tracks which assets of one song exist under Root and fetches only the missing ones.
type Reconciler struct {
	song     core.Song
	paths    pathplan.Paths
	fetcher  Fetcher
	revealer Revealer
	locker   *KeyedLocker
	loc      *i18n.Localizer
	observer Observer
	logger   *zap.Logger
	remove   func(path string) error

	mu     sync.RWMutex
	status Status
}

// New builds a reconciler for song and probes the filesystem once.
func New(song core.Song, opts Options) (*Reconciler, error) {
	if strings.TrimSpace(opts.Root) == "" {
		return nil, errors.New("download root must not be empty")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Revealer == nil {
		opts.Revealer = LogRevealer{Logger: opts.Logger}
	}
	if opts.Locker == nil {
		opts.Locker = NewKeyedLocker()
	}
	if opts.Localizer == nil {
		opts.Localizer = i18n.NewLocalizer(i18n.DefaultLanguage)
	}

	r := &Reconciler{
		song:     song,
		paths:    pathplan.Plan(song, opts.Root),
		fetcher:  opts.Fetcher,
		revealer: opts.Revealer,
		locker:   opts.Locker,
		loc:      opts.Localizer,
		observer: opts.Observer,
		logger:   opts.Logger.Named("assets").With(zap.String("song", song.Key())),
		remove:   fsx.RemoveFile,
	}
	r.Probe()
	return r, nil
}

// Song returns the song the reconciler manages.
func (r *Reconciler) Song() core.Song { return r.song }

// Paths returns a copy of the planned path of every applicable kind.
func (r *Reconciler) Paths() pathplan.Paths {
	out := make(pathplan.Paths, len(r.paths))
	for k, v := range r.paths {
		out[k] = v
	}
	return out
}

// Probe re-reads the filesystem and replaces the status snapshot.
func (r *Reconciler) Probe() Status {
	next := make(Status, len(r.paths))
	for kind, path := range r.paths {
		next[kind] = fsx.IsRegularFile(path)
	}

	r.mu.Lock()
	r.status = next
	r.mu.Unlock()
	return r.Status()
}

// Status returns a copy of the last probe.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Status, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}

// Ensure makes sure one asset exists. An asset already on disk is revealed instead.
func (r *Reconciler) Ensure(ctx context.Context, kind core.AssetKind) Result {
	if !r.song.Applicable(kind) {
		return Result{
			Message: r.loc.T("error.not_applicable", r.kindName(kind)),
			Err:     core.ErrNotApplicable,
		}
	}

	unlock, err := r.locker.Lock(ctx, r.song.Key())
	if err != nil {
		return Result{Message: r.loc.T("ensure.failed", r.kindName(kind), r.reason(err)), Err: err}
	}
	defer unlock()

	if r.Probe()[kind] {
		path := r.paths[kind]
		if err := r.revealer.Reveal(ctx, path); err != nil {
			r.logger.Warn("Failed to reveal asset", zap.String("path", path), zap.Error(err))
		}
		return Result{Message: r.loc.T("ensure.revealed", r.kindName(kind))}
	}

	err = r.transfer(ctx, kind)
	r.Probe()
	if err != nil {
		return Result{Message: r.loc.T("ensure.failed", r.kindName(kind), r.reason(err)), Err: err}
	}
	return Result{
		Kinds:   []core.AssetKind{kind},
		Message: r.loc.T("ensure.done", r.kindName(kind)),
	}
}

// EnsureAll downloads every missing applicable asset in order music, lyrics, cover.
// A music failure stops the run; later failures do not.
func (r *Reconciler) EnsureAll(ctx context.Context) Result {
	unlock, err := r.locker.Lock(ctx, r.song.Key())
	if err != nil {
		return Result{Message: r.loc.T("ensure_all.aborted", r.reason(err)), Err: err}
	}
	defer unlock()

	status := r.Probe()
	var missing []core.AssetKind
	for _, kind := range core.AssetKinds() {
		if r.song.Applicable(kind) && !status[kind] {
			missing = append(missing, kind)
		}
	}
	if len(missing) == 0 {
		return Result{Message: r.loc.T("ensure_all.nothing")}
	}

	var (
		done   []core.AssetKind
		failed []core.AssetKind
		errs   []error
	)
	for _, kind := range missing {
		err := ctx.Err()
		if err == nil {
			err = r.transfer(ctx, kind)
		}
		if err == nil {
			done = append(done, kind)
			continue
		}
		if kind == core.AssetMusic {
			r.Probe()
			return Result{Kinds: done, Message: r.loc.T("ensure_all.aborted", r.reason(err)), Err: err}
		}
		failed = append(failed, kind)
		errs = append(errs, err)
	}
	r.Probe()

	if len(failed) > 0 {
		err := errors.Join(errs...)
		return Result{
			Kinds:   done,
			Message: r.loc.T("ensure_all.partial", r.kindList(done), r.kindList(failed), r.reason(errs[0])),
			Err:     err,
		}
	}
	return Result{Kinds: done, Message: r.loc.T("ensure_all.done", r.kindList(done))}
}

// DeleteAll removes every asset the last probe saw on disk. A kind counts as
// removed only when its file is actually gone; failures do not stop the others.
func (r *Reconciler) DeleteAll(ctx context.Context) Result {
	unlock, err := r.locker.Lock(ctx, r.song.Key())
	if err != nil {
		return Result{Message: r.loc.T("error.cancelled"), Err: err}
	}
	defer unlock()

	status := r.Probe()
	var (
		removed []core.AssetKind
		failed  []core.AssetKind
		errs    []error
	)
	for _, kind := range core.AssetKinds() {
		if !status[kind] {
			continue
		}
		path := r.paths[kind]
		if err := r.remove(path); err != nil {
			r.logger.Warn("Failed to remove asset", zap.Stringer("kind", kind), zap.String("path", path), zap.Error(err))
			failed = append(failed, kind)
			errs = append(errs, &core.FileSystemError{Op: "remove", Path: path, Err: err})
			continue
		}
		removed = append(removed, kind)
	}
	r.Probe()

	switch {
	case len(failed) > 0:
		return Result{
			Kinds:   removed,
			Message: r.loc.T("delete.partial", r.kindList(removed), r.kindList(failed)),
			Err:     errors.Join(errs...),
		}
	case len(removed) == 0:
		return Result{Message: r.loc.T("delete.none")}
	default:
		r.logger.Info("Removed assets", zap.Int("count", len(removed)))
		return Result{Kinds: removed, Message: r.loc.T("delete.done", r.kindList(removed))}
	}
}

func (r *Reconciler) transfer(ctx context.Context, kind core.AssetKind) error {
	path := r.paths[kind]
	var err error
	switch kind {
	case core.AssetMusic:
		_, err = r.fetcher.FetchToFile(ctx, r.song.SourceURL, path)
	case core.AssetCover:
		_, err = r.fetcher.FetchToFile(ctx, r.song.CoverURL, path)
	case core.AssetLyrics:
		if werr := fsx.WriteFileAtomic(path, []byte(r.song.LyricsText)); werr != nil {
			err = &core.FileSystemError{Op: "write", Path: path, Err: werr}
		}
	default:
		err = core.ErrNotApplicable
	}

	if err == nil && !fsx.IsRegularFile(path) {
		err = &core.FileSystemError{Op: "verify", Path: path, Err: os.ErrNotExist}
	}

	outcome := "success"
	if err != nil {
		outcome = core.ErrorClass(err)
		r.logger.Warn("Asset transfer failed", zap.Stringer("kind", kind), zap.Error(err))
	} else {
		r.logger.Info("Asset saved", zap.Stringer("kind", kind), zap.String("path", path))
	}
	if r.observer != nil {
		r.observer.ObserveAsset(kind, outcome)
	}
	return err
}

func (r *Reconciler) kindName(kind core.AssetKind) string {
	return r.loc.T("asset." + kind.String())
}

func (r *Reconciler) kindList(kinds []core.AssetKind) string {
	if len(kinds) == 0 {
		return r.loc.T("asset.none")
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = r.kindName(k)
	}
	return strings.Join(names, ", ")
}

// reason turns err into a short localized explanation.
func (r *Reconciler) reason(err error) string {
	var (
		fsErr  *core.FileSystemError
		netErr *core.NetworkError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return r.loc.T("error.cancelled")
	case errors.Is(err, core.ErrNoSource):
		return r.loc.T("error.no_source")
	case core.StatusCode(err) != 0:
		return r.loc.T("error.http_status", core.StatusCode(err))
	case errors.As(err, &fsErr):
		return r.loc.T("error.filesystem", fsErr.Path)
	case errors.As(err, &netErr), errors.Is(err, core.ErrTooManyRedirects):
		return r.loc.T("error.network")
	default:
		return r.loc.T("error.generic")
	}
}
