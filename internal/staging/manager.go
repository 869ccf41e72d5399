package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"repack/internal/fileutil"
	"repack/internal/logging"
	"repack/internal/services"
)

// StageStaging names the staging stage in failure messages.
const StageStaging = "staging"

const (
	contentDir = "content"
	lockFile   = ".lock"
	maxKeyLen  = 48
)

// Manager hands out per-job staging areas below a root directory.
type Manager struct {
	root      string
	logger    *slog.Logger
	removeAll func(string) error
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRemoveFunc replaces os.RemoveAll when areas are released. Tests use it
// to simulate cleanup failures.
func WithRemoveFunc(fn func(string) error) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.removeAll = fn
		}
	}
}

// NewManager returns a manager rooted at root. The root is created lazily.
func NewManager(root string, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{root: root, logger: logging.NewComponentLogger(logger, "staging"), removeAll: os.RemoveAll}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the directory holding all staging areas.
func (m *Manager) Root() string { return m.root }

// Area is a staging directory owned by exactly one job. Content is the
// extraction target; the area directory also holds the job's lock file.
type Area struct {
	Path    string
	Content string

	lock      *flock.Flock
	logger    *slog.Logger
	removeAll func(string) error
	once      sync.Once
	err       error
}

// Acquire creates a fresh area named after jobKey plus a random token and
// locks it for the lifetime of the job. An existing directory is never reused.
func (m *Manager) Acquire(ctx context.Context, jobKey string) (*Area, error) {
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrIO, StageStaging, "acquire", "cancelled", err)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, StageStaging, "acquire", "create staging root", err)
	}

	name := fmt.Sprintf("%s-%s", fileutil.Slug(jobKey, maxKeyLen, "job"), uuid.NewString())
	path := filepath.Join(m.root, name)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, services.Wrap(services.ErrIO, StageStaging, "acquire", "create staging directory", err)
	}

	area := &Area{
		Path:    path,
		Content: filepath.Join(path, contentDir),
		lock:      flock.New(filepath.Join(path, lockFile)),
		logger:    logging.WithContext(ctx, m.logger),
		removeAll: m.removeAll,
	}
	if err := os.Mkdir(area.Content, 0o755); err != nil {
		_ = os.RemoveAll(path)
		return nil, services.Wrap(services.ErrIO, StageStaging, "acquire", "create content directory", err)
	}
	locked, err := area.lock.TryLock()
	if err != nil || !locked {
		_ = os.RemoveAll(path)
		if err == nil {
			err = fmt.Errorf("lock %s held elsewhere", area.lock.Path())
		}
		return nil, services.Wrap(services.ErrIO, StageStaging, "acquire", "lock staging directory", err)
	}

	area.logger.Debug("staging area acquired", logging.String("path", path))
	return area, nil
}

// Release unlocks and recursively removes the area. It runs at most once;
// later calls return the first result.
func (a *Area) Release() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		if a.lock != nil {
			_ = a.lock.Unlock()
		}
		if err := a.removeAll(a.Path); err != nil {
			a.err = services.Wrap(services.ErrIO, StageStaging, "release", "remove staging directory", err)
			return
		}
		a.logger.Debug("staging area released", logging.String("path", a.Path))
	})
	return a.err
}
