package studio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/internal/domain"
	"loom/internal/infra"
	"loom/internal/infra/credentials"
	"loom/internal/persist"
	"loom/internal/prompt"
	"loom/internal/providers/image"
)

var (
	// ErrBusy is returned when a batch is submitted while another is generating.
	ErrBusy = errors.New("studio: a batch is already generating")
	// ErrMissingCredential blocks generation until an API key is selected.
	ErrMissingCredential = errors.New("studio: an API key must be selected before generating")
	// ErrTrainingInProgress is returned when brand training is already running.
	ErrTrainingInProgress = errors.New("studio: brand training already in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("studio: closed")
)

const defaultTrainingStep = 100 * time.Millisecond

// Persister receives every committed state change.
type Persister interface {
	Save(ctx context.Context, st persist.State) (int, bool)
}

// Options wires a Studio.
type Options struct {
	Generator image.Generator
	Expander  *prompt.Expander
	Gate      credentials.Gate
	Persister Persister
	Initial   persist.State

	// Concurrency bounds in-flight generator calls. Zero or less means one.
	Concurrency int
	// TrainingStep is the delay between 5% steps of brand training.
	TrainingStep time.Duration

	Logger *infra.Logger
	Now    func() time.Time
	NewID  func() string
}

// State is the view of the studio handed to callers. Slices are never
// mutated after a State is returned.
type State struct {
	Tasks            []domain.Task        `json:"tasks"`
	Brand            domain.BrandSettings `json:"brand"`
	Generating       bool                 `json:"generating"`
	Theme            domain.Theme         `json:"theme"`
	Training         bool                 `json:"training"`
	TrainingProgress int                  `json:"trainingProgress"`
}

// Studio owns the task list, brand settings and generating flag.
type Studio struct {
	gen          image.Generator
	expander     *prompt.Expander
	gate         credentials.Gate
	persister    Persister
	concurrency  int
	trainingStep time.Duration
	logger       infra.Logger
	now          func() time.Time
	newID        func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	tasks            []domain.Task
	brand            domain.BrandSettings
	theme            domain.Theme
	batch            *Batch
	training         bool
	trainingProgress int
	version          uint64

	saveMu sync.Mutex
	saved  uint64
}

// New builds a Studio seeded with opts.Initial.
func New(opts Options) (*Studio, error) {
	if opts.Generator == nil {
		return nil, errors.New("studio: generator is required")
	}
	expander := opts.Expander
	if expander == nil {
		expander = prompt.NewExpander(nil)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	step := opts.TrainingStep
	if step <= 0 {
		step = defaultTrainingStep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	initial := opts.Initial
	tasks := append([]domain.Task{}, initial.Tasks...)
	brand := initial.Brand
	if brand == (domain.BrandSettings{}) {
		brand = domain.DefaultBrand()
	}
	theme := initial.Theme
	if theme == "" {
		theme = domain.ThemeLight
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Studio{
		gen:          opts.Generator,
		expander:     expander,
		gate:         opts.Gate,
		persister:    opts.Persister,
		concurrency:  concurrency,
		trainingStep: step,
		logger:       infra.OrDiscard(opts.Logger),
		now:          now,
		newID:        newID,
		ctx:          ctx,
		cancel:       cancel,
		tasks:        tasks,
		brand:        brand,
		theme:        theme,
	}, nil
}

// Expander exposes the prompt expander, mainly for listing poses.
func (s *Studio) Expander() *prompt.Expander {
	return s.expander
}

// Snapshot returns the current state.
func (s *Studio) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Task looks up a task by id.
func (s *Studio) Task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := domain.IndexTask(s.tasks, id)
	if idx < 0 {
		return domain.Task{}, false
	}
	return s.tasks[idx], true
}

// Delete removes a task. Unknown ids are a no-op.
func (s *Studio) Delete(id string) State {
	s.mu.Lock()
	next, removed := domain.RemoveTask(s.tasks, id)
	if !removed {
		st := s.snapshotLocked()
		s.mu.Unlock()
		return st
	}
	s.tasks = next
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.logger.Debug().Str("task_id", id).Msg("studio: task deleted")
	s.persist(version, st)
	return st
}

// Clear removes every task. Updates from a running batch are discarded.
func (s *Studio) Clear() State {
	s.mu.Lock()
	s.tasks = []domain.Task{}
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("studio: task list cleared")
	s.persist(version, st)
	return st
}

// UpdateBrand replaces the brand settings wholesale.
func (s *Studio) UpdateBrand(brand domain.BrandSettings) State {
	s.mu.Lock()
	s.brand = brand
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.persist(version, st)
	return st
}

// SetTheme stores the UI colour scheme.
func (s *Studio) SetTheme(theme domain.Theme) State {
	s.mu.Lock()
	s.theme = domain.ParseTheme(string(theme))
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.persist(version, st)
	return st
}

// Wait blocks until no batch is generating.
func (s *Studio) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		b := s.batch
		s.mu.Unlock()
		if b == nil {
			return nil
		}
		select {
		case <-b.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels in-flight generator calls and waits for background work.
func (s *Studio) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Studio) snapshotLocked() State {
	return State{
		Tasks:            s.tasks,
		Brand:            s.brand,
		Generating:       s.batch != nil,
		Theme:            s.theme,
		Training:         s.training,
		TrainingProgress: s.trainingProgress,
	}
}

func (s *Studio) commitLocked() (uint64, State) {
	s.version++
	return s.version, s.snapshotLocked()
}

// persist hands st to the persister unless a newer state was already saved.
func (s *Studio) persist(version uint64, st State) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if version <= s.saved {
		return
	}
	s.saved = version
	s.persister.Save(context.WithoutCancel(s.ctx), persist.State{
		Tasks: st.Tasks,
		Brand: st.Brand,
		Theme: st.Theme,
	})
}
