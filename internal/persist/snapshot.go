package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"loom/internal/domain"
	"loom/internal/infra"
	"loom/internal/storage"
)

const (
	TasksKey = "loom_tasks"
	BrandKey = "loom_brand"
	ThemeKey = "loom_theme"

	// InterruptedMessage marks tasks that were still running when the
	// previous process exited.
	InterruptedMessage = "Interrupted before completion"
)

// DefaultWindows are the task counts tried in order when saving.
var DefaultWindows = []int{10, 5}

// State is the persisted slice of the studio state.
type State struct {
	Tasks []domain.Task
	Brand domain.BrandSettings
	Theme domain.Theme
}

// DefaultState is what a fresh install starts with.
func DefaultState() State {
	return State{Tasks: []domain.Task{}, Brand: domain.DefaultBrand(), Theme: domain.ThemeLight}
}

// Snapshotter mirrors studio state into a blob store.
type Snapshotter struct {
	blobs   storage.Blobs
	windows []int
	logger  infra.Logger
}

// NewSnapshotter builds a snapshotter. Windows are sorted largest first and
// non-positive entries are ignored; an empty list uses DefaultWindows.
func NewSnapshotter(blobs storage.Blobs, windows []int, logger *infra.Logger) *Snapshotter {
	cleaned := make([]int, 0, len(windows))
	for _, w := range windows {
		if w > 0 {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultWindows...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(cleaned)))
	return &Snapshotter{blobs: blobs, windows: cleaned, logger: infra.OrDiscard(logger)}
}

// Windows returns the task counts tried by Save.
func (s *Snapshotter) Windows() []int {
	return append([]int(nil), s.windows...)
}

// Load reads every piece independently. Missing or malformed data yields the
// default for that piece only.
func (s *Snapshotter) Load(ctx context.Context) State {
	st := DefaultState()

	if raw, ok := s.read(ctx, TasksKey); ok {
		var tasks []domain.Task
		if err := json.Unmarshal(raw, &tasks); err != nil {
			s.logger.Warn().Err(err).Str("key", TasksKey).Msg("persist: discarding malformed task list")
		} else {
			st.Tasks = s.restoreTasks(tasks)
		}
	}

	if raw, ok := s.read(ctx, BrandKey); ok {
		var brand domain.BrandSettings
		if err := json.Unmarshal(raw, &brand); err != nil {
			s.logger.Warn().Err(err).Str("key", BrandKey).Msg("persist: discarding malformed brand settings")
		} else {
			st.Brand = brand
		}
	}

	if raw, ok := s.read(ctx, ThemeKey); ok {
		st.Theme = domain.ParseTheme(string(raw))
	}

	return st
}

// Save writes the newest tasks, then the brand in full and the theme. Quota
// failures on any of them shrink the task window and retry, so a growing
// brand pushes old tasks out rather than being dropped. Every failure is
// logged and swallowed. It reports how many tasks were persisted and whether
// the task write succeeded at all.
func (s *Snapshotter) Save(ctx context.Context, st State) (int, bool) {
	brand, err := json.Marshal(st.Brand)
	if err != nil {
		s.logger.Error().Err(err).Str("key", BrandKey).Msg("persist: encode brand failed")
	}
	theme := st.Theme
	if theme == "" {
		theme = domain.ThemeLight
	}

	for i, window := range s.windows {
		last := i == len(s.windows)-1
		n, err := s.saveTasks(ctx, st.Tasks, window)
		if err != nil {
			if errors.Is(err, storage.ErrQuotaExceeded) && !last {
				s.logger.Warn().Int("window", window).Int("next_window", s.windows[i+1]).Msg("persist: storage quota exceeded, shrinking task window")
				continue
			}
			s.logger.Error().Err(err).Int("window", window).Str("key", TasksKey).Msg("persist: save tasks failed")
			s.saveSettings(ctx, brand, theme)
			return 0, false
		}

		key, err := s.saveSettings(ctx, brand, theme)
		if err == nil {
			return n, true
		}
		if errors.Is(err, storage.ErrQuotaExceeded) && !last {
			s.logger.Warn().Str("key", key).Int("window", window).Int("next_window", s.windows[i+1]).Msg("persist: storage quota exceeded, shrinking task window")
			continue
		}
		s.logger.Error().Err(err).Str("key", key).Msg("persist: save settings failed")
		return n, true
	}
	return 0, false
}

func (s *Snapshotter) saveTasks(ctx context.Context, tasks []domain.Task, window int) (int, error) {
	n := min(window, len(tasks))
	data, err := json.Marshal(nonNil(tasks[:n]))
	if err != nil {
		return 0, err
	}
	if err := s.blobs.Set(ctx, TasksKey, data); err != nil {
		return 0, err
	}
	return n, nil
}

// saveSettings writes the brand and theme, returning the key that failed.
func (s *Snapshotter) saveSettings(ctx context.Context, brand []byte, theme domain.Theme) (string, error) {
	if brand != nil {
		if err := s.blobs.Set(ctx, BrandKey, brand); err != nil {
			return BrandKey, err
		}
	}
	if err := s.blobs.Set(ctx, ThemeKey, []byte(theme)); err != nil {
		return ThemeKey, err
	}
	return "", nil
}

func (s *Snapshotter) read(ctx context.Context, key string) ([]byte, bool) {
	raw, err := s.blobs.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("persist: read failed")
		}
		return nil, false
	}
	return raw, true
}

func (s *Snapshotter) restoreTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if !task.Status.Terminal() && task.Valid() {
			task = task.WithStatus(domain.TaskStatusFailed, InterruptedMessage)
		}
		if !task.Valid() {
			s.logger.Warn().Str("task_id", task.ID).Str("status", string(task.Status)).Msg("persist: dropping invalid task")
			continue
		}
		out = append(out, task)
	}
	return out
}

func nonNil(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}
