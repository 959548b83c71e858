package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"loom/internal/domain"
	"loom/internal/infra/credentials"
	"loom/internal/prompt"
	"loom/internal/providers/image"
)

const unknownErrorMessage = "Unknown error occurred"

var errEmptyImage = errors.New("No image generated in response")

// Submission is one batch request from the view.
type Submission struct {
	// Text is the raw multi-line description box; one description per line.
	Text           string
	Poses          []string
	AspectRatio    domain.AspectRatio
	ReferenceImage string
}

// Batch is a handle on a running batch.
type Batch struct {
	ID      string
	TaskIDs []string

	done chan struct{}
}

// Done is closed once every task of the batch is terminal.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Submit expands sub into prompts and starts a batch. An empty expansion is a
// silent no-op returning a nil batch.
func (s *Studio) Submit(ctx context.Context, sub Submission) (*Batch, error) {
	aspect, err := domain.ParseAspectRatio(string(sub.AspectRatio))
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(sub.ReferenceImage)
	prompts := s.expander.Expand(prompt.Input{
		Text:         sub.Text,
		HasReference: reference != "",
		Poses:        sub.Poses,
	})
	return s.SubmitPrompts(ctx, prompts, domain.TaskConfig{AspectRatio: aspect, ReferenceImage: reference})
}

// SubmitPrompts starts a batch over already expanded prompts.
func (s *Studio) SubmitPrompts(ctx context.Context, prompts []string, cfg domain.TaskConfig) (*Batch, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	aspect, err := domain.ParseAspectRatio(string(cfg.AspectRatio))
	if err != nil {
		return nil, err
	}
	cfg.AspectRatio = aspect

	if s.Snapshot().Generating {
		return nil, ErrBusy
	}
	if !credentials.Check(ctx, s.gate, &s.logger) {
		return nil, ErrMissingCredential
	}

	created := s.now().UnixMilli()
	fresh := make([]domain.Task, len(prompts))
	ids := make([]string, len(prompts))
	for i, p := range prompts {
		ids[i] = s.newID()
		fresh[i] = domain.Task{
			ID:        ids[i],
			Prompt:    p,
			Status:    domain.TaskStatusPending,
			Timestamp: created,
			Config:    cfg,
		}
	}
	b := &Batch{ID: s.newID(), TaskIDs: ids, done: make(chan struct{})}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.batch != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	next := make([]domain.Task, 0, len(fresh)+len(s.tasks))
	next = append(next, fresh...)
	next = append(next, s.tasks...)
	s.tasks = next
	s.batch = b
	style := s.brand.PDPStyle
	version, st := s.commitLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info().
		Str("batch_id", b.ID).
		Int("tasks", len(fresh)).
		Str("aspect_ratio", string(cfg.AspectRatio)).
		Bool("reference", cfg.ReferenceImage != "").
		Msg("studio: batch submitted")
	s.persist(version, st)

	go s.run(b, fresh, style)
	return b, nil
}

func (s *Studio) run(b *Batch, tasks []domain.Task, style string) {
	defer s.wg.Done()
	defer s.finish(b)

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			s.process(b, task, style)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Studio) process(b *Batch, task domain.Task, style string) {
	if !s.transition(task.ID, domain.TaskStatusProcessing, "") {
		s.logger.Debug().Str("batch_id", b.ID).Str("task_id", task.ID).Msg("studio: task removed before start, skipping")
		return
	}

	url, err := s.generate(task, style)
	if err == nil && url == "" {
		err = errEmptyImage
	}
	if err != nil {
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = unknownErrorMessage
		}
		s.logger.Warn().Err(err).Str("batch_id", b.ID).Str("task_id", task.ID).Msg("studio: task failed")
		s.transition(task.ID, domain.TaskStatusFailed, msg)
		return
	}

	s.logger.Debug().Str("batch_id", b.ID).Str("task_id", task.ID).Msg("studio: task completed")
	s.transition(task.ID, domain.TaskStatusCompleted, url)
}

// generate calls the generator, turning a panic into that task's failure.
func (s *Studio) generate(task domain.Task, style string) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return s.gen.GenerateImage(s.ctx, image.Request{
		Prompt:         task.Prompt,
		AspectRatio:    task.Config.AspectRatio,
		ReferenceImage: task.Config.ReferenceImage,
		BrandStyle:     style,
	})
}

// transition replaces the task in a fresh copy of the list. Ids no longer in
// the list are ignored and reported as false.
func (s *Studio) transition(id string, status domain.TaskStatus, result string) bool {
	s.mu.Lock()
	idx := domain.IndexTask(s.tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next := make([]domain.Task, len(s.tasks))
	copy(next, s.tasks)
	next[idx] = next[idx].WithStatus(status, result)
	s.tasks = next
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.persist(version, st)
	return true
}

func (s *Studio) finish(b *Batch) {
	s.mu.Lock()
	if s.batch == b {
		s.batch = nil
	}
	version, st := s.commitLocked()
	s.mu.Unlock()

	s.persist(version, st)
	close(b.done)
	s.logger.Info().Str("batch_id", b.ID).Msg("studio: batch finished")
}
