package studio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loom/internal/domain"
	"loom/internal/persist"
	"loom/internal/prompt"
	"loom/internal/providers/image"
)

type stubGate struct {
	has bool
	err error
}

func (g stubGate) HasCredential(ctx context.Context) (bool, error) { return g.has, g.err }

func (g stubGate) SelectCredential(ctx context.Context, key string) error { return nil }

type recordingPersister struct {
	mu     sync.Mutex
	states []persist.State
}

func (r *recordingPersister) Save(ctx context.Context, st persist.State) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
	return len(st.Tasks), true
}

func (r *recordingPersister) all() []persist.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]persist.State(nil), r.states...)
}

func okGenerator() image.Generator {
	return image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		return "data:image/png;base64,QUJD", nil
	})
}

func newTestStudio(t *testing.T, opts Options) *Studio {
	t.Helper()
	if opts.Generator == nil {
		opts.Generator = okGenerator()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitBatch(t *testing.T, b *Batch) {
	t.Helper()
	if b == nil {
		t.Fatalf("expected a batch")
	}
	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("batch did not finish")
	}
}

func statuses(tasks []domain.Task) []domain.TaskStatus {
	out := make([]domain.TaskStatus, len(tasks))
	for i, task := range tasks {
		out[i] = task.Status
	}
	return out
}

func TestBatchIsolatesTaskFailures(t *testing.T) {
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		if req.Prompt == "p2" {
			return "", errors.New("The model did not return any images.")
		}
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})

	b, err := s.SubmitPrompts(context.Background(), []string{"p1", "p2", "p3"}, domain.TaskConfig{AspectRatio: domain.AspectSquare})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	waitBatch(t, b)

	st := s.Snapshot()
	got := statuses(st.Tasks)
	want := []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCompleted}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", got, want)
		}
	}
	if st.Tasks[1].Error != "The model did not return any images." {
		t.Fatalf("unexpected error message: %q", st.Tasks[1].Error)
	}
	if st.Generating {
		t.Fatalf("generating flag should be cleared")
	}
}

func TestSubmitExpandsDescriptionsTimesPoses(t *testing.T) {
	fixed := time.UnixMilli(1700000000123)
	s := newTestStudio(t, Options{Now: func() time.Time { return fixed }})

	first, err := s.Submit(context.Background(), Submission{Text: "old batch"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitBatch(t, first)

	b, err := s.Submit(context.Background(), Submission{
		Text:        "linen shirt\n\n  denim jacket  \n",
		Poses:       []string{"front", "back"},
		AspectRatio: domain.AspectWide,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(b.TaskIDs) != 4 {
		t.Fatalf("created %d tasks, want 4", len(b.TaskIDs))
	}
	waitBatch(t, b)

	tasks := s.Snapshot().Tasks
	if len(tasks) != 5 {
		t.Fatalf("list has %d tasks, want 5", len(tasks))
	}
	prefixes := []string{"linen shirt, full body front", "linen shirt, full body back", "denim jacket, full body front", "denim jacket, full body back"}
	for i, prefix := range prefixes {
		if tasks[i].ID != b.TaskIDs[i] {
			t.Fatalf("task %d id = %s, want %s", i, tasks[i].ID, b.TaskIDs[i])
		}
		if !strings.HasPrefix(tasks[i].Prompt, prefix) {
			t.Fatalf("task %d prompt = %q, want prefix %q", i, tasks[i].Prompt, prefix)
		}
		if tasks[i].Config.AspectRatio != domain.AspectWide || tasks[i].Timestamp != fixed.UnixMilli() {
			t.Fatalf("task %d config/timestamp = %+v/%d", i, tasks[i].Config, tasks[i].Timestamp)
		}
	}
	if tasks[4].ID != first.TaskIDs[0] {
		t.Fatalf("older batch should be last")
	}
}

func TestSubmitEmptyIsNoop(t *testing.T) {
	rec := &recordingPersister{}
	s := newTestStudio(t, Options{Persister: rec})

	b, err := s.Submit(context.Background(), Submission{Text: " \n \n", Poses: []string{"front"}})
	if err != nil || b != nil {
		t.Fatalf("Submit = %v, %v; want nil, nil", b, err)
	}
	st := s.Snapshot()
	if st.Generating || len(st.Tasks) != 0 {
		t.Fatalf("state changed: %+v", st)
	}
	if len(rec.all()) != 0 {
		t.Fatalf("empty submission should not persist")
	}
}

func TestSubmitReferenceOnlyUsesDefaultDescription(t *testing.T) {
	var mu sync.Mutex
	var refs []string
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		mu.Lock()
		refs = append(refs, req.ReferenceImage)
		mu.Unlock()
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})

	ref := "data:image/png;base64,iVBORw0KGgo="
	b, err := s.Submit(context.Background(), Submission{ReferenceImage: ref, Poses: []string{"front", "back", "side"}})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	waitBatch(t, b)

	tasks := s.Snapshot().Tasks
	if len(tasks) != 3 {
		t.Fatalf("created %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if !strings.HasPrefix(task.Prompt, prompt.DefaultDescription) {
			t.Fatalf("prompt %q missing default description", task.Prompt)
		}
		if task.Config.ReferenceImage != ref || task.Config.AspectRatio != domain.DefaultAspectRatio {
			t.Fatalf("unexpected config: %+v", task.Config)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	for _, got := range refs {
		if got != ref {
			t.Fatalf("generator saw reference %q", got)
		}
	}
}

func TestEveryObservedStateKeepsInvariant(t *testing.T) {
	rec := &recordingPersister{}
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		if req.Prompt == "bad" {
			return "", errors.New("boom")
		}
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen, Persister: rec})

	b, err := s.SubmitPrompts(context.Background(), []string{"good", "bad", "good again"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	waitBatch(t, b)

	states := rec.all()
	// submit + 2 transitions per task + finish
	if len(states) != 8 {
		t.Fatalf("observed %d states, want 8", len(states))
	}
	for i, st := range states {
		for _, task := range st.Tasks {
			if !task.Valid() {
				t.Fatalf("state %d has invalid task %+v", i, task)
			}
		}
	}
	last := states[len(states)-1]
	final := s.Snapshot()
	for i := range final.Tasks {
		if last.Tasks[i] != final.Tasks[i] {
			t.Fatalf("last persisted state differs from final state")
		}
	}
}

func TestGeneratingFlagDuringBatch(t *testing.T) {
	var s *Studio
	var sawGenerating atomic.Bool
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		st := s.Snapshot()
		if st.Generating {
			sawGenerating.Store(true)
		}
		for _, task := range st.Tasks {
			if task.Prompt == req.Prompt && task.Status != domain.TaskStatusProcessing {
				t.Errorf("task %q should be processing during its call, got %s", req.Prompt, task.Status)
			}
		}
		return "data:image/png;base64,QUJD", nil
	})
	s = newTestStudio(t, Options{Generator: gen})

	b, err := s.SubmitPrompts(context.Background(), []string{"a", "b"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	waitBatch(t, b)
	if !sawGenerating.Load() {
		t.Fatalf("generating flag was not set while tasks ran")
	}
	if s.Snapshot().Generating {
		t.Fatalf("generating flag should be cleared")
	}
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	rec := &recordingPersister{}
	s := newTestStudio(t, Options{Persister: rec})
	b, _ := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{})
	waitBatch(t, b)
	before := s.Snapshot()
	saves := len(rec.all())

	after := s.Delete("missing")
	if len(after.Tasks) != len(before.Tasks) || after.Tasks[0] != before.Tasks[0] {
		t.Fatalf("list changed: %+v", after.Tasks)
	}
	if len(rec.all()) != saves {
		t.Fatalf("no-op delete should not persist")
	}

	st := s.Delete(b.TaskIDs[0])
	if len(st.Tasks) != 0 {
		t.Fatalf("task was not deleted")
	}
}

func TestSubmitWhileGeneratingIsBusy(t *testing.T) {
	release := make(chan struct{})
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		<-release
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})

	b, err := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	if _, err := s.SubmitPrompts(context.Background(), []string{"b"}, domain.TaskConfig{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	close(release)
	waitBatch(t, b)
	if len(s.Snapshot().Tasks) != 1 {
		t.Fatalf("busy submission should not add tasks")
	}
}

func TestCredentialGate(t *testing.T) {
	s := newTestStudio(t, Options{Gate: stubGate{has: false}})
	if _, err := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{}); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	if st := s.Snapshot(); len(st.Tasks) != 0 || st.Generating {
		t.Fatalf("state changed without credential: %+v", st)
	}

	permissive := newTestStudio(t, Options{Gate: stubGate{err: errors.New("capability missing")}})
	b, err := permissive.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("failing check should be permissive, got %v", err)
	}
	waitBatch(t, b)
}

func TestDeleteDuringProcessingSuppressesLateUpdate(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		started <- req.Prompt
		<-release
		return "data:image/png;base64,QUJD", nil
	})
	rec := &recordingPersister{}
	s := newTestStudio(t, Options{Generator: gen, Persister: rec})

	b, err := s.SubmitPrompts(context.Background(), []string{"a", "b"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	if got := <-started; got != "a" {
		t.Fatalf("first call = %q, want a", got)
	}
	s.Delete(b.TaskIDs[0])
	close(release)
	waitBatch(t, b)

	tasks := s.Snapshot().Tasks
	if len(tasks) != 1 || tasks[0].ID != b.TaskIDs[1] || tasks[0].Status != domain.TaskStatusCompleted {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	deleted := false
	for _, st := range rec.all() {
		present := domain.IndexTask(st.Tasks, b.TaskIDs[0]) >= 0
		if deleted && present {
			t.Fatalf("deleted task reappeared in a later state")
		}
		if !present {
			deleted = true
		}
	}
}

func TestClearDuringBatchSkipsRemainingTasks(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	var calls atomic.Int32
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		calls.Add(1)
		started <- req.Prompt
		<-release
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})

	b, err := s.SubmitPrompts(context.Background(), []string{"a", "b", "c"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	<-started
	s.Clear()
	close(release)
	waitBatch(t, b)

	if st := s.Snapshot(); len(st.Tasks) != 0 || st.Generating {
		t.Fatalf("unexpected state after clear: %+v", st)
	}
	if calls.Load() != 1 {
		t.Fatalf("generator called %d times, want 1", calls.Load())
	}
}

func TestConcurrencyKeepsDisplayOrder(t *testing.T) {
	var inFlight, peak atomic.Int32
	delays := map[string]time.Duration{"p1": 60 * time.Millisecond, "p2": 30 * time.Millisecond, "p3": 5 * time.Millisecond, "p4": 1 * time.Millisecond}
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(delays[req.Prompt])
		inFlight.Add(-1)
		return "data:image/png;base64," + req.Prompt, nil
	})
	s := newTestStudio(t, Options{Generator: gen, Concurrency: 2})

	b, err := s.SubmitPrompts(context.Background(), []string{"p1", "p2", "p3", "p4"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	waitBatch(t, b)

	if peak.Load() > 2 {
		t.Fatalf("peak in-flight = %d, want <= 2", peak.Load())
	}
	tasks := s.Snapshot().Tasks
	for i, want := range []string{"p1", "p2", "p3", "p4"} {
		if tasks[i].Prompt != want || tasks[i].Status != domain.TaskStatusCompleted {
			t.Fatalf("task %d = %+v, want completed %s", i, tasks[i], want)
		}
	}
}

func TestGeneratorPanicAndEmptyError(t *testing.T) {
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		switch req.Prompt {
		case "panic":
			panic("boom")
		case "blank":
			return "", errors.New("  ")
		case "nothing":
			return "", nil
		}
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})

	b, err := s.SubmitPrompts(context.Background(), []string{"panic", "blank", "nothing", "fine"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	waitBatch(t, b)

	tasks := s.Snapshot().Tasks
	wantErrs := []string{"generator panic: boom", unknownErrorMessage, "No image generated in response"}
	for i, want := range wantErrs {
		if tasks[i].Status != domain.TaskStatusFailed || tasks[i].Error != want {
			t.Fatalf("task %d = %+v, want failed %q", i, tasks[i], want)
		}
	}
	if tasks[3].Status != domain.TaskStatusCompleted {
		t.Fatalf("sibling task should complete: %+v", tasks[3])
	}
}

func TestSubmitRejectsUnknownAspectRatio(t *testing.T) {
	s := newTestStudio(t, Options{})
	_, err := s.Submit(context.Background(), Submission{Text: "a", AspectRatio: "2:1"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBrandStyleCapturedAtSubmission(t *testing.T) {
	styles := make(chan string, 1)
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		styles <- req.BrandStyle
		return "data:image/png;base64,QUJD", nil
	})
	s := newTestStudio(t, Options{Generator: gen})
	s.UpdateBrand(domain.BrandSettings{Name: "Loom", PDPStyle: "Sunlit terrace"})

	b, _ := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{})
	waitBatch(t, b)
	if got := <-styles; got != "Sunlit terrace" {
		t.Fatalf("brand style = %q", got)
	}
}

func TestInitialStateAndTheme(t *testing.T) {
	initial := persist.State{
		Tasks: []domain.Task{{ID: "x", Prompt: "p", Status: domain.TaskStatusFailed, Error: "e", Config: domain.TaskConfig{AspectRatio: domain.AspectSquare}}},
		Theme: domain.ThemeDark,
	}
	s := newTestStudio(t, Options{Initial: initial})
	st := s.Snapshot()
	if len(st.Tasks) != 1 || st.Theme != domain.ThemeDark || st.Brand != domain.DefaultBrand() {
		t.Fatalf("unexpected initial state: %+v", st)
	}
	if got := s.SetTheme("light").Theme; got != domain.ThemeLight {
		t.Fatalf("theme = %q", got)
	}
	if _, ok := s.Task("x"); !ok {
		t.Fatalf("Task lookup failed")
	}
}

func TestTrainBrand(t *testing.T) {
	rec := &recordingPersister{}
	s := newTestStudio(t, Options{Persister: rec, TrainingStep: 5 * time.Millisecond})
	s.UpdateBrand(domain.BrandSettings{Name: "Loom", PDPStyle: "Moody"})

	st, err := s.TrainBrand()
	if err != nil || !st.Training {
		t.Fatalf("TrainBrand = %+v, %v", st, err)
	}
	if _, err := s.TrainBrand(); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("err = %v, want ErrTrainingInProgress", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !s.Snapshot().Brand.IsLoraTrained {
		if time.Now().After(deadline) {
			t.Fatalf("training did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	final := s.Snapshot()
	if final.Training || final.TrainingProgress != 100 || final.Brand.PDPStyle != "Moody" {
		t.Fatalf("unexpected final state: %+v", final)
	}
	states := rec.all()
	if !states[len(states)-1].Brand.IsLoraTrained {
		t.Fatalf("trained brand was not persisted")
	}
}

func TestCloseFailsInFlightAndRejectsNewBatches(t *testing.T) {
	started := make(chan struct{}, 1)
	gen := image.GeneratorFunc(func(ctx context.Context, req image.Request) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	})
	s, err := New(Options{Generator: gen})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	b, err := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{})
	if err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	<-started
	s.Close()
	waitBatch(t, b)

	task := s.Snapshot().Tasks[0]
	if task.Status != domain.TaskStatusFailed || task.Error != context.Canceled.Error() {
		t.Fatalf("unexpected task after close: %+v", task)
	}
	if _, err := s.SubmitPrompts(context.Background(), []string{"b"}, domain.TaskConfig{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestWaitReturnsWhenIdle(t *testing.T) {
	s := newTestStudio(t, Options{})
	if err := s.Wait(context.Background()); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if _, err := s.SubmitPrompts(context.Background(), []string{"a"}, domain.TaskConfig{}); err != nil {
		t.Fatalf("SubmitPrompts error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if s.Snapshot().Generating {
		t.Fatalf("still generating after Wait")
	}
}
