package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"loom/internal/bootstrap"
	"loom/internal/domain"
	"loom/internal/infra"
	"loom/internal/persist"
	"loom/internal/prompt"
	"loom/internal/providers/image"
	"loom/internal/storage"
	"loom/internal/studio"
)

type options struct {
	input     string
	poses     string
	aspect    string
	reference string
	describe  bool
	persist   bool
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.input, "input", "-", "File with one garment description per line (- for stdin)")
	flag.StringVar(&opts.poses, "poses", "", "Comma separated pose tags (default pose when empty)")
	flag.StringVar(&opts.aspect, "aspect", string(domain.DefaultAspectRatio), "Aspect ratio: 1:1, 3:4, 4:3, 9:16 or 16:9")
	flag.StringVar(&opts.reference, "reference", "", "Path to a flatlay SKU photo used as the exact garment")
	flag.BoolVar(&opts.describe, "describe", false, "Append an automatic description of the reference photo")
	flag.BoolVar(&opts.persist, "persist", false, "Mirror results into the studio state store")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "batch").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, &logger); err != nil {
		logger.Fatal().Err(err).Msg("batch: failed")
	}
}

func run(ctx context.Context, cfg *infra.Config, opts options, logger *infra.Logger) error {
	text, err := readInput(opts.input)
	if err != nil {
		return err
	}
	reference, err := readReference(opts.reference)
	if err != nil {
		return err
	}

	store, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	creds := bootstrap.Credentials(cfg, store.Blobs)
	provider, err := bootstrap.Provider(cfg, creds, logger)
	if err != nil {
		return err
	}
	catalog, err := bootstrap.Catalog(cfg)
	if err != nil {
		return err
	}

	if opts.describe && reference != "" {
		desc := prompt.CleanDescription(image.Describe(ctx, provider, reference, logger))
		text = prompt.AppendDescription(text, desc)
		logger.Info().Str("description", desc).Msg("batch: reference described")
	}

	studioOpts := studio.Options{
		Generator:   provider,
		Expander:    prompt.NewExpander(catalog),
		Gate:        creds,
		Concurrency: cfg.BatchConcurrency,
		Logger:      logger,
	}
	if opts.persist {
		snapshots := persist.NewSnapshotter(store.Blobs, cfg.PersistWindows, logger)
		studioOpts.Persister = snapshots
		studioOpts.Initial = snapshots.Load(ctx)
	}
	st, err := studio.New(studioOpts)
	if err != nil {
		return err
	}
	defer st.Close()

	batch, err := st.Submit(ctx, studio.Submission{
		Text:           text,
		Poses:          splitPoses(opts.poses),
		AspectRatio:    domain.AspectRatio(opts.aspect),
		ReferenceImage: reference,
	})
	if err != nil {
		return err
	}
	if batch == nil {
		logger.Warn().Msg("batch: nothing to generate")
		return nil
	}

	select {
	case <-batch.Done():
	case <-ctx.Done():
		st.Close()
		<-batch.Done()
	}

	var tasks []domain.Task
	for _, id := range batch.TaskIDs {
		if task, ok := st.Task(id); ok {
			tasks = append(tasks, task)
		}
	}
	written, failed := exportTasks(context.WithoutCancel(ctx), store.Files, batch.ID, tasks, logger)
	for _, key := range written {
		fmt.Println(path.Join(store.Files.BasePath(), key))
	}
	logger.Info().
		Str("batch_id", batch.ID).
		Int("completed", len(written)).
		Int("failed", failed).
		Msg("batch: finished")
	if len(written) == 0 {
		return errors.New("no image was generated")
	}
	return nil
}

// exportTasks writes the images of completed tasks and returns their storage
// keys together with the number of tasks without an image.
func exportTasks(ctx context.Context, files *storage.FileStore, batchID string, tasks []domain.Task, logger *infra.Logger) ([]string, int) {
	var written []string
	failed := 0
	for idx, task := range tasks {
		if task.Status != domain.TaskStatusCompleted {
			logger.Warn().Str("task_id", task.ID).Str("error", task.Error).Msg("batch: task failed")
			failed++
			continue
		}
		mimeType, data, err := domain.DecodeDataURI(task.ImageURL)
		if err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("batch: decode image failed")
			failed++
			continue
		}
		key := fmt.Sprintf("exports/%s/%02d-%s%s", batchID, idx+1, task.ID, domain.ImageExtension(mimeType))
		saved, err := files.Write(ctx, key, data)
		if err != nil {
			logger.Error().Err(err).Str("task_id", task.ID).Msg("batch: write image failed")
			failed++
			continue
		}
		written = append(written, saved)
	}
	return written, failed
}

func splitPoses(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readInput(name string) (string, error) {
	var r io.Reader = os.Stdin
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

func readReference(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read reference: %w", err)
	}
	return domain.EncodeDataURI(http.DetectContentType(data), data), nil
}
