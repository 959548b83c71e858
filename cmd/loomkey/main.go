package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"loom/internal/bootstrap"
	"loom/internal/infra"
	"loom/internal/infra/credentials"
)

func main() {
	_ = godotenv.Load()

	var (
		keyFlag   string
		checkFlag bool
	)
	flag.StringVar(&keyFlag, "key", "", "Gemini API key to select (falls back to GEMINI_API_KEY)")
	flag.BoolVar(&checkFlag, "check", false, "Only report whether a key is selected")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger("cli").With().Str("cmd", "loomkey").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := bootstrap.OpenStorage(ctx, cfg, &logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if checkFlag {
		// The environment key is ignored so the stored selection is reported.
		ok := credentials.Check(ctx, credentials.NewStore(store.Blobs, ""), &logger)
		if !ok {
			fmt.Println("No API key selected")
			os.Exit(2)
		}
		fmt.Println("API key selected")
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = cfg.GeminiAPIKey
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "GEMINI API key is required via -key or environment")
		os.Exit(1)
	}

	if err := credentials.NewStore(store.Blobs, "").SelectCredential(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist gemini api key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("GEMINI API key stored successfully")
}
