package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/snapceipt/snapceipt/internal/credential"
	"github.com/snapceipt/snapceipt/internal/extraction"
	"github.com/snapceipt/snapceipt/internal/gateway"
	"github.com/snapceipt/snapceipt/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const usage = `usage: snapceipt [flags] <command>

commands:
  login <email> <password>   authenticate and store the credential
  scan <file> [file...]      extract receipts and sync them to the backend
  list                       list stored receipts
  delete <id>                delete a stored receipt
  logout                     remove the stored credential`

func main() {
	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	fs := ff.NewFlagSet("snapceipt")
	var (
		backendURL    = fs.StringLong("backend-url", "http://localhost:5000", "Backend base URL")
		credDB        = fs.StringLong("credential-db", "snapceipt.db", "Credential database file path")
		credKey       = fs.StringLong("credential-key", "auth_token", "Key name the credential is stored under")
		extractorType = fs.StringLong("extractor", "chat", "Extractor type: 'chat' or 'gemini'")
		extractionURL = fs.StringLong("extraction-url", "", "Chat extraction service base URL")
		extractionKey = fs.StringLong("extraction-key", "", "Extraction service API key (or set SNAPCEIPT_EXTRACTION_KEY)")
		modelName     = fs.StringLong("model", "", "Extraction model name")
		maxAttempts   = fs.IntLong("max-attempts", 3, "Maximum extraction attempts")
		retryBase     = fs.DurationLong("retry-base", 500*time.Millisecond, "Base delay between extraction attempts")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SNAPCEIPT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	args := fs.GetArgs()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	store, err := credential.NewBoltStore(*credDB, *credKey)
	if err != nil {
		slog.Error("Failed to open credential store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	gw := gateway.New(*backendURL, store)
	ctx := context.Background()

	switch args[0] {
	case "login":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: snapceipt login <email> <password>")
			os.Exit(1)
		}
		if err := gw.Login(ctx, args[1], args[2]); err != nil {
			slog.Error("Login failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Logged in", "email", args[1])

	case "logout":
		if err := gw.Logout(ctx); err != nil {
			slog.Error("Logout failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Logged out")

	case "scan":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: snapceipt scan <file> [file...]")
			os.Exit(1)
		}

		policy := extraction.Policy{MaxAttempts: *maxAttempts, BaseDelay: *retryBase}
		extractor, err := newExtractor(*extractorType, *extractionURL, *extractionKey, *modelName, policy)
		if err != nil {
			slog.Error("Failed to initialize extractor", "error", err)
			os.Exit(1)
		}
		defer extractor.Close()

		service := receipt.NewService(extractor, gw)
		failed := false
		for _, path := range args[1:] {
			if err := scanFile(ctx, service, path); err != nil {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}

	case "list":
		service := receipt.NewService(nil, gw)
		receipts, err := service.List(ctx)
		if err != nil {
			slog.Error("Failed to list receipts", "error", err)
			os.Exit(1)
		}
		for _, r := range receipts {
			total := "-"
			if r.Total != nil {
				total = fmt.Sprintf("%.2f %s", *r.Total, r.Currency)
			}
			fmt.Printf("%d\t%s\t%s\t%s\n", r.ID, r.Date, r.StoreName, total)
		}

	case "delete":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: snapceipt delete <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid receipt id: %s\n", args[1])
			os.Exit(1)
		}
		service := receipt.NewService(nil, gw)
		if err := service.Delete(ctx, id); err != nil {
			slog.Error("Failed to delete receipt", "id", id, "error", err)
			os.Exit(1)
		}
		slog.Info("Receipt deleted", "id", id)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n%s\n", args[0], usage)
		os.Exit(1)
	}
}

// newExtractor builds the configured extraction provider
func newExtractor(extractorType, baseURL, apiKey, model string, policy extraction.Policy) (extraction.Extractor, error) {
	if apiKey == "" {
		apiKey = os.Getenv("SNAPCEIPT_EXTRACTION_KEY")
	}
	switch extractorType {
	case "chat":
		return extraction.NewChatExtractor(baseURL, apiKey, model, policy)
	case "gemini":
		return extraction.NewGemini(apiKey, model, policy)
	default:
		return nil, fmt.Errorf("invalid extractor type %q, valid: chat or gemini", extractorType)
	}
}

// scanFile ingests a single capture and reports the outcome
func scanFile(ctx context.Context, service *receipt.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read file", "path", path, "error", err)
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))

	submitted, err := service.Ingest(ctx, data, contentType)
	if err != nil {
		var limitErr *receipt.LimitError
		if errors.As(err, &limitErr) {
			slog.Error("Scan limit reached", "path", path, "message", limitErr.Message)
			return err
		}
		slog.Error("Failed to ingest receipt", "path", path, "error", err)
		return err
	}
	if submitted == nil {
		slog.Info("Nothing new to store", "path", path)
		return nil
	}

	slog.Info("Receipt stored",
		"path", path,
		"id", submitted.ID,
		"store", submitted.Receipt.StoreName,
		"date", submitted.Receipt.Date,
		"fingerprint", submitted.Fingerprint,
	)
	return nil
}
