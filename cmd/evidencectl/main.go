// Command evidencectl inspects and repairs stored evidence URLs.
//
//	evidencectl inspect
//	evidencectl encrypt-legacy [--dry-run] [--batch N]
//	evidencectl rotate [--dry-run] [--batch N]
//
// Configuration is read the same way as the API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-evidence/internal/application/migration"
	"github.com/bryanwahyu/automaton-evidence/internal/config"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/crypto"
	"github.com/bryanwahyu/automaton-evidence/internal/infra/db"
	"github.com/bryanwahyu/automaton-evidence/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: evidencectl <inspect|encrypt-legacy|rotate> [--dry-run] [--batch N]")
		os.Exit(2)
	}
	command := os.Args[1]

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	batch := fs.Int("batch", migration.DefaultBatchSize, "rows per page")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	flush, err := logging.Init(cfg.Logging.Level, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging init error: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := run(ctx, cfg, command, *dryRun, *batch)
	if err != nil {
		zap.L().Error("evidencectl failed", zap.String("command", command), zap.Error(err))
		flush()
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}

func run(ctx context.Context, cfg *config.Config, command string, dryRun bool, batch int) (*migration.Report, error) {
	if cfg.Crypto.URLSecret == "" {
		return nil, fmt.Errorf("URL_ENCRYPTION_KEY is required")
	}
	codec, err := crypto.NewCodec(cfg.Crypto.URLSecret, cfg.Crypto.PreviousSecrets...)
	if err != nil {
		return nil, err
	}
	store, err := db.Open(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	svc := &migration.Service{Repo: store.Evidence, URLs: codec, BatchSize: batch, DryRun: dryRun}
	zap.L().Info("running", zap.String("command", command), zap.Bool("dry_run", dryRun), zap.String("db", store.Driver))
	switch command {
	case "inspect":
		return svc.Inspect(ctx)
	case "encrypt-legacy":
		return svc.EncryptLegacy(ctx)
	case "rotate":
		return svc.Rotate(ctx)
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}
