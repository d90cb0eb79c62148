package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/deusflow/nieuwsmetai/internal/app"
	"github.com/deusflow/nieuwsmetai/internal/config"
	"github.com/deusflow/nieuwsmetai/internal/logger"
)

const usage = `usage: nieuws <command> [flags]

commands:
  fetch              ingest every configured feed once
  refresh            delete each feed's articles and ingest it again
  process [-n N]     rewrite up to N fetched articles (default 1)
  prune [-min N]     delete articles shorter than N characters (default MIN_CONTENT_LEN)
  backfill-tags      recompute the tag of every article
  backfill-fulltext  fetch full pages for short articles
  enrich             delete very short articles and expand medium ones
  serve              run the read API
`

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Deps{})
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	err = run(ctx, a, cmd, args)
	if cerr := a.Close(); cerr != nil {
		logger.Error("close failed", "error", cerr)
	}
	if err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "fetch":
		_, err := a.Fetch(ctx)
		return err
	case "refresh":
		_, _, err := a.Refresh(ctx)
		return err
	case "process":
		fs := flag.NewFlagSet("process", flag.ExitOnError)
		n := fs.Int("n", 1, "number of articles to process")
		fs.Parse(args)
		done, err := a.Process(ctx, *n)
		logger.Info("process finished", "processed", done)
		return err
	case "prune":
		fs := flag.NewFlagSet("prune", flag.ExitOnError)
		minLen := fs.Int("min", 0, "minimum content length in characters")
		fs.Parse(args)
		_, err := a.Prune(ctx, *minLen)
		return err
	case "backfill-tags":
		_, err := a.BackfillTags(ctx)
		return err
	case "backfill-fulltext":
		n, err := a.BackfillFullText(ctx)
		logger.Info("backfill finished", "updated", n)
		return err
	case "enrich":
		_, err := a.Enrich(ctx)
		return err
	case "serve":
		return a.Serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}
