package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"eod-collector/internal/cli"
	"eod-collector/internal/config"
	"eod-collector/internal/svc"
	"eod-collector/pkg/collector"
	"eod-collector/pkg/store"
)

const usage = `usage: collector <command> [flags]

commands:
  historical   backfill daily bars for every selected pair
  update       append today's 24h bar for every selected pair
  summary      print a summary of the dataset`

type options struct {
	configPath string
	run        svc.RunOptions
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logx.Errorf("collector: %v", err)
		logx.Close()
		os.Exit(1)
	}
	logx.Close()
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	command := args[0]
	opts, err := parseFlags(command, args[1:])
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	cli.LogConfigSummary(cfg)

	switch command {
	case "summary":
		return printSummary(out, store.NewCSVStore(cfg.OutputPath()))
	case "historical", "update":
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}

	svcCtx, err := svc.NewServiceContext(ctx, *cfg)
	if err != nil {
		return err
	}
	c, err := svcCtx.NewCollector(opts.run)
	if err != nil {
		return err
	}

	var report *collector.Report
	if command == "historical" {
		report, err = c.RunHistorical(ctx)
	} else {
		report, err = c.RunDaily(ctx)
	}
	if report != nil && report.Interrupted {
		logx.Infof("collector: interrupted, pending=%d", report.Tally().Pending)
	}
	if err != nil {
		return err
	}
	return printSummary(out, svcCtx.Dataset)
}

func parseFlags(command string, args []string) (options, error) {
	var (
		opts    options
		symbols string
	)
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "f", config.DefaultPath, "the config file")
	fs.IntVar(&opts.run.Days, "days", 0, "days of history to fetch (historical only)")
	fs.StringVar(&symbols, "symbols", "", "comma-separated pairs to collect instead of discovery")
	fs.IntVar(&opts.run.MaxSymbols, "max-symbols", 0, "cap the number of pairs")
	fs.BoolVar(&opts.run.Overwrite, "overwrite", false, "replace the dataset on the first historical write")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.run.Days < 0 || opts.run.MaxSymbols < 0 {
		return opts, errors.New("days and max-symbols cannot be negative")
	}
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			opts.run.Symbols = append(opts.run.Symbols, s)
		}
	}
	return opts, nil
}

func printSummary(out io.Writer, dataset *store.CSVStore) error {
	summary, err := dataset.Summary()
	if errors.Is(err, store.ErrNoData) {
		fmt.Fprintf(out, "no data in %s\n", dataset.Path())
		return nil
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
