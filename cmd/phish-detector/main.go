package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/llm-phish-detector/internal/adapters/filter"
	"github.com/mikey/llm-phish-detector/internal/di"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	flags, err := di.ParseFlags(os.Args[0], os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var failed bool
	if err := container.Invoke(func(
		flags *di.CLIFlags,
		logger *zap.Logger,
		cli *filter.CliFilter,
	) error {
		defer logger.Sync()
		var err error
		failed, err = run(flags, logger, cli)
		return err
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

// run processes every input and prints the reports in input order. It
// reports whether any input failed.
func run(flags *di.CLIFlags, logger *zap.Logger, cli *filter.CliFilter) (bool, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reports []*filter.Report
	if len(flags.InputFiles) == 0 {
		logger.Info("Reading email from stdin")
		reports = []*filter.Report{cli.Process(ctx, "stdin", os.Stdin)}
	} else {
		reports = make([]*filter.Report, len(flags.InputFiles))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(flags.Concurrency)
		for i, path := range flags.InputFiles {
			i, path := i, path
			g.Go(func() error {
				logger.Debug("Reading email from file", zap.String("file", path))
				reports[i] = cli.ProcessFile(gctx, path)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return true, err
		}
	}

	failed := false
	for _, report := range reports {
		if err := cli.Print(report); err != nil {
			return true, err
		}
		if report.Err != nil {
			failed = true
		}
	}
	return failed, nil
}
