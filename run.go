package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/google/uuid"
	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/okx/txloadgen/loadgen"
	"github.com/okx/txloadgen/stats"
	"github.com/okx/txloadgen/utils"
)

// runEnv is the process surroundings of a load run
type runEnv struct {
	// interactive allows the chain menu and the key prompt
	interactive bool
	prompt      utils.PromptFunc
	out         io.Writer
	logOut      io.Writer
}

func runCommand(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	releaseOnDone(ctx, stop)

	env := runEnv{
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		out:         cmd.OutOrStdout(),
		logOut:      cmd.ErrOrStderr(),
	}
	if env.interactive {
		env.prompt = utils.MaskedPrompt
	}
	return runLoad(ctx, cmd.Flags(), env)
}

func runLoad(ctx context.Context, fs *pflag.FlagSet, env runEnv) error {
	cfg, err := utils.LoadConfig(fs)
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(env.logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	logger = logger.With("run", runID)

	if err := cfg.ResolveEndpoint(utils.Chains, env.interactive); err != nil {
		if isInterrupt(ctx, err) {
			logger.Info("Interrupted during startup")
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	key, err := utils.LoadPrivateKey(cfg, env.prompt)
	if err != nil {
		if isInterrupt(ctx, err) {
			logger.Info("Interrupted during startup")
			return nil
		}
		return err
	}
	defer utils.ZeroKey(key)

	client, err := utils.NewEthClient(ctx, cfg.Endpoint, cfg.RequestTimeout)
	if err != nil {
		return err
	}
	defer client.Close()

	setup, err := loadgen.Prepare(ctx, client, cfg, key, nil, logger)
	if err != nil {
		if isInterrupt(ctx, err) {
			logger.Info("Interrupted during startup")
			return nil
		}
		return err
	}
	setup.PrintSummary(env.out, cfg)

	hashes, err := utils.NewTxHashWriter(cfg.TxHashFile, runID, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := hashes.Close(); err != nil {
			logger.Error("Failed to close tx hash file", "err", err)
		}
	}()

	tracker := stats.NewTracker(logger, cfg.ReportInterval, env.out)
	tracker.Start(ctx)

	loop, err := loadgen.New(loadgen.Options{
		Client:                 client,
		Key:                    key,
		From:                   setup.From,
		ChainID:                setup.ChainID,
		Template:               setup.Template,
		Interval:               cfg.Interval,
		Count:                  cfg.Count,
		PendingNonce:           cfg.NonceBlock == utils.NonceBlockPending,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		WaitForNode:            cfg.WaitForNode,
		MaxTPS:                 cfg.MaxTPS,
		Out:                    env.out,
		Logger:                 logger,
		Tracker:                tracker,
		Hashes:                 hashes,
	})
	if err != nil {
		tracker.Stop()
		return err
	}

	logger.Info("Starting transaction load", "endpoint", cfg.Endpoint, "from", setup.From, "interval", cfg.Interval, "count", cfg.Count)
	runErr := loop.Run(ctx)

	tracker.Stop()
	tracker.Report(true)

	if ctx.Err() != nil {
		logger.Info("Interrupted, shutting down", "sent", loop.Sent())
	}
	return runErr
}

// releaseOnDone calls stop once ctx is done, so a second signal during
// cleanup falls through to the default handler and kills the process
func releaseOnDone(ctx context.Context, stop context.CancelFunc) {
	go func() {
		<-ctx.Done()
		stop()
	}()
}

// isInterrupt reports whether a startup error came from Ctrl-C, either as a
// signal or as a keystroke read by a prompt in raw mode
func isInterrupt(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, gopass.ErrInterrupted) ||
		errors.Is(err, terminal.InterruptErr)
}
