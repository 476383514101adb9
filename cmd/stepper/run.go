package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chr1sbest/stepper/internal/config"
	"github.com/chr1sbest/stepper/internal/logger"
	"github.com/chr1sbest/stepper/internal/sequence"
	"github.com/chr1sbest/stepper/internal/status"
	"github.com/chr1sbest/stepper/internal/steps"
	"github.com/chr1sbest/stepper/internal/telemetry"
	"github.com/chr1sbest/stepper/internal/tracker"
)

func newRunCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run <flow.yaml>",
		Short: "Run every enabled step of a flow",
		Long: `Run every enabled step of a flow in order, stopping at the first step
that still fails after its retries.

With --watch, the flow is run again from the first step each time the file
changes, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if watch {
				return a.watchFlow(ctx, cmd, args[0])
			}

			flow, err := a.loader().LoadAndValidate(args[0])
			if err != nil {
				return err
			}
			return a.runFlow(ctx, cmd, flow)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "rerun the flow whenever the file changes")
	return cmd
}

// runFlow runs flow once. A failed step is reported by the status writer,
// so it comes back as an ExitError.
func (a *app) runFlow(ctx context.Context, cmd *cobra.Command, flow *config.Flow) error {
	log := a.log.WithFields(logger.F("flow", flow.Name))

	defs, err := steps.Build(flow, a.registry, steps.BuildOptions{
		Retry:  a.settings.Retry.RetryConfig(),
		Logger: log,
	})
	if err != nil {
		return err
	}

	seq, err := sequence.New(defs, sequence.WithPanicHandler(func(recovered any) {
		log.Error("event handler panicked", logger.F("panic", fmt.Sprint(recovered)))
	}))
	if err != nil {
		return err
	}

	runID := tracker.NewRunID()
	log = log.WithFields(logger.F("run_id", runID))

	state := tracker.ForFlow(a.settings.StateDir, flow.Name)
	release, err := state.AcquireLock(runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("failed to release lock", logger.F("error", err.Error()))
		}
	}()

	recorder := tracker.NewRecorder(state, runID, flow.Name, log)
	seq.Subscribe(recorder.Handle)

	opts := []status.Option{status.WithTitle(title(flow))}
	if a.settings.Plain {
		opts = append(opts, status.WithPlain(true))
	}
	view := status.NewWithWriter(cmd.OutOrStdout(), opts...)
	seq.Subscribe(view.Handle)
	stderr := cmd.ErrOrStderr()
	if !view.Plain() {
		stderr = view.Above(stderr)
		defer a.logOut.redirect(stderr)()
	}

	if a.settings.Trace {
		tp, err := telemetry.NewProvider(stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", logger.F("error", err.Error()))
			}
		}()
		seq.Subscribe(telemetry.NewTracer(ctx, tp, flow.Name).Handle)
	}

	log.Debug("run started", logger.F("steps", seq.Len()), logger.F("state", state.RunStatePath))
	if _, err := seq.Run(ctx); err != nil {
		log.Error("run failed", logger.F("error", err.Error()))
		return NewExitError(1)
	}
	log.Info("run finished")
	return nil
}

// watchFlow runs the flow, then reruns it from scratch on every change to
// path. It returns when ctx is done. Invalid edits are logged and skipped.
func (a *app) watchFlow(ctx context.Context, cmd *cobra.Command, path string) error {
	w, err := config.NewWatcher(a.loader(), path)
	if err != nil {
		return err
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return err
	}

	a.runWatched(ctx, cmd, w.Current())
	a.log.Info("watching for changes", logger.F("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Error != nil {
				a.log.Warn("flow not reloaded", logger.F("error", ev.Error.Error()))
				continue
			}
			a.runWatched(ctx, cmd, ev.Flow)
		}
	}
}

func (a *app) runWatched(ctx context.Context, cmd *cobra.Command, flow *config.Flow) {
	err := a.runFlow(ctx, cmd, flow)
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		a.log.Error("run not started", logger.F("error", err.Error()))
	}
}

func title(flow *config.Flow) string {
	if flow.Description == "" {
		return flow.Name
	}
	return fmt.Sprintf("%s: %s", flow.Name, flow.Description)
}
