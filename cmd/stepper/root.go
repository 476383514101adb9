package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chr1sbest/stepper/internal/config"
	"github.com/chr1sbest/stepper/internal/logger"
	"github.com/chr1sbest/stepper/internal/steps"
)

// app holds state shared by every subcommand.
type app struct {
	v        *viper.Viper
	settings *config.Settings
	log      logger.Logger
	logOut   *logSink
	registry *steps.Registry
	closers  []io.Closer
}

// logSink is the stderr side of the logger. A live status view swaps in a
// writer that keeps log lines from breaking its redraw.
type logSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	return w.Write(p)
}

// redirect sends writes to w until the returned func is called.
func (s *logSink) redirect(w io.Writer) (restore func()) {
	s.mu.Lock()
	prev := s.w
	s.w = w
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.w = prev
		s.mu.Unlock()
	}
}

func newApp() *app {
	return &app{
		v:        viper.New(),
		log:      logger.Nop(),
		registry: steps.DefaultRegistry(),
	}
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	a.closers = nil
}

// loader returns a flow loader that also checks each step's config against
// its registered type.
func (a *app) loader() *config.Loader {
	return config.NewLoader(a.registry.Types()).WithStepChecker(a.registry)
}

// setup resolves settings and builds the logger. Logs go to stderr, plus
// the log file when one is configured.
func (a *app) setup(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	s, err := config.LoadSettings(a.v, configFile)
	if err != nil {
		return err
	}
	a.settings = s

	level, err := logger.ParseLevel(s.LogLevel)
	if err != nil {
		return err
	}
	format := logger.Format(s.LogFormat)

	a.logOut = &logSink{w: cmd.ErrOrStderr()}
	var log logger.Logger = logger.New(a.logOut, level, format)
	if s.LogFile != "" {
		fileLog, err := logger.NewFileLogger(s.LogFile, level, format)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, fileLog)
		log = logger.NewMultiLogger(log, fileLog)
	}
	a.log = log
	return nil
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "stepper",
		Short: "Run multi-step flows with retries and live progress",
		Long: `stepper runs the steps of a flow file one at a time, in order.

Each step is WAITING, LOADING, SUCCESS or ERROR. A failing step is retried
with linear backoff; if it still fails, the run stops and later steps are
left untouched. Running a flow again starts it over from the first step.`,
		Version:       versionLine(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "settings file (default is $XDG_CONFIG_HOME/stepper/config.yaml)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("state-dir", "", "directory for run state and locks")
	flags.Bool("trace", false, "write OpenTelemetry spans to stderr")
	flags.Bool("plain", false, "print one line per change instead of redrawing")
	flags.Int("retry-times", 0, "default attempts per step")
	flags.Duration("retry-timeout", time.Duration(0), "default backoff unit per step")

	for key, flag := range map[string]string{
		"log_level":     "log-level",
		"log_format":    "log-format",
		"log_file":      "log-file",
		"state_dir":     "state-dir",
		"trace":         "trace",
		"plain":         "plain",
		"retry.times":   "retry-times",
		"retry.timeout": "retry-timeout",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newRunCommand(a))
	root.AddCommand(newValidateCommand(a))
	root.AddCommand(newStepsCommand(a))
	root.AddCommand(newVersionCommand())
	return root
}

// execute runs the CLI and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := newApp()
	defer a.close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return code
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
