package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sameehj/scriptguard/pkg/config"
	"github.com/sameehj/scriptguard/pkg/env"
	"github.com/sameehj/scriptguard/pkg/gateway"
	"github.com/sameehj/scriptguard/pkg/logging"
	"github.com/sameehj/scriptguard/pkg/report"
	"github.com/sameehj/scriptguard/pkg/scan"
	"github.com/sameehj/scriptguard/pkg/validator"
	"github.com/sameehj/scriptguard/pkg/version"
	"github.com/sameehj/scriptguard/pkg/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// errInvalidScripts makes the process exit non-zero without printing usage.
var errInvalidScripts = errors.New("one or more scripts failed validation")

var cfgFile string

func main() {
	_ = env.LoadFromDir(".")

	if err := newRootCmd(os.Stdout, os.Stdin).Execute(); err != nil {
		if !errors.Is(err, errInvalidScripts) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer, stdin io.Reader) *cobra.Command {
	root := &cobra.Command{
		Use:   "scriptguard",
		Short: "Static sandbox checks for scripts",
		Long: `scriptguard vets shell, python and batch scripts before they run inside a
sandbox directory. It flags dynamic expansions, blocked commands and quoted
paths that resolve outside the sandbox root, without executing anything.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $SCRIPTGUARD_CONFIG or ~/.scriptguard/config.yaml if present)")
	root.SetOut(stdout)
	root.SetIn(stdin)

	root.AddCommand(checkCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(versionCmd())
	return root
}

// sharedFlags are the validation knobs common to check, serve and watch.
type sharedFlags struct {
	sandbox     string
	dialect     validator.Dialect
	containment validator.Containment
}

func addSharedFlags(fs *pflag.FlagSet, f *sharedFlags) {
	fs.StringVarP(&f.sandbox, "sandbox", "s", "", "sandbox root scripts must stay inside")
	fs.VarP(&f.dialect, "dialect", "d", "force a dialect: bash, python, bat or none (default: detect)")
	fs.Var(&f.containment, "containment", "containment test: segment or prefix")
}

func loadConfig(cmd *cobra.Command, f *sharedFlags) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if candidate := config.DefaultConfigPath(); fileExists(candidate) {
			path = candidate
		}
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if f.sandbox != "" {
		cfg.Sandbox = f.sandbox
	}
	if cmd.Flags().Changed("containment") {
		cfg.Containment = f.containment.String()
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func newScanner(cfg *config.Config, f *sharedFlags, logger *slog.Logger) (*scan.Scanner, error) {
	if cfg.Sandbox == "" {
		return nil, errors.New("sandbox root is required (--sandbox, config sandbox or SCRIPTGUARD_SANDBOX)")
	}
	scanner := scan.New(validator.New(cfg.ValidatorOptions()...), scan.Options{
		Sandbox:    cfg.Sandbox,
		Dialect:    f.dialect,
		Fallback:   cfg.ParsedDialect(),
		Extensions: cfg.Scan.Extensions,
		Workers:    cfg.Scan.Workers,
	})
	scanner.SetLogger(logger)
	return scanner, nil
}

func checkCmd() *cobra.Command {
	var flags sharedFlags
	var format string

	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Validate script files or directories (use - for stdin)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			scanner, err := newScanner(cfg, &flags, logger)
			if err != nil {
				return err
			}

			var reports []*report.Report
			var paths []string
			for _, arg := range args {
				if arg != "-" {
					paths = append(paths, arg)
					continue
				}
				r, err := scanner.ScanReader("stdin", cmd.InOrStdin())
				if err != nil {
					return err
				}
				reports = append(reports, r)
			}
			if len(paths) > 0 {
				scanned, err := scanner.Scan(cmd.Context(), paths)
				if err != nil {
					return err
				}
				reports = append(reports, scanned...)
			}

			if err := report.Write(cmd.OutOrStdout(), out, reports); err != nil {
				return err
			}
			if !report.AllValid(reports) {
				return errInvalidScripts
			}
			return nil
		},
	}

	addSharedFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, json or yaml")
	return cmd
}

func serveCmd() *cobra.Command {
	var flags sharedFlags
	var addr string
	var watchDirs []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP validation gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			if addr == "" {
				addr = cfg.Gateway.Address
			}

			dialect := cfg.ParsedDialect()
			if flags.dialect != "" {
				dialect = flags.dialect
			}
			v := validator.New(cfg.ValidatorOptions()...)
			gw := gateway.NewServer(addr, v, gateway.AllowlistAuthorizer{Allowed: cfg.Gateway.AllowedAddrs})
			gw.SetDefaults(cfg.Sandbox, dialect)
			gw.SetMaxBodyBytes(cfg.Gateway.MaxBodyBytes)
			gw.SetMaxSessions(cfg.Gateway.MaxSessions)
			gw.SetLogger(logger)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			var watchDone <-chan error
			if len(watchDirs) > 0 {
				scanner, err := newScanner(cfg, &flags, logger)
				if err != nil {
					return err
				}
				watchDone, err = startWatchers(ctx, scanner, watchDirs, logger, gw.Publish)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scriptguard gateway listening on %s\n", addr)
			serveDone := make(chan error, 1)
			go func() { serveDone <- gw.Start(ctx) }()

			select {
			case err := <-serveDone:
				return err
			case err := <-watchDone:
				if err != nil {
					cancel()
					<-serveDone
					return err
				}
				return <-serveDone
			}
		},
	}

	addSharedFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVar(&addr, "addr", "", "gateway listen address")
	cmd.Flags().StringArrayVar(&watchDirs, "watch", nil, "directory to watch and stream reports from (repeatable)")
	return cmd
}

func watchCmd() *cobra.Command {
	var flags sharedFlags
	var format string

	cmd := &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Re-validate scripts whenever they change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, &flags)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			scanner, err := newScanner(cfg, &flags, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			reports := make(chan *report.Report, 16)
			done, err := startWatchers(ctx, scanner, args, logger, func(r *report.Report) {
				select {
				case reports <- r:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
			for {
				select {
				case err := <-done:
					return err
				case r := <-reports:
					if err := report.Write(cmd.OutOrStdout(), out, []*report.Report{r}); err != nil {
						return err
					}
				}
			}
		},
	}

	addSharedFlags(cmd.Flags(), &flags)
	cmd.Flags().StringVarP(&format, "format", "o", "text", "output format: text, json or yaml")
	return cmd
}

// startWatchers checks every directory up front, then watches them all. The
// returned channel yields the first watcher failure, or nil once every
// watcher has stopped.
func startWatchers(ctx context.Context, scanner *scan.Scanner, dirs []string, logger *slog.Logger, handler watch.Handler) (<-chan error, error) {
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("watch %s: not a directory", dir)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, dir := range dirs {
		w := watch.New(scanner, dir, handler)
		w.SetLogger(logger)
		g.Go(func() error {
			if err := w.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watch_failed", "path", dir, "error", err)
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	return done, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
