package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/maloquacious/semver"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/maloquacious/telesync/internal/config"
	"github.com/maloquacious/telesync/internal/discover"
	"github.com/maloquacious/telesync/internal/logger"
	"github.com/maloquacious/telesync/internal/reconcile"
	"github.com/maloquacious/telesync/internal/store/sqlite"
)

var (
	version   = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}
	buildDate = ""
)

var (
	// errFailures signals that at least one store failed; the report has already been printed.
	errFailures = errors.New("one or more stores failed")
	// errEditorRunning refuses a write while an editor holds its stores open.
	errEditorRunning = errors.New("editor is running")
)

// app holds the global flags and the writers commands print to.
type app struct {
	configPath string
	verbose    bool
	stores     []string
	noBackup   bool
	noLock     bool
	force      bool

	out io.Writer
	err io.Writer

	// env and procs are swapped in tests
	env   discover.Env
	procs discover.ProcessLister
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{out: os.Stdout, err: os.Stderr, env: discover.CurrentEnv(), procs: discover.SystemProcesses{}}
	if err := a.rootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailures) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "telesync",
		Short:         "Keep VS Code-family telemetry identity stores consistent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.err)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "settings file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().StringArrayVar(&a.stores, "store", nil, "store path (repeatable); disables discovery, first readable store is the reference")
	rootCmd.PersistentFlags().BoolVar(&a.noBackup, "no-backup", false, "skip the backup copy before writing (not recommended)")
	rootCmd.PersistentFlags().BoolVar(&a.noLock, "no-lock", false, "do not take the advisory store lock")
	rootCmd.PersistentFlags().BoolVar(&a.force, "force", false, "write even while an editor is running")

	var (
		dryRun      bool
		generateNew bool
		purge       bool
		groups      []string
		patterns    []string
	)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile identity fields across stores, or write fresh ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context(), dryRun, generateNew, purge, groups)
		},
	}
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the fields that would change without writing")
	syncCmd.Flags().BoolVar(&generateNew, "generate-new", false, "write freshly generated values instead of reconciling mismatches")
	syncCmd.Flags().BoolVar(&purge, "purge", false, "also delete keys matching the configured purge patterns")
	syncCmd.Flags().StringArrayVar(&groups, "group", nil, "purge pattern group (repeatable; default: enabled groups)")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Compare identity fields across stores without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd.Context())
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current identity fields of every store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runShow(cmd.Context())
		},
	}

	var purgeDryRun bool
	var purgeGroups []string
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete keys matching LIKE patterns from every store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPurge(cmd.Context(), purgeDryRun, purgeGroups, patterns)
		},
	}
	purgeCmd.Flags().BoolVar(&purgeDryRun, "dry-run", false, "count matching keys without deleting")
	purgeCmd.Flags().StringArrayVar(&purgeGroups, "group", nil, "pattern group from the settings file (repeatable)")
	purgeCmd.Flags().StringArrayVar(&patterns, "pattern", nil, "SQL LIKE pattern (repeatable)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "telesync %s", version.String())
			if buildDate != "" {
				fmt.Fprintf(a.out, " (%s)", buildDate)
			}
			fmt.Fprintln(a.out)
		},
	}

	var overwrite bool
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the settings file",
	}
	configInitCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings to the settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConfigInit(overwrite)
		},
	}
	configInitCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing settings file")
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(syncCmd, checkCmd, showCmd, purgeCmd, configCmd, versionCmd)
	return rootCmd
}

// setup loads the settings, verifies the SQLite engine and resolves the store groups.
func (a *app) setup(ctx context.Context) (config.Config, logger.Logger, []reconcile.Group, error) {
	log := logger.New(a.err, a.verbose)

	var cfg config.Config
	var err error
	if a.configPath != "" {
		cfg, err = config.LoadFrom(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, log, nil, err
	}

	v, err := sqlite.Preflight(ctx)
	if err != nil {
		return cfg, log, nil, err
	}
	log.Debug("sqlite %s", v)

	if len(a.stores) > 0 {
		return cfg, log, []reconcile.Group{reconcile.FromPaths("command line", a.stores)}, nil
	}

	insts := discover.Find(a.env, cfg.Products, cfg.ExtraRoots, log)
	if len(insts) == 0 {
		return cfg, log, nil, errors.New("no installations found; pass --store or add extra_roots to the settings file")
	}
	return cfg, log, reconcile.FromInstallations(insts), nil
}

// guardEditors looks for running editors of the configured products. A running
// editor rewrites its stores on exit, so a committed write is refused unless
// --force is given; everything else only warns.
func (a *app) guardEditors(ctx context.Context, cfg config.Config, log logger.Logger, writing bool) error {
	if !cfg.CheckEditorRunning || a.procs == nil {
		return nil
	}
	running, err := discover.RunningEditors(ctx, a.procs, cfg.Products)
	if err != nil {
		log.Warn("cannot check for running editors: %v", err)
		return nil
	}
	if len(running) == 0 {
		return nil
	}

	names := strings.Join(lo.Uniq(lo.Map(running, func(p discover.Process, _ int) string { return p.Name })), ", ")
	if !writing || a.force {
		log.Warn("editor running (%s); it may overwrite new values when it exits", names)
		return nil
	}
	return fmt.Errorf("%w (%s): close it first or pass --force", errEditorRunning, names)
}

func (a *app) options(cfg config.Config, log logger.Logger) reconcile.Options {
	return reconcile.Options{
		Backup:    cfg.Backup.Enabled && !a.noBackup,
		Lock:      cfg.Lock && !a.noLock,
		Timeout:   cfg.StoreTimeout(),
		Generator: cfg.Generator(),
		Log:       log,
	}
}

func (a *app) runSync(ctx context.Context, dryRun, generateNew, purge bool, groups []string) error {
	cfg, log, targets, err := a.setup(ctx)
	if err != nil {
		return err
	}

	if err := a.guardEditors(ctx, cfg, log, !dryRun); err != nil {
		return err
	}

	opts := a.options(cfg, log)
	opts.DryRun = dryRun
	opts.GenerateNew = generateNew
	if purge {
		if opts.Purge, err = cfg.PurgePatterns(groups...); err != nil {
			return err
		}
		if len(opts.Purge) == 0 {
			log.Warn("--purge given but no purge patterns are enabled")
		}
	}

	rep := reconcile.Run(ctx, targets, opts)
	printOutcomes(a.out, rep)
	return finish(rep)
}

func (a *app) runCheck(ctx context.Context) error {
	cfg, log, targets, err := a.setup(ctx)
	if err != nil {
		return err
	}

	rep := reconcile.Check(ctx, targets, a.options(cfg, log))
	printComparisons(a.out, rep)
	return finish(rep)
}

func (a *app) runShow(ctx context.Context) error {
	cfg, log, targets, err := a.setup(ctx)
	if err != nil {
		return err
	}

	rep := reconcile.Check(ctx, targets, a.options(cfg, log))
	printSnapshots(a.out, rep)
	return finish(rep)
}

func (a *app) runPurge(ctx context.Context, dryRun bool, groups, patterns []string) error {
	cfg, log, targets, err := a.setup(ctx)
	if err != nil {
		return err
	}

	opts := a.options(cfg, log)
	opts.DryRun = dryRun
	opts.Purge = patterns
	if len(groups) > 0 || len(patterns) == 0 {
		fromConfig, err := cfg.PurgePatterns(groups...)
		if err != nil {
			return err
		}
		opts.Purge = append(opts.Purge, fromConfig...)
	}
	if len(opts.Purge) == 0 {
		return errors.New("no purge patterns: pass --pattern or --group, or enable groups in the settings file")
	}

	if err := a.guardEditors(ctx, cfg, log, !dryRun); err != nil {
		return err
	}

	rep := reconcile.Purge(ctx, targets, opts)
	printOutcomes(a.out, rep)
	return finish(rep)
}

// runConfigInit writes the default settings. An existing file is kept unless overwrite is set.
func (a *app) runConfigInit(overwrite bool) error {
	path := a.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s already exists; pass --overwrite to replace it", path)
	}
	if err := config.SaveTo(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", path)
	return nil
}

// finish turns a report into the command's exit status.
func finish(rep reconcile.Report) error {
	if rep.OK() {
		return nil
	}
	return errFailures
}
