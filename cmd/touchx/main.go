// Package main provides the CLI entrypoint for touchx.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/touchx/internal/config"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/logging"
	"github.com/verte-zerg/touchx/internal/store"
)

const (
	defaultLogLevel  = "warning"
	defaultServeAddr = ":7420"
	defaultWindow    = 5
	defaultTop       = 10
)

var (
	configPath string
	dbPath     string
	logLevel   string
	logDir     string

	doubleTapTimeout  time.Duration
	touchSlop         float64
	announceSingleTap bool
	strictMode        bool

	fileCfg config.FileConfig
	logger  = logging.Discard()
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "touchx",
		Short:             "Touch exploration event rewriter",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: loadSettings,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")
	flags.StringVar(&dbPath, "db", config.DefaultDBPath(), "session database")
	flags.StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warning, error)")
	flags.StringVar(&logDir, "log-dir", "", "also write JSON logs to daily files in this directory")
	flags.DurationVar(&doubleTapTimeout, "double-tap-timeout", explore.DefaultDoubleTapTimeout, "window for a second tap")
	flags.Float64Var(&touchSlop, "touch-slop", explore.DefaultTouchSlop, "distance a held finger may travel before exploring")
	flags.BoolVar(&announceSingleTap, "announce-single-tap", false, "move the mouse to a committed single tap")
	flags.BoolVar(&strictMode, "strict", false, "panic on impossible touch sequences")

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newGenCmd())
	rootCmd.AddCommand(newPadCmd())
	rootCmd.AddCommand(newEvdevCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadSettings merges the config file into flags the user did not set.
func loadSettings(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fileCfg = cfg
	applyStringConfig(cmd, "log-level", &logLevel, cfg.Log.Level)
	applyStringConfig(cmd, "log-dir", &logDir, cfg.Log.Dir)
	applyDurationConfig(cmd, "double-tap-timeout", &doubleTapTimeout, cfg.Explore.DoubleTapTimeout)
	applyFloatConfig(cmd, "touch-slop", &touchSlop, cfg.Explore.TouchSlop)
	applyBoolConfig(cmd, "announce-single-tap", &announceSingleTap, cfg.Explore.AnnounceSingleTap)
	applyBoolConfig(cmd, "strict", &strictMode, cfg.Explore.Strict)

	l, err := logging.New(logging.Options{Level: logLevel, Dir: logDir})
	if err != nil {
		return fmt.Errorf("invalid --log-level/--log-dir: %w", err)
	}
	logger = l
	return nil
}

func exploreConfig() (explore.Config, error) {
	cfg := explore.Config{
		DoubleTapTimeout:  doubleTapTimeout,
		TouchSlop:         touchSlop,
		AnnounceSingleTap: announceSingleTap,
		Strict:            strictMode,
	}
	if err := cfg.Validate(); err != nil {
		return explore.Config{}, fmt.Errorf("invalid explore settings: %w", err)
	}
	return cfg, nil
}

func openStore() (*store.Store, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if cerr := st.Close(); cerr != nil {
		logErrf("failed to close db: %v\n", cerr)
	}
}

func saveRecording(st *store.Store, rec *store.Recorder) {
	if rec.Len() == 0 {
		return
	}
	id, err := rec.Save(context.Background(), st)
	if err != nil {
		logErrf("failed to save session: %v\n", err)
		return
	}
	logger.WithField("session", id).Info("session recorded")
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newConfigCmd() *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		// The editor must open even when the current file fails to load.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if show {
				return runConfigShowCmd(cmd)
			}
			return runConfigCmd(cmd, nil)
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the effective settings as TOML")
	return cmd
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func runConfigShowCmd(cmd *cobra.Command) error {
	if err := loadSettings(cmd, nil); err != nil {
		return err
	}
	return config.EncodeConfig(cmd.OutOrStdout(), effectiveConfig())
}

// effectiveConfig reports the merged flag and file settings.
func effectiveConfig() config.FileConfig {
	out := fileCfg
	timeout := config.Duration{Duration: doubleTapTimeout}
	slop := touchSlop
	announce := announceSingleTap
	strict := strictMode
	level := logLevel
	dir := logDir
	out.Explore = config.ExploreConfig{
		DoubleTapTimeout:  &timeout,
		TouchSlop:         &slop,
		AnnounceSingleTap: &announce,
		Strict:            &strict,
	}
	out.Log = config.LogConfig{Level: &level}
	if dir != "" {
		out.Log.Dir = &dir
	}
	return out
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *config.Duration) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = value.Duration
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# touchx configuration
# Uncomment a value to enable it. CLI flags override config values.

[explore]
# double-tap-timeout = %q   # Window for the second tap of a double tap
# touch-slop = %.1f           # Distance a held finger may travel before exploring
# announce-single-tap = false # Move the mouse to a committed single tap
# strict = false              # Panic on impossible touch sequences

[log]
# level = %q              # debug, info, warning, error
# dir = "/var/log/touchx"     # Also write JSON logs to daily files here

[serve]
# addr = %q                # WebSocket listen address
# advertise = false          # Announce the server over mDNS

[evdev]
# device = "/dev/input/event5"  # Defaults to the first touch device found
# grab = true                   # Take exclusive access to the device
# width = 1280.0                # Surface width; 0 keeps device units
# height = 800.0                # Surface height; 0 keeps device units
`,
		explore.DefaultDoubleTapTimeout.String(),
		explore.DefaultTouchSlop,
		defaultLogLevel,
		defaultServeAddr,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
