package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/touchx/internal/config"
	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/generator"
	"github.com/verte-zerg/touchx/internal/model"
	"github.com/verte-zerg/touchx/internal/scenario"
	"github.com/verte-zerg/touchx/internal/stats"
	"github.com/verte-zerg/touchx/internal/statsui"
	"github.com/verte-zerg/touchx/internal/store"
)

func newReplayCmd() *cobra.Command {
	var record, transitions bool
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>",
		Short: "Run a scenario through the rewriter and print every output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayCmd(cmd, args[0], record, transitions)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "save the run to the session database")
	cmd.Flags().BoolVar(&transitions, "transitions", false, "also print state changes")
	return cmd
}

func runReplayCmd(cmd *cobra.Command, path string, record, transitions bool) error {
	base, err := exploreConfig()
	if err != nil {
		return err
	}
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	res, err := scenario.Replay(sc, scenario.Options{Base: base, Logger: logger})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, out := range res.Outputs {
		if _, err := fmt.Fprintln(w, out.String()); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	if transitions {
		for _, tr := range res.Transitions {
			if _, err := fmt.Fprintf(w, "%10v  %s -> %s\n", tr.At, tr.From, tr.To); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	if _, err := fmt.Fprintf(w, "final %s\n", res.Final); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if !record {
		return nil
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	rec := store.NewRecorder("replay", sc.Name, sc.Config.Apply(base))
	for _, out := range res.Outputs {
		rec.Emit(out)
	}
	for _, tr := range res.Transitions {
		rec.Observe(tr)
	}
	id, err := rec.Save(context.Background(), st)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logErrf("recorded session %s\n", id)
	return nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <scenario.yaml|dir>...",
		Short: "Replay scenarios and compare against their expectations",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheckCmd,
	}
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	base, err := exploreConfig()
	if err != nil {
		return err
	}
	paths, err := scenarioPaths(args)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		mismatches, err := checkScenario(path, base)
		if err != nil {
			failed++
			if _, werr := fmt.Fprintf(w, "FAIL %s\n     %v\n", path, err); werr != nil {
				return fmt.Errorf("failed to write output: %w", werr)
			}
			continue
		}
		if len(mismatches) == 0 {
			if _, err := fmt.Fprintf(w, "ok   %s\n", path); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			continue
		}
		failed++
		if _, err := fmt.Fprintf(w, "FAIL %s\n", path); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		for _, m := range mismatches {
			if _, err := fmt.Fprintf(w, "     %s\n", m); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(paths))
	}
	return nil
}

func checkScenario(path string, base explore.Config) ([]scenario.Mismatch, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	res, err := scenario.Replay(sc, scenario.Options{Base: base, Logger: logger})
	if err != nil {
		return nil, err
	}
	return scenario.Check(sc, res), nil
}

// scenarioPaths expands directories into their YAML files.
func scenarioPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", arg, err)
			}
			found = append(found, matches...)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("no scenarios in %s", arg)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func newGenCmd() *cobra.Command {
	var (
		seed     int64
		count    int
		gestures []string
		name     string
		out      string
		expect   bool
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a random gesture scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenCmd(cmd, genOptions{
				seed: seed, count: count, gestures: gestures,
				name: name, out: out, expect: expect,
			})
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().IntVar(&count, "count", 10, "number of random gestures")
	cmd.Flags().StringSliceVar(&gestures, "gesture", nil, "explicit gesture sequence ("+gestureNames()+")")
	cmd.Flags().StringVar(&name, "name", "", "scenario name")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&expect, "expect", false, "fill expectations from a replay")
	return cmd
}

type genOptions struct {
	seed     int64
	count    int
	gestures []string
	name     string
	out      string
	expect   bool
}

func runGenCmd(cmd *cobra.Command, opts genOptions) error {
	cfg, err := exploreConfig()
	if err != nil {
		return err
	}
	if opts.count <= 0 && len(opts.gestures) == 0 {
		return fmt.Errorf("--count must be > 0")
	}
	if opts.seed == 0 {
		opts.seed = time.Now().UnixNano()
	}
	params := generator.DefaultParams()
	params.DoubleTapTimeout = cfg.DoubleTapTimeout
	params.TouchSlop = cfg.TouchSlop

	gen := generator.NewSeeded(opts.seed)
	var events []event.Event
	if len(opts.gestures) == 0 {
		events = gen.Generate(params, opts.count)
	} else {
		kinds := make([]generator.Gesture, 0, len(opts.gestures))
		for _, name := range opts.gestures {
			g, err := generator.ParseGesture(name)
			if err != nil {
				return err
			}
			kinds = append(kinds, g)
		}
		events = gen.Sequence(params, kinds...)
	}

	name := opts.name
	if name == "" {
		name = fmt.Sprintf("generated seed %d", opts.seed)
	}
	sc := scenario.FromEvents(name, events)
	timeout := scenario.Duration(cfg.DoubleTapTimeout)
	slop := cfg.TouchSlop
	sc.Config = scenario.Config{DoubleTapTimeout: &timeout, TouchSlop: &slop}
	if opts.expect {
		res, err := scenario.Replay(sc, scenario.Options{Base: cfg, Logger: logger})
		if err != nil {
			return err
		}
		for _, ev := range res.Produced() {
			sc.Expect = append(sc.Expect, scenario.StepFromEvent(ev))
		}
		sc.Final = res.Final.String()
	}

	data, err := scenario.Marshal(sc)
	if err != nil {
		return err
	}
	if opts.out == "" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	return writeFile(opts.out, data)
}

func gestureNames() string {
	names := make([]string, 0, len(generator.All()))
	for _, g := range generator.All() {
		names = append(names, g.String())
	}
	return strings.Join(names, ", ")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, export, or delete recorded sessions",
	}

	var source string
	var last int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistoryListCmd(cmd, model.StatsConfig{Source: source, Last: last})
		},
	}
	list.Flags().StringVar(&source, "source", "", "source filter (pad, evdev, remote, replay)")
	list.Flags().IntVar(&last, "last", 0, "limit to last N sessions")

	var out string
	export := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session as a regression scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryExportCmd(cmd, args[0], out)
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file (default: scenario dir, '-' for stdout)")

	del := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)
			if err := st.DeleteSession(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			return nil
		},
	}

	cmd.AddCommand(list, export, del)
	return cmd
}

func runHistoryListCmd(cmd *cobra.Command, cfg model.StatsConfig) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	sessions, err := st.ListSessions(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		logErrln("no sessions recorded yet")
		return nil
	}
	return stats.RenderSessions(cmd.OutOrStdout(), sessions, defaultWindow)
}

func runHistoryExportCmd(cmd *cobra.Command, id, out string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)
	sess, events, transitions, err := st.GetSession(context.Background(), id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	sc := scenario.FromRecords(sess, events, scenario.FinalState(transitions))
	if sc.Name == "" {
		sc.Name = sess.Source + " " + sess.ID
	}
	data, err := scenario.Marshal(sc)
	if err != nil {
		return err
	}
	if out == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}
	if out == "" {
		out = filepath.Join(config.DefaultScenarioDir(), sess.ID+".yaml")
	}
	if err := writeFile(out, data); err != nil {
		return err
	}
	logErrf("wrote %s\n", out)
	return nil
}

func newStatsCmd() *cobra.Command {
	var (
		source string
		since  string
		last   int
		window int
		top    int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsCmd(cmd, source, since, last, window, top)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source filter (pad, evdev, remote, replay)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&last, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&window, "window", defaultWindow, "moving average window")
	cmd.Flags().IntVar(&top, "top", defaultTop, "number of transitions to list")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, source, since string, last, window, top int) error {
	var sinceTime *time.Time
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if last < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	if window <= 0 {
		return fmt.Errorf("--window must be > 0")
	}
	cfg := model.StatsConfig{Source: source, Since: sinceTime, Last: last}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	w := cmd.OutOrStdout()
	if w == io.Writer(os.Stdout) && isTerminal(os.Stdout) {
		m := statsui.NewModel(statsui.StoreLoader(st), cfg, window)
		program := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	}

	report, err := stats.BuildReport(context.Background(), st, cfg)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	if err := stats.RenderSummary(w, report.Sessions, report.Gestures); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderSessions(w, report.Sessions, window); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return stats.RenderTransitions(w, report.Transitions, top)
}
