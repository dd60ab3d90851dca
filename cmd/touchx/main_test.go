package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/touchx/internal/config"
	"github.com/verte-zerg/touchx/internal/model"
	"github.com/verte-zerg/touchx/internal/scenario"
	"github.com/verte-zerg/touchx/internal/store"
)

const testdataDir = "../../internal/scenario/testdata"

type cliEnv struct {
	config string
	db     string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	return cliEnv{
		config: filepath.Join(dir, "config.toml"),
		db:     filepath.Join(dir, "touchx.db"),
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDefaultConfigTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Explore.TouchSlop != nil || cfg.Serve.Addr != nil {
		t.Fatalf("template should leave every key commented out")
	}
}

func TestConfigFileFillsUnsetFlags(t *testing.T) {
	env := newCLIEnv(t)
	data := "[explore]\ndouble-tap-timeout = \"250ms\"\ntouch-slop = 20.0\n"
	if err := os.WriteFile(env.config, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := env.run(t, "--touch-slop", "30", "config", "--show")
	if err != nil {
		t.Fatalf("config --show: %v", err)
	}
	if !strings.Contains(out, `double-tap-timeout = "250ms"`) {
		t.Fatalf("expected timeout from file, got:\n%s", out)
	}
	if !strings.Contains(out, "touch-slop = 30.0") {
		t.Fatalf("expected flag to win over file, got:\n%s", out)
	}
}

func TestBadConfigIsReported(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.WriteFile(env.config, []byte("[explore]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := env.run(t, "check", testdataDir); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestInvalidSettingsRejected(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "--double-tap-timeout", "0s", "check", testdataDir); err == nil {
		t.Fatalf("expected zero timeout to be rejected")
	}
	if _, err := env.run(t, "--log-level", "loud", "check", testdataDir); err == nil {
		t.Fatalf("expected bad log level to be rejected")
	}
}

func TestCheckPassesScenarios(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "--strict", "check", testdataDir)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	paths, _ := filepath.Glob(filepath.Join(testdataDir, "*.yaml"))
	if got := strings.Count(out, "ok   "); got != len(paths) {
		t.Fatalf("expected %d passing scenarios, got %d:\n%s", len(paths), got, out)
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	data := `name: wrong
events:
  - {at: 0ms, type: press, id: 1, x: 10, y: 10}
  - {at: 50ms, type: release, id: 1, x: 10, y: 10}
until: 1s
expect:
  - {at: 50ms, type: mouse-move, x: 10, y: 10}
final: TOUCH_EXPLORATION
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := env.run(t, "check", path)
	if err == nil {
		t.Fatalf("expected failure, got:\n%s", out)
	}
	if !strings.Contains(out, "FAIL "+path) || !strings.Contains(out, "final TOUCH_EXPLORATION") {
		t.Fatalf("unexpected report:\n%s", out)
	}
}

func TestGenWithExpectationsChecks(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(t.TempDir(), "gen", "seed.yaml")
	if _, err := env.run(t, "gen", "--seed", "7", "--count", "6", "--expect", "-o", path); err != nil {
		t.Fatalf("gen: %v", err)
	}
	sc, err := scenario.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != "generated seed 7" || len(sc.Events) == 0 || sc.Final == "" {
		t.Fatalf("unexpected scenario: %+v", sc)
	}
	if out, err := env.run(t, "check", path); err != nil {
		t.Fatalf("generated scenario fails: %v\n%s", err, out)
	}
}

func TestGenExplicitSequence(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, "gen", "--seed", "1", "--gesture", "tap,double-tap")
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	sc, err := scenario.Parse([]byte(out))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	presses := 0
	for _, s := range sc.Events {
		if s.Type == "press" {
			presses++
		}
	}
	if presses != 3 {
		t.Fatalf("expected 3 presses for tap + double tap, got %d", presses)
	}
	if _, err := env.run(t, "gen", "--gesture", "wave"); err == nil {
		t.Fatalf("expected unknown gesture error")
	}
}

func TestReplayRecordsAndExports(t *testing.T) {
	env := newCLIEnv(t)
	src := filepath.Join(testdataDir, "single_tap.yaml")
	out, err := env.run(t, "replay", "--record", "--transitions", src)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out, "final NO_FINGERS_DOWN") || !strings.Contains(out, "SINGLE_TAP_PRESSED") {
		t.Fatalf("unexpected replay output:\n%s", out)
	}

	id := onlySession(t, env.db)

	out, err = env.run(t, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "replay") || !strings.Contains(out, "single tap commits silently") {
		t.Fatalf("unexpected history:\n%s", out)
	}

	exported := filepath.Join(t.TempDir(), "exported.yaml")
	if _, err := env.run(t, "history", "export", id, "-o", exported); err != nil {
		t.Fatalf("export: %v", err)
	}
	if out, err := env.run(t, "check", exported); err != nil {
		t.Fatalf("exported scenario fails: %v\n%s", err, out)
	}

	out, err = env.run(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "Sessions: 1") || !strings.Contains(out, "Transitions") {
		t.Fatalf("unexpected stats:\n%s", out)
	}

	if _, err := env.run(t, "history", "delete", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.run(t, "history", "delete", id); err == nil {
		t.Fatalf("expected deleting twice to fail")
	}
}

func TestStatsRejectsBadFilters(t *testing.T) {
	env := newCLIEnv(t)
	if _, err := env.run(t, "stats", "--since", "yesterday"); err == nil {
		t.Fatalf("expected bad --since to fail")
	}
	if _, err := env.run(t, "stats", "--window", "0"); err == nil {
		t.Fatalf("expected bad --window to fail")
	}
}

func TestApplyConfigHelpers(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	var s string
	var f float64
	var b bool
	var d time.Duration
	cmd.Flags().StringVar(&s, "s", "flag", "")
	cmd.Flags().Float64Var(&f, "f", 1, "")
	cmd.Flags().BoolVar(&b, "b", false, "")
	cmd.Flags().DurationVar(&d, "d", time.Second, "")
	if err := cmd.Flags().Parse([]string{"--f", "2"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	fileS, fileF, fileB := "file", 9.0, true
	fileD := config.Duration{Duration: time.Minute}
	applyStringConfig(cmd, "s", &s, &fileS)
	applyFloatConfig(cmd, "f", &f, &fileF)
	applyBoolConfig(cmd, "b", &b, &fileB)
	applyDurationConfig(cmd, "d", &d, &fileD)
	if s != "file" || f != 2 || !b || d != time.Minute {
		t.Fatalf("unexpected merge: %q %v %v %v", s, f, b, d)
	}

	applyStringConfig(cmd, "s", &s, nil)
	if s != "file" {
		t.Fatalf("nil value must keep target")
	}
}

func onlySession(t *testing.T, dbPath string) string {
	t.Helper()
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			t.Fatalf("close store: %v", cerr)
		}
	}()
	sessions, err := st.ListSessions(context.Background(), model.StatsConfig{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	return sessions[0].SessionID
}
