package scenario

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/touchx/internal/event"
	"github.com/verte-zerg/touchx/internal/explore"
	"github.com/verte-zerg/touchx/internal/generator"
	"github.com/verte-zerg/touchx/internal/model"
)

func strictBase() explore.Config {
	cfg := explore.DefaultConfig()
	cfg.Strict = true
	return cfg
}

func TestTestdataScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			sc, err := Load(path)
			require.NoError(t, err)
			res, err := Replay(sc, Options{Base: strictBase()})
			require.NoError(t, err)
			for _, m := range Check(sc, res) {
				t.Errorf("%s: %s", sc.Name, m)
			}
		})
	}
}

func TestParseDurations(t *testing.T) {
	sc, err := Parse([]byte(`
name: durations
config: {double-tap-timeout: 250}
events:
  - {at: 1.5s, type: press, id: 1, x: 1, y: 2}
  - {at: 1600, type: release, id: 1, x: 1, y: 2}
until: 2s
`))
	require.NoError(t, err)
	require.NotNil(t, sc.Config.DoubleTapTimeout)
	assert.Equal(t, 250*time.Millisecond, time.Duration(*sc.Config.DoubleTapTimeout))
	assert.Equal(t, 1500*time.Millisecond, time.Duration(sc.Events[0].At))
	assert.Equal(t, 1600*time.Millisecond, time.Duration(sc.Events[1].At))
}

func TestParseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"type":     "events: [{at: 0ms, type: pinch}]",
		"flag":     "events: [{at: 0ms, type: press, flags: [hyper]}]",
		"duration": "events: [{at: soon, type: press}]",
		"final":    "events: []\nfinal: FLYING",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestCheckReportsDifferences(t *testing.T) {
	sc := &Scenario{
		Events: []Step{
			{At: 0, Type: "press", ID: 1, X: 0, Y: 0},
			{At: Duration(10 * time.Millisecond), Type: "move", ID: 1, X: 50, Y: 0},
		},
		Expect: []Step{
			{At: Duration(10 * time.Millisecond), Type: "mouse-move", X: 40, Y: 0},
			{At: Duration(20 * time.Millisecond), Type: "mouse-move", X: 50, Y: 0},
		},
		Final: "NO_FINGERS_DOWN",
	}
	res, err := Replay(sc, Options{Base: strictBase()})
	require.NoError(t, err)
	mismatches := Check(sc, res)
	require.Len(t, mismatches, 3)
	assert.Equal(t, 0, mismatches[0].Index)
	assert.Equal(t, "nothing", mismatches[1].Got)
	assert.Equal(t, -1, mismatches[2].Index)
}

func TestReplayRejectsTimeTravel(t *testing.T) {
	sc := &Scenario{Events: []Step{
		{At: Duration(50 * time.Millisecond), Type: "press", ID: 1},
		{At: Duration(10 * time.Millisecond), Type: "release", ID: 1},
	}}
	_, err := Replay(sc, Options{})
	assert.Error(t, err)
}

func TestReplayPassesNonTouchThrough(t *testing.T) {
	sc := &Scenario{Events: []Step{
		{Type: "key-press", Key: 65, Flags: []string{"shift"}},
		{Type: "gesture", Name: "swipe-left"},
	}}
	res, err := Replay(sc, Options{Base: strictBase()})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	for _, out := range res.Outputs {
		assert.Equal(t, explore.Continue, out.Status)
	}
	assert.Empty(t, res.Produced())
}

func TestRecordedScenarioRoundTrip(t *testing.T) {
	p := generator.DefaultParams()
	events := generator.NewSeeded(3).Sequence(p, generator.Explore, generator.DoubleTap, generator.ThreeFingerSwipe)
	sc := FromEvents("generated", events)
	res, err := Replay(sc, Options{Base: strictBase()})
	require.NoError(t, err)
	for _, ev := range res.Produced() {
		sc.Expect = append(sc.Expect, StepFromEvent(ev))
	}
	sc.Final = res.Final.String()

	data, err := Marshal(sc)
	require.NoError(t, err)
	loaded, err := Parse(data)
	require.NoError(t, err)
	res2, err := Replay(loaded, Options{Base: strictBase()})
	require.NoError(t, err)
	assert.Empty(t, Check(loaded, res2))
}

func TestStepEventKinds(t *testing.T) {
	ev, err := Step{At: Duration(time.Second), Type: "mouse-move", X: 3, Y: 4, Flags: []string{"synthesized"}}.Event()
	require.NoError(t, err)
	assert.Equal(t, event.NewMouseMove(event.Pt(3, 4), event.FlagSynthesized, time.Second), ev)

	ev, err = Step{Type: "key-release", Key: 13}.Event()
	require.NoError(t, err)
	assert.Equal(t, event.KeyReleased, ev.Type)
	assert.Equal(t, 13, ev.KeyCode)
}

func TestFromRecords(t *testing.T) {
	sess := model.Session{Name: "rec", DoubleTapTimeoutMs: 250, TouchSlop: 10}
	events := []model.EventRecord{
		{Seq: 0, Direction: model.DirectionIn, Status: "discard", Type: "press", TouchID: 1, X: 1, Y: 1},
		{Seq: 1, Direction: model.DirectionOut, Status: "dispatch", Type: "mouse-move", X: 1, Y: 1,
			Flags: uint32(event.FlagSynthesized | event.FlagTouchAccessibility), TimeNs: int64(250 * time.Millisecond)},
	}
	transitions := []model.TransitionRecord{
		{From: "NO_FINGERS_DOWN", To: "SINGLE_TAP_PRESSED"},
		{From: "SINGLE_TAP_PRESSED", To: "TOUCH_EXPLORATION", TimeNs: int64(250 * time.Millisecond)},
	}
	sc := FromRecords(sess, events, FinalState(transitions))
	require.Len(t, sc.Events, 1)
	require.Len(t, sc.Expect, 1)
	assert.Equal(t, "TOUCH_EXPLORATION", sc.Final)
	assert.Equal(t, 0, sc.Expect[0].ID)
	assert.Equal(t, []string{"synthesized", "accessibility"}, sc.Expect[0].Flags)

	res, err := Replay(sc, Options{Base: strictBase()})
	require.NoError(t, err)
	assert.Empty(t, Check(sc, res))
	assert.Equal(t, "NO_FINGERS_DOWN", FinalState(nil))
}
