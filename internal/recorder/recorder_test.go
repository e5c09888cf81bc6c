package recorder_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/uirecorder/internal/config"
	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/recorder"
	"github.com/gyaneshwarpardhi/uirecorder/internal/script"
	"github.com/gyaneshwarpardhi/uirecorder/internal/sim"
)

const (
	notepad  = `app.window(title="Untitled - Notepad", control_type="Window")`
	editor   = notepad + `.child_window(title="Text Editor", auto_id="15", control_type="Document")`
	settings = `app.window(title="Settings", control_type="Window")`
)

func loadScenario(t *testing.T, name string) *sim.Scenario {
	t.Helper()
	sc, err := sim.Load("../sim/testdata/" + name + ".yaml")
	require.NoError(t, err)
	return sc
}

// popupSteps open the File menu and pick Save As.
func popupSteps() []sim.Step {
	return []sim.Step{
		{Mouse: &sim.MouseStep{Click: "file"}},
		{Add: &sim.AddStep{Parent: "win", Element: sim.ElementSpec{
			ID: "file_popup", Name: "File", ControlType: "Menu", Bounds: [4]int{0, 40, 200, 140},
			Children: []sim.ElementSpec{{
				ID: "save_as", Name: "Save As...", ControlType: "MenuItem", Bounds: [4]int{0, 60, 200, 80},
			}},
		}}},
		{Event: &sim.EventStep{Name: event.EventMenuOpened, Sender: "file_popup"}},
		{Mouse: &sim.MouseStep{Click: "save_as"}},
		{Event: &sim.EventStep{Name: event.EventInvoked, Sender: "save_as"}},
	}
}

type session struct {
	rec     *recorder.Recorder
	backend *sim.Backend
	buf     *script.Buffer
	sc      *sim.Scenario
}

// armed returns a recording session over the notepad tree with an empty timeline.
func armed(t *testing.T, conf *config.Config) *session {
	t.Helper()
	sc := loadScenario(t, "notepad")
	sc.Timeline = nil
	b := sim.NewBackend(sc)
	buf := script.NewBuffer()
	rec, err := recorder.New(b.Deps(), buf, conf)
	require.NoError(t, err)
	require.NoError(t, rec.Setup(context.Background()))
	require.NoError(t, rec.Start())
	t.Cleanup(func() { _ = rec.Stop(context.Background()) })
	return &session{rec: rec, backend: b, buf: buf, sc: sc}
}

func (s *session) play(t *testing.T, steps ...sim.Step) {
	t.Helper()
	s.sc.Timeline = steps
	require.NoError(t, s.backend.Play(context.Background(), s.sc, s.rec))
}

func TestReplay_NotepadSessionEndsWithKill(t *testing.T) {
	buf := script.NewBuffer()
	rec, b, err := sim.Replay(context.Background(), loadScenario(t, "notepad"), buf, config.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{
		editor + `.click_input()`,
		editor + `.type_keys("Hi{SPACE}there{ENTER}")`,
		notepad + `.child_window(title="File", control_type="Menu").open_menu()`,
		notepad + `.child_window(title="Save As...", control_type="MenuItem").invoke()`,
		recorder.KillStatement,
	}, buf.Lines())

	assert.Equal(t, recorder.StateStopped, rec.State())
	assert.ErrorIs(t, rec.Err(), recorder.ErrProcessGone)
	assert.Equal(t, "process_gone", rec.EndReason())
	assert.False(t, b.Subscribed())
	assert.False(t, b.Hooked())
	assert.Zero(t, rec.Cache().Len())

	// Setup plus the cycle raised by the opened menu.
	assert.Equal(t, []int{50, 100, 50, 100}, b.Progress())
	assert.Equal(t, 2, b.Installs())
	assert.Zero(t, b.DroppedInput())

	subs := b.Subscriptions()
	require.Len(t, subs, 2)
	assert.Equal(t, "win", subs[0].Element)
	assert.Equal(t, "file_popup", subs[1].Element)
	assert.True(t, subs[0].Options.Properties)
	assert.Contains(t, subs[0].Options.IgnoredEvents, event.EventPropertyChanged)

	select {
	case <-rec.Done():
	default:
		t.Fatal("Done not closed after the session ended")
	}
}

func TestReplay_SettingsSessionStopsNormally(t *testing.T) {
	buf := script.NewBuffer()
	rec, _, err := sim.Replay(context.Background(), loadScenario(t, "settings"), buf, config.Default())
	require.NoError(t, err)

	assert.Equal(t, []string{
		settings + `.child_window(title="Dark", control_type="ListItem").select()`,
		settings + `.child_window(title="Advanced", control_type="TreeItem").expand()`,
		settings + `.child_window(title="Word wrap", auto_id="wrapBox", control_type="CheckBox").toggle()`,
		settings + `.child_window(title="Apply", auto_id="applyBtn", control_type="Button").click_input(button="right")`,
		settings + `.child_window(title="Apply", auto_id="applyBtn", control_type="Button").invoke()`,
	}, buf.Lines())
	assert.NoError(t, rec.Err())
	assert.Equal(t, "stopped", rec.EndReason())
	assert.Equal(t, recorder.StateStopped, rec.State())
}

func TestReplay_PropertiesOff(t *testing.T) {
	off := false
	conf := config.Default()
	conf.Recorder.RecordProperties = &off

	buf := script.NewBuffer()
	_, _, err := sim.Replay(context.Background(), loadScenario(t, "settings"), buf, conf)
	require.NoError(t, err)

	// Without property events every left click falls back to click_input.
	lines := buf.Lines()
	require.Len(t, lines, 5)
	assert.Equal(t, settings+`.child_window(title="Dark", control_type="ListItem").click_input()`, lines[0])
	assert.Equal(t, settings+`.child_window(title="Advanced", control_type="TreeItem").click_input()`, lines[1])
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := recorder.New(recorder.Deps{}, script.NewBuffer(), nil)
	assert.Error(t, err)
}

func TestEventsBeforeStartAreIgnored(t *testing.T) {
	ctx := context.Background()
	b := sim.NewBackend(loadScenario(t, "notepad"))
	buf := script.NewBuffer()
	rec, err := recorder.New(b.Deps(), buf, nil)
	require.NoError(t, err)
	require.NoError(t, rec.Setup(ctx))
	assert.Equal(t, recorder.StateArmed, rec.State())

	rec.HandleHook(event.MouseEvent{At: time.Now(), Button: event.ButtonLeft, Phase: event.PhaseDown, X: 400, Y: 300})
	rec.HandleApplication(ctx, event.ApplicationEvent{At: time.Now(), Name: event.EventInvoked, Sender: sim.Ref("edit")})
	assert.Zero(t, rec.Status().Buffered)

	require.NoError(t, rec.Start())
	require.NoError(t, rec.Stop(ctx))
	assert.Empty(t, buf.Lines())
}

func TestSetup_ProcessGone(t *testing.T) {
	b := sim.NewBackend(loadScenario(t, "notepad"))
	b.Exit()
	buf := script.NewBuffer()
	rec, err := recorder.New(b.Deps(), buf, nil)
	require.NoError(t, err)

	err = rec.Setup(context.Background())
	require.ErrorIs(t, err, controltree.ErrTreeUnavailable)
	assert.Equal(t, recorder.StateStopped, rec.State())
	assert.Equal(t, []string{recorder.KillStatement}, buf.Lines())
	assert.Equal(t, "setup_failed", rec.Status().EndReason)
	assert.Zero(t, b.Installs())
	assert.Error(t, rec.Start())
}

func TestSetup_SubscriptionFailure(t *testing.T) {
	b := sim.NewBackend(loadScenario(t, "notepad"))
	b.FailSubscribe(errors.New("access denied"))
	buf := script.NewBuffer()
	rec, err := recorder.New(b.Deps(), buf, nil)
	require.NoError(t, err)

	err = rec.Setup(context.Background())
	require.ErrorIs(t, err, recorder.ErrSubscription)
	assert.Equal(t, []string{recorder.KillStatement}, buf.Lines())
	assert.False(t, b.Hooked())
}

func TestSetup_Twice(t *testing.T) {
	s := armed(t, nil)
	assert.Error(t, s.rec.Setup(context.Background()))
	assert.Error(t, s.rec.Start())
}

func TestResubscribeFailure_RecordingContinues(t *testing.T) {
	s := armed(t, nil)
	s.backend.FailSubscribe(errors.New("element gone"))

	s.play(t, popupSteps()...)
	assert.Equal(t, recorder.StateRecording, s.rec.State())
	assert.True(t, s.backend.Hooked())
	// The tree was still rebuilt, so the menu item resolves.
	assert.NotNil(t, s.rec.Cache().NodeFromElement(sim.Ref("save_as")))

	require.NoError(t, s.rec.Stop(context.Background()))
	assert.NoError(t, s.rec.Err())
	assert.Equal(t, []string{
		notepad + `.child_window(title="File", control_type="Menu").open_menu()`,
		notepad + `.child_window(title="Save As...", control_type="MenuItem").invoke()`,
	}, s.buf.Lines())
}

func TestBoundedJoin_KeepsPreviousTree(t *testing.T) {
	conf := config.Default()
	conf.Recorder.ResubscribeTimeoutMs = 20
	s := armed(t, conf)
	gen := s.rec.Cache().Generation()
	require.Equal(t, uint64(1), gen)

	s.backend.DelaySubscribe(time.Hour)
	s.play(t, popupSteps()[1:3]...)

	assert.Equal(t, gen, s.rec.Cache().Generation())
	assert.Nil(t, s.rec.Cache().NodeFromElement(sim.Ref("file_popup")))
	assert.True(t, s.backend.Hooked())
	assert.Equal(t, 2, s.backend.Installs())
	assert.Equal(t, recorder.StateRecording, s.rec.State())
}

func TestWindowClosed_ProcessAliveRefreshes(t *testing.T) {
	s := armed(t, nil)
	s.play(t, sim.Step{Event: &sim.EventStep{Name: event.EventWindowClosed}})

	assert.Equal(t, recorder.StateRecording, s.rec.State())
	assert.Equal(t, uint64(2), s.rec.Cache().Generation())
	assert.Equal(t, []int{50, 100, 50, 100}, s.backend.Progress())
	assert.Empty(t, s.buf.Lines())
}

func TestTreeUnavailableWhileRecording_Terminates(t *testing.T) {
	s := armed(t, nil)
	s.backend.Exit()

	s.play(t, sim.Step{Event: &sim.EventStep{Name: event.EventWindowOpened, Sender: "win"}})

	assert.Equal(t, recorder.StateStopped, s.rec.State())
	assert.ErrorIs(t, s.rec.Err(), controltree.ErrTreeUnavailable)
	assert.Equal(t, "tree_unavailable", s.rec.EndReason())
	assert.Equal(t, []string{recorder.KillStatement}, s.buf.Lines())
	assert.False(t, s.backend.Hooked())
	assert.False(t, s.backend.Subscribed())
}

func TestStructureChanged_Refreshes(t *testing.T) {
	conf := config.Default()
	conf.Recorder.RecordStructure = true
	s := armed(t, conf)

	s.play(t,
		sim.Step{Add: &sim.AddStep{Parent: "win", Element: sim.ElementSpec{ID: "status", Name: "Status", ControlType: "StatusBar", Bounds: [4]int{0, 580, 800, 600}}}},
		sim.Step{Structure: &sim.StructureStep{Sender: "win", Change: "ChildAdded"}},
	)
	assert.NotNil(t, s.rec.Cache().NodeFromElement(sim.Ref("status")))
	assert.Equal(t, uint64(2), s.rec.Cache().Generation())
}

func TestStop_Idempotent(t *testing.T) {
	s := armed(t, nil)
	ctx := context.Background()
	require.NoError(t, s.rec.Stop(ctx))
	require.NoError(t, s.rec.Stop(ctx))

	assert.Equal(t, recorder.StateStopped, s.rec.State())
	assert.NoError(t, s.rec.Err())
	assert.False(t, s.backend.Hooked())
	assert.False(t, s.backend.Subscribed())
	assert.Empty(t, s.buf.Lines())
}

func TestStop_DuringUpdateCycle(t *testing.T) {
	s := armed(t, nil)
	s.backend.DelaySubscribe(time.Hour)

	done := make(chan error, 1)
	go func() {
		s.sc.Timeline = popupSteps()[1:3]
		done <- s.backend.Play(context.Background(), s.sc, s.rec)
	}()

	require.NoError(t, s.rec.Stop(context.Background()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("update cycle did not end after Stop")
	}
	s.rec.Settle()
	assert.False(t, s.backend.Hooked())
	assert.Equal(t, recorder.StateStopped, s.rec.State())
}

// gatedPlatform holds Subscribe calls until release is closed and, like a
// blocking platform call, does not watch ctx while it waits.
type gatedPlatform struct {
	recorder.Platform
	hold    atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (p *gatedPlatform) Subscribe(ctx context.Context, el event.ElementRef, opts recorder.SubscribeOptions) error {
	if p.hold.Load() {
		p.entered <- struct{}{}
		<-p.release
		ctx = context.Background()
	}
	return p.Platform.Subscribe(ctx, el, opts)
}

func TestStop_SubscriptionFinishingAfterStopIsRemoved(t *testing.T) {
	sc := loadScenario(t, "notepad")
	b := sim.NewBackend(sc)
	p := &gatedPlatform{Platform: b, entered: make(chan struct{}), release: make(chan struct{})}
	deps := b.Deps()
	deps.Platform = p
	rec, err := recorder.New(deps, script.NewBuffer(), nil)
	require.NoError(t, err)
	require.NoError(t, rec.Setup(context.Background()))
	require.NoError(t, rec.Start())
	require.True(t, b.Subscribed())

	p.hold.Store(true)
	sc.Timeline = popupSteps()[1:3]
	done := make(chan error, 1)
	go func() { done <- b.Play(context.Background(), sc, rec) }()

	select {
	case <-p.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("menu refresh never subscribed")
	}
	require.NoError(t, rec.Stop(context.Background()))
	assert.False(t, b.Subscribed())

	close(p.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("update cycle did not end after the subscription returned")
	}
	rec.Settle()

	assert.Equal(t, recorder.StateStopped, rec.State())
	assert.False(t, b.Subscribed(), "stopped session kept a subscription")
	assert.False(t, b.Hooked())
}

func TestStatus(t *testing.T) {
	s := armed(t, nil)
	st := s.rec.Status()
	assert.Equal(t, s.rec.SessionID(), st.SessionID)
	assert.Equal(t, "recording", st.State)
	assert.Equal(t, 5, st.TreeNodes)
	assert.Equal(t, uint64(1), st.TreeGeneration)
	assert.Zero(t, st.Fragments)
	assert.Empty(t, st.EndReason)
	assert.Empty(t, st.Error)
}

func TestWithSessionID(t *testing.T) {
	b := sim.NewBackend(loadScenario(t, "notepad"))
	rec, err := recorder.New(b.Deps(), script.NewBuffer(), nil, recorder.WithSessionID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", rec.SessionID())
	assert.Equal(t, "idle", rec.Status().State)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", recorder.StateIdle.String())
	assert.Equal(t, "armed", recorder.StateArmed.String())
	assert.Equal(t, "recording", recorder.StateRecording.String())
	assert.Equal(t, "stopped", recorder.StateStopped.String())
	assert.Equal(t, "state(9)", recorder.State(9).String())
}
