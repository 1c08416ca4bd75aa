package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxchat/internal/types"
	"github.com/xpanvictor/voxchat/pkg/assistant"
	"github.com/xpanvictor/voxchat/pkg/io/mic"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	"github.com/xpanvictor/voxchat/pkg/io/scratch"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
	"github.com/xpanvictor/voxchat/pkg/io/tts"
)

type fakeMic struct {
	audio   stt.Audio
	err     error
	block   chan struct{}
	timeout time.Duration
}

func (m *fakeMic) Capture(ctx context.Context, timeout time.Duration) (stt.Audio, error) {
	m.timeout = timeout
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return stt.Audio{}, ctx.Err()
		}
	}
	return m.audio, m.err
}

type fakeSTT struct {
	text  string
	err   error
	calls int
	// files seen in the scratch area while transcribing
	scratchFiles int
	area         *scratch.Area
}

func (f *fakeSTT) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	f.calls++
	if f.area != nil {
		f.scratchFiles, _ = f.area.Count()
	}
	return f.text, f.err
}

type fakeLLM struct {
	reply string
	err   error
	input assistant.AssistantInput
	calls int
}

func (f *fakeLLM) ProcessPrompt(ctx context.Context, in assistant.AssistantInput) (*assistant.AssistantOutput, error) {
	f.calls++
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return assistant.NewOutput("id-1", "test-model", f.reply, assistant.Usage{PromptTokens: 3, CompletionTokens: 4})
}

func (f *fakeLLM) Name() string { return "fake" }

type fakeTTS struct {
	speech tts.Speech
	err    error
	voice  string
	texts  []string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text, voiceID string) (tts.Speech, error) {
	f.voice = voiceID
	f.texts = append(f.texts, text)
	return f.speech, f.err
}

func (f *fakeTTS) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return nil, nil
}

type fakePlayer struct {
	err   error
	clips []playback.Clip
	// whether the clip file existed while playing
	onDisk bool
	fs     afero.Fs
}

func (p *fakePlayer) Play(ctx context.Context, clip playback.Clip) error {
	p.clips = append(p.clips, clip)
	if p.fs != nil {
		p.onDisk, _ = afero.Exists(p.fs, clip.Path)
	}
	return p.err
}

type fixture struct {
	ctrl    *Controller
	sess    *session.Session
	mic     *fakeMic
	stt     *fakeSTT
	llm     *fakeLLM
	tts     *fakeTTS
	player  *fakePlayer
	area    *scratch.Area
	fs      afero.Fs
	mu      sync.Mutex
	phases  []runtime.RuntimePhase
	lastSet runtime.RuntimePhase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	area, err := scratch.New(fs, "temp_audio")
	if err != nil {
		t.Fatalf("scratch: %v", err)
	}
	sess := session.New(session.Config{HistoryCap: 50, DefaultVoice: "en-US-JennyNeural"})

	f := &fixture{
		sess: sess,
		mic:  &fakeMic{audio: stt.Audio{Data: []byte("RIFF....WAVE"), Format: "wav"}},
		stt:  &fakeSTT{text: "what time is it", area: area},
		llm:  &fakeLLM{reply: "It is noon."},
		tts:  &fakeTTS{speech: tts.Speech{Data: []byte{0xff, 0xfb}, ContentType: "audio/mpeg"}},
		area: area,
		fs:   fs,
	}
	f.player = &fakePlayer{fs: fs}
	sess.Subscribe(func(st session.State) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if st.Phase != f.lastSet {
			f.phases = append(f.phases, st.Phase)
			f.lastSet = st.Phase
		}
	})

	f.ctrl = NewController(Deps{
		Session:     sess,
		Mic:         f.mic,
		Transcriber: f.stt,
		Assistant:   f.llm,
		Synthesizer: f.tts,
		Player:      f.player,
		Scratch:     area,
	}, Options{ListenTimeout: 5 * time.Second, MaxTokens: 20, Temperature: 0.3})
	return f
}

func (f *fixture) scratchCount(t *testing.T) int {
	t.Helper()
	n, err := f.area.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)

	res := f.ctrl.Run(context.Background())
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Phase != runtime.IDLE || res.Stage != runtime.PLAYING {
		t.Errorf("unexpected phases: final %s, stage %s", res.Phase, res.Stage)
	}
	if res.Transcript != "what time is it" || res.Reply != "It is noon." {
		t.Errorf("unexpected result %+v", res)
	}

	turns := f.sess.History.Messages()
	want := []types.Turn{types.UserTurn("what time is it"), types.AssistantTurn("It is noon.")}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(turns))
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Errorf("turn %d: expected %+v, got %+v", i, want[i], turns[i])
		}
	}

	if f.mic.timeout != 5*time.Second {
		t.Errorf("listen timeout not passed, got %s", f.mic.timeout)
	}
	if f.stt.scratchFiles != 1 {
		t.Errorf("expected the utterance on disk while transcribing, saw %d files", f.stt.scratchFiles)
	}
	if f.tts.voice != "en-US-JennyNeural" {
		t.Errorf("unexpected voice %q", f.tts.voice)
	}
	if len(f.player.clips) != 1 || !f.player.onDisk {
		t.Errorf("expected one clip played from disk, got %d (on disk %v)", len(f.player.clips), f.player.onDisk)
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("expected no scratch files after cycle, got %d", n)
	}

	wantPhases := []runtime.RuntimePhase{
		runtime.LISTENING, runtime.TRANSCRIBING, runtime.GENERATING,
		runtime.SYNTHESIZING, runtime.PLAYING, runtime.IDLE,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.phases) != len(wantPhases) {
		t.Fatalf("expected phases %v, got %v", wantPhases, f.phases)
	}
	for i := range wantPhases {
		if f.phases[i] != wantPhases[i] {
			t.Errorf("phase %d: expected %s, got %s", i, wantPhases[i], f.phases[i])
		}
	}
}

func TestRunPromptIsSystemPlusHistory(t *testing.T) {
	f := newFixture(t)
	f.sess.History.Append(types.UserTurn("hello"))
	f.sess.History.Append(types.AssistantTurn("hi there"))

	if res := f.ctrl.Run(context.Background()); res.Err != nil {
		t.Fatalf("run: %v", res.Err)
	}

	in := f.llm.input
	if in.MaxTokens != 20 || in.Temperature != 0.3 {
		t.Errorf("unexpected generation settings %d/%v", in.MaxTokens, in.Temperature)
	}
	if len(in.Msgs) != 4 {
		t.Fatalf("expected system + 3 turns, got %d", len(in.Msgs))
	}
	if in.Msgs[0].MsgRole != assistant.SYSTEM ||
		in.Msgs[0].Content != "You are a concise assistant. Always respond in 40 words or less." {
		t.Errorf("unexpected system message %+v", in.Msgs[0])
	}
	roles := []assistant.Role{assistant.USER, assistant.ASSISTANT, assistant.USER}
	for i, r := range roles {
		if in.Msgs[i+1].MsgRole != r {
			t.Errorf("message %d: expected role %s, got %s", i+1, r, in.Msgs[i+1].MsgRole)
		}
	}
	if in.Msgs[3].Content != "what time is it" {
		t.Errorf("latest user turn missing, got %q", in.Msgs[3].Content)
	}
}

func TestRunListenTimeout(t *testing.T) {
	f := newFixture(t)
	f.sess.History.Append(types.UserTurn("earlier"))
	f.mic.err = mic.ErrNoSpeech

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrTimeoutNoSpeech) {
		t.Fatalf("expected ErrTimeoutNoSpeech, got %v", res.Err)
	}
	if res.Phase != runtime.IDLE || f.sess.Phase() != runtime.IDLE {
		t.Errorf("expected idle, got %s / %s", res.Phase, f.sess.Phase())
	}
	if f.sess.History.Len() != 1 {
		t.Errorf("history changed on timeout: %d turns", f.sess.History.Len())
	}
	if f.stt.calls != 0 {
		t.Error("transcriber should not be called after a timeout")
	}

	f.mu.Lock()
	for _, p := range f.phases {
		if p == runtime.ERRORED {
			t.Error("timeout should not pass through the error phase")
		}
	}
	f.mu.Unlock()

	st := f.sess.State()
	if st.Notice == nil || st.Notice.Level != session.WARNING || st.Notice.Text != "No speech detected. Please try again." {
		t.Errorf("unexpected notice %+v", st.Notice)
	}
}

func TestRunEmptyCapture(t *testing.T) {
	f := newFixture(t)
	f.mic.audio = stt.Audio{}

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrNoAudioRecorded) {
		t.Fatalf("expected ErrNoAudioRecorded, got %v", res.Err)
	}
	if UserMessage(res.Err) != "No audio was recorded. Please try again." {
		t.Errorf("unexpected message %q", UserMessage(res.Err))
	}
}

func TestRunTranscriptionFailures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		text    string
		kind    error
		message string
	}{
		{
			name:    "service",
			err:     errors.New("connection refused"),
			kind:    ErrTranscriptionService,
			message: "Could not request results: connection refused",
		},
		{
			name:    "unintelligible",
			err:     stt.ErrUnintelligible,
			kind:    ErrTranscriptionUnintelligible,
			message: "Could not understand audio. Please try again.",
		},
		{
			name:    "blank text",
			text:    "   ",
			kind:    ErrTranscriptionUnintelligible,
			message: "Could not understand audio. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.sess.History.Append(types.UserTurn("earlier"))
			f.sess.History.Append(types.AssistantTurn("reply"))
			f.stt.text, f.stt.err = tt.text, tt.err

			res := f.ctrl.Run(context.Background())
			if !errors.Is(res.Err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, res.Err)
			}
			if f.sess.History.Len() != 2 {
				t.Errorf("history changed: %d turns", f.sess.History.Len())
			}
			if f.llm.calls != 0 {
				t.Error("model should not be called")
			}
			if res.Phase != runtime.IDLE {
				t.Errorf("expected idle, got %s", res.Phase)
			}
			if got := UserMessage(res.Err); got != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, got)
			}
			if n := f.scratchCount(t); n != 0 {
				t.Errorf("utterance file left behind: %d files", n)
			}
		})
	}
}

func TestRunGenerationFailureKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	f.llm.err = errors.New("rate limited")

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrGenerationService) {
		t.Fatalf("expected ErrGenerationService, got %v", res.Err)
	}
	turns := f.sess.History.Messages()
	if len(turns) != 1 || turns[0] != types.UserTurn("what time is it") {
		t.Errorf("expected only the user turn, got %+v", turns)
	}
	if res.Phase != runtime.IDLE || res.Stage != runtime.GENERATING {
		t.Errorf("unexpected phases %s / %s", res.Phase, res.Stage)
	}

	f.mu.Lock()
	sawError := false
	for _, p := range f.phases {
		sawError = sawError || p == runtime.ERRORED
	}
	f.mu.Unlock()
	if !sawError {
		t.Error("expected the error phase before idle")
	}
	if st := f.sess.State(); st.Notice == nil || st.Notice.Level != session.ERROR {
		t.Errorf("expected an error notice, got %+v", st.Notice)
	}
}

func TestRunSynthesisNoAudio(t *testing.T) {
	f := newFixture(t)
	f.tts.speech = tts.Speech{}

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrSynthesisNoAudio) || !errors.Is(res.Err, tts.ErrNoAudio) {
		t.Fatalf("expected no-audio synthesis error, got %v", res.Err)
	}
	if got := UserMessage(res.Err); got != "Voice en-US-JennyNeural failed to generate speech" {
		t.Errorf("unexpected message %q", got)
	}
	turns := f.sess.History.Messages()
	if len(turns) != 2 || turns[1] != types.AssistantTurn("It is noon.") {
		t.Errorf("assistant turn should be kept, got %+v", turns)
	}
	if len(f.player.clips) != 0 {
		t.Error("nothing should be played")
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("expected no temp files, got %d", n)
	}
	if res.Phase != runtime.IDLE {
		t.Errorf("expected idle, got %s", res.Phase)
	}
}

func TestRunPlaybackFailureRemovesClip(t *testing.T) {
	f := newFixture(t)
	f.player.err = errors.New("device gone")

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", res.Err)
	}
	if got := UserMessage(res.Err); got != "Speech error: device gone" {
		t.Errorf("unexpected message %q", got)
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("clip file left behind: %d", n)
	}
	if f.sess.History.Len() != 2 {
		t.Errorf("expected both turns kept, got %d", f.sess.History.Len())
	}
}

func TestRunSweepsStaleArtifacts(t *testing.T) {
	f := newFixture(t)
	if _, err := f.area.Create("audio", "wav", []byte("stale")); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.mic.err = mic.ErrNoSpeech

	f.ctrl.Run(context.Background())
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("stale artifact survived the cycle: %d", n)
	}
}

func TestRunRejectsConcurrentCycle(t *testing.T) {
	f := newFixture(t)
	f.mic.block = make(chan struct{})

	done := make(chan CycleResult)
	go func() { done <- f.ctrl.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for f.sess.Phase() != runtime.LISTENING {
		if time.Now().After(deadline) {
			t.Fatal("first cycle never started listening")
		}
		time.Sleep(time.Millisecond)
	}

	if res := f.ctrl.Run(context.Background()); !errors.Is(res.Err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", res.Err)
	}

	close(f.mic.block)
	if res := <-done; res.Err != nil {
		t.Errorf("first cycle failed: %v", res.Err)
	}
}

func TestRunCancelledWhileListening(t *testing.T) {
	f := newFixture(t)
	f.mic.block = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.ctrl.Run(ctx)
	if !errors.Is(res.Err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", res.Err)
	}
	if res.Phase != runtime.IDLE {
		t.Errorf("expected idle after cancel, got %s", res.Phase)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.ctrl.stt = panicSTT{}

	res := f.ctrl.Run(context.Background())
	if !errors.Is(res.Err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", res.Err)
	}
	if res.Phase != runtime.IDLE {
		t.Errorf("expected idle, got %s", res.Phase)
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("utterance file left behind after panic: %d", n)
	}
}

type panicSTT struct{}

func (panicSTT) Transcribe(context.Context, stt.Audio) (string, error) {
	panic("boom")
}

func TestSelfTest(t *testing.T) {
	f := newFixture(t)

	if err := f.ctrl.SelfTest(context.Background()); err != nil {
		t.Fatalf("self test: %v", err)
	}
	st := f.sess.State()
	if !st.SystemTested {
		t.Error("expected system tested flag")
	}
	if st.Notice == nil || st.Notice.Text != "Audio system is working properly" {
		t.Errorf("unexpected notice %+v", st.Notice)
	}
	if len(f.tts.texts) != 1 || f.tts.texts[0] != "Test audio system." {
		t.Errorf("unexpected synthesized texts %v", f.tts.texts)
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("test clip left behind: %d", n)
	}

	if err := f.ctrl.SelfTest(context.Background()); err != nil {
		t.Errorf("second self test: %v", err)
	}
	if len(f.tts.texts) != 1 {
		t.Error("self test should run only once per session")
	}
}

func TestSelfTestFailure(t *testing.T) {
	f := newFixture(t)
	f.tts.err = errors.New("piper down")

	if err := f.ctrl.SelfTest(context.Background()); !errors.Is(err, ErrSynthesisService) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	st := f.sess.State()
	if st.Notice == nil || st.Notice.Level != session.ERROR || st.Notice.Text != "Audio system is not working properly" {
		t.Errorf("unexpected notice %+v", st.Notice)
	}
	if !st.SystemTested {
		t.Error("a failed test still marks the system tested")
	}
}

func TestClearHistorySweeps(t *testing.T) {
	f := newFixture(t)
	f.sess.History.Append(types.UserTurn("hello"))
	if _, err := f.area.Create("tts", "mp3", []byte{1}); err != nil {
		t.Fatalf("create: %v", err)
	}

	f.ctrl.ClearHistory(context.Background())
	if f.sess.History.Len() != 0 {
		t.Error("history not cleared")
	}
	if n := f.scratchCount(t); n != 0 {
		t.Errorf("scratch not swept: %d", n)
	}
}

func TestStartRunsInBackground(t *testing.T) {
	f := newFixture(t)
	f.mic.block = make(chan struct{})

	results := make(chan CycleResult, 1)
	if err := f.ctrl.Start(context.Background(), func(r CycleResult) { results <- r }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctrl.Start(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while a cycle runs, got %v", err)
	}

	close(f.mic.block)
	f.ctrl.Wait()
	res := <-results
	if res.Err != nil || res.Reply != "It is noon." {
		t.Errorf("unexpected result %+v", res)
	}
	if err := f.ctrl.Start(context.Background(), nil); err != nil {
		t.Errorf("controller should accept a new cycle, got %v", err)
	}
	f.ctrl.Wait()
}
