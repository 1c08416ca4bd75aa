// Package conversation runs the voice conversation cycle of a session:
// listen, transcribe, generate, synthesize and play, one cycle at a time.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/internal/constants/prompts"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager/runtime"
	"github.com/xpanvictor/voxchat/internal/types"
	"github.com/xpanvictor/voxchat/pkg/Logger"
	"github.com/xpanvictor/voxchat/pkg/assistant"
	"github.com/xpanvictor/voxchat/pkg/io/mic"
	"github.com/xpanvictor/voxchat/pkg/io/playback"
	"github.com/xpanvictor/voxchat/pkg/io/scratch"
	"github.com/xpanvictor/voxchat/pkg/io/stt"
	"github.com/xpanvictor/voxchat/pkg/io/tts"
	"github.com/xpanvictor/voxchat/pkg/observe"
)

const (
	DefaultListenTimeout = 5 * time.Second
	DefaultMaxTokens     = 20
	DefaultTemperature   = 0.3

	selfTestText = "Test audio system."
)

// Capturer records one utterance, returning mic.ErrNoSpeech when nothing was
// heard before timeout.
type Capturer interface {
	Capture(ctx context.Context, timeout time.Duration) (stt.Audio, error)
}

type Options struct {
	ListenTimeout time.Duration
	MaxTokens     int
	Temperature   float64
	// SystemPrompt overrides the built-in instruction when set.
	SystemPrompt string
	// Provider names for metrics.
	STTProvider string
	TTSProvider string
}

type Deps struct {
	Session     *session.Session
	Mic         Capturer
	Transcriber stt.Transcriber
	Assistant   assistant.Assistant
	Synthesizer tts.Synthesizer
	Player      playback.Player
	Scratch     *scratch.Area
	Metrics     *observe.Metrics
	Logger      *Logger.Logger
}

// CycleResult is the outcome of one Run.
type CycleResult struct {
	// Phase is the phase after the cycle settled, IDLE unless the machine broke.
	Phase runtime.RuntimePhase
	// Stage is the last stage the cycle entered.
	Stage      runtime.RuntimePhase
	Transcript string
	Reply      string
	Err        error
}

type Controller struct {
	session *session.Session
	mic     Capturer
	stt     stt.Transcriber
	llm     assistant.Assistant
	tts     tts.Synthesizer
	player  playback.Player
	scratch *scratch.Area
	metrics *observe.Metrics
	logger  *Logger.Logger
	opts    Options
	rt      *runtime.TurnRuntime

	runMu sync.Mutex
	wg    sync.WaitGroup
}

func NewController(d Deps, opts Options) *Controller {
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = DefaultListenTimeout
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.STTProvider == "" {
		opts.STTProvider = "stt"
	}
	if opts.TTSProvider == "" {
		opts.TTSProvider = "tts"
	}
	if d.Metrics == nil {
		d.Metrics = observe.Discard()
	}
	if d.Logger == nil {
		d.Logger = Logger.NewNop()
	}

	return &Controller{
		session: d.Session,
		mic:     d.Mic,
		stt:     d.Transcriber,
		llm:     d.Assistant,
		tts:     d.Synthesizer,
		player:  d.Player,
		scratch: d.Scratch,
		metrics: d.Metrics,
		logger:  d.Logger.Named("conversation"),
		opts:    opts,
		rt:      runtime.NewTurnRuntime(d.Session.ID, d.Session.SetPhase),
	}
}

func (c *Controller) Phase() runtime.RuntimePhase {
	return c.rt.Phase()
}

// Run performs one full cycle. It returns ErrBusy at once when a cycle is
// already running and always leaves the controller idle.
func (c *Controller) Run(ctx context.Context) CycleResult {
	if !c.runMu.TryLock() {
		return CycleResult{Phase: c.rt.Phase(), Err: ErrBusy}
	}
	defer c.runMu.Unlock()
	return c.runLocked(ctx)
}

// Start runs a cycle on its own goroutine and hands the result to done, which
// may be nil. Returns ErrBusy when a cycle is already running.
func (c *Controller) Start(ctx context.Context, done func(CycleResult)) error {
	if !c.runMu.TryLock() {
		return ErrBusy
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := c.runLocked(ctx)
		c.runMu.Unlock()
		if done != nil {
			done(res)
		}
	}()
	return nil
}

// Wait blocks until every cycle begun with Start has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) runLocked(ctx context.Context) CycleResult {
	start := time.Now()
	c.sweep(ctx)
	res := c.safeCycle(ctx)
	c.settle(ctx, &res)
	c.sweep(ctx)

	status := "ok"
	if res.Err != nil {
		status = "error"
		c.logger.Warnf("cycle ended in %s: %v", res.Stage, res.Err)
	} else {
		c.logger.Infof("cycle done in %s", time.Since(start).Round(time.Millisecond))
	}
	c.metrics.RecordCycle(ctx, time.Since(start), status, KindName(res.Err))
	return res
}

func (c *Controller) safeCycle(ctx context.Context) (res CycleResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Stage = c.rt.Phase()
			res.Err = stageErr(res.Stage, ErrInternal, fmt.Errorf("panic: %v", r))
		}
	}()
	c.cycle(ctx, &res)
	return res
}

func (c *Controller) cycle(ctx context.Context, res *CycleResult) {
	if !c.enter(ctx, res, runtime.LISTEN, runtime.LISTENING) {
		return
	}
	audio, err := c.listen(ctx)
	if err != nil {
		res.Err = err
		return
	}

	if !c.enter(ctx, res, runtime.TRANSCRIBE, runtime.TRANSCRIBING) {
		return
	}
	text, err := c.transcribe(ctx, audio)
	if err != nil {
		res.Err = err
		return
	}
	c.session.History.Append(types.UserTurn(text))
	res.Transcript = text

	if !c.enter(ctx, res, runtime.GENERATE, runtime.GENERATING) {
		return
	}
	reply, err := c.generate(ctx)
	if err != nil {
		res.Err = err
		return
	}
	res.Reply = reply

	if !c.enter(ctx, res, runtime.SYNTHESIZE, runtime.SYNTHESIZING) {
		return
	}
	c.session.History.Append(types.AssistantTurn(reply))
	voiceID := c.session.Voices.Selected()
	speech, err := c.synthesize(ctx, reply, voiceID)
	if err != nil {
		res.Err = err
		return
	}
	art, err := c.scratch.Create("tts", speech.Ext(), speech.Data)
	if err != nil {
		res.Err = &StageError{Phase: runtime.SYNTHESIZING, Kind: ErrFileSystem, Err: err, Voice: voiceID}
		return
	}
	defer c.release(art)

	if !c.enter(ctx, res, runtime.PLAY, runtime.PLAYING) {
		return
	}
	clip := playback.Clip{
		ID:          uuid.New(),
		Data:        speech.Data,
		ContentType: speech.ContentType,
		Path:        art.Path(),
	}
	if err := c.play(ctx, clip); err != nil {
		res.Err = err
		return
	}

	if err := c.fire(ctx, runtime.FINISH); err != nil {
		res.Err = stageErr(runtime.PLAYING, ErrInternal, err)
	}
}

func (c *Controller) enter(ctx context.Context, res *CycleResult, ev runtime.RuntimeEvents, phase runtime.RuntimePhase) bool {
	if err := c.fire(ctx, ev); err != nil {
		res.Err = stageErr(c.rt.Phase(), ErrInternal, err)
		return false
	}
	res.Stage = phase
	return true
}

func (c *Controller) listen(ctx context.Context) (stt.Audio, error) {
	start := time.Now()
	audio, err := c.mic.Capture(ctx, c.opts.ListenTimeout)
	c.metrics.RecordStage(ctx, observe.StageListen, time.Since(start))

	switch {
	case err == nil && audio.Empty():
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrNoAudioRecorded, nil)
	case err == nil:
		return audio, nil
	case errors.Is(err, mic.ErrNoSpeech):
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrTimeoutNoSpeech, err)
	case errors.Is(err, mic.ErrNoAudio):
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrNoAudioRecorded, err)
	case errors.Is(err, mic.ErrCaptureBusy):
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrBusy, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrCancelled, err)
	default:
		return stt.Audio{}, stageErr(runtime.LISTENING, ErrCapture, err)
	}
}

func (c *Controller) transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	ext := audio.Format
	if ext == "" {
		ext = "wav"
	}
	art, err := c.scratch.Create("audio", ext, audio.Data)
	if err != nil {
		return "", stageErr(runtime.TRANSCRIBING, ErrFileSystem, err)
	}
	defer c.release(art)

	start := time.Now()
	text, err := c.stt.Transcribe(ctx, audio)
	c.metrics.RecordStage(ctx, observe.StageSTT, time.Since(start))
	if err == nil && strings.TrimSpace(text) == "" {
		err = stt.ErrUnintelligible
	}
	c.provider(ctx, c.opts.STTProvider, observe.StageSTT, err)

	switch {
	case err == nil:
		return strings.TrimSpace(text), nil
	case errors.Is(err, stt.ErrUnintelligible):
		return "", stageErr(runtime.TRANSCRIBING, ErrTranscriptionUnintelligible, err)
	default:
		return "", stageErr(runtime.TRANSCRIBING, ErrTranscriptionService, err)
	}
}

// Prompt is the system instruction followed by the whole history.
func (c *Controller) Prompt() []assistant.AssistantMessage {
	turns := c.session.History.Messages()
	msgs := make([]assistant.AssistantMessage, 0, len(turns)+1)
	msgs = append(msgs, prompts.DEFAULT_PROMPT.Resolve(c.opts.SystemPrompt).ToMessage())
	for _, t := range turns {
		role := assistant.USER
		if t.Role == types.ASSISTANT {
			role = assistant.ASSISTANT
		}
		msgs = append(msgs, assistant.NewMessage(role, t.Content))
	}
	return msgs
}

func (c *Controller) generate(ctx context.Context) (string, error) {
	input := assistant.NewAssistantInput(c.Prompt(), c.opts.MaxTokens, c.opts.Temperature)

	start := time.Now()
	out, err := c.llm.ProcessPrompt(ctx, input)
	c.metrics.RecordStage(ctx, observe.StageLLM, time.Since(start))
	if err == nil && (out == nil || strings.TrimSpace(out.Response.Content) == "") {
		err = assistant.ErrEmptyCompletion
	}
	c.provider(ctx, c.llm.Name(), observe.StageLLM, err)
	if err != nil {
		return "", stageErr(runtime.GENERATING, ErrGenerationService, err)
	}

	c.logger.Debugf("reply from %s: %d prompt / %d completion tokens",
		c.llm.Name(), out.Usage.PromptTokens, out.Usage.CompletionTokens)
	return strings.TrimSpace(out.Response.Content), nil
}

func (c *Controller) synthesize(ctx context.Context, text, voiceID string) (tts.Speech, error) {
	start := time.Now()
	speech, err := c.tts.Synthesize(ctx, text, voiceID)
	if err == nil {
		speech, err = tts.CheckSpeech(speech, voiceID)
	}
	c.metrics.RecordStage(ctx, observe.StageTTS, time.Since(start))
	c.provider(ctx, c.opts.TTSProvider, observe.StageTTS, err)

	switch {
	case err == nil:
		return speech, nil
	case errors.Is(err, tts.ErrNoAudio):
		return tts.Speech{}, &StageError{Phase: runtime.SYNTHESIZING, Kind: ErrSynthesisNoAudio, Err: err, Voice: voiceID}
	default:
		return tts.Speech{}, &StageError{Phase: runtime.SYNTHESIZING, Kind: ErrSynthesisService, Err: err, Voice: voiceID}
	}
}

func (c *Controller) play(ctx context.Context, clip playback.Clip) error {
	start := time.Now()
	err := c.player.Play(ctx, clip)
	c.metrics.RecordStage(ctx, observe.StagePlayback, time.Since(start))
	if err != nil {
		return stageErr(runtime.PLAYING, ErrPlayback, err)
	}
	return nil
}

// settle brings the machine back to idle and posts the outcome to the session.
func (c *Controller) settle(ctx context.Context, res *CycleResult) {
	if res.Err != nil {
		aborted := errors.Is(res.Err, ErrTimeoutNoSpeech) ||
			errors.Is(res.Err, ErrNoAudioRecorded) ||
			errors.Is(res.Err, ErrCancelled)
		switch {
		case aborted && c.rt.Can(runtime.ABORT):
			c.mustFire(ctx, runtime.ABORT)
		case c.rt.Can(runtime.FAIL):
			c.mustFire(ctx, runtime.FAIL)
			c.mustFire(ctx, runtime.RECOVER)
		}
		c.session.Notify(NoticeLevel(res.Err), UserMessage(res.Err))
	} else {
		c.session.ClearNotice()
	}

	if c.rt.Phase() != runtime.IDLE {
		c.logger.Errorf("cycle left the machine in %s, resetting", c.rt.Phase())
		c.rt.Reset()
		c.session.SetPhase(runtime.IDLE)
	}
	res.Phase = c.rt.Phase()
}

// fire ignores cancellation so the machine can always move on.
func (c *Controller) fire(ctx context.Context, ev runtime.RuntimeEvents) error {
	return c.rt.Fire(context.WithoutCancel(ctx), ev)
}

func (c *Controller) mustFire(ctx context.Context, ev runtime.RuntimeEvents) {
	if err := c.fire(ctx, ev); err != nil {
		c.logger.Errorf("transition %s from %s: %v", ev, c.rt.Phase(), err)
	}
}

func (c *Controller) provider(ctx context.Context, name, kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, name, kind)
	}
	c.metrics.RecordProviderRequest(ctx, name, kind, status)
}

func (c *Controller) release(art *scratch.Artifact) {
	if err := art.Release(); err != nil {
		c.logger.Warnf("release %s: %v", art.Name(), err)
	}
}

func (c *Controller) sweep(ctx context.Context) {
	n, err := c.scratch.Sweep(0)
	if n > 0 {
		c.metrics.ScratchFilesRemoved.Add(ctx, int64(n))
	}
	if err != nil {
		c.logger.Warnf("scratch sweep: %v", err)
	}
}

// ClearHistory empties the conversation and, when no cycle is running,
// the scratch area.
func (c *Controller) ClearHistory(ctx context.Context) {
	c.session.ClearHistory()
	if !c.runMu.TryLock() {
		return
	}
	defer c.runMu.Unlock()
	c.sweep(ctx)
}

// SelfTest synthesizes a short phrase with the selected voice into the scratch
// area once per session and reports the result as a notice.
func (c *Controller) SelfTest(ctx context.Context) error {
	if c.session.SystemTested() {
		return nil
	}
	if !c.runMu.TryLock() {
		return ErrBusy
	}
	defer c.runMu.Unlock()

	err := c.selfTest(ctx)
	if !c.session.MarkSystemTested() {
		return err
	}
	if err != nil {
		c.logger.Errorf("audio self-test: %v", err)
		c.session.Notify(session.ERROR, "Audio system is not working properly")
		return err
	}
	c.logger.Infof("audio self-test passed")
	c.session.Notify(session.SUCCESS, "Audio system is working properly")
	return nil
}

func (c *Controller) selfTest(ctx context.Context) error {
	voiceID := c.session.Voices.Selected()
	speech, err := c.synthesize(ctx, selfTestText, voiceID)
	if err != nil {
		return err
	}
	art, err := c.scratch.Create("test_audio", speech.Ext(), speech.Data)
	if err != nil {
		return &StageError{Phase: runtime.SYNTHESIZING, Kind: ErrFileSystem, Err: err, Voice: voiceID}
	}
	return art.Release()
}
