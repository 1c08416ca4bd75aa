package conversation

import (
	"errors"
	"fmt"

	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager/runtime"
)

// Failure kinds of one cycle. A *StageError matches its kind with errors.Is.
var (
	ErrTimeoutNoSpeech             = errors.New("no speech detected")
	ErrNoAudioRecorded             = errors.New("no audio was recorded")
	ErrCancelled                   = errors.New("cycle cancelled")
	ErrCapture                     = errors.New("audio capture failed")
	ErrTranscriptionUnintelligible = errors.New("transcription unintelligible")
	ErrTranscriptionService        = errors.New("transcription service unavailable")
	ErrGenerationService           = errors.New("generation failed")
	ErrSynthesisService            = errors.New("synthesis failed")
	ErrSynthesisNoAudio            = errors.New("synthesis produced no audio")
	ErrPlayback                    = errors.New("playback failed")
	ErrFileSystem                  = errors.New("scratch file error")
	ErrBusy                        = errors.New("a conversation cycle is already running")
	ErrInternal                    = errors.New("internal error")
)

// StageError reports which phase failed, how, and the collaborator's error.
type StageError struct {
	Phase runtime.RuntimePhase
	Kind  error
	Err   error
	// Voice is the voice in use when synthesis failed.
	Voice string
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageErr(phase runtime.RuntimePhase, kind, err error) *StageError {
	return &StageError{Phase: phase, Kind: kind, Err: err}
}

var kindNames = []struct {
	kind error
	name string
}{
	{ErrTimeoutNoSpeech, "timeout_no_speech"},
	{ErrNoAudioRecorded, "no_audio_recorded"},
	{ErrCancelled, "cancelled"},
	{ErrCapture, "capture"},
	{ErrTranscriptionUnintelligible, "transcription_unintelligible"},
	{ErrTranscriptionService, "transcription_service"},
	{ErrGenerationService, "generation_service"},
	{ErrSynthesisNoAudio, "synthesis_no_audio"},
	{ErrSynthesisService, "synthesis_service"},
	{ErrPlayback, "playback"},
	{ErrFileSystem, "file_system"},
	{ErrBusy, "busy"},
	{ErrInternal, "internal"},
}

// KindName is the metric label of err's kind, "" for nil and "unknown" otherwise.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "unknown"
}

// UserMessage is the text shown to the user for a failed cycle.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *StageError
	detail := err.Error()
	voice := ""
	if errors.As(err, &se) {
		voice = se.Voice
		if se.Err != nil {
			detail = se.Err.Error()
		}
	}

	switch {
	case errors.Is(err, ErrTimeoutNoSpeech):
		return "No speech detected. Please try again."
	case errors.Is(err, ErrNoAudioRecorded):
		return "No audio was recorded. Please try again."
	case errors.Is(err, ErrCancelled):
		return "Listening was cancelled."
	case errors.Is(err, ErrTranscriptionUnintelligible):
		return "Could not understand audio. Please try again."
	case errors.Is(err, ErrTranscriptionService):
		return fmt.Sprintf("Could not request results: %s", detail)
	case errors.Is(err, ErrSynthesisNoAudio):
		return fmt.Sprintf("Voice %s failed to generate speech", voice)
	case errors.Is(err, ErrSynthesisService):
		return fmt.Sprintf("Error generating speech: %s", detail)
	case errors.Is(err, ErrFileSystem) && se != nil && se.Phase == runtime.SYNTHESIZING:
		return "Speech file was not generated"
	case errors.Is(err, ErrPlayback):
		return fmt.Sprintf("Speech error: %s", detail)
	case errors.Is(err, ErrBusy):
		return "Still working on the last request, please wait."
	default:
		return fmt.Sprintf("An error occurred: %s", detail)
	}
}

// NoticeLevel is the severity the user sees for err.
func NoticeLevel(err error) session.Level {
	switch {
	case err == nil:
		return session.SUCCESS
	case errors.Is(err, ErrTimeoutNoSpeech), errors.Is(err, ErrNoAudioRecorded),
		errors.Is(err, ErrCancelled), errors.Is(err, ErrBusy):
		return session.WARNING
	default:
		return session.ERROR
	}
}
