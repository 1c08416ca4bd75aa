package runtime

import (
	"context"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// TurnRuntime is the state machine of one session's conversation cycle:
//
//	idle -> listening -> transcribing -> generating -> synthesizing -> playing -> idle
//
// listening may abort straight back to idle; any busy phase may fail into
// error, which only recovers to idle.
type TurnRuntime struct {
	SessionID    uuid.UUID
	StateMachine *fsm.FSM
}

func busy() []string {
	return []string{
		string(LISTENING), string(TRANSCRIBING), string(GENERATING),
		string(SYNTHESIZING), string(PLAYING),
	}
}

// NewTurnRuntime starts in IDLE. onEnter, when set, receives every phase entered.
func NewTurnRuntime(sessionID uuid.UUID, onEnter func(RuntimePhase)) *TurnRuntime {
	callbacks := fsm.Callbacks{}
	if onEnter != nil {
		callbacks["enter_state"] = func(_ context.Context, e *fsm.Event) {
			onEnter(RuntimePhase(e.Dst))
		}
	}

	sm := fsm.NewFSM(
		string(IDLE),
		fsm.Events{
			{Name: string(LISTEN), Src: []string{string(IDLE)}, Dst: string(LISTENING)},
			{Name: string(TRANSCRIBE), Src: []string{string(LISTENING)}, Dst: string(TRANSCRIBING)},
			{Name: string(GENERATE), Src: []string{string(TRANSCRIBING)}, Dst: string(GENERATING)},
			{Name: string(SYNTHESIZE), Src: []string{string(GENERATING)}, Dst: string(SYNTHESIZING)},
			{Name: string(PLAY), Src: []string{string(SYNTHESIZING)}, Dst: string(PLAYING)},
			{Name: string(FINISH), Src: []string{string(PLAYING)}, Dst: string(IDLE)},
			{Name: string(ABORT), Src: []string{string(LISTENING)}, Dst: string(IDLE)},
			{Name: string(FAIL), Src: busy(), Dst: string(ERRORED)},
			{Name: string(RECOVER), Src: []string{string(ERRORED)}, Dst: string(IDLE)},
		},
		callbacks,
	)

	return &TurnRuntime{SessionID: sessionID, StateMachine: sm}
}

func (r *TurnRuntime) Phase() RuntimePhase {
	return RuntimePhase(r.StateMachine.Current())
}

// Fire applies ev. Transitions not allowed from the current phase return an
// fsm.InvalidEventError.
func (r *TurnRuntime) Fire(ctx context.Context, ev RuntimeEvents) error {
	return r.StateMachine.Event(ctx, string(ev))
}

func (r *TurnRuntime) Can(ev RuntimeEvents) bool {
	return r.StateMachine.Can(string(ev))
}

// Reset forces the machine back to IDLE without running callbacks.
func (r *TurnRuntime) Reset() {
	r.StateMachine.SetState(string(IDLE))
}
