package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestHappyCycle(t *testing.T) {
	var entered []RuntimePhase
	r := NewTurnRuntime(uuid.New(), func(p RuntimePhase) { entered = append(entered, p) })
	ctx := context.Background()

	for _, ev := range []RuntimeEvents{LISTEN, TRANSCRIBE, GENERATE, SYNTHESIZE, PLAY, FINISH} {
		if err := r.Fire(ctx, ev); err != nil {
			t.Fatalf("fire %s from %s: %v", ev, r.Phase(), err)
		}
	}

	want := []RuntimePhase{LISTENING, TRANSCRIBING, GENERATING, SYNTHESIZING, PLAYING, IDLE}
	if len(entered) != len(want) {
		t.Fatalf("expected %v, got %v", want, entered)
	}
	for i := range want {
		if entered[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], entered[i])
		}
	}
}

func TestFailFromEveryBusyPhase(t *testing.T) {
	path := []RuntimeEvents{LISTEN, TRANSCRIBE, GENERATE, SYNTHESIZE, PLAY}
	ctx := context.Background()

	for i := range path {
		r := NewTurnRuntime(uuid.New(), nil)
		for _, ev := range path[:i+1] {
			if err := r.Fire(ctx, ev); err != nil {
				t.Fatalf("fire %s: %v", ev, err)
			}
		}
		if err := r.Fire(ctx, FAIL); err != nil {
			t.Fatalf("fail from %s: %v", r.Phase(), err)
		}
		if r.Phase() != ERRORED {
			t.Fatalf("expected error phase, got %s", r.Phase())
		}
		if r.Can(LISTEN) {
			t.Error("error phase must recover before listening again")
		}
		if err := r.Fire(ctx, RECOVER); err != nil || r.Phase() != IDLE {
			t.Fatalf("recover: %v, phase %s", err, r.Phase())
		}
	}
}

func TestIdleCannotFail(t *testing.T) {
	r := NewTurnRuntime(uuid.New(), nil)
	if r.Can(FAIL) {
		t.Error("idle must not transition to error")
	}
	if err := r.Fire(context.Background(), FINISH); err == nil {
		t.Error("expected invalid transition error")
	}
}

func TestAbortOnlyFromListening(t *testing.T) {
	r := NewTurnRuntime(uuid.New(), nil)
	ctx := context.Background()
	_ = r.Fire(ctx, LISTEN)
	if err := r.Fire(ctx, ABORT); err != nil || r.Phase() != IDLE {
		t.Fatalf("abort: %v, phase %s", err, r.Phase())
	}

	_ = r.Fire(ctx, LISTEN)
	_ = r.Fire(ctx, TRANSCRIBE)
	if r.Can(ABORT) {
		t.Error("abort must not be allowed once transcribing")
	}
}

func TestPhaseLabels(t *testing.T) {
	for _, p := range Phases() {
		if p.Label() == "" {
			t.Errorf("phase %s has no label", p)
		}
	}
	if IDLE.Busy() || !PLAYING.Busy() || !ERRORED.Busy() {
		t.Error("unexpected busy flags")
	}
}
