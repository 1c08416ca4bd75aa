package runtime

type RuntimePhase string

const (
	IDLE         RuntimePhase = "idle"
	LISTENING    RuntimePhase = "listening"
	TRANSCRIBING RuntimePhase = "transcribing"
	GENERATING   RuntimePhase = "generating"
	SYNTHESIZING RuntimePhase = "synthesizing"
	PLAYING      RuntimePhase = "playing"
	// entered from any non-idle phase, always left through RECOVER
	ERRORED RuntimePhase = "error"
)

type RuntimeEvents string

const (
	LISTEN     RuntimeEvents = "listen"
	TRANSCRIBE RuntimeEvents = "transcribe"
	GENERATE   RuntimeEvents = "generate"
	SYNTHESIZE RuntimeEvents = "synthesize"
	PLAY       RuntimeEvents = "play"
	FINISH     RuntimeEvents = "finish"
	ABORT      RuntimeEvents = "abort" // listening ended without speech
	FAIL       RuntimeEvents = "fail"
	RECOVER    RuntimeEvents = "recover"
)

var phaseLabels = map[RuntimePhase]string{
	IDLE:         "Ready",
	LISTENING:    "Listening...",
	TRANSCRIBING: "Processing speech...",
	GENERATING:   "Getting AI response...",
	SYNTHESIZING: "Generating speech...",
	PLAYING:      "Playing response...",
	ERRORED:      "Something went wrong",
}

// Label is the status line shown while the phase is active.
func (p RuntimePhase) Label() string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// Busy is true for every phase in which a cycle is running.
func (p RuntimePhase) Busy() bool {
	return p != IDLE && p != ""
}

// Phases lists every phase in cycle order.
func Phases() []RuntimePhase {
	return []RuntimePhase{IDLE, LISTENING, TRANSCRIBING, GENERATING, SYNTHESIZING, PLAYING, ERRORED}
}
