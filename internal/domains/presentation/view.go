// Package presentation turns a session state into what the page shows.
package presentation

import (
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/internal/domains/sys_manager/runtime"
)

const NoVoicesNotice = "No voices available"

type Line struct {
	Speaker string `json:"speaker"`
	Role    string `json:"role"`
	Text    string `json:"text"`
}

type VoiceOption struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type Notice struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// View is the full page model. It is rebuilt on every state change.
type View struct {
	SessionID     string        `json:"sessionId"`
	Title         string        `json:"title"`
	Phase         string        `json:"phase"`
	PhaseLabel    string        `json:"phaseLabel"`
	Busy          bool          `json:"busy"`
	CanTalk       bool          `json:"canTalk"`
	Transcript    []Line        `json:"transcript"`
	Voices        []VoiceOption `json:"voices"`
	SelectedVoice string        `json:"selectedVoice"`
	VoicePicker   bool          `json:"voicePicker"`
	VoiceNotice   string        `json:"voiceNotice,omitempty"`
	Notice        *Notice       `json:"notice,omitempty"`
	SystemTested  bool          `json:"systemTested"`
}

// Render has no side effects; equal states give equal views.
func Render(st session.State) View {
	phase := st.Phase
	if phase == "" {
		phase = runtime.IDLE
	}

	v := View{
		SessionID:     st.ID.String(),
		Title:         st.Title,
		Phase:         string(phase),
		PhaseLabel:    phase.Label(),
		Busy:          phase.Busy(),
		CanTalk:       phase == runtime.IDLE,
		Transcript:    make([]Line, 0, len(st.Turns)),
		Voices:        make([]VoiceOption, 0, len(st.Voices)),
		SelectedVoice: st.SelectedVoice,
		VoicePicker:   st.VoicesAvailable,
		SystemTested:  st.SystemTested,
	}

	for _, t := range st.Turns {
		v.Transcript = append(v.Transcript, Line{
			Speaker: t.Speaker(),
			Role:    string(t.Role),
			Text:    t.Content,
		})
	}
	for _, d := range st.Voices {
		v.Voices = append(v.Voices, VoiceOption{
			ID:       d.ID,
			Label:    d.DisplayLabel,
			Selected: d.ID == st.SelectedVoice,
		})
	}
	if !st.VoicesAvailable {
		v.VoiceNotice = NoVoicesNotice
	}
	if st.Notice != nil {
		v.Notice = &Notice{Level: string(st.Notice.Level), Text: st.Notice.Text}
	}
	return v
}
