package types

import "fmt"

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

// Turn is one message of the conversation, tagged by speaker.
// Turns are values; once appended to a history they are never edited.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn {
	return Turn{Role: USER, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: ASSISTANT, Content: content}
}

// Speaker is the transcript label shown next to the turn.
func (t Turn) Speaker() string {
	if t.Role == USER {
		return "You"
	}
	return "Assistant"
}

func (t Turn) String() string {
	return fmt.Sprintf("%s: %s", t.Speaker(), t.Content)
}

// Valid reports whether the role is one a history may hold.
func (t Turn) Valid() bool {
	return t.Role == USER || t.Role == ASSISTANT
}
