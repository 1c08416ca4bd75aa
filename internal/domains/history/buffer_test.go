package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xpanvictor/voxchat/internal/types"
)

func TestBufferNeverExceedsCap(t *testing.T) {
	for _, capacity := range []int{1, 2, 5, 50} {
		b := New(capacity, nil)
		for i := 0; i < capacity*3+1; i++ {
			b.Append(types.UserTurn(fmt.Sprintf("turn %d", i)))
			if b.Len() > capacity {
				t.Fatalf("cap %d: length %d after append %d", capacity, b.Len(), i)
			}
		}
		if b.Len() != capacity {
			t.Errorf("cap %d: expected full buffer, got %d", capacity, b.Len())
		}
	}
}

func TestBufferKeepsNewestInOrder(t *testing.T) {
	b := New(3, nil)
	for i := 1; i <= 7; i++ {
		b.Append(types.UserTurn(fmt.Sprint(i)))
	}

	got := b.Messages()
	want := []string{"5", "6", "7"}
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("index %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
}

func TestBufferFiftyOnePairs(t *testing.T) {
	b := New(50, nil)
	n := 0
	for pair := 0; pair < 51; pair++ {
		n++
		b.Append(types.UserTurn(fmt.Sprint(n)))
		n++
		b.Append(types.AssistantTurn(fmt.Sprint(n)))
	}

	if b.Len() != 50 {
		t.Fatalf("expected 50 turns, got %d", b.Len())
	}
	msgs := b.Messages()
	for i, m := range msgs {
		want := fmt.Sprint(53 + i)
		if m.Content != want {
			t.Fatalf("index %d: expected turn %s, got %s", i, want, m.Content)
		}
	}
	if msgs[0].Role != types.USER || msgs[49].Role != types.ASSISTANT {
		t.Errorf("unexpected roles at window edges: %s, %s", msgs[0].Role, msgs[49].Role)
	}
}

func TestBufferClearThenSnapshotIsEmpty(t *testing.T) {
	b := New(10, nil)
	b.Append(types.UserTurn("hello"))
	b.Append(types.AssistantTurn("hi"))
	b.Clear()

	snap := b.Snapshot()
	if len(snap.Messages) != 0 {
		t.Errorf("expected empty snapshot, got %d messages", len(snap.Messages))
	}

	doc, err := snap.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(string(doc), `"messages": []`) {
		t.Errorf("expected empty message array in export, got %s", doc)
	}
}

func TestBufferNotifiesOnEveryMutation(t *testing.T) {
	calls := 0
	b := New(2, func() { calls++ })

	b.Append(types.UserTurn("a"))
	b.Append(types.AssistantTurn("b"))
	b.Clear()
	if calls != 3 {
		t.Errorf("expected 3 notifications, got %d", calls)
	}

	b.Trim()
	if calls != 3 {
		t.Errorf("trim without overflow should not notify, got %d", calls)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(5, nil)
	b.Append(types.UserTurn("original"))
	snap := b.Snapshot()
	snap.Messages[0].Content = "changed"

	if b.Messages()[0].Content != "original" {
		t.Error("mutating a snapshot leaked into the buffer")
	}
}

func TestExportDocument(t *testing.T) {
	b := New(50, nil)
	fixed := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	contents := []string{"what time is it", "It is noon.", "thanks", "You're welcome."}
	for i, c := range contents {
		if i%2 == 0 {
			b.Append(types.UserTurn(c))
		} else {
			b.Append(types.AssistantTurn(c))
		}
	}

	snap := b.Snapshot()
	doc, err := snap.JSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(string(doc), "\n  \"messages\"") {
		t.Errorf("expected pretty-printed document, got %s", doc)
	}

	var raw struct {
		Timestamp string       `json:"timestamp"`
		Messages  []types.Turn `json:"messages"`
	}
	if err := json.Unmarshal(doc, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, raw.Timestamp); err != nil {
		t.Errorf("timestamp %q is not ISO-8601: %v", raw.Timestamp, err)
	}
	if len(raw.Messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(raw.Messages))
	}
	for i, c := range contents {
		if raw.Messages[i].Content != c {
			t.Errorf("message %d: expected %q, got %q", i, c, raw.Messages[i].Content)
		}
	}

	if got := snap.Filename(); got != "chat_history_20240309_140507.json" {
		t.Errorf("unexpected filename %q", got)
	}
}

func TestSnapshotUnmarshalRoundTrip(t *testing.T) {
	in := `{"timestamp":"2024-01-02T03:04:05Z","messages":[{"role":"user","content":"hi"}]}`
	var snap Snapshot
	if err := json.Unmarshal([]byte(in), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.Timestamp.Year() != 2024 || len(snap.Messages) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	bad := `{"timestamp":"yesterday","messages":[]}`
	if err := json.Unmarshal([]byte(bad), &snap); err == nil {
		t.Error("expected error for non ISO-8601 timestamp")
	}
}
