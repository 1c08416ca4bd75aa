package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xpanvictor/voxchat/internal/types"
)

const exportTimeLayout = "20060102_150405"

// Snapshot is a read-only copy of the history at a point in time. It serializes
// to the export document {"timestamp": ..., "messages": [...]}.
type Snapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Messages  []types.Turn `json:"messages"`
}

type snapshotDoc struct {
	Timestamp string       `json:"timestamp"`
	Messages  []types.Turn `json:"messages"`
}

// MarshalJSON writes the timestamp as RFC 3339 and never emits a null message list.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	msgs := s.Messages
	if msgs == nil {
		msgs = []types.Turn{}
	}
	return json.Marshal(snapshotDoc{
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
		Messages:  msgs,
	})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
	if err != nil {
		return fmt.Errorf("export timestamp: %w", err)
	}
	s.Timestamp = ts
	s.Messages = doc.Messages
	return nil
}

// JSON renders the pretty-printed export document.
func (s Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Filename is the download name for this snapshot.
func (s Snapshot) Filename() string {
	return ExportFilename(s.Timestamp)
}

// ExportFilename formats chat_history_<YYYYMMDD_HHMMSS>.json for t.
func ExportFilename(t time.Time) string {
	return "chat_history_" + t.Format(exportTimeLayout) + ".json"
}
