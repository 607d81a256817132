package types

import (
	"fmt"
	"time"
)

// Key orders messages by Lamport timestamp, breaking ties by sender id.
type Key struct {
	Timestamp uint64
	SenderID  int64
}

func (k Key) Less(other Key) bool {
	if k.Timestamp != other.Timestamp {
		return k.Timestamp < other.Timestamp
	}
	return k.SenderID < other.SenderID
}

func (k Key) String() string {
	return fmt.Sprintf("(%d, %d)", k.Timestamp, k.SenderID)
}

// Message is a participant message awaiting ordered delivery. It is treated
// as immutable once built.
type Message struct {
	ReceivedAt time.Time
	Content    string
	SenderName string
	SenderID   int64
	Timestamp  uint64 // sender's Lamport stamp at send time
	Seq        uint64 // per-sender counter assigned by the coordinator
}

func (m Message) Key() Key {
	return Key{Timestamp: m.Timestamp, SenderID: m.SenderID}
}

func (m Message) String() string {
	return fmt.Sprintf("[%d] participant-%d: %s", m.Timestamp, m.SenderID, m.Content)
}
