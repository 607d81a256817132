package wire

import (
	"errors"
	"fmt"
)

// MaxDatagramSize bounds every encoded packet so it fits in a single receive
// buffer on the other side.
const MaxDatagramSize = 2048

// MaxInteger is the largest magnitude an integer field may carry: the
// range a float64 represents exactly. Decoding rejects anything beyond it.
const MaxInteger = 1<<53 - 1

var (
	ErrMalformed   = errors.New("malformed datagram")
	ErrUnknownKind = errors.New("unknown message kind")
	ErrTooLarge    = errors.New("packet exceeds max datagram size")
	ErrOutOfRange  = errors.New("integer field out of range")
)

type Kind string

const (
	KindRegister         Kind = "register"
	KindRegisterResponse Kind = "register_response"
	KindMessage          Kind = "message"
	KindMessageAck       Kind = "message_ack"
	KindHeartbeat        Kind = "heartbeat"
	KindHeartbeatAck     Kind = "heartbeat_ack"
	KindInternalEvent    Kind = "internal_event"
	KindBroadcast        Kind = "broadcast"
)

const (
	StatusSuccess  = "success"
	StatusReceived = "received"
)

// Packet is one self-describing record on the wire.
type Packet interface {
	Kind() Kind
	record() map[string]any
}

type Register struct {
	ClientName string
	ClientID   int64
	Timestamp  uint64
}

type RegisterResponse struct {
	Status          string
	Message         string
	ServerTimestamp uint64
}

type Message struct {
	SenderName string
	Content    string
	SenderID   int64
	Timestamp  uint64
	MessageID  uint64
}

type MessageAck struct {
	Status            string
	ServerTimestamp   uint64
	OriginalTimestamp uint64
}

type Heartbeat struct {
	ClientID  int64
	Timestamp uint64
}

type HeartbeatAck struct {
	ServerTimestamp uint64
}

type InternalEvent struct {
	ClientID  int64
	Timestamp uint64
}

// Broadcast is the delivered notice fanned out by the coordinator.
type Broadcast struct {
	Content           string
	SenderID          int64
	OriginalTimestamp uint64
	ServerTimestamp   uint64
	MessageID         uint64
}

func (Register) Kind() Kind         { return KindRegister }
func (RegisterResponse) Kind() Kind { return KindRegisterResponse }
func (Message) Kind() Kind          { return KindMessage }
func (MessageAck) Kind() Kind       { return KindMessageAck }
func (Heartbeat) Kind() Kind        { return KindHeartbeat }
func (HeartbeatAck) Kind() Kind     { return KindHeartbeatAck }
func (InternalEvent) Kind() Kind    { return KindInternalEvent }
func (Broadcast) Kind() Kind        { return KindBroadcast }

func (p Register) record() map[string]any {
	return map[string]any{
		"type":        string(KindRegister),
		"client_id":   p.ClientID,
		"client_name": p.ClientName,
		"timestamp":   p.Timestamp,
	}
}

func (p RegisterResponse) record() map[string]any {
	return map[string]any{
		"type":             string(KindRegisterResponse),
		"status":           p.Status,
		"server_timestamp": p.ServerTimestamp,
		"message":          p.Message,
	}
}

func (p Message) record() map[string]any {
	return map[string]any{
		"type":        string(KindMessage),
		"sender_id":   p.SenderID,
		"sender_name": p.SenderName,
		"content":     p.Content,
		"timestamp":   p.Timestamp,
		"message_id":  p.MessageID,
	}
}

func (p MessageAck) record() map[string]any {
	return map[string]any{
		"type":               string(KindMessageAck),
		"status":             p.Status,
		"server_timestamp":   p.ServerTimestamp,
		"original_timestamp": p.OriginalTimestamp,
	}
}

func (p Heartbeat) record() map[string]any {
	return map[string]any{
		"type":      string(KindHeartbeat),
		"client_id": p.ClientID,
		"timestamp": p.Timestamp,
	}
}

func (p HeartbeatAck) record() map[string]any {
	return map[string]any{
		"type":             string(KindHeartbeatAck),
		"server_timestamp": p.ServerTimestamp,
	}
}

func (p InternalEvent) record() map[string]any {
	return map[string]any{
		"type":      string(KindInternalEvent),
		"client_id": p.ClientID,
		"timestamp": p.Timestamp,
	}
}

func (p Broadcast) record() map[string]any {
	return map[string]any{
		"type":               string(KindBroadcast),
		"sender_id":          p.SenderID,
		"content":            p.Content,
		"original_timestamp": p.OriginalTimestamp,
		"server_timestamp":   p.ServerTimestamp,
		"message_id":         p.MessageID,
	}
}

func fromRecord(rec map[string]any) (Packet, error) {
	kind, ok := rec["type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	r := &fieldReader{rec: rec}
	var p Packet
	switch Kind(kind) {
	case KindRegister:
		p = Register{
			ClientID:   r.int64("client_id"),
			ClientName: r.string("client_name"),
			Timestamp:  r.uint64("timestamp"),
		}
	case KindRegisterResponse:
		p = RegisterResponse{
			Status:          r.string("status"),
			ServerTimestamp: r.uint64("server_timestamp"),
			Message:         r.optString("message"),
		}
	case KindMessage:
		p = Message{
			SenderID:   r.int64("sender_id"),
			SenderName: r.string("sender_name"),
			Content:    r.string("content"),
			Timestamp:  r.uint64("timestamp"),
			MessageID:  r.uint64("message_id"),
		}
	case KindMessageAck:
		p = MessageAck{
			Status:            r.optString("status"),
			ServerTimestamp:   r.uint64("server_timestamp"),
			OriginalTimestamp: r.uint64("original_timestamp"),
		}
	case KindHeartbeat:
		p = Heartbeat{
			ClientID:  r.int64("client_id"),
			Timestamp: r.uint64("timestamp"),
		}
	case KindHeartbeatAck:
		p = HeartbeatAck{ServerTimestamp: r.uint64("server_timestamp")}
	case KindInternalEvent:
		p = InternalEvent{
			ClientID:  r.int64("client_id"),
			Timestamp: r.uint64("timestamp"),
		}
	case KindBroadcast:
		p = Broadcast{
			SenderID:          r.int64("sender_id"),
			Content:           r.string("content"),
			OriginalTimestamp: r.uint64("original_timestamp"),
			ServerTimestamp:   r.uint64("server_timestamp"),
			MessageID:         r.uint64("message_id"),
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, kind, r.err)
	}
	return p, nil
}
