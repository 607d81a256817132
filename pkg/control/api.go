package control

import (
	"encoding/json"
	"time"
)

const (
	ServiceName = "relay.control.v1.ControlService"

	StatusProcedure   = "/" + ServiceName + "/Status"
	RegisterProcedure = "/" + ServiceName + "/Register"
)

type StatusRequest struct {
	// Events is how many of the newest events to return; 0 means the
	// server default and a negative value returns every retained event.
	Events int `json:"events,omitempty"`
}

type Participant struct {
	LastSeen     time.Time `json:"last_seen"`
	Name         string    `json:"name"`
	Addr         string    `json:"addr"`
	ID           int64     `json:"id"`
	RegisteredAt uint64    `json:"registered_at"`
}

type Event struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

func (e Event) String() string {
	return "[" + e.At.Format(time.TimeOnly) + "] " + e.Text
}

type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type StatusResponse struct {
	StartedAt    time.Time     `json:"started_at"`
	ID           string        `json:"id"`
	Addr         string        `json:"addr"`
	Participants []Participant `json:"participants"`
	Events       []Event       `json:"events"`
	Metrics      []Metric      `json:"metrics,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	LogicalTime  uint64        `json:"logical_time"`
	RSSBytes     uint64        `json:"rss_bytes,omitempty"`
	Registered   int           `json:"registered"`
	Pending      int           `json:"pending"`
	// NextPending is the (timestamp, sender) key due for delivery next.
	NextPending string `json:"next_pending,omitempty"`
}

// RegisterRequest enrolls a participant without it speaking the datagram
// protocol for registration. Deliveries still go to ReplyAddr over the
// datagram transport.
type RegisterRequest struct {
	Name      string `json:"client_name"`
	ReplyAddr string `json:"reply_addr"`
	ID        int64  `json:"client_id"`
	Timestamp uint64 `json:"timestamp"`
}

type RegisterResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	ServerTimestamp uint64 `json:"server_timestamp"`
}

// jsonCodec carries the plain Go messages above; connect's built-in JSON
// codec only accepts generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
