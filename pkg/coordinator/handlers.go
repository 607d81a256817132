package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/sambigeara/relay/pkg/types"
	"github.com/sambigeara/relay/pkg/wire"
)

const (
	dropMalformed   = "malformed"
	dropUnknownKind = "unknown_kind"
)

// HandleDatagram decodes one datagram, applies it and sends the reply, if
// any. Failures are logged and never escape.
func (c *Coordinator) HandleDatagram(ctx context.Context, src string, b []byte) {
	pkt, err := c.codec.Decode(b)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, wire.ErrUnknownKind) {
			reason = dropUnknownKind
		}
		c.drop(ctx, src, reason, err)
		return
	}

	var reply wire.Packet
	switch p := pkt.(type) {
	case wire.Register:
		reply = c.Register(p.ClientID, p.ClientName, p.Timestamp, src)
	case wire.Message:
		reply = c.SubmitMessage(p, src)
	case wire.Heartbeat:
		reply = c.Heartbeat(p.ClientID, p.Timestamp, src)
	case wire.InternalEvent:
		c.InternalEventNotice(p.ClientID, p.Timestamp, src)
	default:
		c.drop(ctx, src, dropUnknownKind, fmt.Errorf("%w: %q is not accepted by the coordinator", wire.ErrUnknownKind, pkt.Kind()))
		return
	}

	if c.metrics != nil {
		c.metrics.Received(ctx, string(pkt.Kind()))
	}
	if reply != nil {
		c.send(ctx, src, reply)
	}
}

// Register enrolls id at addr, overwriting any previous record for the same
// id.
func (c *Coordinator) Register(id int64, name string, stamp uint64, addr string) wire.RegisterResponse {
	t := c.clock.Receive(stamp)
	replaced := c.registry.Register(id, name, addr, c.now(), t)

	c.record("participant %s (id %d) registered from %s, clock %d", name, id, addr, t)
	c.log.Infow("participant registered", "id", id, "name", name, "addr", addr, "clock", t, "reconnect", replaced)

	return wire.RegisterResponse{
		Status:          wire.StatusSuccess,
		ServerTimestamp: t,
		Message:         "Registered as " + name,
	}
}

// SubmitMessage queues m for ordered delivery. The sender does not need to be
// registered.
func (c *Coordinator) SubmitMessage(m wire.Message, addr string) wire.MessageAck {
	t := c.clock.Receive(m.Timestamp)
	now := c.now()

	msg := types.Message{
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Seq:        c.nextSeq(m.SenderID),
		ReceivedAt: now,
	}
	c.queue.Push(msg)
	c.registry.Touch(m.SenderID, addr, now)

	c.record("message from participant %d [T:%d]: %s, clock %d", m.SenderID, m.Timestamp, m.Content, t)
	c.log.Debugw("message queued", "key", msg.Key().String(), "seq", msg.Seq, "clock", t)

	return wire.MessageAck{
		Status:            wire.StatusReceived,
		ServerTimestamp:   t,
		OriginalTimestamp: m.Timestamp,
	}
}

func (c *Coordinator) Heartbeat(id int64, stamp uint64, addr string) wire.HeartbeatAck {
	t := c.clock.Receive(stamp)
	c.registry.Touch(id, addr, c.now())

	c.log.Debugw("heartbeat", "id", id, "clock", t)
	return wire.HeartbeatAck{ServerTimestamp: t}
}

// InternalEventNotice merges a participant's internal event stamp. There is
// no reply.
func (c *Coordinator) InternalEventNotice(id int64, stamp uint64, addr string) {
	t := c.clock.Receive(stamp)
	c.registry.Touch(id, addr, c.now())

	c.record("internal event from participant %d [T:%d], clock %d", id, stamp, t)
	c.log.Debugw("internal event notice", "id", id, "stamp", stamp, "clock", t)
}

func (c *Coordinator) send(ctx context.Context, dst string, p wire.Packet) {
	b, err := c.codec.Encode(p)
	if err != nil {
		c.log.Errorw("encode reply", "kind", p.Kind(), "err", err)
		return
	}
	c.sendRaw(ctx, dst, b)
}

func (c *Coordinator) sendRaw(ctx context.Context, dst string, b []byte) {
	if err := c.tr.Send(dst, b); err != nil {
		c.record("error sending to %s: %v", dst, err)
		c.log.Warnw("send failed", "dst", dst, "err", err)
		if c.metrics != nil {
			c.metrics.SendFailed(ctx)
		}
	}
}

func (c *Coordinator) drop(ctx context.Context, src, reason string, err error) {
	c.record("dropped datagram from %s: %v", src, err)
	c.log.Warnw("dropping datagram", "src", src, "reason", reason, "err", err)
	if c.metrics != nil {
		c.metrics.Dropped(ctx, reason)
	}
}
