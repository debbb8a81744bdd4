// SPDX-License-Identifier: GPL-3.0-or-later

package port

import "github.com/rbmk-project/ibcx/ibcsim/packet"

// Verdict tells a [*Middleware] whether to call its child.
type Verdict uint8

const (
	// CONTINUE delegates to the child and then runs the after step.
	CONTINUE Verdict = iota

	// STOP returns the before step's outcome immediately.
	STOP
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case CONTINUE:
		return "CONTINUE"
	case STOP:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Middleware decorates a child [Application].
//
// For each hook, the optional Before step runs first. It may rewrite
// the inbound value, and it may short-circuit by returning [STOP], in
// which case its outcome is returned and neither the child nor the
// After step run. A non-nil error returned by a Before step also
// short-circuits. Otherwise we call the child and then the optional
// After step, which sees the child's outcome and may rewrite it.
//
// Nil steps pass values through unchanged.
//
// A [*Middleware] reports the child's port identifier, so wrapping
// is invisible to the chain. Middleware can wrap other middleware:
// see [Stack] for the resulting ordering.
type Middleware struct {
	// Child is the wrapped application. It must not be nil.
	Child Application

	// BeforeChannelOpen runs before the child's OnChannelOpen. On
	// [STOP], the returned version is the outcome.
	BeforeChannelOpen func(env Env, ch packet.Channel) (packet.Channel, Verdict, string, error)

	// AfterChannelOpen runs after the child's OnChannelOpen.
	AfterChannelOpen func(env Env, ch packet.Channel, version string, err error) (string, error)

	// BeforeChannelConnect runs before the child's OnChannelConnect.
	BeforeChannelConnect func(env Env, ch packet.Channel) (packet.Channel, Verdict, error)

	// AfterChannelConnect runs after the child's OnChannelConnect.
	AfterChannelConnect func(env Env, ch packet.Channel, err error) error

	// BeforePacketReceive runs before the child's OnPacketReceive. On
	// [STOP], the returned acknowledgement is the outcome.
	BeforePacketReceive func(env Env, pkt *packet.Packet) (*packet.Packet, Verdict, packet.Acknowledgement, error)

	// AfterPacketReceive runs after the child's OnPacketReceive. It
	// receives both the original packet and the packet forwarded to the
	// child, which differ when BeforePacketReceive rewrote it.
	AfterPacketReceive func(env Env, original, forwarded *packet.Packet,
		ack packet.Acknowledgement, err error) (packet.Acknowledgement, error)

	// BeforePacketAck runs before the child's OnPacketAck.
	BeforePacketAck func(env Env, pkt *packet.Packet, ack packet.Acknowledgement) (packet.Acknowledgement, Verdict, error)

	// AfterPacketAck runs after the child's OnPacketAck.
	AfterPacketAck func(env Env, pkt *packet.Packet, ack packet.Acknowledgement, err error) error

	// BeforePacketTimeout runs before the child's OnPacketTimeout.
	BeforePacketTimeout func(env Env, pkt *packet.Packet) (Verdict, error)

	// AfterPacketTimeout runs after the child's OnPacketTimeout.
	AfterPacketTimeout func(env Env, pkt *packet.Packet, err error) error

	// BeforeSendPacket runs before the child's OnSendPacket, when the
	// child implements [Sender]. On [STOP], the returned packet is the
	// outcome, hence a nil packet rejects the send.
	BeforeSendPacket func(env Env, pkt *packet.Packet) (*packet.Packet, Verdict, error)

	// AfterSendPacket runs after the child's OnSendPacket and receives
	// the packet the child returned.
	AfterSendPacket func(env Env, pkt *packet.Packet, err error) (*packet.Packet, error)
}

var (
	_ Application = &Middleware{}
	_ Sender      = &Middleware{}
)

// PortID implements [Application].
func (m *Middleware) PortID() packet.PortID {
	return m.Child.PortID()
}

// OnChannelOpen implements [Application].
func (m *Middleware) OnChannelOpen(env Env, ch packet.Channel) (string, error) {
	if m.BeforeChannelOpen != nil {
		next, verdict, version, err := m.BeforeChannelOpen(env, ch)
		if verdict == STOP || err != nil {
			return version, err
		}
		ch = next
	}
	version, err := m.Child.OnChannelOpen(env, ch)
	if m.AfterChannelOpen != nil {
		return m.AfterChannelOpen(env, ch, version, err)
	}
	return version, err
}

// OnChannelConnect implements [Application].
func (m *Middleware) OnChannelConnect(env Env, ch packet.Channel) error {
	if m.BeforeChannelConnect != nil {
		next, verdict, err := m.BeforeChannelConnect(env, ch)
		if verdict == STOP || err != nil {
			return err
		}
		ch = next
	}
	err := m.Child.OnChannelConnect(env, ch)
	if m.AfterChannelConnect != nil {
		return m.AfterChannelConnect(env, ch, err)
	}
	return err
}

// OnPacketReceive implements [Application].
func (m *Middleware) OnPacketReceive(env Env, pkt *packet.Packet) (packet.Acknowledgement, error) {
	forwarded := pkt
	if m.BeforePacketReceive != nil {
		next, verdict, ack, err := m.BeforePacketReceive(env, pkt)
		if verdict == STOP || err != nil {
			return ack, err
		}
		forwarded = next
	}
	ack, err := m.Child.OnPacketReceive(env, forwarded)
	if m.AfterPacketReceive != nil {
		return m.AfterPacketReceive(env, pkt, forwarded, ack, err)
	}
	return ack, err
}

// OnPacketAck implements [Application].
func (m *Middleware) OnPacketAck(env Env, pkt *packet.Packet, ack packet.Acknowledgement) error {
	if m.BeforePacketAck != nil {
		next, verdict, err := m.BeforePacketAck(env, pkt, ack)
		if verdict == STOP || err != nil {
			return err
		}
		ack = next
	}
	err := m.Child.OnPacketAck(env, pkt, ack)
	if m.AfterPacketAck != nil {
		return m.AfterPacketAck(env, pkt, ack, err)
	}
	return err
}

// OnPacketTimeout implements [Application].
func (m *Middleware) OnPacketTimeout(env Env, pkt *packet.Packet) error {
	if m.BeforePacketTimeout != nil {
		verdict, err := m.BeforePacketTimeout(env, pkt)
		if verdict == STOP || err != nil {
			return err
		}
	}
	err := m.Child.OnPacketTimeout(env, pkt)
	if m.AfterPacketTimeout != nil {
		return m.AfterPacketTimeout(env, pkt, err)
	}
	return err
}

// OnSendPacket implements [Sender]. When the child does not implement
// [Sender], the child step accepts the packet unchanged.
func (m *Middleware) OnSendPacket(env Env, pkt *packet.Packet) (*packet.Packet, error) {
	if m.BeforeSendPacket != nil {
		next, verdict, err := m.BeforeSendPacket(env, pkt)
		if verdict == STOP || err != nil {
			return next, err
		}
		pkt = next
	}
	out, err := pkt, error(nil)
	if sender, ok := m.Child.(Sender); ok {
		out, err = sender.OnSendPacket(env, pkt)
	}
	if m.AfterSendPacket != nil {
		return m.AfterSendPacket(env, out, err)
	}
	return out, err
}

// Constructor wraps an [Application] into a decorated [Application].
type Constructor func(child Application) Application

// Stack wraps app with the given constructors. The first constructor
// produces the outermost layer, so Before steps run in the order in
// which constructors are listed and After steps in the reverse order.
func Stack(app Application, constructors ...Constructor) Application {
	for idx := len(constructors) - 1; idx >= 0; idx-- {
		app = constructors[idx](app)
	}
	return app
}
