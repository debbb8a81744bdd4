//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Pending packet queues
//

package chain

import (
	"fmt"
	"slices"

	"github.com/rbmk-project/ibcx/ibcsim/packet"
)

// EnqueueOutgoing appends a packet to the outgoing queue.
//
// Application code should prefer [*Chain.SendPacket], which also assigns
// the sequence number. This method always succeeds.
func (c *Chain) EnqueueOutgoing(pkt *packet.Packet) {
	c.mu.Lock()
	c.outgoing = append(c.outgoing, pkt)
	c.mu.Unlock()
}

// DrainOutgoing returns and clears the outgoing queue, preserving
// the enqueue order. Packets sent after this call are not included.
func (c *Chain) DrainOutgoing() []*packet.Packet {
	c.mu.Lock()
	out := c.outgoing
	c.outgoing = nil
	c.mu.Unlock()
	return out
}

// TakeOutgoing removes from the outgoing queue the packet sent on the
// given local channel with the given sequence and returns it.
func (c *Chain) TakeOutgoing(channelID packet.ChannelID, sequence uint64) (*packet.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := slices.IndexFunc(c.outgoing, func(pkt *packet.Packet) bool {
		return pkt.Source.ChannelID == channelID && pkt.Sequence == sequence
	})
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s seq=%d", ErrNoPendingPacket, c.id, channelID, sequence)
	}
	pkt := c.outgoing[idx]
	c.outgoing = slices.Delete(c.outgoing, idx, idx+1)
	return pkt, nil
}

// PendingPackets returns a copy of the outgoing queue without draining it.
func (c *Chain) PendingPackets() []*packet.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*packet.Packet{}, c.outgoing...)
}

// EnqueueInbound appends a resolution awaiting delivery to this chain.
func (c *Chain) EnqueueInbound(r *packet.Resolution) {
	c.mu.Lock()
	c.inbound = append(c.inbound, r)
	c.mu.Unlock()
}

// DrainInbound returns and clears the inbound queue, preserving
// the enqueue order.
func (c *Chain) DrainInbound() []*packet.Resolution {
	c.mu.Lock()
	out := c.inbound
	c.inbound = nil
	c.mu.Unlock()
	return out
}

// PendingResolutions returns a copy of the inbound queue without draining it.
func (c *Chain) PendingResolutions() []*packet.Resolution {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*packet.Resolution{}, c.inbound...)
}
