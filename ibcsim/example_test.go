// SPDX-License-Identifier: GPL-3.0-or-later

package ibcsim_test

import (
	"fmt"
	"log"
	"time"

	"github.com/rbmk-project/ibcx/ibcsim"
)

// This example shows how to open a channel between two chains and
// relay a packet whose handler replies with another packet.
func Example_pingPong() {
	// Create the ecosystem and two chains.
	eco := ibcsim.MustNew(ibcsim.DefaultConfig())
	osmosis := eco.MustNewChain(&ibcsim.ChainConfig{ChainID: "osmosis-1"})
	juno := eco.MustNewChain(&ibcsim.ChainConfig{ChainID: "juno-1"})

	// Create an application that replies "pong" to "ping".
	newApp := func(portID string) *ibcsim.Handler {
		return &ibcsim.Handler{
			Address: portID,
			PacketReceiveFunc: func(env ibcsim.Env, pkt *ibcsim.Packet) (ibcsim.Acknowledgement, error) {
				fmt.Printf("%s received %q\n", env.ChainID(), pkt.Data)
				if string(pkt.Data) == "ping" {
					_, err := env.SendPacket(&ibcsim.SendRequest{
						ChannelID: pkt.Destination.ChannelID,
						Data:      []byte("pong"),
					})
					if err != nil {
						return ibcsim.Acknowledgement{}, err
					}
				}
				return ibcsim.NewSuccessAck([]byte("ok")), nil
			},
			PacketAckFunc: func(env ibcsim.Env, pkt *ibcsim.Packet, ack ibcsim.Acknowledgement) error {
				fmt.Printf("%s acknowledged %q: %s\n", env.ChainID(), pkt.Data, ack.Data)
				return nil
			},
		}
	}
	if err := osmosis.BindPort(newApp("wasm.osmo1pingpong")); err != nil {
		log.Fatal(err)
	}
	if err := juno.BindPort(newApp("wasm.juno1pingpong")); err != nil {
		log.Fatal(err)
	}

	// Open the channel.
	channel, _, err := eco.OpenChannel(
		&ibcsim.ChannelProposal{ChainID: "osmosis-1", PortID: "wasm.osmo1pingpong", Version: "pingpong-1"},
		&ibcsim.ChannelProposal{ChainID: "juno-1", PortID: "wasm.juno1pingpong", Version: "pingpong-1"},
	)
	if err != nil {
		log.Fatal(err)
	}

	// Send the ping and relay everything.
	_, err = osmosis.SendPacket(&ibcsim.SendRequest{
		ChannelID:        channel,
		Data:             []byte("ping"),
		TimeoutTimestamp: juno.Now().Add(10 * time.Minute),
	})
	if err != nil {
		log.Fatal(err)
	}
	report, err := eco.RelayAllPackets()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(report)

	// Output:
	// juno-1 received "ping"
	// osmosis-1 acknowledged "ping": ok
	// osmosis-1 received "pong"
	// juno-1 acknowledged "pong": ok
	// delivered=2 acknowledged=2 timedOut=0 rounds=2 errors=0
}
