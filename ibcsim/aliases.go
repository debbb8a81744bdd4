//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Aliases
//

package ibcsim

import (
	"github.com/rbmk-project/ibcx/ibcsim/chain"
	"github.com/rbmk-project/ibcx/ibcsim/packet"
	"github.com/rbmk-project/ibcx/ibcsim/port"
)

// Chain is an alias for [chain.Chain].
type Chain = chain.Chain

// ChainConfig is an alias for [chain.Config].
type ChainConfig = chain.Config

// Packet is an alias for [packet.Packet].
type Packet = packet.Packet

// SendRequest is an alias for [packet.SendRequest].
type SendRequest = packet.SendRequest

// Acknowledgement is an alias for [packet.Acknowledgement].
type Acknowledgement = packet.Acknowledgement

// Application is an alias for [port.Application].
type Application = port.Application

// Env is an alias for [port.Env].
type Env = port.Env

// Handler is an alias for [port.Handler].
type Handler = port.Handler

// Middleware is an alias for [port.Middleware].
type Middleware = port.Middleware

// NewChain is an alias for [chain.New].
var NewChain = chain.New

// NewSuccessAck is an alias for [packet.NewSuccessAck].
var NewSuccessAck = packet.NewSuccessAck

// NewErrorAck is an alias for [packet.NewErrorAck].
var NewErrorAck = packet.NewErrorAck

// Stack is an alias for [port.Stack].
var Stack = port.Stack
