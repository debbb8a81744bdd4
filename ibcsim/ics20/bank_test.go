// SPDX-License-Identifier: GPL-3.0-or-later

package ics20

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBank(t *testing.T) {
	var bank MemoryBank
	require.NoError(t, bank.Mint("alice", "uatom", big.NewInt(10)))

	t.Run("send", func(t *testing.T) {
		require.NoError(t, bank.Send("alice", "bob", "uatom", big.NewInt(4)))
		assert.Equal(t, "6", bank.Balance("alice", "uatom").String())
		assert.Equal(t, "4", bank.Balance("bob", "uatom").String())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		err := bank.Send("bob", "alice", "uatom", big.NewInt(5))
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.ErrorIs(t, bank.Burn("carol", "uatom", big.NewInt(1)), ErrInsufficientFunds)
		assert.Equal(t, "4", bank.Balance("bob", "uatom").String())
	})

	t.Run("negative amounts", func(t *testing.T) {
		assert.Error(t, bank.Mint("alice", "uatom", big.NewInt(-1)))
		assert.Error(t, bank.Send("alice", "bob", "uatom", big.NewInt(-1)))
	})

	t.Run("burn", func(t *testing.T) {
		require.NoError(t, bank.Burn("bob", "uatom", big.NewInt(4)))
		assert.Empty(t, bank.Balances("bob"))
	})

	t.Run("balance is a copy", func(t *testing.T) {
		balance := bank.Balance("alice", "uatom")
		balance.SetInt64(1000)
		assert.Equal(t, "6", bank.Balance("alice", "uatom").String())
		assert.Equal(t, map[string]*big.Int{"uatom": big.NewInt(6)}, bank.Balances("alice"))
	})
}
