package chain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestChain_SimulatedHost(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	host := NewSimulatedHost(clock, [32]byte{0xaa})

	genesis := host.Block()
	require.Equal(t, uint64(0), genesis.Height)

	clock.Advance(time.Minute)
	b1 := host.Mine()
	require.Equal(t, uint64(1), b1.Height)
	require.Equal(t, genesis.Hash, b1.PrevHash)
	require.Equal(t, clock.Now().UTC(), b1.Timestamp)
	require.Equal(t, b1, host.Block())

	b2 := host.Mine()
	require.Equal(t, b1.Hash, b2.PrevHash)
	require.NotEqual(t, b1.Hash, b2.Hash)

	other := NewSimulatedHost(clock, [32]byte{})
	other.Restore(b2)
	require.Equal(t, b2, other.Block())
	require.Equal(t, uint64(3), other.Mine().Height)
	require.Equal(t, clock.Now().UTC(), other.Now())
}
