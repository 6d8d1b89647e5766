// Package chain models the host environment the ledger runs on: a clock and
// a hash-chained sequence of blocks, one per committed operation.
package chain

import (
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/sha3"
)

// Block is the host context visible to an operation.
type Block struct {
	Height    uint64
	Timestamp time.Time
	PrevHash  [32]byte
	Hash      [32]byte
}

// Host provides the current time and block.
type Host interface {
	Now() time.Time
	Block() Block
}

// SimulatedHost is a single-node host. Mine seals a new block on top of the
// previous one; the ledger only ever reads the current block.
type SimulatedHost struct {
	clock clockwork.Clock

	mu      sync.Mutex
	current Block
}

// NewSimulatedHost starts a chain at height 0 with the given genesis hash.
func NewSimulatedHost(clock clockwork.Clock, genesis [32]byte) *SimulatedHost {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &SimulatedHost{clock: clock}
	h.current = Block{Height: 0, Timestamp: clock.Now().UTC(), Hash: genesis}
	return h
}

func (h *SimulatedHost) Now() time.Time {
	return h.clock.Now().UTC()
}

func (h *SimulatedHost) Block() Block {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Mine seals the next block and returns it.
func (h *SimulatedHost) Mine() Block {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := Block{
		Height:    h.current.Height + 1,
		Timestamp: h.clock.Now().UTC(),
		PrevHash:  h.current.Hash,
	}
	next.Hash = blockHash(next)
	h.current = next
	return next
}

// Restore resumes the chain from a persisted tip.
func (h *SimulatedHost) Restore(tip Block) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = tip
}

func blockHash(b Block) [32]byte {
	kh := sha3.NewLegacyKeccak256()
	kh.Write(b.PrevHash[:])
	height := uint256.NewInt(b.Height).Bytes32()
	kh.Write(height[:])
	ts := uint256.NewInt(uint64(b.Timestamp.UnixNano())).Bytes32()
	kh.Write(ts[:])

	var out [32]byte
	copy(out[:], kh.Sum(nil))
	return out
}
