// Package entropy produces draw seeds from host-provided values.
//
// The inputs are whatever the host environment exposes (block time, height,
// previous block hash, the ledger's own address and the draw id). They are
// not chosen by whoever triggers the draw, but they are not unpredictable
// either: this is weak randomness and is accepted as such.
package entropy

import (
	"errors"
	"io"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var ErrNoEntropy = errors.New("entropy unavailable")

// Context is everything a seed may depend on. It deliberately has no room
// for the caller's identity or any caller-supplied value.
type Context struct {
	Timestamp int64
	Height    uint64
	PrevHash  [32]byte
	Contract  string
	DrawID    uint64
}

// Source turns a Context into a seed.
type Source interface {
	Seed(ctx Context) (uint256.Int, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx Context) (uint256.Int, error)

func (f SourceFunc) Seed(ctx Context) (uint256.Int, error) {
	return f(ctx)
}

// KeccakSource hashes the packed context with Keccak-256:
// timestamp(32) || height(32) || prevHash(32) || contract || drawID(32).
type KeccakSource struct{}

func (KeccakSource) Seed(ctx Context) (uint256.Int, error) {
	var out uint256.Int
	if ctx.Timestamp < 0 {
		return out, ErrNoEntropy
	}

	h := sha3.NewLegacyKeccak256()
	writeWord(h, uint64(ctx.Timestamp))
	writeWord(h, ctx.Height)
	h.Write(ctx.PrevHash[:])
	h.Write([]byte(ctx.Contract))
	writeWord(h, ctx.DrawID)

	out.SetBytes(h.Sum(nil))
	return out, nil
}

func writeWord(w io.Writer, v uint64) {
	word := uint256.NewInt(v).Bytes32()
	w.Write(word[:])
}

// FixedSource always returns Value. Tests use it to pin the winning numbers.
type FixedSource struct {
	Value uint256.Int
}

func (s FixedSource) Seed(Context) (uint256.Int, error) {
	return s.Value, nil
}

// Fixed returns a FixedSource for v.
func Fixed(v uint64) FixedSource {
	return FixedSource{Value: *uint256.NewInt(v)}
}
