package draw

import (
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

var bonusTag = []byte("bonus")

// Result is the outcome of a generated draw. Main is in draw order, not
// sorted.
type Result struct {
	Main  [MainCount]int
	Bonus int
	Seed  uint256.Int
}

// Generate derives the winning numbers from seed. The main numbers are
// sampled without replacement from the main range: pick index
// keccak(seed, i) mod live, then swap the pick out past the live end. The
// bonus comes from keccak(seed, "bonus"). Same seed, same result.
func Generate(seed *uint256.Int, rules Rules) Result {
	res := Result{Seed: *seed}

	pool := make([]int, rules.mainSize())
	for i := range pool {
		pool[i] = rules.MainMin + i
	}

	live := len(pool)
	var index, size uint256.Int
	for i := 0; i < MainCount; i++ {
		sub := subSeed(seed, indexTag(uint64(i)))
		size.SetUint64(uint64(live))
		index.Mod(&sub, &size)
		k := int(index.Uint64())

		res.Main[i] = pool[k]
		pool[k] = pool[live-1]
		live--
	}

	sub := subSeed(seed, bonusTag)
	size.SetUint64(uint64(rules.bonusSize()))
	index.Mod(&sub, &size)
	res.Bonus = int(index.Uint64()) + rules.BonusMin

	return res
}

// QuickPick returns a valid random-looking selection derived from seed.
func QuickPick(seed *uint256.Int, rules Rules) ([MainCount]int, int) {
	res := Generate(seed, rules)
	return res.Main, res.Bonus
}

// subSeed is keccak256(seed || tag) with seed as a 32-byte big-endian word.
func subSeed(seed *uint256.Int, tag []byte) uint256.Int {
	word := seed.Bytes32()
	h := sha3.NewLegacyKeccak256()
	h.Write(word[:])
	h.Write(tag)

	var out uint256.Int
	out.SetBytes(h.Sum(nil))
	return out
}

func indexTag(i uint64) []byte {
	word := uint256.NewInt(i).Bytes32()
	return word[:]
}
