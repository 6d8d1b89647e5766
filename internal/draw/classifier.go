package draw

import "fmt"

// Tier is a prize tier index, 0 being the highest.
type Tier int

// NoTier marks a ticket that won nothing.
const NoTier Tier = -1

var tierNames = [TierCount]string{
	"5+bonus", "5", "4+bonus", "4", "3+bonus", "3", "2+bonus", "2",
}

// OK reports whether t is a prize tier.
func (t Tier) OK() bool {
	return t >= 0 && t < TierCount
}

func (t Tier) String() string {
	if !t.OK() {
		return "none"
	}
	return tierNames[t]
}

// TierFor maps a match count and bonus match to a tier. Highest tier wins,
// so a ticket can only ever land in one.
func TierFor(matchCount int, bonusMatch bool) Tier {
	switch {
	case matchCount == 5 && bonusMatch:
		return 0
	case matchCount == 5:
		return 1
	case matchCount == 4 && bonusMatch:
		return 2
	case matchCount == 4:
		return 3
	case matchCount == 3 && bonusMatch:
		return 4
	case matchCount == 3:
		return 5
	case matchCount == 2 && bonusMatch:
		return 6
	case matchCount == 2:
		return 7
	}
	return NoTier
}

// Classification is how one ticket fared against a draw.
type Classification struct {
	MatchCount int
	BonusMatch bool
	Tier       Tier
}

func (c Classification) String() string {
	return fmt.Sprintf("%d matched, bonus=%t, tier %s", c.MatchCount, c.BonusMatch, c.Tier)
}

// Classify compares a ticket with the winning numbers. Both sides are
// distinct sets, so the nested scan counts each shared number once.
func Classify(ticketMain [MainCount]int, ticketBonus int, winningMain [MainCount]int, winningBonus int) Classification {
	matches := 0
	for _, n := range ticketMain {
		for _, w := range winningMain {
			if n == w {
				matches++
				break
			}
		}
	}
	bonusMatch := ticketBonus == winningBonus
	return Classification{
		MatchCount: matches,
		BonusMatch: bonusMatch,
		Tier:       TierFor(matches, bonusMatch),
	}
}
