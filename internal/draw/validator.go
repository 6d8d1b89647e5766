package draw

import (
	"errors"
	"fmt"
)

var ErrInvalidNumbers = errors.New("invalid lottery numbers")

// Validate checks a ticket selection: exactly MainCount distinct main
// numbers inside the main range and a bonus inside the bonus range.
func Validate(main []int, bonus int, rules Rules) error {
	if len(main) != MainCount {
		return fmt.Errorf("%w: must provide exactly %d main numbers, got %d", ErrInvalidNumbers, MainCount, len(main))
	}

	for i, n := range main {
		if n < rules.MainMin || n > rules.MainMax {
			return fmt.Errorf("%w: main number %d must be between %d and %d", ErrInvalidNumbers, n, rules.MainMin, rules.MainMax)
		}
		for _, m := range main[:i] {
			if m == n {
				return fmt.Errorf("%w: main number %d is repeated", ErrInvalidNumbers, n)
			}
		}
	}

	if bonus < rules.BonusMin || bonus > rules.BonusMax {
		return fmt.Errorf("%w: bonus number %d must be between %d and %d", ErrInvalidNumbers, bonus, rules.BonusMin, rules.BonusMax)
	}

	return nil
}

// Selection validates main and returns it as a fixed-size array.
func Selection(main []int, bonus int, rules Rules) ([MainCount]int, error) {
	var out [MainCount]int
	if err := Validate(main, bonus, rules); err != nil {
		return out, err
	}
	copy(out[:], main)
	return out, nil
}
