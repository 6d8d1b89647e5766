package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"lottery-engine/internal/ledger"
)

// Amounts are stored as decimal text; SQLite integers stop at 63 bits.

func encodeNumbers(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func decodeNumbers(s string, dst []int) error {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return fmt.Errorf("want %d numbers, got %q", len(dst), s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("number %q: %w", p, err)
		}
		dst[i] = n
	}
	return nil
}

func encodeCounts(cs []uint64) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = strconv.FormatUint(c, 10)
	}
	return strings.Join(parts, ",")
}

func decodeCounts(s string, dst []uint64) error {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return fmt.Errorf("want %d counts, got %q", len(dst), s)
	}
	for i, p := range parts {
		c, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return fmt.Errorf("count %q: %w", p, err)
		}
		dst[i] = c
	}
	return nil
}

func encodeAmounts(as []uint256.Int) string {
	parts := make([]string, len(as))
	for i := range as {
		parts[i] = as[i].Dec()
	}
	return strings.Join(parts, ",")
}

func decodeAmounts(s string, dst []uint256.Int) error {
	parts := strings.Split(s, ",")
	if len(parts) != len(dst) {
		return fmt.Errorf("want %d amounts, got %q", len(dst), s)
	}
	for i, p := range parts {
		if err := dst[i].SetFromDecimal(p); err != nil {
			return fmt.Errorf("amount %q: %w", p, err)
		}
	}
	return nil
}

// decodeAmountsInto parses src[i] into dst[i].
func decodeAmountsInto(src []string, dst ...*uint256.Int) error {
	for i, s := range src {
		if err := dst[i].SetFromDecimal(s); err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
	}
	return nil
}

// Zero times map to 0 so pending draws round-trip.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeEvent(e *ledger.Event) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEvent(payload string) (ledger.Event, error) {
	var e ledger.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
