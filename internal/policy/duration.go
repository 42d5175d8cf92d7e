package policy

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

var unitSeconds = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// ParseDurationSeconds parses timer input such as "45m", "1h 30m" or "2d4h".
// The whole string must be <amount><unit> tokens with optional whitespace between them.
func ParseDurationSeconds(s string) (int64, error) {
	fail := func(reason string) (int64, error) {
		return 0, &domain.FormatError{Kind: "duration", Value: s, Reason: reason}
	}

	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return fail("empty")
	}

	var total int64
	i := 0
	for i < len(in) {
		if in[i] == ' ' || in[i] == '\t' {
			i++
			continue
		}

		start := i
		var amount int64
		for i < len(in) && in[i] >= '0' && in[i] <= '9' {
			if amount > (math.MaxInt64-9)/10 {
				return fail("amount too large")
			}
			amount = amount*10 + int64(in[i]-'0')
			i++
		}
		if i == start {
			return fail("unexpected character at position " + strconv.Itoa(i))
		}
		if i == len(in) {
			return fail("missing unit")
		}
		mult, ok := unitSeconds[in[i]]
		if !ok {
			return fail("unknown unit " + string(in[i]))
		}
		i++
		if amount <= 0 {
			return fail("amount must be positive")
		}
		if amount > (math.MaxInt64-total)/mult {
			return fail("duration too large")
		}
		total += amount * mult
	}
	return total, nil
}

// ParseDuration is ParseDurationSeconds as a time.Duration.
func ParseDuration(s string) (time.Duration, error) {
	secs, err := ParseDurationSeconds(s)
	if err != nil {
		return 0, err
	}
	if secs > int64(math.MaxInt64/time.Second) {
		return 0, &domain.FormatError{Kind: "duration", Value: s, Reason: "duration too large"}
	}
	return time.Duration(secs) * time.Second, nil
}
