package core

import (
	"fmt"
	"strings"
	"time"
)

// ParseAge parses a retention/age expression. It accepts Go durations
// ("90m", "1h30m") plus day and week suffixes ("2d", "1w").
func ParseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty age expression")
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative age: %s", value)
		}
		return d, nil
	}

	unit := value[len(value)-1:]
	amountStr := value[:len(value)-1]
	var multiplier time.Duration
	switch strings.ToLower(unit) {
	case "d":
		multiplier = 24 * time.Hour
	case "w":
		multiplier = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid age expression: %s", value)
	}
	if amountStr == "" {
		return 0, fmt.Errorf("invalid age expression: %s", value)
	}
	amount := int64(0)
	for _, r := range amountStr {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid age expression: %s", value)
		}
		amount = amount*10 + int64(r-'0')
	}
	return time.Duration(amount) * multiplier, nil
}
