// Package hms parses the "Xh Ym Zs" duration grammar used by scheduler
// task delay and period fields.
package hms

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse converts a space-separated sequence of unit-suffixed magnitudes
// ("2h 2m 2s") into a time.Duration. Each part must end in 's', 'm' or 'h';
// any other trailing rune, or a non-numeric prefix, is an error.
func Parse(field string) (time.Duration, error) {
	parts := strings.Split(field, " ")
	if len(parts) == 0 {
		return 0, fmt.Errorf("hms: no parts found in %q", field)
	}

	var seconds uint64
	for _, part := range parts {
		if part == "" {
			return 0, fmt.Errorf("hms: empty part in %q", field)
		}

		unit := part[len(part)-1]
		numStr := part[:len(part)-1]

		num, err := strconv.ParseUint(numStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("hms: failed to parse number in %q: %w", field, err)
		}

		switch unit {
		case 's':
			seconds += num
		case 'm':
			seconds += num * 60
		case 'h':
			seconds += num * 60 * 60
		default:
			return 0, fmt.Errorf("hms: found invalid unit in %q", field)
		}
	}

	return time.Duration(seconds) * time.Second, nil
}
