package util

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRange is an inclusive port interval; single ports have Start == End.
type PortRange struct {
	Start int
	End   int
}

func (r PortRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParsePortSpec parses a port specification.
// Supports formats like:
//   - "443"
//   - "8000-8080"
//   - "80,443,8000-8080"
func ParsePortSpec(spec string) ([]PortRange, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty port specification")
	}

	var result []PortRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty element in port list %q", spec)
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.SplitN(part, "-", 2)
			start, err := parsePort(rangeParts[0])
			if err != nil {
				return nil, fmt.Errorf("invalid start value in range %s: %v", part, err)
			}
			end, err := parsePort(rangeParts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid end value in range %s: %v", part, err)
			}
			if start > end {
				return nil, fmt.Errorf("start value %d greater than end value %d in range %s", start, end, part)
			}
			result = append(result, PortRange{Start: start, End: end})
			continue
		}

		port, err := parsePort(part)
		if err != nil {
			return nil, err
		}
		result = append(result, PortRange{Start: port, End: port})
	}
	return result, nil
}

func parsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %q", s)
	}
	if n < 0 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range 0-65535", n)
	}
	return n, nil
}
