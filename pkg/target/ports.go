package target

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// Port bounds accepted in a port range
const (
	MinPort = 1
	MaxPort = 65535

	// MaxPorts caps the number of ports one specification may yield, duplicates included
	MaxPorts = MaxPort
)

// ErrInvalidRange is wrapped by every port range parsing error
var ErrInvalidRange = errors.New("invalid port range")

// ParsePortRange parses a port specification into an ordered list of ports
// Supported forms: "22", "22,80,443", "1-1024", "22,80,8000-8100"
// Ports keep token order; a range expands in ascending order. Duplicates are kept.
func ParsePortRange(spec string) ([]int, error) {
	seq, n, err := Ports(spec)
	if err != nil {
		return nil, err
	}
	ports := make([]int, 0, n)
	ports = slices.AppendSeq(ports, seq)
	return ports, nil
}

// Ports validates a port specification and returns an iterator over its ports
// along with the number of ports it yields. Nothing is expanded until iteration.
func Ports(spec string) (iter.Seq[int], int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, 0, fmt.Errorf("%w: empty specification", ErrInvalidRange)
	}

	var spans []portSpan
	total := 0
	for _, token := range strings.Split(spec, ",") {
		span, err := parseToken(strings.TrimSpace(token))
		if err != nil {
			return nil, 0, err
		}
		spans = append(spans, span)
		total += span.end - span.start + 1
		if total > MaxPorts {
			return nil, 0, fmt.Errorf("%w: more than %d ports", ErrInvalidRange, MaxPorts)
		}
	}

	return func(yield func(int) bool) {
		for _, s := range spans {
			for p := s.start; p <= s.end; p++ {
				if !yield(p) {
					return
				}
			}
		}
	}, total, nil
}

// portSpan is one inclusive range; a single port has start == end
type portSpan struct {
	start, end int
}

func parseToken(token string) (portSpan, error) {
	if token == "" {
		return portSpan{}, fmt.Errorf("%w: empty token", ErrInvalidRange)
	}

	lo, hi, isRange := strings.Cut(token, "-")
	if !isRange {
		p, err := parsePort(token)
		if err != nil {
			return portSpan{}, err
		}
		return portSpan{start: p, end: p}, nil
	}

	start, err := parsePort(strings.TrimSpace(lo))
	if err != nil {
		return portSpan{}, err
	}
	end, err := parsePort(strings.TrimSpace(hi))
	if err != nil {
		return portSpan{}, err
	}
	if start > end {
		return portSpan{}, fmt.Errorf("%w: range start greater than end: %s", ErrInvalidRange, token)
	}
	return portSpan{start: start, end: end}, nil
}

func parsePort(s string) (int, error) {
	// Digits only: Atoi alone would accept "+80" and "-0"
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < '0' || r > '9' }) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRange, s)
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidRange, s)
	}
	if p < MinPort || p > MaxPort {
		return 0, fmt.Errorf("%w: port %d outside %d-%d", ErrInvalidRange, p, MinPort, MaxPort)
	}
	return p, nil
}
