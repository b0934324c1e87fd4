package target

import (
	"bufio"
	"fmt"
	"iter"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Tier selects one of the built-in subdomain wordlists
type Tier string

const (
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// Tier expansion factors
const (
	mediumRounds = 100
	largeRounds  = 1000
)

// commonLabels is the curated small wordlist
var commonLabels = []string{
	"www", "mail", "ftp", "localhost", "webmail", "smtp", "pop", "ns1", "webdisk",
	"ns2", "cpanel", "whm", "autodiscover", "autoconfig", "api", "dev", "staging",
	"test", "vpn", "ssh", "remote", "admin", "blog", "shop", "store", "forum",
	"portal", "app", "mobile", "cloud", "cdn", "media", "img", "images", "static",
}

// Tiers are pure functions of nothing, so each is built at most once per process.
// The large tier holds several million labels and is only built on first use.
var (
	mediumLabels = sync.OnceValue(func() []string {
		return expand(commonLabels, mediumRounds, "sub", "server", "host")
	})
	largeLabels = sync.OnceValue(func() []string {
		return expand(mediumLabels(), largeRounds, "test", "prod", "s")
	})
)

// expand repeats base once per round, followed by one numbered label per prefix
func expand(base []string, rounds int, prefixes ...string) []string {
	out := make([]string, 0, rounds*(len(base)+len(prefixes)))
	for i := range rounds {
		out = append(out, base...)
		n := strconv.Itoa(i)
		for _, p := range prefixes {
			out = append(out, p+n)
		}
	}
	return out
}

// ParseTier maps a wordlist name to a tier
// Unknown names fall back to the small tier instead of failing.
// "common" is accepted as an alias for small.
func ParseTier(name string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(name))) {
	case TierMedium:
		return TierMedium
	case TierLarge:
		return TierLarge
	default:
		return TierSmall
	}
}

// Wordlist returns the labels of a tier
// The returned slice is shared and must not be modified.
func Wordlist(t Tier) []string {
	switch t {
	case TierMedium:
		return mediumLabels()
	case TierLarge:
		return largeLabels()
	default:
		return commonLabels
	}
}

// Hostnames returns an iterator over label.domain for every label in labels
func Hostnames(domain string, labels []string) iter.Seq[string] {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	return func(yield func(string) bool) {
		for _, label := range labels {
			if !yield(label + "." + domain) {
				return
			}
		}
	}
}

// ReadWordlist reads labels from a file (one per line)
// Empty lines and lines starting with # are skipped.
func ReadWordlist(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open wordlist: %w", err)
	}
	defer file.Close()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, strings.Trim(line, "."))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading wordlist: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("wordlist %s is empty", filename)
	}
	return labels, nil
}
