package ipv64

import (
	"fmt"
	"strings"
)

// Zone returns the last two labels of fqdn. This is not a public suffix
// lookup: IPv64 only hands out zones directly below a TLD.
// e.g. "_acme-challenge.sub.example.com" → "example.com"
func Zone(fqdn string) string {
	fqdn = strings.TrimSuffix(fqdn, ".")
	labels := strings.Split(fqdn, ".")
	if len(labels) <= 2 {
		return fqdn
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// Prefix strips ".<zone>" from the end of fqdn.
// e.g. ("_acme-challenge.sub.example.com", "example.com") → "_acme-challenge.sub"
func Prefix(fqdn, zone string) (string, error) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	prefix, ok := strings.CutSuffix(fqdn, "."+zone)
	if !ok || prefix == "" || zone == "" {
		return "", fmt.Errorf("%w: %q is not below zone %q", ErrMalformedName, fqdn, zone)
	}
	return prefix, nil
}

// SplitName derives zone and record prefix from a validation hostname.
// The name needs at least three non-empty labels.
func SplitName(fqdn string) (prefix, zone string, err error) {
	name := strings.TrimSuffix(fqdn, ".")
	labels := strings.Split(name, ".")
	if len(labels) < 3 {
		return "", "", fmt.Errorf("%w: %q needs at least three labels", ErrMalformedName, fqdn)
	}
	for _, l := range labels {
		if l == "" {
			return "", "", fmt.Errorf("%w: %q has an empty label", ErrMalformedName, fqdn)
		}
	}

	zone = Zone(name)
	prefix, err = Prefix(name, zone)
	if err != nil {
		return "", "", err
	}
	return prefix, zone, nil
}
