package provider

import (
	"context"
	"strings"
	"time"

	"github.com/libdns/libdns"
)

// RecordManager publishes and withdraws dns-01 validation records.
type RecordManager interface {
	AddRecord(ctx context.Context, fqdn, content string) error
	RemoveRecord(ctx context.Context, fqdn, content string) error
}

type Record struct {
	Name string // fully qualified, no trailing dot
	Type string
	Data string
	TTL  time.Duration
}

// FromLibdns resolves a libdns record relative to zone.
func FromLibdns(r libdns.Record, zone string) Record {
	rr := r.RR()
	return Record{
		Name: strings.TrimSuffix(libdns.AbsoluteName(rr.Name, zone), "."),
		Type: rr.Type,
		Data: rr.Data,
		TTL:  rr.TTL,
	}
}
