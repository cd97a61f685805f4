package ipv64

import (
	"context"
	"fmt"

	"github.com/libdns/libdns"

	"github.com/evanofslack/ipv64-dns01/internal/provider"
)

// Interface guards
var (
	_ libdns.RecordAppender = (*Client)(nil)
	_ libdns.RecordDeleter  = (*Client)(nil)
)

// AppendRecords adds TXT records to the zone and returns the records that
// were added. It stops at the first failure.
func (c *Client) AppendRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	var added []libdns.Record
	for _, r := range recs {
		rec := provider.FromLibdns(r, zone)
		if rec.Type != recordType {
			return added, fmt.Errorf("ipv64: unsupported record type %s for %s", rec.Type, rec.Name)
		}
		if err := c.AddRecord(ctx, rec.Name, rec.Data); err != nil {
			return added, err
		}
		added = append(added, r)
	}
	return added, nil
}

// DeleteRecords removes TXT records from the zone and returns the records
// that were deleted. Removal is best effort: failed records are logged by
// RemoveRecord and left out of the result.
func (c *Client) DeleteRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	var deleted []libdns.Record
	for _, r := range recs {
		rec := provider.FromLibdns(r, zone)
		if rec.Type != recordType {
			return deleted, fmt.Errorf("ipv64: unsupported record type %s for %s", rec.Type, rec.Name)
		}
		if err := c.RemoveRecord(ctx, rec.Name, rec.Data); err != nil {
			if IsSoft(err) {
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, r)
	}
	return deleted, nil
}
