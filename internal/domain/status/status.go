// Package status models the immutable observed state of one server.
package status

import (
	"serverstf/internal/domain/address"
	"serverstf/internal/domain/players"
	"serverstf/internal/domain/tagset"
)

// Status is the immutable observed state of one server. A nil Name, Map, or
// ApplicationID means "unknown since last observation".
// Players defaults to an empty roster rather than being nullable, since the
// cache always has *some* roster to report once an address is known.
type Status struct {
	Address       address.Address
	Interest      int
	Name          *string
	Map           *string
	ApplicationID *int
	Players       players.Players
	Tags          tagset.Set
}

// New builds a Status for addr with zero-value interest, no observed
// fields, an empty roster, and no tags -- the shape Get returns for an
// address that has never been polled.
func New(addr address.Address) Status {
	return Status{
		Address: addr,
		Players: players.Empty,
		Tags:    tagset.New(),
	}
}

// Location is the optional GeoIP-derived location attached to a Status at
// serialization time. It is conclusive only when Country, Latitude, and
// Longitude are all non-nil -- the actual GeoIP lookup is an external
// collaborator; LocationResolver is the seam a real implementation plugs
// into.
type Location struct {
	Country   *string
	Latitude  *float64
	Longitude *float64
}

// Conclusive reports whether every field of the location was resolved.
func (l Location) Conclusive() bool {
	return l.Country != nil && l.Latitude != nil && l.Longitude != nil
}

// LocationResolver attaches a Location to an address at serialization time.
// The default NoopLocationResolver never resolves anything; deployments
// with a GeoIP database supply their own implementation.
type LocationResolver interface {
	Resolve(addr address.Address) Location
}

// NoopLocationResolver always returns an unresolved Location.
type NoopLocationResolver struct{}

// Resolve implements LocationResolver by returning no location data.
func (NoopLocationResolver) Resolve(address.Address) Location {
	return Location{}
}
