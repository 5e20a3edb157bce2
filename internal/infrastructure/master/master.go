// Package master implements a minimal client for the Source master-server
// query protocol, the upstream directory the synchroniser polls for newly
// discovered addresses. Like A2S, this is an external UDP contract: only
// the piece the synchroniser needs -- "give me every address for this
// region" -- is implemented.
package master

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"serverstf/internal/domain/address"
	serrors "serverstf/internal/shared/errors"
)

// DefaultAddr is the well-known Steam master server for Source-engine
// games.
const DefaultAddr = "hl2master.steampowered.com:27011"

// Region codes, one byte each, as defined by the master-server query
// protocol.
const (
	RegionUSEastCoast  = 0x00
	RegionUSWestCoast  = 0x01
	RegionSouthAmerica = 0x02
	RegionEurope       = 0x03
	RegionAsia         = 0x04
	RegionAustralia    = 0x05
	RegionMiddleEast   = 0x06
	RegionAfrica       = 0x07
	RegionRest         = 0xFF
)

var regionsByName = map[string]byte{
	"us-east":       RegionUSEastCoast,
	"us-west":       RegionUSWestCoast,
	"south-america": RegionSouthAmerica,
	"europe":        RegionEurope,
	"asia":          RegionAsia,
	"australia":     RegionAustralia,
	"middle-east":   RegionMiddleEast,
	"africa":        RegionAfrica,
	"all":           RegionRest,
}

var responseHeader = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x66, 0x0A}

// Directory queries the Steam master server directly over UDP. It
// satisfies sync.MasterDirectory.
type Directory struct {
	addr    string
	filter  string
	timeout time.Duration
}

// New builds a Directory targeting addr (host:port) with the given
// per-packet timeout. filter is the master-server query filter string
// (e.g. `\gamedir\tf`); an empty filter matches every game.
func New(addr, filter string, timeout time.Duration) *Directory {
	if addr == "" {
		addr = DefaultAddr
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Directory{addr: addr, filter: filter, timeout: timeout}
}

// Query enumerates every address the master server reports for region,
// paging via the protocol's "last address" continuation until the
// terminator entry (0.0.0.0:0) is returned.
func (d *Directory) Query(ctx context.Context, region string) ([]address.Address, error) {
	code, ok := regionsByName[region]
	if !ok {
		return nil, serrors.NewAddressError(fmt.Sprintf("unknown master-server region %q", region), nil)
	}

	conn, err := net.Dial("udp", d.addr)
	if err != nil {
		return nil, fmt.Errorf("master: dial %s: %w", d.addr, err)
	}
	defer conn.Close()

	var results []address.Address
	last := "0.0.0.0:0"

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		batch, next, err := d.requestBatch(conn, code, last)
		if err != nil {
			return results, err
		}
		results = append(results, batch...)

		if next == "0.0.0.0:0" || len(batch) == 0 {
			break
		}
		last = next
	}

	return results, nil
}

func (d *Directory) requestBatch(conn net.Conn, region byte, lastAddr string) ([]address.Address, string, error) {
	req := make([]byte, 0, 32)
	req = append(req, 0x31, region)
	req = append(req, []byte(lastAddr)...)
	req = append(req, 0x00)
	req = append(req, []byte(d.filter)...)
	req = append(req, 0x00)

	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return nil, "", fmt.Errorf("master: set deadline: %w", err)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, "", fmt.Errorf("master: write request: %w", err)
	}

	buf := make([]byte, 8192)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, "", fmt.Errorf("master: read response: %w", err)
	}

	return parseResponse(buf[:n])
}

// parseResponse decodes a sequence of 6-byte IP:port entries following the
// standard 0xFFFFFFFF 0x66 0x0A header, skipping entries that are not a
// valid Address and stopping at the terminator entry. It returns the
// decoded addresses and the canonical string form of the last valid entry
// ("0.0.0.0:0" once the terminator is seen), which callers pass back as the
// next request's continuation point.
func parseResponse(body []byte) ([]address.Address, string, error) {
	if len(body) < len(responseHeader) {
		return nil, "", fmt.Errorf("master: response too short (%d bytes)", len(body))
	}
	for i, b := range responseHeader {
		if body[i] != b {
			return nil, "", fmt.Errorf("master: unexpected response header")
		}
	}

	entries := body[len(responseHeader):]
	var addrs []address.Address
	last := "0.0.0.0:0"

	for i := 0; i+6 <= len(entries); i += 6 {
		var ip [4]byte
		copy(ip[:], entries[i:i+4])
		port := int(binary.BigEndian.Uint16(entries[i+4 : i+6]))

		if ip == [4]byte{0, 0, 0, 0} && port == 0 {
			last = "0.0.0.0:0"
			break
		}

		addr, err := address.New(ip, port)
		if err != nil {
			continue
		}
		addrs = append(addrs, addr)
		last = addr.String()
	}

	return addrs, last, nil
}
