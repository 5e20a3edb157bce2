// Package address implements the identity of a game server: an IPv4 address
// paired with a UDP port, with the canonical "<ip>:<port>" string form used
// as a Redis key component throughout the rest of the system.
package address

import (
	"fmt"
	"strconv"
	"strings"

	serrors "serverstf/internal/shared/errors"
)

// Address identifies a server by its IPv4 address and UDP port. The zero
// value is not valid; construct instances with New or Parse.
type Address struct {
	ip   [4]byte
	port uint16
}

// New builds an Address from four IPv4 octets and a port number.
//
// It returns an AddressError-kinded error if port is outside [1, 65535].
func New(ip [4]byte, port int) (Address, error) {
	if port < 1 || port > 65535 {
		return Address{}, serrors.NewAddressError(
			fmt.Sprintf("port number %d is out of range", port), nil)
	}
	return Address{ip: ip, port: uint16(port)}, nil
}

// Parse parses the canonical "<dotted-ip>:<port>" form produced by String.
//
// It returns an AddressError-kinded error if the string is malformed, the
// IP is not a dotted-decimal IPv4 address, or the port is out of range.
func Parse(raw string) (Address, error) {
	host, portStr, found := strings.Cut(raw, ":")
	if !found {
		return Address{}, serrors.NewAddressError(
			fmt.Sprintf("addresses must be in the form <ip>:<port> but got %q", raw), nil)
	}

	octets, err := parseIPv4(host)
	if err != nil {
		return Address{}, serrors.NewAddressError("malformed IP address", err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, serrors.NewAddressError("port number is not an integer", err)
	}

	return New(octets, port)
}

func parseIPv4(host string) ([4]byte, error) {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return [4]byte{}, fmt.Errorf("expected 4 dotted octets, got %q", host)
	}
	var octets [4]byte
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return [4]byte{}, fmt.Errorf("invalid octet %q: %w", part, err)
		}
		if n < 0 || n > 255 {
			return [4]byte{}, fmt.Errorf("octet %d out of range", n)
		}
		octets[i] = byte(n)
	}
	return octets, nil
}

// IP returns the dotted-decimal IPv4 address.
func (a Address) IP() string {
	return fmt.Sprintf("%d.%d.%d.%d", a.ip[0], a.ip[1], a.ip[2], a.ip[3])
}

// Port returns the UDP port.
func (a Address) Port() int {
	return int(a.port)
}

// String renders the canonical "<dotted-ip>:<port>" form. Parse(a.String())
// is the inverse of this method for every valid Address.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IP(), a.port)
}

// Equal reports whether a and other identify the same server. Address is a
// plain comparable struct, so == works too; Equal exists for readability at
// call sites and parity with the other domain value types.
func (a Address) Equal(other Address) bool {
	return a == other
}
