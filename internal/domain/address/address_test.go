package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "serverstf/internal/shared/errors"
)

func TestParseStringRoundTrip(t *testing.T) {
	cases := []struct {
		ip   [4]byte
		port int
	}{
		{[4]byte{0, 0, 0, 0}, 1},
		{[4]byte{192, 0, 2, 1}, 27015},
		{[4]byte{255, 255, 255, 255}, 65535},
		{[4]byte{10, 0, 0, 1}, 80},
	}
	for _, c := range cases {
		addr, err := New(c.ip, c.port)
		require.NoError(t, err)

		parsed, err := Parse(addr.String())
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
		assert.True(t, addr.Equal(parsed))
	}
}

func TestNewRejectsOutOfRangePorts(t *testing.T) {
	_, err := New([4]byte{127, 0, 0, 1}, 0)
	requireAddressError(t, err)

	_, err = New([4]byte{127, 0, 0, 1}, 65536)
	requireAddressError(t, err)
}

func TestParseRejectsMalformedInput(t *testing.T) {
	for _, raw := range []string{
		"",
		"192.0.2.1",
		"192.0.2.1:",
		"192.0.2.1:0",
		"192.0.2.1:65536",
		"192.0.2.1:abc",
		"300.0.2.1:80",
		"192.0.2:80",
		"192.0.2.1.1:80",
	} {
		_, err := Parse(raw)
		requireAddressError(t, err)
	}
}

func TestString(t *testing.T) {
	addr, err := New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:27015", addr.String())
}

func requireAddressError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	kind, ok := serrors.KindOf(err)
	require.True(t, ok, "expected a *errors.Error, got %T", err)
	assert.Equal(t, serrors.KindAddress, kind)
}
