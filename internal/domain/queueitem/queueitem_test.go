package queueitem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverstf/internal/domain/address"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	addr, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)

	item := Item{Interest: 3, Address: addr}
	encoded := Encode(item)
	assert.JSONEq(t, `[3, "192.0.2.1:27015"]`, string(encoded))

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, item, decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`[1]`,
		`[1, "192.0.2.1:27015", "extra"]`,
		`["x", "192.0.2.1:27015"]`,
		`[1, "not-an-address"]`,
		`[1, 12345]`,
	} {
		_, err := Decode([]byte(raw))
		assert.Error(t, err, "expected error decoding %q", raw)
	}
}
