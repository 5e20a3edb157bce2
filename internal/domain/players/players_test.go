package players

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []Players{
		Empty,
		{Current: 0, Max: 24, Bots: 0, Scores: []Score{}},
		{
			Current: 2,
			Max:     24,
			Bots:    1,
			Scores: []Score{
				{Name: "Alice", Score: 10, Duration: 90 * time.Second},
				{Name: "Böb \"the rat\"", Score: -3, Duration: 0},
			},
		},
	}

	for _, p := range cases {
		data, err := json.Marshal(p)
		require.NoError(t, err)

		var decoded Players
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, p, decoded)
	}
}

func TestMarshalSchema(t *testing.T) {
	p := Players{
		Current: 1,
		Max:     2,
		Bots:    0,
		Scores: []Score{
			{Name: "Alice", Score: 5, Duration: 1500 * time.Millisecond},
		},
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, float64(1), generic["current"])
	assert.Equal(t, float64(2), generic["max"])
	assert.Equal(t, float64(0), generic["bots"])

	scores, ok := generic["scores"].([]any)
	require.True(t, ok)
	require.Len(t, scores, 1)
	triple, ok := scores[0].([]any)
	require.True(t, ok)
	require.Len(t, triple, 3)
	assert.Equal(t, "Alice", triple[0])
	assert.Equal(t, float64(5), triple[1])
	assert.Equal(t, 1.5, triple[2])
}

func TestFromEntriesDropsUnnamed(t *testing.T) {
	p := FromEntries(3, 24, 0, []Entry{
		{Name: "Alice", Score: 1, Duration: time.Second},
		{Name: "", Score: 0, Duration: 0},
		{Name: "Bob", Score: 2, Duration: 2 * time.Second},
	})
	require.Len(t, p.Scores, 2)
	assert.Equal(t, 3, p.Current)
	assert.Equal(t, "Alice", p.Scores[0].Name)
	assert.Equal(t, "Bob", p.Scores[1].Name)
}
