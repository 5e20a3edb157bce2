package tagset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddedAndRemoved(t *testing.T) {
	before := New("tf2", "mode:cp")
	after := New("tf2", "mode:cp", "mode:koth")

	assert.True(t, after.Added(before).Equal(New("mode:koth")))
	assert.True(t, after.Removed(before).Equal(New()))

	after2 := New("tf2")
	assert.True(t, after2.Removed(before).Equal(New("mode:cp")))
}

func TestSupersetAndDisjoint(t *testing.T) {
	tags := New("tf2", "mode:cp", "mode:koth")

	assert.True(t, tags.SupersetOf(New("mode:koth")))
	assert.False(t, tags.SupersetOf(New("mode:ctf")))

	assert.True(t, tags.DisjointFrom(New("csgo")))
	assert.False(t, tags.DisjointFrom(New("tf2")))
	assert.True(t, New().DisjointFrom(New()))
}

func TestEqual(t *testing.T) {
	assert.True(t, New("a", "b").Equal(New("b", "a")))
	assert.False(t, New("a").Equal(New("a", "b")))
}
