package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLess(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{"lower timestamp first", Key{3, 9}, Key{5, 1}, true},
		{"higher timestamp after", Key{5, 1}, Key{3, 9}, false},
		{"tie broken by sender", Key{3, 2}, Key{3, 5}, true},
		{"tie reversed", Key{3, 5}, Key{3, 2}, false},
		{"equal keys", Key{3, 2}, Key{3, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}
