package playback

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitOpusAccessUnits(t *testing.T) {
	t.Parallel()
	long := bytes.Repeat([]byte{0xAB}, 300)

	tests := []struct {
		name string
		data []byte
		want [][]byte
	}{
		{
			name: "single",
			data: []byte{0x7F, 0xE0, 3, 1, 2, 3},
			want: [][]byte{{1, 2, 3}},
		},
		{
			name: "two packets",
			data: []byte{0x7F, 0xE0, 1, 9, 0x7F, 0xE0, 2, 7, 8},
			want: [][]byte{{9}, {7, 8}},
		},
		{
			name: "chained size",
			data: append([]byte{0x7F, 0xE0, 0xFF, 45}, long...),
			want: [][]byte{long},
		},
		{
			name: "trims and extension",
			data: []byte{0x7F, 0xE0 | 0x10 | 0x08 | 0x04, 2, 0, 1, 0, 2, 1, 0xEE, 5, 6},
			want: [][]byte{{5, 6}},
		},
		{
			name: "empty",
			data: nil,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := splitOpusAccessUnits(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitOpusAccessUnits_Malformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		data  []byte
		whole int
	}{
		{name: "bad prefix", data: []byte{0x7E, 0xE0, 1, 0}},
		{name: "bad second byte", data: []byte{0x7F, 0x00, 1, 0}},
		{name: "truncated header", data: []byte{0x7F}},
		{name: "truncated size", data: []byte{0x7F, 0xE0, 0xFF}},
		{name: "truncated extension", data: []byte{0x7F, 0xE4, 0}},
		{name: "overrun", data: []byte{0x7F, 0xE0, 4, 1, 2}},
		{name: "garbage after a packet", data: []byte{0x7F, 0xE0, 1, 9, 0x00}, whole: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := splitOpusAccessUnits(tt.data)
			assert.ErrorIs(t, err, errOpusControlHeader)
			assert.Len(t, got, tt.whole, "packets before the error are kept")
		})
	}
}
