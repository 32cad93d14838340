package a04

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccollins/pet-chip-reader/internal/common"
)

// respFrame builds a syntactically valid response frame around data.
func respFrame(data string) []byte {
	return []byte("$" + data + BCC([]byte(data)) + "#")
}

func TestBuildPollCommand(t *testing.T) {
	tests := []struct {
		name   string
		addr   string
		format string
		want   string
	}{
		{
			name:   "default address and format",
			addr:   "01",
			format: "D",
			want:   "$A0101D" + BCC([]byte("A0101D")) + "#",
		},
		{
			name:   "alternate address",
			addr:   "02",
			format: "H",
			want:   "$A0201H" + BCC([]byte("A0201H")) + "#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPollCommand(tt.addr, tt.format)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, byte('$'), got[0])
			assert.Equal(t, byte('#'), got[len(got)-1])
		})
	}
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	pairs := []struct{ addr, format string }{
		{"01", "D"},
		{"02", "D"},
		{"01", "H"},
		{"FF", "D"},
	}

	for _, p := range pairs {
		t.Run(p.addr+"/"+p.format, func(t *testing.T) {
			// Synthetic reader response echoing address/format plus a tag id.
			data := "A" + p.addr + "01" + p.format + "900263003496836"
			tagID, err := DecodeFrame(respFrame(data))
			require.NoError(t, err)
			assert.Equal(t, "900263003496836", tagID)
		})
	}
}

func TestDecodeFrame_BCCSensitivity(t *testing.T) {
	data := "A0101D123456789012345"
	frame := respFrame(data)

	// Flipping any single bit of the data segment must fail the check.
	for i := 1; i < 1+len(data); i++ {
		for bit := 0; bit < 8; bit++ {
			corrupted := make([]byte, len(frame))
			copy(corrupted, frame)
			corrupted[i] ^= 1 << bit

			// Skip corruptions that destroy the frame markers themselves;
			// those fail as malformed rather than as a BCC mismatch.
			if corrupted[i] == '$' || corrupted[i] == '#' {
				continue
			}

			_, err := DecodeFrame(corrupted)
			assert.Error(t, err, fmt.Sprintf("byte %d bit %d", i, bit))
		}
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "empty", raw: "", wantErr: common.ErrBadFrame},
		{name: "no start marker", raw: "A0101D00#", wantErr: common.ErrBadFrame},
		{name: "no end marker", raw: "$A0101D00", wantErr: common.ErrBadFrame},
		{name: "payload too short", raw: "$ab#", wantErr: common.ErrBadFrame},
		{name: "wrong bcc", raw: "$A0101D123456789012345FF#", wantErr: common.ErrBadBCC},
		{name: "markers only", raw: "$#", wantErr: common.ErrBadFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeFrame_NoTagID(t *testing.T) {
	// Valid frame, valid BCC, but no 15-digit run in the data.
	_, err := DecodeFrame(respFrame("A0101Dnothing"))
	assert.ErrorIs(t, err, common.ErrNoTag)

	// 14 digits is not a tag.
	_, err = DecodeFrame(respFrame("A0101D12345678901234"))
	assert.ErrorIs(t, err, common.ErrNoTag)
}

func TestDecodeFrame_GarbageNeverPanics(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("$"),
		[]byte("#$"),
		[]byte("$$$$$####"),
		{0x00, 0xFF, 0x7F, 0x24, 0x23},
		[]byte("$" + string([]byte{0xFE, 0xED, 0xBE, 0xEF}) + "AA#"),
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = DecodeFrame(in)
		})
	}
}
