// Package a04 implements the RBC-A04 reader wire protocol: poll command
// construction and response frame decoding with BCC verification.
package a04

import (
	"fmt"
	"regexp"

	"github.com/dccollins/pet-chip-reader/internal/common"
)

// Frames are ASCII: a '$' start marker, a data payload, a two-character
// uppercase hex BCC, and a '#' end marker. The BCC is the XOR of every
// payload byte between the markers, excluding the BCC itself.
const (
	frameStart = '$'
	frameEnd   = '#'

	// minPayload is the shortest decodable payload: at least two data
	// characters plus the two-character BCC.
	minPayload = 4
)

var tagIDPattern = regexp.MustCompile(`\d{15}`)

// BCC computes the XOR block check character over data, rendered as two
// uppercase hex digits.
func BCC(data []byte) string {
	var bcc byte
	for _, b := range data {
		bcc ^= b
	}
	return fmt.Sprintf("%02X", bcc)
}

// BuildPollCommand constructs the poll frame for the reader at addr using
// the given tag format code, e.g. BuildPollCommand("01", "D").
func BuildPollCommand(addr, format string) []byte {
	payload := "A" + addr + "01" + format
	return []byte(string(frameStart) + payload + BCC([]byte(payload)) + string(frameEnd))
}

// DecodeFrame validates raw and extracts the 15-digit tag id it carries.
// Malformed frames, BCC mismatches, and frames without a tag id return a
// typed error; callers treat every error as "no event this cycle".
func DecodeFrame(raw []byte) (string, error) {
	if len(raw) < minPayload+2 || raw[0] != frameStart || raw[len(raw)-1] != frameEnd {
		return "", common.ErrBadFrame
	}

	payload := raw[1 : len(raw)-1]
	if len(payload) < minPayload {
		return "", common.ErrBadFrame
	}

	data := payload[:len(payload)-2]
	received := string(payload[len(payload)-2:])

	if computed := BCC(data); computed != received {
		return "", fmt.Errorf("%w: computed %s, received %s", common.ErrBadBCC, computed, received)
	}

	if tagID := tagIDPattern.Find(data); tagID != nil {
		return string(tagID), nil
	}

	return "", common.ErrNoTag
}
