package document

import (
	"crypto/rand"
	"fmt"
)

// roomCodeAlphabet avoids characters that read ambiguously when a code is
// shared out loud or scrawled on a whiteboard (no 0/O, 1/I/L).
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const roomCodeLength = 6

// RoomCodeProvider issues shareable room codes.
type RoomCodeProvider interface {
	NewCode() (string, error)
}

type randomCodeProvider struct{}

// NewRoomCodeProvider returns a crypto/rand backed room code generator.
func NewRoomCodeProvider() RoomCodeProvider {
	return &randomCodeProvider{}
}

// rejectAbove is the largest multiple of the alphabet size below 256. Bytes
// at or above it are redrawn so every alphabet character is equally likely.
const rejectAbove = byte(256 - 256%len(roomCodeAlphabet))

func (p *randomCodeProvider) NewCode() (string, error) {
	code := make([]byte, 0, roomCodeLength)
	buf := make([]byte, roomCodeLength)
	for len(code) < roomCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("document: room code generation failed: %w", err)
		}
		for _, b := range buf {
			if b >= rejectAbove {
				continue
			}
			code = append(code, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(code) == roomCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
