package room

import "crypto/rand"

const roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// newRoomID returns a random lowercase-alphanumeric string suitable as a
// human-shareable invite code.
func newRoomID(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(buf)
}
