package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// BindingHash digests the (user, chat context, directory) tuple a session
// was created under. It is recomputed on every resume; a mismatch means the
// id is being replayed in a different context and the session must not be
// resumed there.
func BindingHash(userID, chatContext, directory string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(chatContext))
	h.Write([]byte{0})
	h.Write([]byte(directory))
	return hex.EncodeToString(h.Sum(nil))
}
