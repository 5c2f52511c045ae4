package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindingHash_Deterministic(t *testing.T) {
	a := BindingHash("alice", "chat-1", "/workspace/alice")
	b := BindingHash("alice", "chat-1", "/workspace/alice")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestBindingHash_ComponentSensitive(t *testing.T) {
	base := BindingHash("alice", "chat-1", "/workspace/alice")

	assert.NotEqual(t, base, BindingHash("bob", "chat-1", "/workspace/alice"))
	assert.NotEqual(t, base, BindingHash("alice", "chat-2", "/workspace/alice"))
	assert.NotEqual(t, base, BindingHash("alice", "chat-1", "/workspace/bob"))
}

func TestBindingHash_NoConcatenationCollision(t *testing.T) {
	// Separators keep ("ab","c") and ("a","bc") from hashing alike.
	assert.NotEqual(t,
		BindingHash("ab", "c", "/d"),
		BindingHash("a", "bc", "/d"))
}
