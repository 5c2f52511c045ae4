package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
)

// loopThreshold is the number of identical consecutive calls that counts as
// a stuck agent.
const loopThreshold = 3

// historyLimit caps per-session history to prevent unbounded growth.
const historyLimit = 10

// loopDetector tracks repeated tool calls to catch an agent stuck retrying
// the same action.
type loopDetector struct {
	mu      sync.Mutex
	history map[string][]string // session id -> recent call hashes
}

func newLoopDetector() *loopDetector {
	return &loopDetector{history: make(map[string][]string)}
}

// check records the call and reports whether it is the loopThreshold-th
// identical call in a row.
func (d *loopDetector) check(sessionID, tool string, input map[string]any) bool {
	hash := hashCall(tool, input)

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.history[sessionID]

	looping := false
	if len(history) >= loopThreshold-1 {
		looping = true
		for _, h := range history[len(history)-(loopThreshold-1):] {
			if h != hash {
				looping = false
				break
			}
		}
	}

	history = append(history, hash)
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	d.history[sessionID] = history

	return looping
}

func (d *loopDetector) clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(tool string, input map[string]any) string {
	data, _ := json.Marshal(map[string]any{"tool": tool, "input": input})
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
