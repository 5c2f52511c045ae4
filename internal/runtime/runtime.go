// Package runtime provides agent-runtime implementations of the engine's
// session.Opener boundary. The engine treats the runtime as a black box that
// accepts a prompt, a working directory and a session handle, and emits a
// response plus zero or more tool-call requests. Only session opening
// crosses into the engine.
package runtime

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/codegate-ai/codegate/internal/session"
)

// LocalOpener mints runtime-style ids locally. It stands in for the real
// runtime in tests and in deployments where the orchestrator attaches the
// runtime out of process and reports its ids back through Resolve.
type LocalOpener struct{}

var _ session.Opener = LocalOpener{}

// OpenSession returns a fresh ULID. The runtime owns session id assignment;
// the engine never generates ids on the client side.
func (LocalOpener) OpenSession(ctx context.Context, directory string) (string, error) {
	return ulid.Make().String(), nil
}
