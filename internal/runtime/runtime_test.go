package runtime

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOpener_MintsDistinctIDs(t *testing.T) {
	opener := LocalOpener{}
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := opener.OpenSession(ctx, "/workspace/alice")
		require.NoError(t, err)

		_, err = ulid.Parse(id)
		require.NoError(t, err)

		assert.False(t, seen[id], "id %s minted twice", id)
		seen[id] = true
	}
}
