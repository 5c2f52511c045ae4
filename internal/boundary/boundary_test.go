package boundary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithin(t *testing.T) {
	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{"equal", "/workspace/alice", "/workspace/alice", true},
		{"child", "/workspace/alice/src/main.go", "/workspace/alice", true},
		{"sibling", "/workspace/bob", "/workspace/alice", false},
		{"parent", "/workspace", "/workspace/alice", false},
		{"prefix not descendant", "/workspace/alice-other", "/workspace/alice", false},
		{"unclean escape", "/workspace/alice/../bob", "/workspace/alice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithin(tt.path, tt.dir))
		})
	}
}

func TestResolve_Relative(t *testing.T) {
	resolved, err := Resolve(context.Background(), "src/main.go", "/workspace/alice")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/alice/src/main.go", resolved)
}

func TestResolve_TraversalEscape(t *testing.T) {
	resolved, err := Resolve(context.Background(), "/workspace/alice/../bob/secrets.txt", "/workspace/alice")
	require.NoError(t, err)
	assert.Equal(t, "/workspace/bob/secrets.txt", resolved)
	assert.False(t, IsWithin(resolved, "/workspace/alice"))
}

func TestResolve_RelativeTraversal(t *testing.T) {
	resolved, err := Resolve(context.Background(), "../../etc/passwd", "/workspace/alice")
	require.NoError(t, err)
	assert.Equal(t, "/etc/passwd", resolved)
}

func TestResolve_SymlinkEscape(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	outside := filepath.Join(tmp, "outside")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	// The literal string looks locally scoped but the link points out.
	resolved, err := Resolve(context.Background(), "link/file.txt", root)
	require.NoError(t, err)
	assert.False(t, IsWithin(resolved, root))
	assert.True(t, IsWithin(resolved, outside))
}

func TestResolve_NonexistentTarget(t *testing.T) {
	root := t.TempDir()

	// Writing a new file is a normal tool operation; the target does not
	// exist yet but its resolved location must still be computed.
	resolved, err := Resolve(context.Background(), "new/dir/file.txt", root)
	require.NoError(t, err)
	assert.True(t, IsWithin(resolved, root))
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Resolve(ctx, "src/main.go", "/workspace/alice")
	assert.ErrorIs(t, err, context.Canceled)
}
