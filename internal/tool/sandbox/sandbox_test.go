package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "OpenAgents/internal/errors"
)

// tempRoot 返回展开符号链接后的临时目录，部分系统的临时目录本身位于链接之下。
func tempRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func symlinkOrSkip(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestResolveRelativeInsideRoot(t *testing.T) {
	root := tempRoot(t)

	got, err := Resolve(root, "sub/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "x"), got)
}

func TestResolveRootItself(t *testing.T) {
	root := tempRoot(t)

	for _, p := range []string{".", "", root, "sub/.."} {
		got, err := Resolve(root, p)
		require.NoError(t, err, "path %q", p)
		assert.Equal(t, root, got)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	root := tempRoot(t)

	cases := []string{
		"../x",
		"sub/../../x",
		"/etc/passwd",
		root + "-evil/x",
		filepath.Join(filepath.Dir(root), filepath.Base(root)+"-evil", "x"),
	}
	for _, p := range cases {
		_, err := Resolve(root, p)
		require.Error(t, err, "path %q must be rejected", p)
		assert.Equal(t, CodeViolation, xerrors.CodeOf(err))
		assert.Contains(t, err.Error(), "Path is outside sandbox: "+p)
	}
}

func TestResolveAbsoluteInsideRoot(t *testing.T) {
	root := tempRoot(t)
	inside := filepath.Join(root, "a", "b.txt")

	got, err := Resolve(root, inside)
	require.NoError(t, err)
	assert.Equal(t, inside, got)
}

func TestResolveRelativeRoot(t *testing.T) {
	t.Chdir(t.TempDir())

	r, err := NewRoot("tmp/sandbox")
	require.NoError(t, err)
	require.NoError(t, r.Ensure())

	got, err := r.Resolve("e2e.txt")
	require.NoError(t, err)
	dir, err := filepath.EvalSymlinks(r.Dir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "e2e.txt"), got)
	assert.True(t, filepath.IsAbs(got))
}

func TestResolveRejectsSymlinkEscapes(t *testing.T) {
	base := tempRoot(t)
	root := filepath.Join(base, "sandbox")
	secret := filepath.Join(base, "secret")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(secret, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(secret, "key.txt"), []byte("TOP SECRET"), 0o600))

	symlinkOrSkip(t, "../secret", filepath.Join(root, "link"))
	symlinkOrSkip(t, filepath.Join(secret, "key.txt"), filepath.Join(root, "key-link.txt"))
	symlinkOrSkip(t, filepath.Join(base, "nowhere", "new.txt"), filepath.Join(root, "dangling.txt"))

	for _, p := range []string{
		"link/key.txt",
		"link",
		"link/not-yet/new.txt",
		"key-link.txt",
		"dangling.txt",
		"dangling.txt/child",
	} {
		_, err := Resolve(root, p)
		require.Error(t, err, "path %q must be rejected", p)
		assert.Equal(t, CodeViolation, xerrors.CodeOf(err))
	}
}

func TestResolveFollowsSymlinksInsideRoot(t *testing.T) {
	root := tempRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	symlinkOrSkip(t, "data", filepath.Join(root, "alias"))

	got, err := Resolve(root, "alias/new/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data", "new", "file.txt"), got)
}

func TestResolveThroughSymlinkedRoot(t *testing.T) {
	base := tempRoot(t)
	realDir := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(realDir, 0o755))
	linked := filepath.Join(base, "linked")
	symlinkOrSkip(t, realDir, linked)

	got, err := Resolve(linked, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realDir, "notes.txt"), got)
}
