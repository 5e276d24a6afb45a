package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureSubdDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	got, err := EnsureSubdDir(".stuffhappens")
	require.NoError(t, err)

	want := filepath.Join(tmp, ".stuffhappens")
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm()&0o700)
	}

	// idempotent
	_, err = EnsureSubdDir(".stuffhappens")
	require.NoError(t, err)
}

func TestEnsureParentDir(t *testing.T) {
	tmp := t.TempDir()

	dsn := "file:" + filepath.Join(tmp, "nested", "state", "session.db") + "?_pragma=busy_timeout(5000)"
	require.NoError(t, EnsureParentDir(dsn))

	fi, err := os.Stat(filepath.Join(tmp, "nested", "state"))
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureParentDir_MemoryDSNsAreNoop(t *testing.T) {
	for _, dsn := range []string{"", ":memory:", "file:x?mode=memory&cache=shared", "session.db"} {
		require.NoError(t, EnsureParentDir(dsn), dsn)
	}
}
