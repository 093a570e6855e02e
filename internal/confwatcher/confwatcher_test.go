package confwatcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "conf.yml")
	err := os.WriteFile(fpath, []byte("{}"), 0o644)
	require.NoError(t, err)

	w, err := New(fpath)
	require.NoError(t, err)
	defer w.Close()

	err = os.WriteFile(fpath, []byte("logLevel: debug\n"), 0o644)
	require.NoError(t, err)

	select {
	case <-w.Watch():
	case <-time.After(500 * time.Millisecond):
		t.Errorf("timed out")
	}
}

func TestReplace(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "conf.yml")
	err := os.WriteFile(fpath, []byte("{}"), 0o644)
	require.NoError(t, err)

	w, err := New(fpath)
	require.NoError(t, err)
	defer w.Close()

	// atomic replace, the way editors save files.
	tmp := filepath.Join(dir, "conf.yml.tmp")
	err = os.WriteFile(tmp, []byte("logLevel: debug\n"), 0o644)
	require.NoError(t, err)
	err = os.Rename(tmp, fpath)
	require.NoError(t, err)

	select {
	case <-w.Watch():
	case <-time.After(500 * time.Millisecond):
		t.Errorf("timed out")
	}
}
