package workload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellExecutor_Exec(t *testing.T) {
	e := NewShellExecutor(5 * time.Second)
	ctx := context.Background()

	t.Run("stdout returned", func(t *testing.T) {
		out, err := e.Exec(ctx, "echo hello", Options{})
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out)
	})

	t.Run("env and working dir", func(t *testing.T) {
		dir := t.TempDir()
		out, err := e.Exec(ctx, `echo "$GREETING" && pwd`, Options{
			Env:        map[string]string{"GREETING": "hi"},
			WorkingDir: dir,
		})
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "hi", lines[0])
		assert.Equal(t, filepath.Clean(dir), filepath.Clean(lines[1]))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		_, err := e.Exec(ctx, "echo oops >&2; exit 3", Options{})
		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.Equal(t, 3, cmdErr.ExitCode)
		assert.Equal(t, "oops\n", cmdErr.Stderr)
		assert.False(t, cmdErr.TimedOut)
		assert.Contains(t, cmdErr.Error(), "exited with code 3")
	})

	t.Run("timeout enforced", func(t *testing.T) {
		start := time.Now()
		_, err := e.Exec(ctx, "sleep 10", Options{Timeout: 100 * time.Millisecond})
		var cmdErr *CommandError
		require.True(t, errors.As(err, &cmdErr))
		assert.True(t, cmdErr.TimedOut)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opt", "user-install-script")

	require.NoError(t, WriteFileAtomic(path, []byte("#!/bin/sh\necho one\n"), 0755))
	require.NoError(t, WriteFileAtomic(path, []byte("#!/bin/sh\necho two\n"), 0755))

	data, ok, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "#!/bin/sh\necho two\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadFile_Missing(t *testing.T) {
	data, ok, err := ReadFile(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

type recordingExecutor struct {
	commands []string
	err      error
}

func (r *recordingExecutor) Exec(_ context.Context, command string, _ Options) (string, error) {
	r.commands = append(r.commands, command)
	return "", r.err
}

func TestDriver_CommandDefaults(t *testing.T) {
	rec := &recordingExecutor{}
	d := NewDriver(rec, "/opt/user-install-script", "", "")

	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Restart(context.Background()))
	assert.Equal(t, []string{"/opt/user-install-script", "/opt/user-install-script"}, rec.commands)

	rec.commands = nil
	d = NewDriver(rec, "/opt/user-install-script", "systemctl start app", "systemctl restart app")
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Restart(context.Background()))
	assert.Equal(t, []string{"systemctl start app", "systemctl restart app"}, rec.commands)
}

func TestDriver_RestartErrorWraps(t *testing.T) {
	rec := &recordingExecutor{err: &CommandError{Command: "x", ExitCode: 1}}
	d := NewDriver(rec, "/opt/user-install-script", "", "")

	err := d.Restart(context.Background())
	var cmdErr *CommandError
	assert.True(t, errors.As(err, &cmdErr))
}
