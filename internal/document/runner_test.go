package document

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n, "writes past the cap are accepted and dropped")
	assert.Equal(t, "abcde", string(b.Bytes()))
}

func TestExecRunner(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	ctx := context.Background()

	t.Run("exit status", func(t *testing.T) {
		out, errb, err := execRunner{}.Run(ctx, sh, "-c", "echo page; echo broken xref >&2; exit 3")
		require.Error(t, err)
		assert.Equal(t, "sh exited with status 3", err.Error())
		assert.Equal(t, "page\n", string(out))
		assert.Equal(t, "broken xref\n", string(errb))
	})

	t.Run("stderr is capped", func(t *testing.T) {
		_, errb, err := execRunner{}.Run(ctx, sh, "-c", "head -c 10000 /dev/zero | tr '\\0' x >&2")
		require.NoError(t, err)
		assert.Len(t, errb, maxStderr)
		assert.True(t, strings.HasPrefix(string(errb), "xxx"))
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := execRunner{}.Run(ctx, sh, "-c", "sleep 5")
		require.ErrorIs(t, err, context.Canceled)
	})
}
