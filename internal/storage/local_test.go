package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPathRejectsEscapes(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, rel := range []string{"", ".", "..", "../x", "a/../../x", "/etc/passwd"} {
		_, err := l.Path(rel)
		assert.ErrorIs(t, err, ErrInvalidPath, rel)
	}

	p, err := l.Path("rec/question.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(l.Root(), "rec", "question.pdf"), p)

	rel, err := l.Rel(p)
	require.NoError(t, err)
	assert.Equal(t, "rec/question.pdf", rel)
}

func TestLocalRemoveIsIdempotent(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.MkdirAll("rec"))
	p, err := l.Path("rec/question.pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("%PDF"), 0644))
	assert.True(t, l.Exists("rec/question.pdf"))
	assert.False(t, l.Exists("rec"))

	require.NoError(t, l.Remove("rec/question.pdf"))
	require.NoError(t, l.Remove("rec/question.pdf"))
	assert.False(t, l.Exists("rec/question.pdf"))
}

func TestLocalRemoveDirIfEmpty(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, l.MkdirAll("full"))
	p, err := l.Path("full/answer.pdf")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("%PDF"), 0644))

	require.NoError(t, l.RemoveDirIfEmpty("full"))
	_, err = os.Stat(filepath.Dir(p))
	assert.NoError(t, err)

	require.NoError(t, l.MkdirAll("empty"))
	require.NoError(t, l.RemoveDirIfEmpty("empty"))
	ep, _ := l.Path("empty")
	_, err = os.Stat(ep)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, l.RemoveDirIfEmpty("never-existed"))
}

func TestNopStorage(t *testing.T) {
	var s Storage = Nop{}
	assert.NoError(t, s.Save(context.Background(), "a", strings.NewReader("x")))
	assert.NoError(t, s.Delete(context.Background(), "a"))
}
