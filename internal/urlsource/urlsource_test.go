package urlsource

import (
	"errors"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scriptcensus/internal/crawler"
)

func TestLoadDeduplicates(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	content := "http://a.test http://a.test\nhttp://b.test\n\n\thttp://c.test  http://b.test\r\n"
	require.NoError(t, afero.WriteFile(fs, "urls.txt", []byte(content), 0o600))

	set, err := Load(fs, "urls.txt")
	require.NoError(t, err)
	require.Equal(t, []string{"http://a.test", "http://b.test", "http://c.test"}, set.Sorted())
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "empty.txt", []byte(" \n\t\n"), 0o600))

	set, err := Load(fs, "empty.txt")
	require.NoError(t, err)
	require.Empty(t, set)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(afero.NewMemMapFs(), "missing.txt")
	require.Error(t, err)
	require.True(t, errors.Is(err, crawler.ErrInput))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Load(afero.NewMemMapFs(), "  ")
	require.ErrorIs(t, err, crawler.ErrInput)
}
