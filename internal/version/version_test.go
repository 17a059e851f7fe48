package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withValues(t *testing.T, version, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = origVersion, origCommit, origDate })
	Version, Commit, Date = version, commit, date
}

func TestInfo(t *testing.T) {
	withValues(t, "1.4.0", "9f2c1e0d7b6a", "2026-09-30")

	assert.Equal(t, "shopchat 1.4.0 (commit: 9f2c1e0, built: 2026-09-30, "+runtime.GOOS+"/"+runtime.GOARCH+")", Info())
}

func TestUserAgent(t *testing.T) {
	withValues(t, "1.4.0", "x", "y")
	assert.Equal(t, "shopchat/1.4.0", UserAgent())
}

func TestShort(t *testing.T) {
	assert.Equal(t, "abcdefg", short("abcdefghij"))
	assert.Equal(t, "1234567", short("1234567"))
	assert.Equal(t, "abc", short("abc"))
	assert.Equal(t, "", short(""))
}
