package config

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthStringPlain(t *testing.T) {
	acct, err := ParseAuthString("alice:s3cret")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.True(t, acct.Password.Match("s3cret"))
	assert.False(t, acct.Password.Match("wrong"))
}

func TestParseAuthStringSha256(t *testing.T) {
	sum := sha256.Sum256([]byte("pw"))
	acct, err := ParseAuthString("alice:sha256:" + hex.EncodeToString(sum[:]))
	require.NoError(t, err)
	assert.True(t, acct.Password.Match("pw"))
	assert.False(t, acct.Password.Match("pw2"))
}

func TestParseAuthStringRejectsTooLongPlain(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err := ParseAuthString("alice:" + string(long))
	require.Error(t, err)
}

func TestParseAuthStringRejectsBadHashMethod(t *testing.T) {
	_, err := ParseAuthString("alice:md5:deadbeef")
	require.Error(t, err)
}

func TestLoadAuthFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n\nalice:pw\nbob:sha256:"+
		hex.EncodeToString(func() []byte { s := sha256.Sum256([]byte("x")); return s[:] }())+"\n"), 0o600))

	accounts, err := LoadAuthFile(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].Username)
	assert.Equal(t, "bob", accounts[1].Username)
}
