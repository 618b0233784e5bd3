package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aramaster/internal/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "aractl-test-secret-aractl-test-secret"

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `server:
  host: "127.0.0.1"
  port: 8080
  mode: "test"
database:
  mysql:
    host: "127.0.0.1"
    database: "ara_test"
log:
  level: "error"
  format: "json"
  output: "stdout"
  file_path: "` + filepath.ToSlash(filepath.Join(dir, "logs", "ara.log")) + `"
indexer:
  base_path: "` + filepath.ToSlash(dir) + `"
security:
  jwt:
    secret: "` + testSecret + `"
    issuer: "ara-test"
    access_token_expire: 1h
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		tokenFlags.ttl = 0
		hashKeyFlags.generate = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	dir := writeTestConfig(t)

	out, err := execute(t, "token", "--config", dir, "--env", "test", "--subject", "alice", "--role", auth.RoleIndexer)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "expires at "))

	claims, err := auth.NewJWTManager(testSecret, "ara-test", 0).ValidateToken(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, auth.RoleIndexer, claims.Role)
}

func TestTokenCommand_RequiresSubject(t *testing.T) {
	dir := writeTestConfig(t)

	_, err := execute(t, "token", "--config", dir, "--subject", "")
	require.Error(t, err)
}

func TestHashKeyCommand(t *testing.T) {
	out, err := execute(t, "hash-key", "ci-secret-key")
	require.NoError(t, err)

	hash := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "hash:"))
	ok, err := auth.NewKeyHasher(nil).Verify("ci-secret-key", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashKeyCommand_Generate(t *testing.T) {
	out, err := execute(t, "hash-key", "--generate")
	require.NoError(t, err)

	var key, hash string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		switch {
		case strings.HasPrefix(line, "key:"):
			key = strings.TrimSpace(strings.TrimPrefix(line, "key:"))
		case strings.HasPrefix(line, "hash:"):
			hash = strings.TrimSpace(strings.TrimPrefix(line, "hash:"))
		}
	}
	require.NotEmpty(t, key)
	assert.True(t, auth.NewAPIKeyVerifier([]string{hash}).Verify(key))
}

func TestHashKeyCommand_NoKey(t *testing.T) {
	_, err := execute(t, "hash-key")
	require.Error(t, err)
}
