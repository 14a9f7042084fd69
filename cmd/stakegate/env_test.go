package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/domain"
)

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSTAKEGATE_TEST_A=one\nSTAKEGATE_TEST_B = \"two\"\nmalformed\nexport STAKEGATE_TEST_C=three\nSTAKEGATE_TEST_D='four'\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STAKEGATE_TEST_C", "preset")

	loadEnvFile(path)
	t.Cleanup(func() {
		os.Unsetenv("STAKEGATE_TEST_A")
		os.Unsetenv("STAKEGATE_TEST_B")
		os.Unsetenv("STAKEGATE_TEST_D")
	})

	assert.Equal(t, "one", os.Getenv("STAKEGATE_TEST_A"))
	assert.Equal(t, "two", os.Getenv("STAKEGATE_TEST_B"))
	assert.Equal(t, "preset", os.Getenv("STAKEGATE_TEST_C"))
	assert.Equal(t, "four", os.Getenv("STAKEGATE_TEST_D"))
}

func TestAllowList(t *testing.T) {
	assert.Nil(t, allowList(nil))

	auth := allowList([]string{"council", " ops "})
	p := &domain.Proposal{ID: "PROP-0001"}
	assert.NoError(t, auth("council", p))
	assert.NoError(t, auth("ops", p))
	assert.ErrorIs(t, auth("mallory", p), domain.ErrUnauthorized)
}
