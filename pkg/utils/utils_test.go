package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateEventID(t *testing.T) {
	id := CreateEventID("ethereum", "0xabc", 3)
	assert.True(t, strings.HasPrefix(id, "0x"))
	assert.Len(t, id, 66)

	// Deterministic: the same triple always hashes to the same ID.
	assert.Equal(t, id, CreateEventID("ethereum", "0xabc", 3))

	// Each component participates in the key.
	assert.NotEqual(t, id, CreateEventID("solana", "0xabc", 3))
	assert.NotEqual(t, id, CreateEventID("ethereum", "0xdef", 3))
	assert.NotEqual(t, id, CreateEventID("ethereum", "0xabc", 4))
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t,
		"0xaabbccddeeff00112233445566778899aabbccdd",
		NormalizeAddress("0xAABBCCDDEEFF00112233445566778899AABBCCDD"))

	// Solana base58 keys are case-sensitive and pass through unchanged.
	addr := "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	assert.Equal(t, addr, NormalizeAddress(addr))
}

func TestAppErrorFormat(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "Invalid amount", "abc")
	assert.Equal(t, "VALIDATION_ERROR: Invalid amount (abc)", err.Error())

	err = NewAppError(ErrCodeInternal, "Something broke")
	assert.Equal(t, "INTERNAL_ERROR: Something broke", err.Error())
}

func TestInitLoggerOutputs(t *testing.T) {
	defer InitLogger("error", "text", "stdout", "")

	require.NoError(t, InitLogger("debug", "json", "stderr", ""))
	assert.Equal(t, os.Stderr, Logger.Out)

	path := filepath.Join(t.TempDir(), "monitor.log")
	require.NoError(t, InitLogger("info", "text", "file", path))
	Logger.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	// File output without a path falls back to stdout.
	require.NoError(t, InitLogger("info", "text", "file", ""))
	assert.Equal(t, os.Stdout, Logger.Out)

	assert.Error(t, InitLogger("not-a-level", "text", "stdout", ""))
	assert.Error(t, InitLogger("info", "text", "file", filepath.Join(t.TempDir(), "missing", "dir.log")))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewAppError(ErrCodeConnection, "RPC timeout", "")))
	assert.True(t, IsTransient(NewAppError(ErrCodeExternal, "Rate limited", "")))

	assert.False(t, IsTransient(NewAppError(ErrCodeValidation, "Bad payload", "")))
	assert.False(t, IsTransient(NewAppError(ErrCodeConfiguration, "Missing token", "")))
	assert.False(t, IsTransient(errors.New("plain error")))
	assert.False(t, IsTransient(nil))
}
