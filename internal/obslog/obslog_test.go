package obslog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aureus-sentinel/bridge/internal/clock"
)

func TestLogger_UnsignedWritesPlainEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, clock.Fixed{At: time.Unix(0, 0)}, nil)

	l.Info("hello", Fields{"key": "value"})

	var e entry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, "hello", e.Message)
	assert.Empty(t, e.Signature)
}

func TestLogger_SignedEntriesVerify(t *testing.T) {
	var buf bytes.Buffer
	key := []byte("test-signing-key")
	l := New(&buf, clock.Fixed{At: time.Unix(0, 0)}, key)

	l.Warn("disk low", Fields{"freeBytes": 128})

	line := bytes.TrimRight(buf.Bytes(), "\n")
	assert.True(t, VerifyLine(line, key))
	assert.False(t, VerifyLine(line, []byte("wrong-key")))
}

func TestLogger_TamperedLineFailsVerify(t *testing.T) {
	var buf bytes.Buffer
	key := []byte("test-signing-key")
	l := New(&buf, clock.Fixed{At: time.Unix(0, 0)}, key)

	l.Error("boom", nil)

	tampered := bytes.Replace(buf.Bytes(), []byte("boom"), []byte("safe"), 1)
	assert.False(t, VerifyLine(bytes.TrimRight(tampered, "\n"), key))
}

func TestLogger_MultipleLinesAreIndependentlyVerifiable(t *testing.T) {
	var buf bytes.Buffer
	key := []byte("k")
	l := New(&buf, clock.Real{}, key)

	l.Info("one", nil)
	l.Info("two", nil)

	scanner := bufio.NewScanner(&buf)
	count := 0
	for scanner.Scan() {
		assert.True(t, VerifyLine(scanner.Bytes(), key))
		count++
	}
	assert.Equal(t, 2, count)
}
