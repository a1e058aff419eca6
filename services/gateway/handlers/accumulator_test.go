// Copyright (C) 2026 Keepsake Labs (engineering@keepsakelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAccumulator creates an accumulator for testing, falling back to the
// insecure implementation in CI environments without mlock headroom.
func newTestAccumulator(t *testing.T) TokenAccumulator {
	t.Helper()

	acc, err := NewSecureTokenAccumulator()
	if err == nil {
		return acc
	}
	t.Logf("Falling back to insecure accumulator: %v", err)
	return newInsecureTokenAccumulator()
}

func TestTokenAccumulator_WriteAndFinalize(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	tokens := []string{"I hear", " you.", " That sounds", " heavy."}
	for _, token := range tokens {
		require.NoError(t, acc.Write(token))
	}

	answer, hash, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "I hear you. That sounds heavy.", answer)

	expected := sha256.Sum256([]byte(answer))
	assert.Equal(t, hex.EncodeToString(expected[:]), hash,
		"incremental hash should match hash of the full reply")
}

func TestTokenAccumulator_UnicodeTokens(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	require.NoError(t, acc.Write("早く"))
	require.NoError(t, acc.Write("会いたい 💙"))

	answer, _, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "早く会いたい 💙", answer)
}

func TestTokenAccumulator_WriteAfterFinalizeFails(t *testing.T) {
	acc := newTestAccumulator(t)

	require.NoError(t, acc.Write("hello"))
	_, _, err := acc.Finalize()
	require.NoError(t, err)

	err = acc.Write("more")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destroyed")

	_, _, err = acc.Finalize()
	assert.Error(t, err, "second finalize must fail")
}

func TestTokenAccumulator_DestroyIsIdempotent(t *testing.T) {
	acc := newTestAccumulator(t)
	require.NoError(t, acc.Write("hello"))

	acc.Destroy()
	acc.Destroy()

	assert.Error(t, acc.Write("after destroy"))
}

func TestTokenAccumulator_Overflow(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	oversized := make([]byte, SecureBufferSize+1)
	for i := range oversized {
		oversized[i] = 'A'
	}

	err := acc.Write(string(oversized))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overflow")

	_, _, err = acc.Finalize()
	assert.Error(t, err, "finalize after overflow must fail")
}

func TestTokenAccumulator_ConcurrentWrites(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(writer int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = acc.Write(fmt.Sprintf("[%d:%d]", writer, j))
			}
		}(i)
	}
	wg.Wait()

	answer, hash, err := acc.Finalize()
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Len(t, hash, 64)
}

func TestInsecureAccumulator_Fallback(t *testing.T) {
	acc := newInsecureTokenAccumulator()
	defer acc.Destroy()

	require.NoError(t, acc.Write("Hello"))
	require.NoError(t, acc.Write(" World"))

	answer, hash, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "Hello World", answer)

	expected := sha256.Sum256([]byte("Hello World"))
	assert.Equal(t, hex.EncodeToString(expected[:]), hash)

	_, err = uuid.Parse(acc.ID())
	assert.NoError(t, err)
}
