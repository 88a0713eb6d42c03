package decompress

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGunzip_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	random := make([]byte, 1<<20)
	rng.Read(random)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: []byte{}},
		{name: "single byte", data: []byte{0x7f}},
		{name: "text", data: []byte("見る,動詞,自立,*,*,一段,基本形,見る,ミル,ミル")},
		{name: "repetitive", data: bytes.Repeat([]byte("base.dat"), 4096)},
		{name: "random 1MiB", data: random},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := Gzip(tt.data)
			require.NoError(t, err)

			raw, err := Gunzip(compressed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.data, raw), "round trip changed payload")
		})
	}
}

func TestGunzip_ConcatenatedMembers(t *testing.T) {
	first, err := Gzip([]byte("hello "))
	require.NoError(t, err)
	second, err := Gzip([]byte("world"))
	require.NoError(t, err)

	raw, err := Gunzip(append(first, second...))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(raw))
}

func TestGunzip_Malformed(t *testing.T) {
	valid, err := Gzip(bytes.Repeat([]byte("dictionary"), 100))
	require.NoError(t, err)

	corrupt := bytes.Clone(valid)
	corrupt[len(corrupt)/2] ^= 0xff

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "nil input", input: nil},
		{name: "not gzip", input: []byte("plain text, not compressed")},
		{name: "truncated", input: valid[:len(valid)/2]},
		{name: "corrupt body", input: corrupt},
		{name: "trailing garbage", input: append(bytes.Clone(valid), []byte("garbage")...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Gunzip(tt.input)
			require.Error(t, err)
			assert.Nil(t, raw)
			assert.True(t, errors.Is(err, ErrMalformed), "error %v should wrap ErrMalformed", err)
		})
	}
}

func TestGunzip_Deterministic(t *testing.T) {
	input := []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad}

	_, err1 := Gunzip(input)
	_, err2 := Gunzip(input)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error())
}
