package fhe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainSchemeAdd(t *testing.T) {
	s := NewPlainScheme()

	a, err := s.Encrypt(10)
	require.NoError(t, err)
	b, err := s.Encrypt(32)
	require.NoError(t, err)

	require.NoError(t, s.InitializeIfNeeded(a))
	require.NoError(t, s.InitializeIfNeeded(b))

	sum, err := s.Add(a, b)
	require.NoError(t, err)

	v, err := s.Decrypt(sum)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}

func TestPlainSchemeZeroIsNeutral(t *testing.T) {
	s := NewPlainScheme()

	zero, err := s.Zero()
	require.NoError(t, err)
	a, err := s.Encrypt(7)
	require.NoError(t, err)

	require.NoError(t, s.InitializeIfNeeded(zero))
	require.NoError(t, s.InitializeIfNeeded(a))

	sum, err := s.Add(zero, a)
	require.NoError(t, err)

	v, err := s.Decrypt(sum)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

func TestInitializeIfNeededIdempotent(t *testing.T) {
	s := NewPlainScheme()

	ct, err := s.Encrypt(5)
	require.NoError(t, err)
	assert.False(t, ct.Initialized())

	require.NoError(t, s.InitializeIfNeeded(ct))
	assert.True(t, ct.Initialized())
	require.NoError(t, s.InitializeIfNeeded(ct))
	assert.True(t, ct.Initialized())
}

func TestAddRequiresInitializedOperands(t *testing.T) {
	s := NewPlainScheme()

	a, err := s.Encrypt(1)
	require.NoError(t, err)
	b, err := s.Encrypt(2)
	require.NoError(t, err)

	_, err = s.Add(a, b)
	assert.Error(t, err)
}

func TestFingerprintStable(t *testing.T) {
	s := NewPlainScheme()

	ct, err := s.Encrypt(123)
	require.NoError(t, err)
	require.NoError(t, s.InitializeIfNeeded(ct))

	f1, err := s.Fingerprint(ct)
	require.NoError(t, err)
	f2, err := s.Fingerprint(ct)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	// A handle wrapping the same bytes fingerprints identically.
	clone := NewCiphertext(ct.Data)
	require.NoError(t, s.InitializeIfNeeded(clone))
	f3, err := s.Fingerprint(clone)
	require.NoError(t, err)
	assert.Equal(t, f1, f3)

	other, err := s.Encrypt(124)
	require.NoError(t, err)
	require.NoError(t, s.InitializeIfNeeded(other))
	f4, err := s.Fingerprint(other)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f4)
}

func TestFingerprintRequiresInitialization(t *testing.T) {
	s := NewPlainScheme()

	ct, err := s.Encrypt(1)
	require.NoError(t, err)

	_, err = s.Fingerprint(ct)
	assert.Error(t, err)
}
