package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicate(t *testing.T) {
	cor := NewCorrelator()

	_, err := cor.Register(123, "read_done", time.Minute)
	require.NoError(t, err)

	_, err = cor.Register(123, "read_done", time.Minute)
	assert.ErrorIs(t, err, ErrDuplicateID)

	// id is free again after resolve
	_, err = cor.Resolve(123)
	require.NoError(t, err)
	_, err = cor.Register(123, "read_done", time.Minute)
	assert.NoError(t, err)
}

func TestResolveUnknown(t *testing.T) {
	cor := NewCorrelator()

	_, err := cor.Resolve(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveOnce(t *testing.T) {
	cor := NewCorrelator()

	_, err := cor.Register(7, "write_ack", time.Minute)
	require.NoError(t, err)

	p, err := cor.Resolve(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.ID)
	assert.Equal(t, "write_ack", p.Name)

	// a duplicate response from the LAN must not resolve twice
	_, err = cor.Resolve(7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweep(t *testing.T) {
	cor := NewCorrelator()

	_, err := cor.Register(1, "read_done", time.Second)
	require.NoError(t, err)
	_, err = cor.Register(2, "read_done", time.Hour)
	require.NoError(t, err)

	expired := cor.Sweep(time.Now().Add(time.Minute))
	require.Len(t, expired, 1)
	assert.Equal(t, int64(1), expired[0].ID)
	assert.Equal(t, 1, cor.Len())

	// a late response for the swept id is dropped
	_, err = cor.Resolve(1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cor.Resolve(2)
	assert.NoError(t, err)
}
