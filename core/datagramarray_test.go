// File: core/datagramarray_test.go
// Author: momentics <momentics@gmail.com>

package core

import (
	"testing"

	"github.com/cyclemux/cyclemux/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramArrayRoundTripsEndpointAndPayload(t *testing.T) {
	da, _, err := NewDatagramArray(api.FamilyIP4, 32, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, da.Count())

	ep := api.Endpoint{Family: api.FamilyIP4, Addr: []byte{10, 0, 0, 1}, Port: 53}
	require.NoError(t, da.SetEndpoint(2, ep))

	got, err := da.Endpoint(2)
	require.NoError(t, err)
	assert.True(t, ep.Equal(got))

	copy(da.Payload(2), []byte("payload"))
	da.setSize(2, len("payload"))
	assert.Equal(t, []byte("payload"), da.Payload(2)[:da.Size(2)])

	assert.Zero(t, da.Size(0))
	assert.Zero(t, da.Size(1))
	assert.Zero(t, da.Size(3))
}

func TestDatagramArraySetEndpointRejectsFamilyMismatch(t *testing.T) {
	da, _, err := NewDatagramArray(api.FamilyIP4, 32, 1)
	require.NoError(t, err)

	ep := api.Endpoint{Family: api.FamilyIP6, Addr: make([]byte, 16), Port: 53}
	assert.Error(t, da.SetEndpoint(0, ep))
}

func TestWrapDatagramArrayRejectsTruncatedBuffer(t *testing.T) {
	_, res, err := NewDatagramArray(api.FamilyIP4, 32, 2)
	require.NoError(t, err)

	_, err = WrapDatagramArray(res.Data[:len(res.Data)-1])
	assert.Error(t, err)
}

func TestWrapDatagramArrayRoundTripsThroughRawBytes(t *testing.T) {
	da, res, err := NewDatagramArray(api.FamilyIP6, 16, 2)
	require.NoError(t, err)
	ep := api.Endpoint{Family: api.FamilyIP6, Addr: make([]byte, 16), Port: 8080}
	ep.Addr[15] = 1
	require.NoError(t, da.SetEndpoint(1, ep))
	da.setSize(1, 5)

	rewrapped, err := WrapDatagramArray(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 2, rewrapped.Count())
	assert.Equal(t, 5, rewrapped.Size(1))

	got, err := rewrapped.Endpoint(1)
	require.NoError(t, err)
	assert.True(t, ep.Equal(got))
}

func TestDatagramArraySliceSharesBackingBuffer(t *testing.T) {
	da, _, err := NewDatagramArray(api.FamilyIP4, 16, 3)
	require.NoError(t, err)
	da.setSize(1, 7)

	sub, err := da.Slice(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Count())
	assert.Equal(t, 7, sub.Size(0))
}

func TestDatagramArraySliceRejectsOutOfRange(t *testing.T) {
	da, _, err := NewDatagramArray(api.FamilyIP4, 16, 2)
	require.NoError(t, err)
	_, err = da.Slice(1, 3)
	assert.Error(t, err)
	_, err = da.Slice(-1, 1)
	assert.Error(t, err)
}

func TestNewDatagramArrayRejectsNonPositiveSizes(t *testing.T) {
	_, _, err := NewDatagramArray(api.FamilyIP4, 0, 1)
	assert.Error(t, err)
	_, _, err = NewDatagramArray(api.FamilyIP4, 16, 0)
	assert.Error(t, err)
}
