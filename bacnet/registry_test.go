// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bacnet

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(192, 168, 1, 10), Port: port}
}

func testTransaction(peer *net.UDPAddr, id uint8) *Transaction {
	return newTransaction(transactionConfig{
		invokeID: id,
		peer:     peer,
		service:  ServiceReadProperty,
		send:     func(*APDU) error { return nil },
		request:  &APDU{Type: PDUTypeConfirmedRequest, InvokeID: id},
		retries:  0,
		timeout:  time.Second,
	})
}

func TestRegistryAllocateSequential(t *testing.T) {
	r := NewInvokeRegistry()
	peer := testPeer(47808)

	for want := 0; want < 3; want++ {
		id, err := r.Allocate(peer)
		require.NoError(t, err)
		assert.Equal(t, uint8(want), id)
		r.Register(testTransaction(peer, id))
	}
}

func TestRegistryPerPeerScope(t *testing.T) {
	r := NewInvokeRegistry()
	a := testPeer(47808)
	b := testPeer(47809)

	idA, err := r.Allocate(a)
	require.NoError(t, err)
	r.Register(testTransaction(a, idA))

	// A different peer gets the same ID: scopes are independent.
	idB, err := r.Allocate(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
	r.Register(testTransaction(b, idB))

	_, ok := r.Lookup(a, idA)
	assert.True(t, ok)
	_, ok = r.Lookup(b, idB)
	assert.True(t, ok)
	assert.Equal(t, 2, r.Count())
}

func TestRegistryExhaustion(t *testing.T) {
	r := NewInvokeRegistry()
	peer := testPeer(47808)

	for i := 0; i < 256; i++ {
		id, err := r.Allocate(peer)
		require.NoError(t, err)
		r.Register(testTransaction(peer, id))
	}

	_, err := r.Allocate(peer)
	assert.ErrorIs(t, err, ErrNoFreeInvokeID)

	// Releasing one ID makes it allocatable again.
	r.Release(peer, 17)
	id, err := r.Allocate(peer)
	require.NoError(t, err)
	assert.Equal(t, uint8(17), id)
}

func TestRegistrySkipsBusyIDs(t *testing.T) {
	r := NewInvokeRegistry()
	peer := testPeer(47808)

	id0, err := r.Allocate(peer)
	require.NoError(t, err)
	r.Register(testTransaction(peer, id0))

	id1, err := r.Allocate(peer)
	require.NoError(t, err)
	r.Register(testTransaction(peer, id1))
	assert.NotEqual(t, id0, id1)

	// Wrapping around after 255 skips IDs still in flight.
	for i := 2; i < 256; i++ {
		id, err := r.Allocate(peer)
		require.NoError(t, err)
		r.Register(testTransaction(peer, id))
	}
	r.Release(peer, id1)

	id, err := r.Allocate(peer)
	require.NoError(t, err)
	assert.Equal(t, id1, id)
}

func TestRegistryLookupMiss(t *testing.T) {
	r := NewInvokeRegistry()
	_, ok := r.Lookup(testPeer(47808), 0)
	assert.False(t, ok)
}

func TestRegistryAll(t *testing.T) {
	r := NewInvokeRegistry()
	peer := testPeer(47808)
	for i := 0; i < 4; i++ {
		id, err := r.Allocate(peer)
		require.NoError(t, err)
		r.Register(testTransaction(peer, id))
	}
	assert.Len(t, r.All(), 4)
}

func TestRegistryReapStale(t *testing.T) {
	r := NewInvokeRegistry()
	peer := testPeer(47808)

	live := testTransaction(peer, 0)
	r.Register(live)

	stale := testTransaction(peer, 1)
	stale.mu.Lock()
	stale.state = StateCompleted
	stale.finishedAt = time.Now().Add(-time.Hour)
	stale.mu.Unlock()
	r.Register(stale)

	fresh := testTransaction(peer, 2)
	fresh.mu.Lock()
	fresh.state = StateCompleted
	fresh.finishedAt = time.Now()
	fresh.mu.Unlock()
	r.Register(fresh)

	removed := r.ReapStale(time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, r.Count())

	_, ok := r.Lookup(peer, 1)
	assert.False(t, ok)
	_, ok = r.Lookup(peer, 0)
	assert.True(t, ok)
}
