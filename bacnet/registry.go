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
	"sync"
	"time"
)

type invokeKey struct {
	peer string
	id   uint8
}

// InvokeRegistry assigns invoke IDs and maps inbound replies back to their
// transactions. IDs are scoped per peer: the same ID may be outstanding
// toward two different devices at once.
type InvokeRegistry struct {
	mu       sync.Mutex
	next     map[string]uint8
	inflight map[invokeKey]*Transaction
}

// NewInvokeRegistry creates an empty registry.
func NewInvokeRegistry() *InvokeRegistry {
	return &InvokeRegistry{
		next:     make(map[string]uint8),
		inflight: make(map[invokeKey]*Transaction),
	}
}

// Allocate reserves the next free invoke ID for a peer. With all 256 IDs
// outstanding it returns ErrNoFreeInvokeID; the caller backs off rather
// than reusing a live ID.
func (r *InvokeRegistry) Allocate(peer *net.UDPAddr) (uint8, error) {
	key := peer.String()
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.next[key]
	for i := 0; i < 256; i++ {
		id := start + uint8(i)
		if _, busy := r.inflight[invokeKey{peer: key, id: id}]; !busy {
			r.next[key] = id + 1
			return id, nil
		}
	}
	return 0, ErrNoFreeInvokeID
}

// Register binds a transaction to its allocated ID.
func (r *InvokeRegistry) Register(tx *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight[invokeKey{peer: tx.Peer().String(), id: tx.InvokeID()}] = tx
}

// Lookup finds the transaction a reply belongs to.
func (r *InvokeRegistry) Lookup(peer *net.UDPAddr, id uint8) (*Transaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.inflight[invokeKey{peer: peer.String(), id: id}]
	return tx, ok
}

// Release frees an invoke ID for reuse.
func (r *InvokeRegistry) Release(peer *net.UDPAddr, id uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, invokeKey{peer: peer.String(), id: id})
}

// Count returns the number of outstanding transactions across all peers.
func (r *InvokeRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// All returns the outstanding transactions, for shutdown sweeps.
func (r *InvokeRegistry) All() []*Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transaction, 0, len(r.inflight))
	for _, tx := range r.inflight {
		out = append(out, tx)
	}
	return out
}

// ReapStale drops transactions that reached a terminal state more than
// maxIdle ago but were never released, and returns how many were removed.
// Normal completion releases explicitly; this sweep covers callers that
// abandoned a transaction without waiting on it.
func (r *InvokeRegistry) ReapStale(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	// Snapshot first: finishedBefore takes the transaction lock, and a
	// finishing transaction may be taking the registry lock to release
	// itself.
	r.mu.Lock()
	entries := make(map[invokeKey]*Transaction, len(r.inflight))
	for key, tx := range r.inflight {
		entries[key] = tx
	}
	r.mu.Unlock()

	removed := 0
	for key, tx := range entries {
		if !tx.finishedBefore(cutoff) {
			continue
		}
		r.mu.Lock()
		if r.inflight[key] == tx {
			delete(r.inflight, key)
			removed++
		}
		r.mu.Unlock()
	}
	return removed
}
