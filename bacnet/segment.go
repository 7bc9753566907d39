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
	"fmt"
	"time"
)

// Segment is one slice of a segmented service payload.
type Segment struct {
	Sequence    uint8
	MoreFollows bool
	Data        []byte
}

// Segmenter splits a service payload into fixed-size segments for
// transmission. Sequence numbers wrap modulo 256.
type Segmenter struct {
	body       []byte
	segSize    int
	windowSize uint8
}

// NewSegmenter prepares a payload for segmented transmission. maxSegmentSize
// is the service-data capacity of one segment after the APDU header.
func NewSegmenter(body []byte, maxSegmentSize int, windowSize uint8) (*Segmenter, error) {
	if maxSegmentSize <= 0 {
		return nil, fmt.Errorf("bacnet: segment size %d", maxSegmentSize)
	}
	if windowSize == 0 {
		windowSize = 1
	}
	return &Segmenter{body: body, segSize: maxSegmentSize, windowSize: windowSize}, nil
}

// Count returns the number of segments the payload splits into. An empty
// payload still produces one segment.
func (s *Segmenter) Count() int {
	n := (len(s.body) + s.segSize - 1) / s.segSize
	if n == 0 {
		n = 1
	}
	return n
}

// WindowSize returns the proposed transmit window.
func (s *Segmenter) WindowSize() uint8 {
	return s.windowSize
}

// Segment returns segment i of the payload.
func (s *Segmenter) Segment(i int) (Segment, error) {
	count := s.Count()
	if i < 0 || i >= count {
		return Segment{}, fmt.Errorf("bacnet: segment %d of %d", i, count)
	}
	start := i * s.segSize
	end := start + s.segSize
	if end > len(s.body) {
		end = len(s.body)
	}
	return Segment{
		Sequence:    uint8(i % 256),
		MoreFollows: i < count-1,
		Data:        s.body[start:end],
	}, nil
}

// SegmentStatus is the outcome of feeding one received segment to a
// Reassembler.
type SegmentStatus int

const (
	// SegmentAccepted means the segment was in sequence and buffered; more
	// segments are expected.
	SegmentAccepted SegmentStatus = iota
	// SegmentComplete means the segment finished the payload.
	SegmentComplete
	// SegmentDuplicate means an already-received segment arrived again. The
	// caller re-acknowledges so the peer can make progress.
	SegmentDuplicate
)

// Reassembler collects the segments of an inbound segmented APDU. Only the
// next in-sequence segment is buffered; anything ahead of it is refused so
// a lost segment surfaces as a negative ack rather than a silent gap.
type Reassembler struct {
	body       []byte
	next       uint8
	started    bool
	complete   bool
	windowSize uint8
	lastSeen   time.Time
}

// NewReassembler starts reassembly with the peer's proposed window size.
func NewReassembler(windowSize uint8) *Reassembler {
	if windowSize == 0 {
		windowSize = 1
	}
	return &Reassembler{windowSize: windowSize, lastSeen: time.Now()}
}

// Add feeds one received segment. Out-of-window sequence numbers return
// ErrSegmentOutOfWindow and leave the buffer untouched.
func (r *Reassembler) Add(seq uint8, moreFollows bool, data []byte) (SegmentStatus, error) {
	if r.complete {
		return SegmentDuplicate, nil
	}
	r.lastSeen = time.Now()

	if seq != r.next {
		// Behind the expected sequence by at most a window means the peer
		// missed our ack; re-signal instead of failing the transaction.
		behind := r.next - seq
		if r.started && behind >= 1 && behind <= r.windowSize {
			return SegmentDuplicate, nil
		}
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrSegmentOutOfWindow, seq, r.next)
	}

	r.body = append(r.body, data...)
	r.started = true
	r.next++
	if !moreFollows {
		r.complete = true
		return SegmentComplete, nil
	}
	return SegmentAccepted, nil
}

// Complete reports whether the final segment has arrived.
func (r *Reassembler) Complete() bool {
	return r.complete
}

// Body returns the reassembled payload. Valid once Complete is true.
func (r *Reassembler) Body() []byte {
	return r.body
}

// LastReceived returns the sequence number of the last accepted segment,
// which is what a segment ack carries.
func (r *Reassembler) LastReceived() uint8 {
	return r.next - 1
}

// WindowSize returns the window granted to the peer.
func (r *Reassembler) WindowSize() uint8 {
	return r.windowSize
}

// Expired reports whether no segment has arrived within timeout.
func (r *Reassembler) Expired(timeout time.Duration) bool {
	return !r.complete && time.Since(r.lastSeen) > timeout
}
