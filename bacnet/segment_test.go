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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmenterSplit(t *testing.T) {
	body := make([]byte, 250)
	for i := range body {
		body[i] = byte(i)
	}

	s, err := NewSegmenter(body, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	var joined []byte
	for i := 0; i < s.Count(); i++ {
		seg, err := s.Segment(i)
		require.NoError(t, err)
		assert.Equal(t, uint8(i), seg.Sequence)
		assert.Equal(t, i < 2, seg.MoreFollows)
		joined = append(joined, seg.Data...)
	}
	assert.True(t, bytes.Equal(body, joined))

	_, err = s.Segment(3)
	assert.Error(t, err)
	_, err = s.Segment(-1)
	assert.Error(t, err)
}

func TestSegmenterEmptyBody(t *testing.T) {
	s, err := NewSegmenter(nil, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count())

	seg, err := s.Segment(0)
	require.NoError(t, err)
	assert.False(t, seg.MoreFollows)
	assert.Empty(t, seg.Data)
}

func TestSegmenterSequenceWraps(t *testing.T) {
	body := make([]byte, 300)
	s, err := NewSegmenter(body, 1, 16)
	require.NoError(t, err)
	require.Equal(t, 300, s.Count())

	seg, err := s.Segment(256)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), seg.Sequence)

	seg, err = s.Segment(299)
	require.NoError(t, err)
	assert.Equal(t, uint8(43), seg.Sequence)
}

func TestSegmenterInvalidSize(t *testing.T) {
	_, err := NewSegmenter(nil, 0, 1)
	assert.Error(t, err)
}

func TestReassemblerInOrder(t *testing.T) {
	r := NewReassembler(1)

	status, err := r.Add(0, true, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, SegmentAccepted, status)
	assert.False(t, r.Complete())
	assert.Equal(t, uint8(0), r.LastReceived())

	status, err = r.Add(1, true, []byte{3})
	require.NoError(t, err)
	assert.Equal(t, SegmentAccepted, status)

	status, err = r.Add(2, false, []byte{4, 5})
	require.NoError(t, err)
	assert.Equal(t, SegmentComplete, status)
	assert.True(t, r.Complete())
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, r.Body())
}

func TestReassemblerDuplicate(t *testing.T) {
	r := NewReassembler(2)

	_, err := r.Add(0, true, []byte{1})
	require.NoError(t, err)

	// The sender missed the ack and retransmitted.
	status, err := r.Add(0, true, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, SegmentDuplicate, status)
	assert.Equal(t, uint8(0), r.LastReceived())

	// The duplicate did not corrupt the buffer.
	status, err = r.Add(1, false, []byte{2})
	require.NoError(t, err)
	assert.Equal(t, SegmentComplete, status)
	assert.Equal(t, []byte{1, 2}, r.Body())
}

func TestReassemblerOutOfWindow(t *testing.T) {
	r := NewReassembler(1)

	// A gap ahead of the expected sequence is refused outright.
	_, err := r.Add(1, true, []byte{9})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegmentOutOfWindow)

	_, err = r.Add(0, true, []byte{1})
	require.NoError(t, err)

	_, err = r.Add(5, true, []byte{9})
	assert.ErrorIs(t, err, ErrSegmentOutOfWindow)

	// The refusal left the buffer intact.
	status, err := r.Add(1, false, []byte{2})
	require.NoError(t, err)
	assert.Equal(t, SegmentComplete, status)
	assert.Equal(t, []byte{1, 2}, r.Body())
}

func TestReassemblerAfterComplete(t *testing.T) {
	r := NewReassembler(1)
	_, err := r.Add(0, false, []byte{1})
	require.NoError(t, err)

	status, err := r.Add(0, false, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, SegmentDuplicate, status)
	assert.Equal(t, []byte{1}, r.Body())
}

func TestReassemblerExpiry(t *testing.T) {
	r := NewReassembler(1)
	assert.False(t, r.Expired(time.Hour))
	assert.True(t, r.Expired(0))

	_, err := r.Add(0, false, nil)
	require.NoError(t, err)
	assert.False(t, r.Expired(0), "complete reassembly never expires")
}

func TestSegmenterReassemblerRoundTrip(t *testing.T) {
	body := make([]byte, 1000)
	for i := range body {
		body[i] = byte(i * 7)
	}

	s, err := NewSegmenter(body, 64, 4)
	require.NoError(t, err)
	r := NewReassembler(s.WindowSize())

	for i := 0; i < s.Count(); i++ {
		seg, err := s.Segment(i)
		require.NoError(t, err)
		status, err := r.Add(seg.Sequence, seg.MoreFollows, seg.Data)
		require.NoError(t, err)
		if i == s.Count()-1 {
			assert.Equal(t, SegmentComplete, status)
		} else {
			assert.Equal(t, SegmentAccepted, status)
		}
	}
	assert.Equal(t, body, r.Body())
}
