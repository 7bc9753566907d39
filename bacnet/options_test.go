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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	assert.Equal(t, 3*time.Second, o.timeout)
	assert.Equal(t, 3, o.retries)
	assert.Equal(t, 2*time.Second, o.segmentTimeout)
	assert.Equal(t, uint16(MaxAPDULength), o.maxAPDULength)
	assert.Equal(t, SegmentationBoth, o.segmentation)
	assert.Equal(t, uint8(1), o.proposedWindowSize)
	assert.NotNil(t, o.logger)
}

func TestClientOptions(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithDeviceID(99),
		WithVendorID(7),
		WithLocalAddress("0.0.0.0:47808"),
		WithBBMD("10.0.0.1:47808", 5*time.Minute),
		WithTimeout(time.Second),
		WithRetries(1),
		WithSegmentTimeout(500 * time.Millisecond),
		WithMaxAPDULength(480),
		WithSegmentation(SegmentationNone),
		WithProposedWindowSize(8),
	} {
		opt(o)
	}

	assert.Equal(t, uint32(99), o.localDeviceID)
	assert.Equal(t, uint16(7), o.vendorID)
	assert.Equal(t, "0.0.0.0:47808", o.localAddress)
	assert.Equal(t, "10.0.0.1:47808", o.bbmdAddress)
	assert.Equal(t, 5*time.Minute, o.foreignDeviceTTL)
	assert.Equal(t, time.Second, o.timeout)
	assert.Equal(t, 1, o.retries)
	assert.Equal(t, 500*time.Millisecond, o.segmentTimeout)
	assert.Equal(t, uint16(480), o.maxAPDULength)
	assert.Equal(t, SegmentationNone, o.segmentation)
	assert.Equal(t, uint8(8), o.proposedWindowSize)
}

func TestWritePriorityBounds(t *testing.T) {
	var o WriteOptions
	WithPriority(8)(&o)
	assert.NotNil(t, o.Priority)
	assert.Equal(t, uint8(8), *o.Priority)

	o = WriteOptions{}
	WithPriority(0)(&o)
	assert.Nil(t, o.Priority, "out-of-range priority is ignored")

	o = WriteOptions{}
	WithPriority(17)(&o)
	assert.Nil(t, o.Priority)
}

func TestDiscoverOptions(t *testing.T) {
	o := defaultDiscoverOptions()
	assert.Equal(t, 5*time.Second, o.Timeout)

	WithDeviceRange(100, 200)(o)
	WithDiscoveryTimeout(time.Second)(o)
	assert.Equal(t, uint32(100), *o.LowLimit)
	assert.Equal(t, uint32(200), *o.HighLimit)
	assert.Equal(t, time.Second, o.Timeout)
}
