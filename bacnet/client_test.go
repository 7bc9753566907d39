package bacnet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(opts...)
	require.NoError(t, err)
	return c
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "unknown", ConnectionState(42).String())
}

func TestNewClientDefaults(t *testing.T) {
	c := newTestClient(t)

	assert.Equal(t, StateDisconnected, c.State())
	require.NotNil(t, c.Metrics())
	assert.Equal(t, int64(0), c.Metrics().TransactionsStarted.Value())
}

func TestRequestRequiresConnection(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Request(ctx, testPeer(47808), ServiceReadProperty, nil)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.WhoIs(ctx)
	require.ErrorIs(t, err, ErrNotConnected)

	_, err = c.SubmitConfirmed(testPeer(47808), ServiceReadProperty, nil)
	require.ErrorIs(t, err, ErrNotConnected)

	err = c.SendUnconfirmed(ctx, nil, ServiceWhoIs, nil)
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestHandleIAmRecordsDevice(t *testing.T) {
	c := newTestClient(t)
	addr := testPeer(47808)

	iam := &IAmNotification{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, 1234),
		MaxAPDULength: 480,
		Segmentation:  SegmentationBoth,
		VendorID:      99,
	}
	payload, err := iam.Encode()
	require.NoError(t, err)

	c.handleIAm(payload, addr)

	dev, ok := c.GetDevice(1234)
	require.True(t, ok)
	assert.Equal(t, uint16(480), dev.MaxAPDULength)
	assert.Equal(t, SegmentationBoth, dev.Segmentation)
	assert.Equal(t, uint16(99), dev.VendorID)
	assert.Equal(t, addr, dev.Address)
	assert.Equal(t, int64(1), c.Metrics().DevicesDiscovered.Value())
	assert.Equal(t, int64(1), c.Metrics().IAmReceived.Value())

	// A repeat announcement updates the record without another discovery.
	c.handleIAm(payload, addr)
	assert.Equal(t, int64(1), c.Metrics().DevicesDiscovered.Value())
	assert.Equal(t, int64(2), c.Metrics().IAmReceived.Value())
}

func TestHandleIAmMalformed(t *testing.T) {
	c := newTestClient(t)

	c.handleIAm([]byte{0xFF}, testPeer(47808))

	assert.Equal(t, int64(0), c.Metrics().DevicesDiscovered.Value())
	_, ok := c.GetDevice(0)
	assert.False(t, ok)
}

func TestNegotiatedMaxAPDU(t *testing.T) {
	c := newTestClient(t)
	addr := testPeer(47808)

	assert.Equal(t, uint16(MaxAPDULength), c.negotiatedMaxAPDU(addr))

	c.devicesMu.Lock()
	c.devices[55] = &DeviceInfo{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, 55),
		Address:       addr,
		MaxAPDULength: 480,
	}
	c.devicesMu.Unlock()

	assert.Equal(t, uint16(480), c.negotiatedMaxAPDU(addr))
	assert.Equal(t, uint16(MaxAPDULength), c.negotiatedMaxAPDU(testPeer(47809)))
}

func TestCanSegmentTo(t *testing.T) {
	c := newTestClient(t)
	addr := testPeer(47808)

	// Unknown peers are assumed capable.
	assert.True(t, c.canSegmentTo(addr))

	register := func(seg Segmentation) {
		c.devicesMu.Lock()
		c.devices[55] = &DeviceInfo{
			ObjectID:     NewObjectIdentifier(ObjectTypeDevice, 55),
			Address:      addr,
			Segmentation: seg,
		}
		c.devicesMu.Unlock()
	}

	register(SegmentationNone)
	assert.False(t, c.canSegmentTo(addr))

	register(SegmentationTransmit)
	assert.False(t, c.canSegmentTo(addr))

	register(SegmentationReceive)
	assert.True(t, c.canSegmentTo(addr))

	register(SegmentationBoth)
	assert.True(t, c.canSegmentTo(addr))

	local := newTestClient(t, WithSegmentation(SegmentationReceive))
	assert.False(t, local.canSegmentTo(addr))
}

func TestHandleCOVNotificationDispatch(t *testing.T) {
	c := newTestClient(t)

	var (
		gotDevice uint32
		gotObject ObjectIdentifier
		gotValues []PropertyValue
		calls     int
	)
	c.covMu.Lock()
	c.covSubs[7] = func(deviceID uint32, objectID ObjectIdentifier, values []PropertyValue) {
		gotDevice = deviceID
		gotObject = objectID
		gotValues = values
		calls++
	}
	c.covMu.Unlock()

	notif := &COVNotification{
		ProcessID:     7,
		DeviceID:      NewObjectIdentifier(ObjectTypeDevice, 1234),
		ObjectID:      NewObjectIdentifier(ObjectTypeAnalogInput, 3),
		TimeRemaining: 300,
		Values: []PropertyValue{
			{Property: PropertyPresentValue, Value: float32(21.5)},
		},
	}
	payload, err := notif.Encode()
	require.NoError(t, err)

	c.handleCOVNotification(payload)

	require.Equal(t, 1, calls)
	assert.Equal(t, uint32(1234), gotDevice)
	assert.Equal(t, NewObjectIdentifier(ObjectTypeAnalogInput, 3), gotObject)
	require.Len(t, gotValues, 1)
	assert.Equal(t, PropertyPresentValue, gotValues[0].Property)
	assert.Equal(t, float32(21.5), gotValues[0].Value)
	assert.Equal(t, int64(1), c.Metrics().COVNotifications.Value())

	// Notifications for unknown process IDs are counted but not delivered.
	notif.ProcessID = 8
	payload, err = notif.Encode()
	require.NoError(t, err)
	c.handleCOVNotification(payload)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), c.Metrics().COVNotifications.Value())
}

func TestHandleAPDUIgnoresGarbage(t *testing.T) {
	c := newTestClient(t)

	c.handleAPDU(nil, testPeer(47808))
	c.handleAPDU([]byte{0x90, 0x00}, testPeer(47808))

	assert.Equal(t, int64(0), c.Metrics().ErrorsReceived.Value())
}
