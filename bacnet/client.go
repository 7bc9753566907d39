package bacnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeo-scada/bacnet-stack/bacnet/internal/transport"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// COVHandler is called when a COV notification is received
type COVHandler func(deviceID uint32, objectID ObjectIdentifier, values []PropertyValue)

// RequestHandler answers inbound confirmed requests. Returning a nil
// payload produces a simple ack; a non-nil payload produces a complex ack.
// Returning a *BACnetError produces an error PDU with its class and code.
type RequestHandler func(peer *net.UDPAddr, service ConfirmedServiceChoice, data []byte) ([]byte, error)

// Client is a BACnet/IP client
type Client struct {
	opts      *clientOptions
	transport *transport.UDPTransport

	state atomic.Int32

	registry *InvokeRegistry

	// Discovered devices
	devicesMu sync.RWMutex
	devices   map[uint32]*DeviceInfo

	// COV subscriptions
	covMu   sync.RWMutex
	covSubs map[uint32]COVHandler

	// Inbound confirmed request handling
	handlerMu sync.RWMutex
	handler   RequestHandler

	// Metrics
	metrics *Metrics

	// Logger
	logger *slog.Logger

	// Receiver goroutine
	receiverCtx    context.Context
	receiverCancel context.CancelFunc
	receiverDone   chan struct{}
	reaperDone     chan struct{}
}

// NewClient creates a new BACnet client
func NewClient(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	c := &Client{
		opts:     options,
		registry: NewInvokeRegistry(),
		devices:  make(map[uint32]*DeviceInfo),
		covSubs:  make(map[uint32]COVHandler),
		metrics:  NewMetrics(),
		logger:   options.logger,
	}

	c.transport = transport.NewUDPTransport(options.localAddress)
	c.transport.SetReadTimeout(options.timeout)
	c.transport.SetWriteTimeout(options.timeout)

	return c, nil
}

// Connect opens the BACnet client connection
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if err := c.transport.Open(ctx); err != nil {
		c.state.Store(int32(StateDisconnected))
		return fmt.Errorf("open transport: %w", err)
	}

	c.receiverCtx, c.receiverCancel = context.WithCancel(context.Background())
	c.receiverDone = make(chan struct{})
	c.reaperDone = make(chan struct{})
	go c.receiver()
	go c.reaper()

	c.state.Store(int32(StateConnected))

	c.logger.Info("connected",
		slog.String("local_addr", c.transport.LocalAddr().String()),
	)

	// Register as foreign device if BBMD is configured
	if c.opts.bbmdAddress != "" {
		if err := c.registerForeignDevice(ctx); err != nil {
			c.logger.Warn("failed to register as foreign device",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// Close closes the BACnet client connection. Outstanding transactions are
// aborted.
func (c *Client) Close() error {
	if c.state.Load() == int32(StateDisconnected) {
		return nil
	}

	c.state.Store(int32(StateDisconnected))

	if c.receiverCancel != nil {
		c.receiverCancel()
		<-c.receiverDone
		<-c.reaperDone
	}

	for _, tx := range c.registry.All() {
		tx.Abort(AbortReasonOther)
		c.registry.Release(tx.Peer(), tx.InvokeID())
	}

	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected")
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// SetRequestHandler installs the handler for inbound confirmed requests.
// Without a handler every inbound confirmed request is rejected with
// unrecognized-service.
func (c *Client) SetRequestHandler(h RequestHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

// sendAPDU encodes and transmits one APDU. Used both on the submission
// path and from transaction timer callbacks.
func (c *Client) sendAPDU(addr *net.UDPAddr, apdu *APDU) error {
	data, err := EncodeAPDU(apdu)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
	defer cancel()
	expectingReply := apdu.Type == PDUTypeConfirmedRequest
	if err := c.transport.Send(ctx, addr, data, expectingReply); err != nil {
		return fmt.Errorf("send APDU: %w", err)
	}
	c.metrics.BytesSent.Add(int64(len(data)))
	return nil
}

// receiver handles incoming packets
func (c *Client) receiver() {
	defer close(c.receiverDone)

	for {
		select {
		case <-c.receiverCtx.Done():
			return
		default:
		}

		data, addr, err := c.transport.ReceiveWithTimeout(100 * time.Millisecond)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if c.transport.IsClosed() {
				return
			}
			c.logger.Debug("receive error", slog.String("error", err.Error()))
			continue
		}

		c.metrics.BytesReceived.Add(int64(len(data)))
		c.metrics.RecordActivity()

		c.handleAPDU(data, addr)
	}
}

// reaper periodically drops abandoned terminal transactions.
func (c *Client) reaper() {
	defer close(c.reaperDone)
	ticker := time.NewTicker(c.opts.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.receiverCtx.Done():
			return
		case <-ticker.C:
			if n := c.registry.ReapStale(c.opts.reapInterval); n > 0 {
				c.logger.Debug("reaped stale transactions", slog.Int("count", n))
			}
		}
	}
}

// handleAPDU dispatches one received APDU
func (c *Client) handleAPDU(data []byte, addr *net.UDPAddr) {
	apdu, err := DecodeAPDU(data)
	if err != nil {
		c.logger.Debug("invalid APDU",
			slog.String("peer", addr.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	switch apdu.Type {
	case PDUTypeConfirmedRequest:
		c.handleConfirmedRequest(apdu, addr)

	case PDUTypeUnconfirmedRequest:
		c.handleUnconfirmedRequest(apdu, addr)

	case PDUTypeSimpleAck:
		if tx, ok := c.registry.Lookup(addr, apdu.InvokeID); ok {
			tx.handleSimpleAck(apdu)
		}

	case PDUTypeComplexAck:
		tx, ok := c.registry.Lookup(addr, apdu.InvokeID)
		if !ok {
			return
		}
		if ack := tx.handleComplexAck(apdu); ack != nil {
			if err := c.sendAPDU(addr, ack); err != nil {
				c.logger.Debug("segment ack failed", slog.String("error", err.Error()))
			}
		}

	case PDUTypeSegmentAck:
		if tx, ok := c.registry.Lookup(addr, apdu.InvokeID); ok {
			tx.handleSegmentAck(apdu)
		}

	case PDUTypeError:
		c.metrics.ErrorsReceived.Inc()
		tx, ok := c.registry.Lookup(addr, apdu.InvokeID)
		if !ok {
			return
		}
		class, code, err := DecodeErrorPayload(apdu.Data)
		if err != nil {
			class, code = ErrorClassServices, ErrorCodeOther
		}
		tx.handleError(class, code)

	case PDUTypeReject:
		c.metrics.RejectsReceived.Inc()
		if tx, ok := c.registry.Lookup(addr, apdu.InvokeID); ok {
			tx.handleReject(RejectReason(apdu.Service))
		}

	case PDUTypeAbort:
		c.metrics.AbortsReceived.Inc()
		if tx, ok := c.registry.Lookup(addr, apdu.InvokeID); ok {
			tx.handleAbort(AbortReason(apdu.Service), apdu.Server)
		}
	}
}

// handleConfirmedRequest answers an inbound confirmed request
func (c *Client) handleConfirmedRequest(apdu *APDU, addr *net.UDPAddr) {
	if apdu.Segmented {
		abort := &APDU{
			Type:     PDUTypeAbort,
			Server:   true,
			InvokeID: apdu.InvokeID,
			Service:  uint8(AbortReasonSegmentationNotSupported),
		}
		if err := c.sendAPDU(addr, abort); err != nil {
			c.logger.Debug("abort failed", slog.String("error", err.Error()))
		}
		return
	}

	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()

	service := ConfirmedServiceChoice(apdu.Service)
	if handler == nil {
		c.sendReject(addr, apdu.InvokeID, RejectReasonUnrecognizedService)
		return
	}

	payload, err := handler(addr, service, apdu.Data)
	if err != nil {
		var bacErr *BACnetError
		if errors.As(err, &bacErr) {
			resp := &APDU{
				Type:     PDUTypeError,
				InvokeID: apdu.InvokeID,
				Service:  apdu.Service,
				Data:     EncodeErrorPayload(bacErr.Class, bacErr.Code),
			}
			if err := c.sendAPDU(addr, resp); err != nil {
				c.logger.Debug("error response failed", slog.String("error", err.Error()))
			}
			return
		}
		c.sendReject(addr, apdu.InvokeID, RejectReasonOther)
		return
	}

	resp := &APDU{InvokeID: apdu.InvokeID, Service: apdu.Service}
	if payload == nil {
		resp.Type = PDUTypeSimpleAck
	} else {
		resp.Type = PDUTypeComplexAck
		resp.Data = payload
	}
	if err := c.sendAPDU(addr, resp); err != nil {
		c.logger.Debug("response failed", slog.String("error", err.Error()))
	}
}

func (c *Client) sendReject(addr *net.UDPAddr, invokeID uint8, reason RejectReason) {
	reject := &APDU{
		Type:     PDUTypeReject,
		InvokeID: invokeID,
		Service:  uint8(reason),
	}
	if err := c.sendAPDU(addr, reject); err != nil {
		c.logger.Debug("reject failed", slog.String("error", err.Error()))
		return
	}
	c.metrics.RejectsSent.Inc()
}

// handleUnconfirmedRequest handles unconfirmed service requests
func (c *Client) handleUnconfirmedRequest(apdu *APDU, addr *net.UDPAddr) {
	switch UnconfirmedServiceChoice(apdu.Service) {
	case ServiceIAm:
		c.handleIAm(apdu.Data, addr)

	case ServiceWhoIs:
		c.handleWhoIs(apdu.Data)

	case ServiceUnconfirmedCOVNotification:
		c.handleCOVNotification(apdu.Data)
	}
}

// handleIAm records a responding device
func (c *Client) handleIAm(data []byte, addr *net.UDPAddr) {
	c.metrics.IAmReceived.Inc()

	iam, err := DecodeIAmNotification(data)
	if err != nil {
		c.logger.Debug("invalid i-am", slog.String("error", err.Error()))
		return
	}

	device := &DeviceInfo{
		ObjectID:      iam.ObjectID,
		Address:       addr,
		MaxAPDULength: iam.MaxAPDULength,
		Segmentation:  iam.Segmentation,
		VendorID:      iam.VendorID,
	}

	c.devicesMu.Lock()
	_, exists := c.devices[iam.ObjectID.Instance]
	c.devices[iam.ObjectID.Instance] = device
	c.devicesMu.Unlock()

	if !exists {
		c.metrics.DevicesDiscovered.Inc()
	}

	c.logger.Debug("device discovered",
		slog.Uint64("device_id", uint64(iam.ObjectID.Instance)),
		slog.String("address", addr.String()),
		slog.Uint64("vendor_id", uint64(iam.VendorID)),
	)
}

// handleWhoIs answers a Who-Is with I-Am when this client has a device
// identity and falls inside the requested range.
func (c *Client) handleWhoIs(data []byte) {
	if c.opts.localDeviceID == 0xFFFFFFFF {
		return
	}
	req, err := DecodeWhoIsRequest(data)
	if err != nil {
		return
	}
	id := c.opts.localDeviceID
	if req.Low != nil && (id < *req.Low || id > *req.High) {
		return
	}
	if err := c.sendIAm(); err != nil {
		c.logger.Debug("i-am failed", slog.String("error", err.Error()))
	}
}

func (c *Client) sendIAm() error {
	iam := &IAmNotification{
		ObjectID:      NewObjectIdentifier(ObjectTypeDevice, c.opts.localDeviceID),
		MaxAPDULength: c.opts.maxAPDULength,
		Segmentation:  c.opts.segmentation,
		VendorID:      c.opts.vendorID,
	}
	payload, err := iam.Encode()
	if err != nil {
		return err
	}
	apdu := &APDU{
		Type:    PDUTypeUnconfirmedRequest,
		Service: uint8(ServiceIAm),
		Data:    payload,
	}
	data, err := EncodeAPDU(apdu)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.timeout)
	defer cancel()
	if err := c.transport.Broadcast(ctx, DefaultPort, data); err != nil {
		return err
	}
	c.metrics.BytesSent.Add(int64(len(data)))
	return nil
}

// handleCOVNotification dispatches a COV notification to its subscriber
func (c *Client) handleCOVNotification(data []byte) {
	c.metrics.COVNotifications.Inc()

	notif, err := DecodeCOVNotification(data)
	if err != nil {
		c.logger.Debug("invalid COV notification", slog.String("error", err.Error()))
		return
	}

	c.covMu.RLock()
	handler, ok := c.covSubs[notif.ProcessID]
	c.covMu.RUnlock()
	if !ok {
		return
	}
	handler(notif.DeviceID.Instance, notif.ObjectID, notif.Values)
}

// SubmitConfirmed starts a confirmed request toward a peer and returns
// its transaction. The caller observes the outcome through Wait or Poll;
// the invoke ID is recycled once the transaction reaches a terminal
// state. Requests larger than the peer's APDU capacity are segmented
// when both sides support it.
func (c *Client) SubmitConfirmed(addr *net.UDPAddr, service ConfirmedServiceChoice, data []byte) (*Transaction, error) {
	if c.State() != StateConnected {
		return nil, ErrNotConnected
	}

	maxAPDU := c.negotiatedMaxAPDU(addr)
	maxAPDUCode := CodeForMaxAPDU(maxAPDU)
	maxSegsCode := MaxSegmentsCode(64)

	invokeID, err := c.registry.Allocate(addr)
	if err != nil {
		return nil, err
	}

	cfg := transactionConfig{
		invokeID:       invokeID,
		peer:           addr,
		service:        service,
		maxSegments:    maxSegsCode,
		maxAPDUCode:    maxAPDUCode,
		retries:        c.opts.retries,
		timeout:        c.opts.timeout,
		segmentTimeout: c.opts.segmentTimeout,
		log:            c.logger,
		metrics:        c.metrics,
	}
	cfg.send = func(a *APDU) error {
		return c.sendAPDU(addr, a)
	}
	cfg.onFinish = func() {
		c.registry.Release(addr, invokeID)
	}

	// Unsegmented header is 4 octets, segmented is 6.
	if len(data)+4 <= int(maxAPDU) {
		cfg.request = &APDU{
			Type:                      PDUTypeConfirmedRequest,
			SegmentedResponseAccepted: c.opts.segmentation.AcceptsSegmentedResponse(),
			MaxSegments:               maxSegsCode,
			MaxAPDU:                   maxAPDUCode,
			InvokeID:                  invokeID,
			Service:                   uint8(service),
			Data:                      data,
		}
	} else {
		if !c.canSegmentTo(addr) {
			c.registry.Release(addr, invokeID)
			return nil, fmt.Errorf("%w: %d octets, capacity %d", ErrApduTooLarge, len(data), maxAPDU)
		}
		segments, err := NewSegmenter(data, int(maxAPDU)-6, c.opts.proposedWindowSize)
		if err != nil {
			c.registry.Release(addr, invokeID)
			return nil, err
		}
		cfg.segments = segments
	}

	tx := newTransaction(cfg)
	c.registry.Register(tx)
	c.metrics.TransactionsStarted.Inc()
	c.metrics.ActiveTransactions.Inc()

	if err := tx.start(); err != nil {
		return nil, err
	}
	return tx, nil
}

// Request sends a confirmed request to a peer and waits for its final
// outcome.
func (c *Client) Request(ctx context.Context, addr *net.UDPAddr, service ConfirmedServiceChoice, data []byte) (*APDU, error) {
	tx, err := c.SubmitConfirmed(addr, service, data)
	if err != nil {
		return nil, err
	}
	return tx.Wait(ctx)
}

// negotiatedMaxAPDU returns the APDU capacity toward a peer, capped by the
// device's advertised limit when it is known.
func (c *Client) negotiatedMaxAPDU(addr *net.UDPAddr) uint16 {
	max := c.opts.maxAPDULength
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	for _, dev := range c.devices {
		if dev.Address.IP.Equal(addr.IP) && dev.Address.Port == addr.Port {
			if dev.MaxAPDULength > 0 && dev.MaxAPDULength < max {
				max = dev.MaxAPDULength
			}
			break
		}
	}
	return max
}

// canSegmentTo reports whether segmented transmission toward the peer is
// allowed by both capability advertisements.
func (c *Client) canSegmentTo(addr *net.UDPAddr) bool {
	if !c.opts.segmentation.TransmitsSegmented() {
		return false
	}
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	for _, dev := range c.devices {
		if dev.Address.IP.Equal(addr.IP) && dev.Address.Port == addr.Port {
			return dev.Segmentation == SegmentationBoth || dev.Segmentation == SegmentationReceive
		}
	}
	// Unknown peers get the benefit of the doubt; they abort if they
	// cannot reassemble.
	return true
}

// SendUnconfirmed transmits an unconfirmed request. A nil address
// broadcasts on the local network.
func (c *Client) SendUnconfirmed(ctx context.Context, addr *net.UDPAddr, service UnconfirmedServiceChoice, data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	apdu := &APDU{
		Type:    PDUTypeUnconfirmedRequest,
		Service: uint8(service),
		Data:    data,
	}
	packet, err := EncodeAPDU(apdu)
	if err != nil {
		return err
	}

	if addr == nil {
		err = c.transport.Broadcast(ctx, DefaultPort, packet)
	} else {
		err = c.transport.Send(ctx, addr, packet, false)
	}
	if err != nil {
		return fmt.Errorf("send unconfirmed request: %w", err)
	}

	c.metrics.BytesSent.Add(int64(len(packet)))
	return nil
}

// registerForeignDevice registers as a foreign device with the BBMD
func (c *Client) registerForeignDevice(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", c.opts.bbmdAddress)
	if err != nil {
		return fmt.Errorf("resolve BBMD address: %w", err)
	}

	if err := c.transport.RegisterForeignDevice(ctx, addr, c.opts.foreignDeviceTTL); err != nil {
		return fmt.Errorf("send registration: %w", err)
	}

	c.logger.Info("registered as foreign device",
		slog.String("bbmd", addr.String()),
		slog.Duration("ttl", c.opts.foreignDeviceTTL),
	)

	return nil
}

// WhoIs sends a Who-Is request to discover devices
func (c *Client) WhoIs(ctx context.Context, opts ...DiscoverOption) ([]*DeviceInfo, error) {
	options := defaultDiscoverOptions()
	for _, opt := range opts {
		opt(options)
	}

	req := &WhoIsRequest{Low: options.LowLimit, High: options.HighLimit}
	data, err := req.Encode()
	if err != nil {
		return nil, err
	}

	if err := c.SendUnconfirmed(ctx, nil, ServiceWhoIs, data); err != nil {
		return nil, err
	}

	c.metrics.WhoIsSent.Inc()

	// I-Am responses arrive on the receiver goroutine; give them the
	// discovery window.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(options.Timeout):
	}

	c.devicesMu.RLock()
	devices := make([]*DeviceInfo, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.devicesMu.RUnlock()

	return devices, nil
}

// GetDevice returns information about a discovered device
func (c *Client) GetDevice(deviceID uint32) (*DeviceInfo, bool) {
	c.devicesMu.RLock()
	defer c.devicesMu.RUnlock()
	dev, ok := c.devices[deviceID]
	return dev, ok
}

// resolveDevice resolves a device ID to its address
func (c *Client) resolveDevice(ctx context.Context, deviceID uint32) (*net.UDPAddr, error) {
	c.devicesMu.RLock()
	dev, ok := c.devices[deviceID]
	c.devicesMu.RUnlock()

	if !ok {
		_, err := c.WhoIs(ctx, WithDeviceRange(deviceID, deviceID), WithDiscoveryTimeout(2*time.Second))
		if err != nil {
			return nil, err
		}

		c.devicesMu.RLock()
		dev, ok = c.devices[deviceID]
		c.devicesMu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("bacnet: device %d not found", deviceID)
		}
	}

	return dev.Address, nil
}

// ReadProperty reads a property from a BACnet object
func (c *Client) ReadProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, opts ...ReadOption) (interface{}, error) {
	options := &ReadOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	req := &ReadPropertyRequest{
		ObjectID:   objectID,
		Property:   propertyID,
		ArrayIndex: options.ArrayIndex,
	}
	data, err := req.Encode()
	if err != nil {
		return nil, err
	}

	resp, err := c.Request(ctx, addr, ServiceReadProperty, data)
	if err != nil {
		return nil, err
	}

	ack, err := DecodeReadPropertyACK(resp.Data)
	if err != nil {
		return nil, err
	}
	return ack.Value, nil
}

// WriteProperty writes a property to a BACnet object
func (c *Client) WriteProperty(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, propertyID PropertyIdentifier, value interface{}, opts ...WriteOption) error {
	options := &WriteOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	req := &WritePropertyRequest{
		ObjectID:   objectID,
		Property:   propertyID,
		ArrayIndex: options.ArrayIndex,
		Value:      value,
		Priority:   options.Priority,
	}
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}

	_, err = c.Request(ctx, addr, ServiceWriteProperty, data)
	return err
}

// SubscribeCOV subscribes to COV (Change of Value) notifications
func (c *Client) SubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, handler COVHandler, opts ...SubscribeOption) (uint32, error) {
	options := &SubscribeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return 0, err
	}

	subID := c.nextSubscriptionID()

	req := &SubscribeCOVRequest{
		ProcessID:      subID,
		ObjectID:       objectID,
		IssueConfirmed: &options.Confirmed,
		Lifetime:       options.Lifetime,
	}
	data, err := req.Encode()
	if err != nil {
		return 0, err
	}

	if _, err := c.Request(ctx, addr, ServiceSubscribeCOV, data); err != nil {
		return 0, err
	}

	c.covMu.Lock()
	c.covSubs[subID] = handler
	c.covMu.Unlock()

	return subID, nil
}

var subscriptionCounter atomic.Uint32

func (c *Client) nextSubscriptionID() uint32 {
	return subscriptionCounter.Add(1)
}

// UnsubscribeCOV unsubscribes from COV notifications
func (c *Client) UnsubscribeCOV(ctx context.Context, deviceID uint32, objectID ObjectIdentifier, subID uint32) error {
	addr, err := c.resolveDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	// Omitting confirmed and lifetime cancels the subscription.
	req := &SubscribeCOVRequest{
		ProcessID: subID,
		ObjectID:  objectID,
	}
	data, err := req.Encode()
	if err != nil {
		return err
	}

	if _, err := c.Request(ctx, addr, ServiceSubscribeCOV, data); err != nil {
		return err
	}

	c.covMu.Lock()
	delete(c.covSubs, subID)
	c.covMu.Unlock()

	return nil
}

// GetObjectList retrieves the list of objects from a device
func (c *Client) GetObjectList(ctx context.Context, deviceID uint32) ([]ObjectIdentifier, error) {
	lengthVal, err := c.ReadProperty(ctx, deviceID,
		NewObjectIdentifier(ObjectTypeDevice, deviceID),
		PropertyObjectList,
		WithArrayIndex(0),
	)
	if err != nil {
		return nil, err
	}

	length, ok := lengthVal.(uint64)
	if !ok {
		return nil, fmt.Errorf("unexpected object-list length type: %T", lengthVal)
	}

	objects := make([]ObjectIdentifier, 0, length)
	for i := uint64(1); i <= length; i++ {
		val, err := c.ReadProperty(ctx, deviceID,
			NewObjectIdentifier(ObjectTypeDevice, deviceID),
			PropertyObjectList,
			WithArrayIndex(uint32(i)),
		)
		if err != nil {
			continue
		}

		if oid, ok := val.(ObjectIdentifier); ok {
			objects = append(objects, oid)
		}
	}

	return objects, nil
}
