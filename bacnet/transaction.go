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
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// TransactionState is the lifecycle state of a confirmed-service
// transaction.
type TransactionState int

const (
	StateIdle TransactionState = iota
	// StateAwaitingAck waits for the service reply to a fully transmitted
	// request.
	StateAwaitingAck
	// StateSegmentedAwaitingAck covers both segmented transfer phases:
	// sending request segments against segment acks, and reassembling a
	// segmented response.
	StateSegmentedAwaitingAck
	StateCompleted
	StateAborted
	StateFailed
)

func (s TransactionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateSegmentedAwaitingAck:
		return "segmented-awaiting-ack"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transaction tracks one outstanding confirmed request from submission to
// its final ack, error, reject, abort or timeout. All mutation happens
// under the transaction mutex; timer callbacks re-check state after
// acquiring it, so a concurrent abort always wins over a pending
// retransmit.
type Transaction struct {
	mu sync.Mutex

	invokeID uint8
	peer     *net.UDPAddr
	service  ConfirmedServiceChoice

	state TransactionState

	send func(*APDU) error

	// Unsegmented request kept for retransmission.
	request *APDU

	// Segmented request bookkeeping. firstUnacked and nextToSend are
	// segment indexes, not wire sequence numbers.
	segments     *Segmenter
	firstUnacked int
	nextToSend   int
	maxSegments  uint8
	maxAPDUCode  uint8

	// Segmented response reassembly.
	reassembler *Reassembler

	retriesLeft    int
	totalRetries   int
	timeout        time.Duration
	segmentTimeout time.Duration
	timer          *time.Timer

	result *APDU
	err    error
	done   chan struct{}

	started    time.Time
	finishedAt time.Time

	// onFinish runs once, on the transition into a terminal state.
	onFinish func()

	log     *slog.Logger
	metrics *Metrics
}

type transactionConfig struct {
	invokeID       uint8
	peer           *net.UDPAddr
	service        ConfirmedServiceChoice
	send           func(*APDU) error
	request        *APDU
	segments       *Segmenter
	maxSegments    uint8
	maxAPDUCode    uint8
	retries        int
	timeout        time.Duration
	segmentTimeout time.Duration
	onFinish       func()
	log            *slog.Logger
	metrics        *Metrics
}

func newTransaction(cfg transactionConfig) *Transaction {
	return &Transaction{
		invokeID:       cfg.invokeID,
		peer:           cfg.peer,
		service:        cfg.service,
		state:          StateIdle,
		send:           cfg.send,
		request:        cfg.request,
		segments:       cfg.segments,
		maxSegments:    cfg.maxSegments,
		maxAPDUCode:    cfg.maxAPDUCode,
		retriesLeft:    cfg.retries,
		totalRetries:   cfg.retries,
		timeout:        cfg.timeout,
		segmentTimeout: cfg.segmentTimeout,
		done:           make(chan struct{}),
		onFinish:       cfg.onFinish,
		log:            cfg.log,
		metrics:        cfg.metrics,
	}
}

// InvokeID returns the invoke ID assigned to the transaction.
func (t *Transaction) InvokeID() uint8 {
	return t.invokeID
}

// Peer returns the destination address.
func (t *Transaction) Peer() *net.UDPAddr {
	return t.peer
}

// State returns the current lifecycle state.
func (t *Transaction) State() TransactionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// start performs the first transmission and arms the reply timer.
func (t *Transaction) start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateIdle {
		return fmt.Errorf("bacnet: transaction %d already started", t.invokeID)
	}
	t.started = time.Now()

	var err error
	if t.segments != nil {
		t.state = StateSegmentedAwaitingAck
		err = t.sendWindowLocked()
	} else {
		t.state = StateAwaitingAck
		err = t.send(t.request)
	}
	if err != nil {
		t.finishLocked(StateFailed, nil, err)
		return err
	}
	t.armTimerLocked(t.timeout)
	return nil
}

// sendWindowLocked transmits request segments up to the window limit.
func (t *Transaction) sendWindowLocked() error {
	window := int(t.segments.WindowSize())
	for t.nextToSend < t.segments.Count() && t.nextToSend-t.firstUnacked < window {
		seg, err := t.segments.Segment(t.nextToSend)
		if err != nil {
			return err
		}
		apdu := &APDU{
			Type:                      PDUTypeConfirmedRequest,
			Segmented:                 true,
			MoreFollows:               seg.MoreFollows,
			SegmentedResponseAccepted: true,
			MaxSegments:               t.maxSegments,
			MaxAPDU:                   t.maxAPDUCode,
			InvokeID:                  t.invokeID,
			SequenceNum:               seg.Sequence,
			WindowSize:                t.segments.WindowSize(),
			Service:                   uint8(t.service),
			Data:                      seg.Data,
		}
		if err := t.send(apdu); err != nil {
			return err
		}
		if t.metrics != nil {
			t.metrics.SegmentsSent.Inc()
		}
		t.nextToSend++
	}
	return nil
}

func (t *Transaction) armTimerLocked(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, t.onTimeout)
}

// onTimeout fires from the timer goroutine. The state check under the lock
// makes a stale timer a no-op after completion or abort.
func (t *Transaction) onTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateAwaitingAck:
		t.retransmitLocked()

	case StateSegmentedAwaitingAck:
		if t.reassembler != nil {
			// Response reassembly stalled. A segment that arrived after
			// the timer was armed refreshes the deadline.
			if !t.reassembler.Expired(t.segmentTimeout) {
				t.armTimerLocked(t.segmentTimeout)
				return
			}
			if t.metrics != nil {
				t.metrics.SegmentTimeouts.Inc()
			}
			t.finishLocked(StateFailed, nil, fmt.Errorf("%w: invoke-id %d", ErrSegmentTimeout, t.invokeID))
			return
		}
		// Segment ack overdue; resend the open window.
		t.retransmitLocked()

	default:
		// Completed, aborted or failed while the timer was in flight.
	}
}

// retransmitLocked resends the request, or the open segment window, and
// rearms the reply timer. Exhausted retries fail the transaction.
func (t *Transaction) retransmitLocked() {
	if t.retriesLeft <= 0 {
		t.finishLocked(StateFailed, nil, fmt.Errorf("%w: invoke-id %d after %d transmissions",
			ErrTransactionTimeout, t.invokeID, t.transmissionsSoFar()))
		return
	}
	t.retriesLeft--
	if t.metrics != nil {
		t.metrics.Retransmissions.Inc()
	}
	if t.log != nil {
		t.log.Debug("retransmitting request",
			"invoke_id", t.invokeID,
			"peer", t.peer.String(),
			"retries_left", t.retriesLeft)
	}
	var err error
	if t.segments != nil {
		if t.state == StateAwaitingAck {
			// Every segment was acked but the reply never came; resend
			// the request from the first segment.
			t.firstUnacked, t.nextToSend = 0, 0
			t.state = StateSegmentedAwaitingAck
		} else {
			// Rewind to the oldest unacked segment and resend the window.
			t.nextToSend = t.firstUnacked
		}
		err = t.sendWindowLocked()
	} else {
		err = t.send(t.request)
	}
	if err != nil {
		t.finishLocked(StateFailed, nil, err)
		return
	}
	t.armTimerLocked(t.timeout)
}

func (t *Transaction) transmissionsSoFar() int {
	return t.totalRetries - t.retriesLeft + 1
}

// handleSimpleAck completes the transaction on a simple ack.
func (t *Transaction) handleSimpleAck(a *APDU) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateAwaitingAck {
		return
	}
	t.finishLocked(StateCompleted, a, nil)
}

// handleComplexAck processes an unsegmented or segmented complex ack. For
// segmented responses it returns the segment ack to transmit, or nil.
func (t *Transaction) handleComplexAck(a *APDU) *APDU {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !a.Segmented {
		if t.state != StateAwaitingAck {
			return nil
		}
		t.finishLocked(StateCompleted, a, nil)
		return nil
	}

	switch t.state {
	case StateAwaitingAck:
		// First segment of a segmented response.
		if a.SequenceNum != 0 {
			return nil
		}
		t.reassembler = NewReassembler(a.WindowSize)
		t.state = StateSegmentedAwaitingAck
	case StateSegmentedAwaitingAck:
		if t.reassembler == nil {
			// Still transmitting request segments; no response is due yet.
			return nil
		}
	default:
		return nil
	}

	status, err := t.reassembler.Add(a.SequenceNum, a.MoreFollows, a.Data)
	if err != nil {
		// Out of window: negative ack pointing at the last good segment.
		return &APDU{
			Type:        PDUTypeSegmentAck,
			NegativeAck: true,
			InvokeID:    t.invokeID,
			SequenceNum: t.reassembler.LastReceived(),
			WindowSize:  t.reassembler.WindowSize(),
		}
	}
	if t.metrics != nil {
		t.metrics.SegmentsReceived.Inc()
		if status == SegmentDuplicate {
			t.metrics.DuplicateSegments.Inc()
		}
	}

	ack := &APDU{
		Type:        PDUTypeSegmentAck,
		InvokeID:    t.invokeID,
		SequenceNum: a.SequenceNum,
		WindowSize:  t.reassembler.WindowSize(),
	}
	if status == SegmentDuplicate {
		ack.SequenceNum = t.reassembler.LastReceived()
	}

	if status == SegmentComplete {
		final := &APDU{
			Type:     PDUTypeComplexAck,
			InvokeID: t.invokeID,
			Service:  a.Service,
			Data:     t.reassembler.Body(),
		}
		t.finishLocked(StateCompleted, final, nil)
		return ack
	}
	t.armTimerLocked(t.segmentTimeout)
	return ack
}

// handleSegmentAck advances segmented request transmission.
func (t *Transaction) handleSegmentAck(a *APDU) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateSegmentedAwaitingAck || t.segments == nil || t.reassembler != nil {
		return
	}

	for i := t.firstUnacked; i < t.nextToSend; i++ {
		if uint8(i%256) == a.SequenceNum {
			t.firstUnacked = i + 1
			break
		}
	}
	if a.NegativeAck {
		t.nextToSend = t.firstUnacked
	}

	if t.firstUnacked >= t.segments.Count() {
		// All segments delivered; the reply timer now guards the final
		// service response.
		t.state = StateAwaitingAck
		t.armTimerLocked(t.timeout)
		return
	}
	if err := t.sendWindowLocked(); err != nil {
		t.finishLocked(StateFailed, nil, err)
		return
	}
	t.armTimerLocked(t.timeout)
}

// handleError fails the transaction with the peer's error class and code.
func (t *Transaction) handleError(class ErrorClass, code ErrorCode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	t.finishLocked(StateFailed, nil, NewBACnetError(class, code))
}

// handleReject fails the transaction with the peer's reject reason.
func (t *Transaction) handleReject(reason RejectReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	t.finishLocked(StateFailed, nil, &RejectError{InvokeID: t.invokeID, Reason: reason})
}

// handleAbort terminates the transaction on a peer abort.
func (t *Transaction) handleAbort(reason AbortReason, server bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	t.finishLocked(StateAborted, nil, &AbortError{InvokeID: t.invokeID, Server: server, Reason: reason})
}

// Abort terminates the transaction locally and notifies the peer. It is
// authoritative: any retransmit timer that fires afterwards observes the
// terminal state and does nothing.
func (t *Transaction) Abort(reason AbortReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminalLocked() {
		return
	}
	abort := &APDU{
		Type:     PDUTypeAbort,
		InvokeID: t.invokeID,
		Service:  uint8(reason),
	}
	if err := t.send(abort); err != nil && t.log != nil {
		t.log.Debug("abort transmission failed", "invoke_id", t.invokeID, "error", err)
	}
	t.finishLocked(StateAborted, nil, &AbortError{InvokeID: t.invokeID, Reason: reason})
}

func (t *Transaction) terminalLocked() bool {
	switch t.state {
	case StateCompleted, StateAborted, StateFailed:
		return true
	}
	return false
}

func (t *Transaction) finishLocked(state TransactionState, result *APDU, err error) {
	if t.terminalLocked() {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.state = state
	t.result = result
	t.err = err
	t.finishedAt = time.Now()
	if t.metrics != nil {
		t.metrics.ActiveTransactions.Dec()
		t.metrics.TransactionLatency.Record(time.Since(t.started))
		switch state {
		case StateCompleted:
			t.metrics.TransactionsCompleted.Inc()
		case StateAborted:
			t.metrics.TransactionsAborted.Inc()
		case StateFailed:
			t.metrics.TransactionsFailed.Inc()
		}
	}
	close(t.done)
	if t.onFinish != nil {
		t.onFinish()
	}
}

// Wait blocks until the transaction reaches a terminal state or the
// context is cancelled. Cancellation aborts the transaction.
func (t *Transaction) Wait(ctx context.Context) (*APDU, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		t.Abort(AbortReasonPreemptedByHigherPriorityTask)
		<-t.done
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.err != nil {
			return nil, fmt.Errorf("%w: %w", ctx.Err(), t.err)
		}
		return t.result, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Poll reports whether the transaction has finished and, if so, its
// outcome.
func (t *Transaction) Poll() (bool, *APDU, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return true, t.result, t.err
	default:
		return false, nil, nil
	}
}

// finished reports terminal transactions idle for longer than maxIdle,
// used by the registry sweep.
func (t *Transaction) finishedBefore(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminalLocked() && t.finishedAt.Before(cutoff)
}
