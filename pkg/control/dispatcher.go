package control

import (
	"errors"
	"fmt"

	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
	"go.uber.org/zap"
)

// ErrStall is returned by Handle when the control endpoint must stall.
var ErrStall = requests.ErrStall

var ErrNoPendingRequest = errors.New("data phase without a pending SET_CUR")

// EntityInterface addresses the video control interface itself.
const EntityInterface = 0

// Handler answers the requests for one control. A SET_CUR response may be
// nil, in which case the data phase length is acknowledged with zeros.
type Handler interface {
	Request(code requests.RequestCode, length uint16) ([]byte, error)
	Data(b []byte) error
}

type key struct {
	entity   uint8
	selector uint8
}

// Dispatcher routes video control interface requests to the handler
// registered for (entity, selector) and maintains the request error code
// the host reads back after a stall.
type Dispatcher struct {
	logger    *zap.Logger
	handlers  map[key]Handler
	errorCode requests.ErrorCode
	pending   Handler
	pendingAt key
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[key]Handler),
	}
}

// Register installs h for the control. A later registration replaces it.
func (d *Dispatcher) Register(entity, selector uint8, h Handler) {
	d.handlers[key{entity, selector}] = h
}

// ErrorCode returns the error code latched by the most recent request.
func (d *Dispatcher) ErrorCode() requests.ErrorCode {
	return d.errorCode
}

// Latch records the outcome of a request handled outside the dispatcher,
// such as one addressed to a streaming interface.
func (d *Dispatcher) Latch(code requests.ErrorCode) {
	d.errorCode = code
}

func (d *Dispatcher) stall(code requests.ErrorCode) error {
	d.errorCode = code
	return ErrStall
}

// Handle answers the setup phase of a control request. The response is at
// most length bytes. Every rejected request returns ErrStall.
func (d *Dispatcher) Handle(entity, selector uint8, code requests.RequestCode, length uint16) ([]byte, error) {
	d.pending = nil

	if entity == EntityInterface {
		if descriptors.InterfaceControlSelector(selector) != descriptors.InterfaceControlSelectorRequestErrorCodeControl {
			return nil, d.stall(requests.ErrorCodeInvalidControl)
		}
		switch code {
		case requests.RequestCodeGetCur:
			return truncate([]byte{byte(d.errorCode)}, length), nil
		case requests.RequestCodeGetInfo:
			return truncate([]byte{requests.InfoSupportsGet}, length), nil
		}
		return nil, d.stall(requests.ErrorCodeInvalidRequest)
	}

	k := key{entity, selector}
	h, ok := d.handlers[k]
	if !ok {
		d.logger.Debug("request for unknown control",
			zap.Uint8("entity", entity),
			zap.Uint8("selector", selector),
			zap.Stringer("request", code))
		return nil, d.stall(requests.ErrorCodeInvalidControl)
	}

	resp, err := h.Request(code, length)
	if err != nil {
		d.logger.Debug("control request stalled",
			zap.Uint8("entity", entity),
			zap.Uint8("selector", selector),
			zap.Stringer("request", code),
			zap.Error(err))
		return nil, d.stall(requests.ErrorCodeInvalidRequest)
	}
	d.errorCode = requests.ErrorCodeNone

	if code == requests.RequestCodeSetCur {
		d.pending = h
		d.pendingAt = k
		if resp == nil {
			resp = make([]byte, length)
		}
	}
	return truncate(resp, length), nil
}

// Pending reports whether the last request was a SET_CUR awaiting its data.
func (d *Dispatcher) Pending() bool {
	return d.pending != nil
}

// Data delivers the data phase of the last SET_CUR.
func (d *Dispatcher) Data(b []byte) error {
	h, k := d.pending, d.pendingAt
	d.pending = nil
	if h == nil {
		return ErrNoPendingRequest
	}
	if err := h.Data(b); err != nil {
		return fmt.Errorf("entity %d selector %d: %w", k.entity, k.selector, err)
	}
	return nil
}

func truncate(b []byte, length uint16) []byte {
	if len(b) > int(length) {
		return b[:length]
	}
	return b
}
