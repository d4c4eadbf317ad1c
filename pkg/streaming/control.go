package streaming

import (
	"errors"
	"math"

	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
	"github.com/kevmo314/go-uvc-gadget/pkg/requests"
)

var ErrNoPendingControl = errors.New("data phase without a pending probe or commit")

// Control holds the probe and commit state of one streaming interface.
// It is not safe for concurrent use; the event loop owns it.
type Control struct {
	n       *Negotiator
	probe   descriptors.VideoProbeCommitControl
	commit  descriptors.VideoProbeCommitControl
	pending descriptors.VideoStreamingControlSelector
}

func NewControl(n *Negotiator) *Control {
	c := &Control{n: n}
	c.Reset()
	return c
}

// Reset restores the default probe and commit state.
func (c *Control) Reset() {
	c.probe = c.n.Fill(1, 1, 0)
	c.commit = c.n.Fill(1, 1, 0)
	c.pending = descriptors.VideoStreamingControlSelectorUndefined
}

func (c *Control) Probe() descriptors.VideoProbeCommitControl  { return c.probe }
func (c *Control) Commit() descriptors.VideoProbeCommitControl { return c.commit }

// Selection resolves the committed control against the capability table.
func (c *Control) Selection() Selection {
	return c.n.Select(c.commit)
}

func marshal(ctrl descriptors.VideoProbeCommitControl) []byte {
	buf, _ := ctrl.MarshalBinary()
	return buf
}

// Request answers a streaming interface request. SET_CUR arms the data phase
// for the selector and returns the expected data length.
func (c *Control) Request(selector uint8, code requests.RequestCode, length uint16) ([]byte, error) {
	cs := descriptors.VideoStreamingControlSelector(selector)
	if cs != descriptors.VideoStreamingControlSelectorProbe && cs != descriptors.VideoStreamingControlSelectorCommit {
		return nil, requests.ErrStall
	}

	switch code {
	case requests.RequestCodeSetCur:
		c.pending = cs
		return make([]byte, descriptors.ProbeCommitSize11), nil
	case requests.RequestCodeGetCur:
		if cs == descriptors.VideoStreamingControlSelectorProbe {
			return marshal(c.probe), nil
		}
		return marshal(c.commit), nil
	case requests.RequestCodeGetMin, requests.RequestCodeGetDef:
		return marshal(c.n.Fill(1, 1, 0)), nil
	case requests.RequestCodeGetMax:
		return marshal(c.n.Fill(Max, Max, math.MaxUint32)), nil
	case requests.RequestCodeGetRes:
		return make([]byte, descriptors.ProbeCommitSize11), nil
	case requests.RequestCodeGetLen:
		return []byte{descriptors.ProbeCommitSize11, 0x00}, nil
	case requests.RequestCodeGetInfo:
		return []byte{requests.InfoSupportsGet | requests.InfoSupportsSet}, nil
	}
	return nil, requests.ErrStall
}

// Pending reports whether a SET_CUR is waiting for its data phase.
func (c *Control) Pending() bool {
	return c.pending != descriptors.VideoStreamingControlSelectorUndefined
}

// Data completes a SET_CUR. The host's values are clamped into the table and
// stored as the new probe or commit state. committed is true for a commit.
func (c *Control) Data(b []byte) (committed bool, err error) {
	cs := c.pending
	c.pending = descriptors.VideoStreamingControlSelectorUndefined

	var req descriptors.VideoProbeCommitControl
	if err := req.UnmarshalBinary(b); err != nil {
		return false, err
	}
	filled := c.n.Fill(int(req.FormatIndex), int(req.FrameIndex), req.FrameInterval)

	switch cs {
	case descriptors.VideoStreamingControlSelectorProbe:
		c.probe = filled
		return false, nil
	case descriptors.VideoStreamingControlSelectorCommit:
		c.commit = filled
		return true, nil
	}
	return false, ErrNoPendingControl
}
