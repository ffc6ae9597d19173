// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"code.hybscloud.com/pcapflow/internal/errs"
)

// Header is the per-packet metadata a Driver hands back from Next, mirroring
// the libpcap pcap_pkthdr this contract is modeled on (spec §6).
type Header struct {
	TimestampUS int64
	WireLen     int
	CapLen      int
}

// DriverStats mirrors libpcap's pcap_stats (spec §6): ps_drop counts
// packets dropped because the kernel ring buffer filled, ps_ifdrop counts
// packets the interface itself dropped.
type DriverStats struct {
	Drop   uint64
	IfDrop uint64
}

// Driver is the libpcap-shaped capture contract from spec §6. The core
// treats it purely as an interface — no concrete libpcap/cgo binding is
// shipped (see DESIGN.md); PipeDriver below is the only implementation,
// and any caller embedding this module as a library supplies their own for
// a real NIC.
type Driver interface {
	// Next returns the next captured frame, or ErrTimeout if the read
	// timeout configured at Open elapsed with nothing captured, or
	// ErrCaptureFatal-wrapping error if the device can no longer be read.
	Next() (Header, []byte, error)
	// Stats returns the driver's packet-drop counters.
	Stats() (DriverStats, error)
	// DLT returns the link-layer type id packets from this driver carry.
	DLT() uint16
	// Close releases the underlying capture handle.
	Close() error
}

// ErrTimeout is returned by Driver.Next when its configured read timeout
// elapses with no packet available — spec §6's "timeout" Next outcome.
// This is a control-flow signal, not errs.ErrCaptureTransient.
var ErrTimeout = errors.New("capture: read timeout")

// PipeDriver is the only concrete Driver this module ships (see
// DESIGN.md): it reads a stream of length-prefixed synthetic frames off an
// io.Reader, standing in for a live NIC in tests and for any caller wiring
// in a replay file (cmd/pcapflowd). The mirror receiver does not use it: it
// decodes whole blocks and pushes them straight into its sink.
//
// Wire shape per frame: 8-byte big-endian timestamp (microseconds),
// 4-byte big-endian wire length, 4-byte big-endian captured length,
// followed by CapLen bytes of payload.
type PipeDriver struct {
	r       *bufio.Reader
	dlt     uint16
	closer  io.Closer
	timeout time.Duration
}

// NewPipeDriver wraps r. If r also implements io.Closer, Close forwards to
// it.
func NewPipeDriver(r io.Reader, dlt uint16) *PipeDriver {
	d := &PipeDriver{r: bufio.NewReader(r), dlt: dlt}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}
	return d
}

// WritePipeFrame writes one frame in PipeDriver's wire shape to w — the
// inverse of PipeDriver.Next, used by tests and by anything feeding a
// PipeDriver from synthetic traffic.
func WritePipeFrame(w io.Writer, hdr Header, payload []byte) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(hdr.TimestampUS))
	binary.BigEndian.PutUint32(buf[8:], uint32(hdr.WireLen))
	binary.BigEndian.PutUint32(buf[12:], uint32(len(payload)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func (d *PipeDriver) Next() (Header, []byte, error) {
	var hdrBuf [16]byte
	if _, err := io.ReadFull(d.r, hdrBuf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, nil, errs.ErrCaptureFatal
		}
		return Header{}, nil, errs.ErrCaptureTransient
	}
	hdr := Header{
		TimestampUS: int64(binary.BigEndian.Uint64(hdrBuf[0:])),
		WireLen:     int(binary.BigEndian.Uint32(hdrBuf[8:])),
		CapLen:      int(binary.BigEndian.Uint32(hdrBuf[12:])),
	}
	payload := make([]byte, hdr.CapLen)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return Header{}, nil, errs.ErrCaptureFatal
	}
	return hdr, payload, nil
}

func (d *PipeDriver) Stats() (DriverStats, error) { return DriverStats{}, nil }

func (d *PipeDriver) DLT() uint16 { return d.dlt }

func (d *PipeDriver) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
