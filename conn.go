package resolv

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// transport is the upstream protocol a serverConn speaks.
type transport string

const (
	transportUDP transport = "udp"
	transportTCP transport = "tcp"
)

// udpReadSize is the maximum size of one UDP response datagram (§4.5): it
// constitutes exactly one message.
const udpReadSize = 512

// tcpReadSize is the buffer size used per TCP Read call. The loop below
// drains every complete frame the buffer holds before waiting for more
// data, rather than assuming one frame per read - the REDESIGN FLAGS note
// in spec.md calls out exactly this as a correctness requirement once a
// frame can span more than one read.
const tcpReadSize = 4096

// serverConn is a per-upstream-URI connection: its socket, its read state,
// and the set of request ids currently outstanding on it. All fields are
// touched only by the owning Mux's run loop goroutine; the reader
// goroutine below only reads from raw and sends events, it never reads or
// writes the other fields.
type serverConn struct {
	uri       string
	transport transport
	raw       net.Conn

	pending map[uint16]struct{}
	// idleExpiry is the zero Time while pending is non-empty; it holds
	// the absolute teardown time once pending becomes empty (§4.5).
	idleExpiry time.Time

	metrics connMetrics
}

// canonicalURI builds the canonical "scheme://host:port" form (§6).
func canonicalURI(t transport, hostport string) string {
	return fmt.Sprintf("%s://%s", t, hostport)
}

// parseUpstreamURI splits a canonical upstream URI into its transport and
// host:port. Bare host:port (no scheme) defaults to UDP, matching how
// Options.Server is documented in §6.
func parseUpstreamURI(uri string) (transport, string, error) {
	switch {
	case strings.HasPrefix(uri, "udp://"):
		return transportUDP, strings.TrimPrefix(uri, "udp://"), nil
	case strings.HasPrefix(uri, "tcp://"):
		return transportTCP, strings.TrimPrefix(uri, "tcp://"), nil
	default:
		if _, _, err := net.SplitHostPort(uri); err != nil {
			return "", "", fmt.Errorf("invalid upstream %q: %w", uri, err)
		}
		return transportUDP, uri, nil
	}
}

// tcpFormOfURI returns the TCP-scheme form of a UDP upstream URI, used when
// re-issuing a truncated query (§4.6).
func tcpFormOfURI(uri string) string {
	if hostport, ok := strings.CutPrefix(uri, "udp://"); ok {
		return canonicalURI(transportTCP, hostport)
	}
	return uri
}

func dialServerConn(uri string) (*serverConn, error) {
	t, hostport, err := parseUpstreamURI(uri)
	if err != nil {
		return nil, err
	}
	raw, err := net.Dial(string(t), hostport)
	if err != nil {
		return nil, err
	}
	return &serverConn{
		uri:       canonicalURI(t, hostport),
		transport: t,
		raw:       raw,
		pending:   make(map[uint16]struct{}),
		metrics:   newConnMetrics(canonicalURI(t, hostport)),
	}, nil
}

// write sends one encoded query over the connection (§4.5). TCP payloads
// get a 16-bit big-endian length prefix written as part of the same
// buffer; UDP payloads are written as-is.
func (c *serverConn) write(payload []byte) error {
	var buf []byte
	if c.transport == transportTCP {
		buf = make([]byte, 2+len(payload))
		binary.BigEndian.PutUint16(buf, uint16(len(payload)))
		copy(buf[2:], payload)
	} else {
		buf = payload
	}
	n, err := c.raw.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

// startReader launches the goroutine that turns socket readability into
// events sent to mux.events. It is the Go-idiomatic stand-in for the
// readiness watcher described in §4.5: each blocking Read is the moral
// equivalent of one readable-event callback firing.
func (c *serverConn) startReader(mux *Mux) {
	if c.transport == transportUDP {
		go c.readUDPLoop(mux)
	} else {
		go c.readTCPLoop(mux)
	}
}

func (c *serverConn) readUDPLoop(mux *Mux) {
	buf := make([]byte, udpReadSize)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			mux.events <- evFrame{conn: c, data: frame}
		}
		if err != nil {
			mux.events <- evConnError{conn: c, err: err}
			return
		}
	}
}

func (c *serverConn) readTCPLoop(mux *Mux) {
	tmp := make([]byte, tcpReadSize)
	frameLen := -1
	var buf []byte
	for {
		n, err := c.raw.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				if frameLen < 0 {
					if len(buf) < 2 {
						break
					}
					frameLen = int(binary.BigEndian.Uint16(buf[:2]))
					buf = buf[2:]
				}
				if len(buf) < frameLen {
					break
				}
				frame := make([]byte, frameLen)
				copy(frame, buf[:frameLen])
				buf = buf[frameLen:]
				frameLen = -1
				mux.events <- evFrame{conn: c, data: frame}
			}
		}
		if err != nil {
			// The peer closing the connection (§4.5) shows up as io.EOF
			// from Read; it and any other read error end the connection.
			mux.events <- evConnError{conn: c, err: err}
			return
		}
	}
}

func (c *serverConn) close() {
	_ = c.raw.Close()
}
