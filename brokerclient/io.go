package brokerclient

import (
	"io"
	"net"

	"github.com/momentics/connbroker/bcerr"
	"github.com/momentics/connbroker/bufpool"
	"github.com/momentics/connbroker/frame"
	lz4 "github.com/pierrec/lz4/v3"
)

func writeControl(c net.Conn, ctrl frame.Control) error {
	var buf [frame.Size]byte
	frame.Encode(buf[:], ctrl)
	_, err := c.Write(buf[:])
	return err
}

func readControl(c net.Conn) (frame.Control, error) {
	var buf [frame.Size]byte
	if _, err := io.ReadFull(c, buf[:]); err != nil {
		return frame.Control{}, err
	}
	return frame.Decode(buf[:])
}

// Read returns the next application-level message on c: for a direct-TCP
// connection, one TCP-preamble-framed datagram (LZ4-decompressed if it was
// sent compressed); for a Broker Socket connection, the payload of the next
// WRITE+DATA sequence. The returned slice aliases c's owned buffer and is
// only valid until the next Read call.
func (c *Conn) Read() ([]byte, error) {
	switch c.mode {
	case ModePreamble:
		return c.readTCP()
	default:
		return c.readBroker()
	}
}

func (c *Conn) readTCP() ([]byte, error) {
	var pbuf [frame.PreambleSize]byte
	if _, err := io.ReadFull(c.conn, pbuf[:]); err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "read: preamble", err)
	}
	pre, err := frame.DecodePreamble(pbuf[:])
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeMalformedFrame, "read: preamble", err)
	}

	raw := make([]byte, pre.CompressedLen)
	if _, err := io.ReadFull(c.conn, raw); err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "read: payload", err)
	}

	if !pre.Compressed {
		if c.buf == nil {
			c.buf = bufpool.Get(len(raw))
		} else {
			c.buf.Grow(len(raw))
		}
		copy(c.buf.Bytes(), raw)
		return c.buf.Bytes(), nil
	}

	if c.buf == nil {
		c.buf = bufpool.Get(int(pre.UncompressedLen))
	} else {
		c.buf.Grow(int(pre.UncompressedLen))
	}
	n, err := lz4.UncompressBlock(raw, c.buf.Bytes())
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeMalformedFrame, "read: lz4 decompress", err)
	}
	return c.buf.Bytes()[:n], nil
}

func (c *Conn) readBroker() ([]byte, error) {
	ctrl, err := readControl(c.conn)
	if err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "read: control frame", err)
	}
	if ctrl.Kind != frame.WRITE {
		return nil, bcerr.New(bcerr.CodeMalformedFrame, "read: expected WRITE")
	}

	n := int(ctrl.Arg1)
	if c.buf == nil {
		c.buf = bufpool.Get(n)
	} else {
		c.buf.Grow(n)
	}
	if _, err := io.ReadFull(c.conn, c.buf.Bytes()); err != nil {
		return nil, bcerr.Wrap(bcerr.CodeTransientIO, "read: payload", err)
	}
	return c.buf.Bytes(), nil
}

// Write sends data as one application-level message: for direct TCP, a
// preamble-framed (optionally LZ4-compressed) datagram; for the Broker
// Socket, a WRITE control frame followed by the raw payload.
func (c *Conn) Write(data []byte) error {
	switch c.mode {
	case ModePreamble:
		return c.writeTCP(data)
	default:
		return c.writeBroker(data)
	}
}

func (c *Conn) writeTCP(data []byte) error {
	if c.compression && len(data) >= CompressionCutoff {
		bound := lz4.CompressBlockBound(len(data))
		compressed := make([]byte, bound)
		ht := make([]int, 64<<10)
		n, err := lz4.CompressBlock(data, compressed, ht)
		if err == nil && n > 0 && n < len(data) {
			return c.sendPreamble(true, compressed[:n], len(data))
		}
	}
	return c.sendPreamble(false, data, len(data))
}

func (c *Conn) sendPreamble(compressed bool, payload []byte, uncompressedLen int) error {
	pre := frame.Preamble{
		Compressed:      compressed,
		CompressedLen:   uint32(len(payload)),
		UncompressedLen: uint32(uncompressedLen),
	}
	var pbuf [frame.PreambleSize]byte
	frame.EncodePreamble(pbuf[:], pre)
	if _, err := c.conn.Write(pbuf[:]); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "write: preamble", err)
	}
	if _, err := c.conn.Write(payload); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "write: payload", err)
	}
	return nil
}

func (c *Conn) writeBroker(data []byte) error {
	if err := writeControl(c.conn, frame.Control{Kind: frame.WRITE, Arg1: uint32(len(data))}); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "write: control frame", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return bcerr.Wrap(bcerr.CodeTransientIO, "write: payload", err)
	}
	return nil
}
