package broker

import (
	"io"
	"net"

	"github.com/momentics/connbroker/frame"
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
