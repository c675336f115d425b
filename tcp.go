package hostlink

import (
	"fmt"
	"io"
	"net"
	"time"
)

// socketWrapper wraps a tcp connection to a serial device server, which
// bridges the socket to a Host Link bus. Writes are bounded by
// writeTimeout.
type socketWrapper struct {
	socket       net.Conn
	writeTimeout time.Duration
}

func newSocketWrapper(s net.Conn, writeTimeout time.Duration) (sw *socketWrapper) {
	sw = &socketWrapper{
		socket:       s,
		writeTimeout: writeTimeout,
	}

	return
}

// Closes the socket.
func (sw *socketWrapper) Close() (err error) {
	err = sw.socket.Close()

	return
}

// Reads bytes from the socket. Reads carry no deadline: the session
// tracks response timeouts on its own.
func (sw *socketWrapper) Read(rxbuf []byte) (cnt int, err error) {
	cnt, err = sw.socket.Read(rxbuf)

	return
}

// Sends the bytes over the wire, giving up once the write timeout expired.
func (sw *socketWrapper) Write(txbuf []byte) (cnt int, err error) {
	if sw.writeTimeout > 0 {
		err = sw.socket.SetWriteDeadline(time.Now().Add(sw.writeTimeout))
		if err != nil {
			return
		}
	}

	cnt, err = sw.socket.Write(txbuf)

	return
}

// Returns a channel over a tcp connection to a serial device server.
func newTCPChannel(address string, conf *ChannelConfiguration) (sc *streamChannel) {
	var l = newLogger(fmt.Sprintf("hostlink-channel(%s)", conf.URL), conf.Logger)
	var timeout = conf.Timeout

	sc = newStreamChannel(l, func() (conn io.ReadWriteCloser, err error) {
		var sock net.Conn

		sock, err = net.DialTimeout("tcp", address, timeout)
		if err != nil {
			return
		}

		if tc, ok := sock.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(30 * time.Second)
		}
		conn = newSocketWrapper(sock, timeout)

		return
	})

	return
}
