package hostlink

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"
)

// Channel is the transport a Session runs over: one serial line or one
// multidrop bus reached through a separate link.
//
// Write blocks until the channel accepted the frame (transport
// back-pressure). Inbound data is delivered through the OnData callback,
// exactly one physical frame (delimiter included) per invocation, and in
// arrival order. Transport failures are delivered through OnError.
type Channel interface {
	Connect() error
	Disconnect() error
	Write(frame []byte) error
	OnData(cb func(frame []byte))
	OnError(cb func(err error))
	IsConnected() bool
}

const (
	// zero value is the Host Link default (7 data bits, even parity, 2 stop bits)
	PARITY_EVEN uint = 0
	PARITY_ODD  uint = 1
	PARITY_NONE uint = 2

	// bytes buffered while looking for a delimiter before giving up on
	// resynchronizing and discarding them
	maxRxBufferLength int = 2 * maxFrameLength
)

type ChannelConfiguration struct {
	// serial:///dev/ttyUSB0 or tcp://host:port (serial device server)
	URL      string
	Speed    uint
	DataBits uint
	Parity   uint
	StopBits uint
	// response timeout for requests addressed to units 1 to 31
	Timeout time.Duration
	// turn-around delay applied to requests addressed to unit 0
	TurnAroundDelay time.Duration
	// log every frame sent or received
	TraceFrames bool
	Logger      *log.Logger
}

// Fills in defaults for any unset field.
func (cc *ChannelConfiguration) setDefaults() {
	if cc.Speed == 0 {
		cc.Speed = 9600
	}

	if cc.DataBits == 0 {
		cc.DataBits = 7
	}

	if cc.StopBits == 0 {
		cc.StopBits = 2
	}

	if cc.Timeout == 0 {
		cc.Timeout = 1 * time.Second
	}

	if cc.TurnAroundDelay == 0 {
		cc.TurnAroundDelay = 250 * time.Millisecond
	}

	return
}

// Creates the channel matching the URL scheme.
func newChannel(conf *ChannelConfiguration) (ch Channel, err error) {
	switch {
	case strings.HasPrefix(conf.URL, "serial://"):
		ch = newSerialChannel(strings.TrimPrefix(conf.URL, "serial://"), conf)

	case strings.HasPrefix(conf.URL, "tcp://"):
		ch = newTCPChannel(strings.TrimPrefix(conf.URL, "tcp://"), conf)

	default:
		err = fmt.Errorf("%w: unsupported channel url '%s'", ErrConfigurationError, conf.URL)
	}

	return
}

// streamChannel implements Channel over any byte stream (serial port,
// tcp socket) by splitting inbound bytes on the frame delimiter.
type streamChannel struct {
	logger    *logger
	open      func() (io.ReadWriteCloser, error)
	lock      sync.Mutex
	writeLock sync.Mutex
	conn      io.ReadWriteCloser
	connected bool
	onData    func([]byte)
	onError   func(error)
	stopped   chan struct{}
}

func newStreamChannel(l *logger, open func() (io.ReadWriteCloser, error)) (sc *streamChannel) {
	sc = &streamChannel{
		logger: l,
		open:   open,
	}

	return
}

// Opens the underlying stream and starts the receive loop.
func (sc *streamChannel) Connect() (err error) {
	var conn io.ReadWriteCloser

	sc.lock.Lock()
	defer sc.lock.Unlock()

	if sc.connected {
		return
	}

	conn, err = sc.open()
	if err != nil {
		return
	}

	sc.conn = conn
	sc.connected = true
	sc.stopped = make(chan struct{})

	go sc.readLoop(conn, sc.stopped)

	return
}

// Closes the underlying stream and waits for the receive loop to exit.
func (sc *streamChannel) Disconnect() (err error) {
	var conn io.ReadWriteCloser
	var stopped chan struct{}

	sc.lock.Lock()
	if !sc.connected {
		sc.lock.Unlock()
		return
	}
	conn = sc.conn
	stopped = sc.stopped
	sc.conn = nil
	sc.connected = false
	sc.lock.Unlock()

	err = conn.Close()
	<-stopped

	return
}

func (sc *streamChannel) IsConnected() bool {
	sc.lock.Lock()
	defer sc.lock.Unlock()

	return sc.connected
}

func (sc *streamChannel) OnData(cb func([]byte)) {
	sc.lock.Lock()
	defer sc.lock.Unlock()

	sc.onData = cb

	return
}

func (sc *streamChannel) OnError(cb func(error)) {
	sc.lock.Lock()
	defer sc.lock.Unlock()

	sc.onError = cb

	return
}

// Writes a whole frame, blocking until the stream accepted every byte.
func (sc *streamChannel) Write(frame []byte) (err error) {
	var conn io.ReadWriteCloser
	var n int

	sc.lock.Lock()
	conn = sc.conn
	sc.lock.Unlock()

	if conn == nil {
		err = ErrNotConnected
		return
	}

	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()

	for len(frame) > 0 {
		n, err = conn.Write(frame)
		if err != nil {
			return
		}
		frame = frame[n:]
	}

	return
}

// Reads frames off the stream until it is closed or fails.
func (sc *streamChannel) readLoop(conn io.ReadCloser, stopped chan struct{}) {
	var scanner *bufio.Scanner
	var err error
	var cb func([]byte)
	var errCb func(error)
	var deliberate bool

	defer close(stopped)

	scanner = bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxRxBufferLength), maxRxBufferLength)
	scanner.Split(splitFrames)

	for scanner.Scan() {
		sc.lock.Lock()
		cb = sc.onData
		sc.lock.Unlock()

		if cb != nil {
			cb(append([]byte(nil), scanner.Bytes()...))
		}
	}

	err = scanner.Err()
	if err == nil {
		err = io.EOF
	}

	sc.lock.Lock()
	// a Disconnect() call already cleared the connection: this is not a failure
	deliberate = !sc.connected || sc.stopped != stopped
	if !deliberate {
		sc.connected = false
		sc.conn = nil
	}
	errCb = sc.onError
	sc.lock.Unlock()

	if deliberate {
		return
	}

	// release the port or socket so that the next Connect() can reopen it
	conn.Close()

	sc.logger.Errorf("receive loop stopped: %v", err)
	if errCb != nil {
		errCb(err)
	}

	return
}

// splitFrames is a bufio.SplitFunc cutting the inbound byte stream into
// frames terminated by the delimiter. Bytes preceding the last begin
// marker of a frame are dropped, as are runs of more than
// maxRxBufferLength bytes without a delimiter, so that the reader can
// resynchronize after line noise. A lone delimiter is a token of its own.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	var idx int
	var start int

	idx = bytes.IndexByte(data, delimiter)
	if idx >= 0 {
		advance = idx + 1
		start = bytes.LastIndexByte(data[0:idx], beginMarker)
		if start < 0 {
			start = 0
		}
		token = data[start : idx+1]
		return
	}

	if len(data) >= maxRxBufferLength {
		advance = len(data)
		return
	}

	// partial frames left at EOF are dropped
	if atEOF && len(data) > 0 {
		advance = len(data)
	}

	return
}
