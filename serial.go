package hostlink

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// how long a single port.Read() may block before checking whether the
// port was closed
const serialPollInterval = 50 * time.Millisecond

// serialPortWrapper wraps a serial.Port (i.e. physical port) to
// 1) satisfy io.ReadWriteCloser and
// 2) turn read timeouts into blocking reads which return on Close().
type serialPortWrapper struct {
	conf   *serialPortConfig
	port   serial.Port
	closed atomic.Bool
}

type serialPortConfig struct {
	Device   string
	Speed    int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

func newSerialPortWrapper(conf *serialPortConfig) (spw *serialPortWrapper) {
	spw = &serialPortWrapper{
		conf: conf,
	}

	return
}

func (spw *serialPortWrapper) Open() (err error) {
	spw.port, err = serial.Open(spw.conf.Device, &serial.Mode{
		BaudRate: spw.conf.Speed,
		DataBits: spw.conf.DataBits,
		Parity:   spw.conf.Parity,
		StopBits: spw.conf.StopBits,
	})
	if err != nil {
		return
	}

	err = spw.port.SetReadTimeout(serialPollInterval)
	if err != nil {
		spw.port.Close()
	}

	return
}

// Closes the serial port.
func (spw *serialPortWrapper) Close() (err error) {
	spw.closed.Store(true)
	err = spw.port.Close()

	return
}

// Reads bytes from the underlying serial port, blocking until at least one
// byte is available, an i/o error occurs or the port is closed.
// port.Read() returns no data when the read timeout expires: keep polling
// until something arrives.
func (spw *serialPortWrapper) Read(rxbuf []byte) (cnt int, err error) {
	for cnt == 0 && err == nil {
		if spw.closed.Load() {
			err = io.EOF
			return
		}

		cnt, err = spw.port.Read(rxbuf)
	}

	return
}

// Sends the bytes over the wire.
func (spw *serialPortWrapper) Write(txbuf []byte) (cnt int, err error) {
	cnt, err = spw.port.Write(txbuf)

	return
}

// Returns a serial port configuration matching the channel configuration.
func serialConfigFromChannel(device string, conf *ChannelConfiguration) (spc *serialPortConfig, err error) {
	spc = &serialPortConfig{
		Device:   device,
		Speed:    int(conf.Speed),
		DataBits: int(conf.DataBits),
	}

	switch conf.Parity {
	case PARITY_EVEN:
		spc.Parity = serial.EvenParity
	case PARITY_ODD:
		spc.Parity = serial.OddParity
	case PARITY_NONE:
		spc.Parity = serial.NoParity
	default:
		err = fmt.Errorf("%w: unknown parity setting %d", ErrConfigurationError, conf.Parity)
		return
	}

	switch conf.StopBits {
	case 1:
		spc.StopBits = serial.OneStopBit
	case 2:
		spc.StopBits = serial.TwoStopBits
	default:
		err = fmt.Errorf("%w: unsupported stop bits setting %d", ErrConfigurationError, conf.StopBits)
		return
	}

	if conf.DataBits != 7 && conf.DataBits != 8 {
		err = fmt.Errorf("%w: unsupported data bits setting %d", ErrConfigurationError, conf.DataBits)
		return
	}

	return
}

// Returns a channel over a local serial port.
func newSerialChannel(device string, conf *ChannelConfiguration) (sc *streamChannel) {
	var l = newLogger(fmt.Sprintf("hostlink-channel(%s)", conf.URL), conf.Logger)

	sc = newStreamChannel(l, func() (conn io.ReadWriteCloser, err error) {
		var spc *serialPortConfig
		var spw *serialPortWrapper

		spc, err = serialConfigFromChannel(device, conf)
		if err != nil {
			return
		}

		spw = newSerialPortWrapper(spc)
		err = spw.Open()
		if err != nil {
			return
		}
		conn = spw

		return
	})

	return
}
