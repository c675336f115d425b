package hostlink

import (
	"context"
	"fmt"
	"log"
	"sync"
)

type MasterConfiguration struct {
	Logger *log.Logger
}

// Master is a Host Link master talking to controllers over one or more
// named channels. Each channel carries at most one request at a time;
// distinct channels run independently.
type Master struct {
	conf     MasterConfiguration
	logger   *logger
	lock     sync.RWMutex
	channels map[string]*masterChannel
}

type masterChannel struct {
	conf    ChannelConfiguration
	channel Channel
	session *Session
}

func NewMaster(conf *MasterConfiguration) (m *Master) {
	m = &Master{
		channels: make(map[string]*masterChannel),
	}

	if conf != nil {
		m.conf = *conf
	}
	m.logger = newLogger("hostlink-master", m.conf.Logger)

	return
}

// Registers a new channel under id, built from conf.URL:
// serial:///dev/ttyUSB0 for a local serial port or tcp://host:port for a
// serial device server. The channel is not connected.
func (m *Master) AddChannel(id string, conf *ChannelConfiguration) (err error) {
	var ch Channel
	var cc ChannelConfiguration

	if conf == nil {
		err = fmt.Errorf("%w: missing channel configuration", ErrConfigurationError)
		return
	}

	cc = *conf
	cc.setDefaults()
	if cc.Logger == nil {
		cc.Logger = m.conf.Logger
	}

	ch, err = newChannel(&cc)
	if err != nil {
		return
	}

	err = m.AttachChannel(id, ch, &cc)

	return
}

// Registers ch, a caller-provided transport, under id. Only the Timeout,
// TurnAroundDelay, TraceFrames and Logger fields of conf are used.
func (m *Master) AttachChannel(id string, ch Channel, conf *ChannelConfiguration) (err error) {
	var mc *masterChannel

	m.lock.Lock()
	defer m.lock.Unlock()

	if id == "" {
		err = fmt.Errorf("%w: empty channel id", ErrConfigurationError)
		return
	}

	if _, exists := m.channels[id]; exists {
		err = fmt.Errorf("%w: channel '%s' already exists", ErrConfigurationError, id)
		return
	}

	mc = &masterChannel{
		channel: ch,
	}
	if conf != nil {
		mc.conf = *conf
	}
	mc.conf.setDefaults()
	if mc.conf.Logger == nil {
		mc.conf.Logger = m.conf.Logger
	}

	mc.session = NewSession(ch, id, mc.conf.Timeout, mc.conf.TurnAroundDelay, mc.conf.Logger)
	mc.session.logger.traceFrames = mc.conf.TraceFrames
	m.channels[id] = mc

	m.logger.Infof("added channel '%s' (%s)", id, mc.conf.URL)

	return
}

// Disconnects and forgets the channel registered under id.
func (m *Master) RemoveChannel(id string) (err error) {
	var mc *masterChannel

	m.lock.Lock()
	mc = m.channels[id]
	delete(m.channels, id)
	m.lock.Unlock()

	if mc == nil {
		err = ErrUnknownChannel
		return
	}

	err = mc.channel.Disconnect()

	return
}

// Opens the channel registered under id.
func (m *Master) Connect(id string) (err error) {
	var mc *masterChannel

	mc, err = m.getChannel(id)
	if err != nil {
		return
	}

	err = mc.channel.Connect()
	if err != nil {
		m.logger.Errorf("failed to connect channel '%s': %v", id, err)
	}

	return
}

// Closes the channel registered under id.
func (m *Master) Disconnect(id string) (err error) {
	var mc *masterChannel

	mc, err = m.getChannel(id)
	if err != nil {
		return
	}

	err = mc.channel.Disconnect()

	return
}

// Returns true if the channel is connected and no request is in flight.
func (m *Master) IsChannelReady(id string) (ready bool) {
	var mc *masterChannel
	var err error

	mc, err = m.getChannel(id)
	if err != nil {
		return
	}

	ready = mc.channel.IsConnected() && mc.session.State() == StateIdle

	return
}

// Returns the session running over the channel registered under id.
func (m *Master) Session(id string) (s *Session, err error) {
	var mc *masterChannel

	mc, err = m.getChannel(id)
	if err != nil {
		return
	}
	s = mc.session

	return
}

// Submits cmd on the channel registered under id without waiting for the
// outcome.
func (m *Master) Submit(id string, cmd Command) (req *Request, err error) {
	var mc *masterChannel

	mc, err = m.getChannel(id)
	if err != nil {
		return
	}

	req, err = mc.session.Submit(cmd)

	return
}

// Reads count consecutive items of an area and blocks until the controller
// answered or the request timed out.
// Word areas yield one 16-bit value per word, bit areas one 0/1 value per
// flag.
func (m *Master) ReadArea(ctx context.Context, id string, unitNo uint8, area Area, bank uint8,
	beginningWord uint16, count uint16) (values []uint16, err error) {
	var cmd *AreaRead
	var res *Response

	cmd, err = NewAreaRead(unitNo, area, bank, beginningWord, count)
	if err != nil {
		return
	}

	res, err = m.execute(ctx, id, cmd)
	if err != nil {
		return
	}
	values = res.Data

	return
}

// Reads a single item of an area.
func (m *Master) ReadWord(ctx context.Context, id string, unitNo uint8, area Area, addr uint16) (value uint16, err error) {
	var values []uint16

	values, err = m.ReadArea(ctx, id, unitNo, area, 0, addr, 1)
	if err == nil {
		value = values[0]
	}

	return
}

// Writes values to consecutive items of an area and blocks until the
// controller acknowledged the write or the request timed out.
func (m *Master) WriteArea(ctx context.Context, id string, unitNo uint8, area Area, bank uint8,
	beginningWord uint16, values []uint16) (err error) {
	var cmd *AreaWrite

	cmd, err = NewAreaWrite(unitNo, area, bank, beginningWord, values)
	if err != nil {
		return
	}

	_, err = m.execute(ctx, id, cmd)

	return
}

// Writes a single item of an area.
func (m *Master) WriteWord(ctx context.Context, id string, unitNo uint8, area Area, addr uint16, value uint16) (err error) {
	err = m.WriteArea(ctx, id, unitNo, area, 0, addr, []uint16{value})

	return
}

// Runs cmd on channel id and waits for its outcome.
func (m *Master) execute(ctx context.Context, id string, cmd Command) (res *Response, err error) {
	var req *Request

	req, err = m.Submit(id, cmd)
	if err != nil {
		return
	}

	res, err = req.Wait(ctx)

	return
}

func (m *Master) getChannel(id string) (mc *masterChannel, err error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	mc = m.channels[id]
	if mc == nil {
		err = fmt.Errorf("%w: '%s'", ErrUnknownChannel, id)
	}

	return
}
