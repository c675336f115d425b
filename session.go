package hostlink

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

type State uint

const (
	StateIdle             State = 0
	StateSending          State = 1
	StateAwaitingResponse State = 2
	StateCompleted        State = 3
	StateTimedOut         State = 4
)

func (s State) String() (str string) {
	switch s {
	case StateIdle:
		str = "idle"
	case StateSending:
		str = "sending"
	case StateAwaitingResponse:
		str = "awaiting response"
	case StateCompleted:
		str = "completed"
	case StateTimedOut:
		str = "timed out"
	default:
		str = fmt.Sprintf("unknown state (%d)", uint(s))
	}

	return
}

// Session runs the request lifecycle of one channel: at most one request
// is in flight at any time, from the first frame sent until a response is
// decoded or the deadline expires.
type Session struct {
	logger          *logger
	channel         Channel
	timeout         time.Duration
	turnAroundDelay time.Duration
	lock            sync.Mutex
	pending         *Request
}

// Request is the handle on one submitted command. Its outcome is delivered
// exactly once: either a decoded Response or an error.
type Request struct {
	session    *Session
	command    Command
	outbound   FrameSequence
	addressing Addressing
	// index of the next outbound frame to hand to the channel
	nextFrame int
	inbound   reassembler
	state     State
	timer     *time.Timer
	proceed   chan struct{}
	done      chan struct{}
	res       *Response
	err       error
}

// NewSession returns a session running over ch.
// Requests to unit 0 complete after turnAroundDelay, all others after
// timeout, unless a response arrives first.
func NewSession(ch Channel, name string, timeout time.Duration, turnAroundDelay time.Duration, customLogger *log.Logger) (s *Session) {
	s = &Session{
		logger:          newLogger(fmt.Sprintf("hostlink-session(%s)", name), customLogger),
		channel:         ch,
		timeout:         timeout,
		turnAroundDelay: turnAroundDelay,
	}

	ch.OnData(s.handleData)
	ch.OnError(s.handleError)

	return
}

// Returns the state of the channel: that of the pending request, or
// StateIdle when no request is in flight.
func (s *Session) State() (state State) {
	s.lock.Lock()
	defer s.lock.Unlock()

	state = StateIdle
	if s.pending != nil {
		state = s.pending.state
	}

	return
}

// Submit starts transmitting cmd and returns immediately.
// It fails synchronously with ErrChannelBusy if a request is already in
// flight, with ErrNotConnected if the channel is down and with a
// construction error if cmd cannot be encoded.
func (s *Session) Submit(cmd Command) (req *Request, err error) {
	var fs FrameSequence
	var ai areaInfo
	var timeout time.Duration

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.pending != nil {
		err = ErrChannelBusy
		return
	}

	if !s.channel.IsConnected() {
		err = ErrNotConnected
		return
	}

	fs, err = cmd.frames()
	if err != nil {
		return
	}
	ai, err = resolveArea(cmd.Area())
	if err != nil {
		return
	}

	// unit 0 is answered after the turn-around delay
	timeout = s.timeout
	if cmd.UnitNo() == 0 {
		timeout = s.turnAroundDelay
	}

	req = &Request{
		session:    s,
		command:    cmd,
		outbound:   fs,
		addressing: ai.addressing,
		state:      StateSending,
		proceed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	req.timer = time.AfterFunc(timeout, func() {
		s.expire(req)
	})
	s.pending = req

	go s.transmit(req)

	return
}

// Hands the outbound frames to the channel in order. Every frame but the
// last needs a continuation request from the controller before the next
// one is sent.
func (s *Session) transmit(req *Request) {
	var err error
	var raw []byte

	for i := range req.outbound {
		raw = req.outbound[i].Bytes()

		s.lock.Lock()
		if s.pending != req {
			s.lock.Unlock()
			return
		}
		req.nextFrame = i + 1
		s.lock.Unlock()

		s.logger.Frame(">", raw)
		err = s.channel.Write(raw)

		s.lock.Lock()
		if s.pending != req {
			s.lock.Unlock()
			return
		}
		if err != nil {
			s.finishLocked(req, StateCompleted, nil, fmt.Errorf("write failed: %w", err))
			s.lock.Unlock()
			return
		}
		if req.nextFrame == len(req.outbound) {
			req.state = StateAwaitingResponse
			s.lock.Unlock()
			return
		}
		s.lock.Unlock()

		select {
		case <-req.proceed:
		case <-req.done:
			return
		}
	}

	return
}

// Processes one inbound frame, delivered by the channel.
func (s *Session) handleData(raw []byte) {
	var req *Request
	var f Frame
	var res *Response
	var err error

	s.logger.Frame("<", raw)

	s.lock.Lock()
	req = s.pending
	if req == nil {
		s.lock.Unlock()
		// late frames of a completed response end up here as well
		s.logger.Warningf("%v: dropping frame %q received with no request in flight",
			ErrSequence, raw)
		return
	}

	// a lone delimiter asks for the next outbound frame
	if len(raw) == 1 && raw[0] == delimiter {
		if req.state != StateSending || req.nextFrame >= len(req.outbound) {
			s.finishLocked(req, StateCompleted, nil,
				fmt.Errorf("%w: continuation requested with no frame left to send", ErrSequence))
		} else {
			select {
			case req.proceed <- struct{}{}:
			default:
				s.finishLocked(req, StateCompleted, nil,
					fmt.Errorf("%w: duplicate continuation request", ErrSequence))
			}
		}
		s.lock.Unlock()
		return
	}

	f, err = decodeFrame(raw)
	if err == nil {
		err = req.inbound.add(f)
	}
	if err != nil {
		s.finishLocked(req, StateCompleted, nil, err)
		s.lock.Unlock()
		return
	}

	// request the next response frame
	if !f.Final {
		req.state = StateAwaitingResponse
		s.lock.Unlock()

		s.logger.Frame(">", []byte{delimiter})
		err = s.channel.Write([]byte{delimiter})
		if err != nil {
			s.lock.Lock()
			s.finishLocked(req, StateCompleted, nil, fmt.Errorf("write failed: %w", err))
			s.lock.Unlock()
		}
		return
	}

	res, err = req.inbound.response(req.addressing)
	if err == nil {
		err = s.checkResponse(req, res)
	}
	if err != nil {
		res = nil
	}
	s.finishLocked(req, StateCompleted, res, err)
	s.lock.Unlock()

	return
}

// Matches a decoded response against the request it answers.
func (s *Session) checkResponse(req *Request, res *Response) (err error) {
	if res.UnitNo != req.command.UnitNo() {
		err = fmt.Errorf("%w: response from unit %02d to a request for unit %02d",
			ErrProtocolError, res.UnitNo, req.command.UnitNo())
		return
	}

	if res.Header != req.command.header() && res.Header != headerInvalidCommand {
		err = fmt.Errorf("%w: response header %s to a %s command",
			ErrProtocolError, res.Header, req.command.header())
		return
	}

	// a controller may abort a multi-frame write with an error response,
	// never acknowledge it before the last frame
	if req.nextFrame < len(req.outbound) && !res.IsFault() {
		err = fmt.Errorf("%w: response received after frame %d of %d",
			ErrSequence, req.nextFrame, len(req.outbound))
		return
	}

	if ar, ok := req.command.(*AreaRead); ok && !res.IsFault() && len(res.Data) != int(ar.wordCount) {
		err = fmt.Errorf("%w: expected %d items, got %d",
			ErrMalformedPayload, ar.wordCount, len(res.Data))
		return
	}

	return
}

// Fails the pending request when the channel reports an error.
func (s *Session) handleError(err error) {
	s.logger.Errorf("channel error: %v", err)

	s.lock.Lock()
	if s.pending != nil {
		s.finishLocked(s.pending, StateCompleted, nil, fmt.Errorf("channel error: %w", err))
	}
	s.lock.Unlock()

	return
}

// Called when the request deadline expires.
func (s *Session) expire(req *Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.pending != req {
		return
	}

	s.finishLocked(req, StateTimedOut, nil, ErrRequestTimedOut)

	return
}

// Delivers the outcome of req and frees the channel.
// Must be called with the session lock held.
func (s *Session) finishLocked(req *Request, state State, res *Response, err error) {
	if s.pending != req {
		return
	}

	req.timer.Stop()
	req.state = state
	req.res = res
	req.err = err
	if err == nil && res != nil && res.IsFault() {
		req.err = res.Err()
	}

	s.pending = nil
	close(req.done)

	if req.err != nil {
		s.logger.Warningf("request %s to unit %02d failed: %v",
			req.command.header(), req.command.UnitNo(), req.err)
	}

	return
}

// Command returns the command the request was submitted with.
func (req *Request) Command() Command {
	return req.command
}

// Done returns a channel closed once the request completed or timed out.
func (req *Request) Done() <-chan struct{} {
	return req.done
}

// State returns the state of the request.
func (req *Request) State() (state State) {
	req.session.lock.Lock()
	defer req.session.lock.Unlock()

	state = req.state

	return
}

// Result blocks until the request is over and returns its outcome.
// For controller faults, both the response (with empty data) and an
// *EndCodeError are returned.
func (req *Request) Result() (res *Response, err error) {
	<-req.done

	res, err = req.res, req.err

	return
}

// Wait is like Result but gives up when ctx is done, cancelling the request.
func (req *Request) Wait(ctx context.Context) (res *Response, err error) {
	select {
	case <-req.done:
	case <-ctx.Done():
		req.Cancel()
	}

	res, err = req.Result()

	return
}

// Cancel forces the request into the timed out state, freeing the channel.
// It has no effect on requests already over.
func (req *Request) Cancel() {
	var s = req.session

	s.lock.Lock()
	defer s.lock.Unlock()

	s.finishLocked(req, StateTimedOut, nil, fmt.Errorf("%w: cancelled", ErrRequestTimedOut))

	return
}
