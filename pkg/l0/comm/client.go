package comm

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/hamster.go/pkg/framework"
	"github.com/robotalks/hamster.go/pkg/l0/device"
)

// SessionState is the lifecycle state of a Client.
type SessionState int32

// Session states
const (
	StateIdle SessionState = iota
	StateConnecting
	StateReady
	StateRunning
	StateReleasing
	StateClosed
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateReleasing:
		return "releasing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// IsOpen indicates packets are being exchanged.
func (s SessionState) IsOpen() bool {
	return s == StateReady || s == StateRunning
}

// Default timing.
const (
	DefaultInterval    = 10 * time.Millisecond
	DefaultOpenTimeout = 5 * time.Second
)

// SubscriptionBuffer is the channel capacity of a Subscription.
const SubscriptionBuffer = 64

// Client runs a session with the robot.
// Every packet received is decoded and answered with exactly one
// outbound packet, decode always happens before the paired encode.
type Client struct {
	Address     string
	Interval    time.Duration
	OpenTimeout time.Duration

	connector Connector
	state     int32

	// lock guards store, encoder, decoder, counts and connErr.
	lock    sync.Mutex
	store   *device.Store
	encoder Encoder
	decoder *Decoder
	counts  map[device.ID]uint64
	connErr error

	writeQ WriteQueue
	readQ  ReadQueue

	subsLock sync.Mutex
	subs     map[*Subscription]struct{}

	// life guards runner.
	life   sync.Mutex
	runner *framework.Runner
	// owned by the polling goroutine until runner.Wait returns.
	transport Transport
}

// NewClient creates a Client in Idle state.
func NewClient(connector Connector) *Client {
	c := &Client{
		Address:     DefaultAddress,
		Interval:    DefaultInterval,
		OpenTimeout: DefaultOpenTimeout,
		connector:   connector,
		store:       device.NewStore(),
		counts:      make(map[device.ID]uint64),
		subs:        make(map[*Subscription]struct{}),
	}
	c.decoder = NewDecoder(&c.readQ)
	return c
}

// State returns current session state.
func (c *Client) State() SessionState {
	return SessionState(atomic.LoadInt32(&c.state))
}

func (c *Client) setState(s SessionState) {
	atomic.StoreInt32(&c.state, int32(s))
}

func (c *Client) transit(from, to SessionState) bool {
	return atomic.CompareAndSwapInt32(&c.state, int32(from), int32(to))
}

// Open connects to the robot and blocks until the handshake completes.
// Without a deadline in ctx, OpenTimeout applies.
// On failure the session returns to Idle and Open can be retried.
func (c *Client) Open(ctx context.Context, hint string) error {
	c.life.Lock()
	if !c.transit(StateIdle, StateConnecting) {
		c.life.Unlock()
		if st := c.State(); st == StateClosed || st == StateReleasing {
			return ErrClosed
		}
		return ErrAlreadyOpen
	}
	c.lock.Lock()
	c.connErr = nil
	c.encoder.Address = c.Address
	c.lock.Unlock()
	c.runner = framework.NewRunner().
		Go(framework.NamedRun("poll", framework.RunFunc(func(ctx context.Context) error {
			return c.run(ctx, hint)
		})))
	c.life.Unlock()
	glog.Infof("open %q", hint)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.OpenTimeout)
		defer cancel()
	}

	for {
		if st := c.State(); st.IsOpen() {
			glog.Infof("open %q: ready", hint)
			return nil
		} else if st != StateConnecting {
			return ErrClosed
		}
		c.lock.Lock()
		err := c.connErr
		c.lock.Unlock()
		if err != nil {
			return c.abortOpen(hint, err)
		}
		select {
		case <-ctx.Done():
			return c.abortOpen(hint, ctx.Err())
		case <-time.After(c.Interval):
		}
	}
}

func (c *Client) abortOpen(hint string, cause error) error {
	if !c.transit(StateConnecting, StateReleasing) {
		// closed or completed concurrently.
		if c.State().IsOpen() {
			return nil
		}
		return ErrClosed
	}
	c.release(StateIdle)
	glog.Warningf("open %q: %v", hint, cause)
	return &OpenError{Hint: hint, Err: cause}
}

// Close stops the session. It can be called more than once.
// Serial chunks not yet sent are dropped.
func (c *Client) Close() error {
	for {
		switch st := c.State(); st {
		case StateClosed:
			return nil
		case StateIdle:
			if c.transit(StateIdle, StateClosed) {
				c.closeSubscriptions()
				return nil
			}
		case StateReleasing:
			time.Sleep(c.Interval)
		default:
			if c.transit(st, StateReleasing) {
				err := c.release(StateClosed)
				glog.Info("closed")
				return err
			}
		}
	}
}

func (c *Client) release(final SessionState) error {
	c.life.Lock()
	defer c.life.Unlock()
	var errs framework.AggregatedError
	errs.Add(c.runner.Stop())
	if closer, ok := c.transport.(io.Closer); ok {
		errs.Add(closer.Close())
	}
	c.transport, c.runner = nil, nil
	c.writeQ.Clear()
	c.lock.Lock()
	c.decoder.Reset()
	c.encoder.Reset()
	c.lock.Unlock()
	c.setState(final)
	if final == StateClosed {
		c.closeSubscriptions()
	}
	return errs.Aggregate()
}

func (c *Client) run(ctx context.Context, hint string) error {
	t, err := c.connector.Connect(ctx, hint)
	if err != nil {
		c.lock.Lock()
		c.connErr = err
		c.lock.Unlock()
		return nil
	}
	c.transport = t
	for {
		c.poll(t)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.Interval):
		}
	}
}

func (c *Client) poll(t Transport) {
	c.transit(StateReady, StateRunning)
	pkt, ok := t.TryRecv()
	if !ok {
		return
	}
	connecting := c.State() == StateConnecting
	if connecting && !t.MatchesHandshake(pkt) {
		glog.V(2).Infof("handshake mismatch: %q", pkt)
		return
	}
	if glog.V(4) {
		glog.Infof("recv %q", pkt)
	}

	c.lock.Lock()
	_, events, err := c.decoder.Decode(string(pkt), c.store)
	if err != nil {
		c.lock.Unlock()
		glog.V(2).Infof("drop packet %q: %v", pkt, err)
		return
	}
	for _, ev := range events {
		c.counts[ev.Device]++
	}
	out := c.encoder.Encode(c.store, &c.writeQ, c.decoder.SerialReady(c.store))
	c.decoder.SentPulseID = c.encoder.PulseID()
	c.lock.Unlock()

	if connecting {
		c.transit(StateConnecting, StateReady)
	}
	c.publish(events)
	if glog.V(4) {
		glog.Infof("send %q", out)
	}
	if err := t.Send([]byte(out)); err != nil {
		glog.Warningf("send: %v", err)
	}
}

// Write writes an Effector or Command device.
// The value is transmitted with the next outbound packet.
func (c *Client) Write(id device.ID, values ...float64) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.store.Write(id, values...); err != nil {
		return err
	}
	nonzero := len(values) > 0 && c.store.Value(id) != 0
	switch id {
	case device.WheelPulse:
		if nonzero {
			c.decoder.Wheel.Arm()
		}
	case device.Sound:
		if nonzero {
			c.decoder.Sound.Arm()
		}
	case device.LineTracerMode:
		if nonzero {
			c.decoder.LineTracer.Arm()
		}
	case device.IOModeA:
		c.decoder.PortModeChanged()
	}
	return nil
}

// Read returns the current values of a device.
func (c *Client) Read(id device.ID) []float64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.store.Read(id)
}

// Written reports whether a Command write is waiting to be transmitted.
func (c *Client) Written(id device.ID) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.store.Written(id)
}

// Occurrences returns the number of occurrences an event device fired.
func (c *Client) Occurrences(id device.ID) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.counts[id]
}

// WriteSerial enqueues data for the passthrough serial port.
// With newline, SerialNewline is appended.
func (c *Client) WriteSerial(data []byte, newline bool) (Ticket, error) {
	return c.writeQ.Put(data, newline)
}

// SerialSent reports whether all chunks of the ticket were transmitted.
func (c *Client) SerialSent(t Ticket) bool {
	return c.writeQ.Sent(t)
}

// ReadSerial reads received passthrough bytes, see ReadQueue.Read.
func (c *Client) ReadSerial(delim Delimiter) ([]byte, bool) {
	return c.readQ.Read(delim)
}

// SerialReady reports whether the passthrough port is acknowledged.
func (c *Client) SerialReady() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.decoder.SerialReady(c.store)
}

// Subscription receives occurrences fired after Subscribe.
type Subscription struct {
	client *Client
	ch     chan Occurrence
	once   sync.Once
}

// C returns the channel of occurrences.
// It's closed when the subscription or the client is closed.
func (s *Subscription) C() <-chan Occurrence {
	return s.ch
}

// Close stops the subscription.
func (s *Subscription) Close() {
	s.client.subsLock.Lock()
	delete(s.client.subs, s)
	s.client.subsLock.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Subscribe starts receiving occurrences.
// A slow subscriber loses occurrences once its buffer is full.
func (c *Client) Subscribe() *Subscription {
	s := &Subscription{client: c, ch: make(chan Occurrence, SubscriptionBuffer)}
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	if c.State() == StateClosed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	c.subs[s] = struct{}{}
	return s
}

func (c *Client) publish(events []Occurrence) {
	if len(events) == 0 {
		return
	}
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	for s := range c.subs {
		for _, ev := range events {
			select {
			case s.ch <- ev:
			default:
				glog.Warningf("subscriber slow, drop %s", ev.Device)
			}
		}
	}
}

func (c *Client) closeSubscriptions() {
	c.subsLock.Lock()
	subs := c.subs
	c.subs = make(map[*Subscription]struct{})
	c.subsLock.Unlock()
	for s := range subs {
		s.once.Do(func() { close(s.ch) })
	}
}
