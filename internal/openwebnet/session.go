package openwebnet

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Default timeouts for gateway communication.
const (
	// defaultConnectTimeout bounds the TCP dial.
	defaultConnectTimeout = 5 * time.Second

	// defaultAckTimeout is how long a command waits for ACK/NACK.
	defaultAckTimeout = 5 * time.Second

	// defaultStatusTimeout is how long a status request waits for its final ACK.
	// The gateway streams one reply per device before acknowledging, so area
	// and general requests take noticeably longer than commands.
	defaultStatusTimeout = 15 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// DefaultPort is the OpenWebNet TCP port.
	DefaultPort = 20000

	// maxFrameLen guards against a desynchronised stream.
	maxFrameLen = 1024

	// frameQueueSize buffers frames between the socket reader and Next.
	frameQueueSize = 64
)

// Session selection and authentication frames.
const (
	selectCommandSession = "*99*0##"
	selectEventSession   = "*99*1##"
	hmacChallenge        = "*98*2##"
)

// SessionKind selects the gateway session type.
type SessionKind int

// Session kinds.
const (
	// CommandSession accepts frames and answers ACK/NACK.
	CommandSession SessionKind = iota
	// EventSession streams every frame seen on the bus.
	EventSession
)

// String returns the session kind name.
func (k SessionKind) String() string {
	if k == EventSession {
		return "event"
	}
	return "command"
}

func (k SessionKind) selectFrame() string {
	if k == EventSession {
		return selectEventSession
	}
	return selectCommandSession
}

// Session is an authenticated connection to a gateway.
type Session interface {
	// Next blocks until the next bus frame arrives or ctx is cancelled.
	// Decode failures return an error wrapping ErrDecode and leave the
	// session usable. A broken connection returns ErrConnectionLost.
	Next(ctx context.Context) (Message, error)

	// Send writes a frame and waits for the gateway's ACK or NACK.
	// Status requests skip the status replies that precede the ACK.
	// When no reply arrives in time the session is closed and the error
	// wraps both ErrTimeout and ErrConnectionLost.
	Send(ctx context.Context, frame Frame, statusRequest bool) error

	// Close closes the connection. Safe to call more than once.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, kind SessionKind) (Session, error)
}

// Ensure implementations satisfy the interfaces.
var (
	_ Dialer  = (*TCPDialer)(nil)
	_ Session = (*Conn)(nil)
)

// TCPDialer opens sessions over TCP.
type TCPDialer struct {
	Host string
	// Port defaults to 20000.
	Port int
	// Password is the numeric OPEN password. Empty means none configured.
	Password string

	// ConnectTimeout bounds the dial and handshake. Default: 5 seconds.
	ConnectTimeout time.Duration
	// AckTimeout bounds the wait for ACK after a command. Default: 5 seconds.
	AckTimeout time.Duration
	// WriteTimeout bounds a frame write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// Address returns host:port.
func (d *TCPDialer) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// Dial connects to the gateway and performs the session handshake.
//
// Parameters:
//   - ctx: Context for cancellation of the dial and handshake
//   - kind: CommandSession or EventSession
//
// Returns:
//   - Session: the authenticated session
//   - error: ErrConnectionFailed, or one of ErrAuthRequired, ErrPasswordError,
//     ErrAuthUnsupported when authentication fails
func (d *TCPDialer) Dial(ctx context.Context, kind SessionKind) (Session, error) {
	timeout := d.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", d.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, d.Address(), err)
	}

	s, err := Open(dialCtx, conn, kind, Options{
		Password:     d.Password,
		AckTimeout:   d.AckTimeout,
		WriteTimeout: d.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Options tunes a session opened with Open.
type Options struct {
	Password      string
	AckTimeout    time.Duration
	StatusTimeout time.Duration
	WriteTimeout  time.Duration
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Conn is a Session over any net.Conn.
//
// Thread Safety:
//   - Send serialises callers; one frame is in flight at a time.
//   - Next must be called from a single goroutine.
//   - Close may be called from any goroutine.
type Conn struct {
	conn net.Conn
	kind SessionKind
	opts Options

	// frames is fed by readLoop and closed when the socket fails.
	frames  chan string
	readErr error

	sendMu    sync.Mutex
	done      *closeOnce
	closeOnce sync.Once
	closeErr  error
}

// Open runs the session handshake on an established connection.
// On failure the connection is closed.
func Open(ctx context.Context, conn net.Conn, kind SessionKind, opts Options) (*Conn, error) {
	if opts.AckTimeout == 0 {
		opts.AckTimeout = defaultAckTimeout
	}
	if opts.StatusTimeout == 0 {
		opts.StatusTimeout = defaultStatusTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	c := &Conn{
		conn:   conn,
		kind:   kind,
		opts:   opts,
		frames: make(chan string, frameQueueSize),
		done:   newCloseOnce(),
	}
	go c.readLoop()

	if err := c.handshake(ctx); err != nil {
		c.Close() //nolint:errcheck // handshake error takes precedence
		return nil, err
	}
	return c, nil
}

// Kind returns the session kind.
func (c *Conn) Kind() SessionKind { return c.kind }

// handshake performs:
//
//	gateway: *#*1##
//	client:  *99*0## or *99*1##
//	gateway: *#*1##              (no password)
//	         *#<nonce>##         (OPEN password, client answers *#<hash>##)
//	         *98*2##             (HMAC, unsupported)
func (c *Conn) handshake(ctx context.Context) error {
	first, err := c.await(ctx, c.opts.AckTimeout)
	if err != nil {
		return fmt.Errorf("%w: waiting for greeting: %w", ErrConnectionFailed, err)
	}
	if first != ACK {
		return fmt.Errorf("%w: unexpected greeting %q", ErrConnectionFailed, first)
	}

	if err := c.write(c.kind.selectFrame()); err != nil {
		return fmt.Errorf("%w: select %s session: %w", ErrConnectionFailed, c.kind, err)
	}

	reply, err := c.await(ctx, c.opts.AckTimeout)
	if err != nil {
		return fmt.Errorf("%w: waiting for session reply: %w", ErrConnectionFailed, err)
	}

	switch {
	case reply == ACK:
		return nil
	case reply == NACK:
		return fmt.Errorf("%w: gateway refused %s session", ErrConnectionFailed, c.kind)
	case reply == hmacChallenge:
		return ErrAuthUnsupported
	case isNonce(reply):
		return c.authenticate(ctx, reply[2:len(reply)-len(frameTerminator)])
	default:
		return fmt.Errorf("%w: unexpected session reply %q", ErrConnectionFailed, reply)
	}
}

func (c *Conn) authenticate(ctx context.Context, nonce string) error {
	if c.opts.Password == "" {
		return ErrAuthRequired
	}
	answer, err := OpenPassword(c.opts.Password, nonce)
	if err != nil {
		return err
	}
	if err := c.write("*#" + answer + frameTerminator); err != nil {
		return fmt.Errorf("%w: send password: %w", ErrConnectionFailed, err)
	}
	reply, err := c.await(ctx, c.opts.AckTimeout)
	if err != nil {
		return fmt.Errorf("%w: waiting for password reply: %w", ErrConnectionFailed, err)
	}
	if reply != ACK {
		return ErrPasswordError
	}
	return nil
}

// isNonce matches "*#<digits>##".
func isNonce(frame string) bool {
	if !strings.HasPrefix(frame, "*#") || !strings.HasSuffix(frame, frameTerminator) {
		return false
	}
	return isDigits(frame[2 : len(frame)-len(frameTerminator)])
}

// Next implements Session.
func (c *Conn) Next(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done.Done():
			return nil, ErrSessionClosed
		case raw, ok := <-c.frames:
			if !ok {
				return nil, c.lostError()
			}
			if raw == ACK || raw == NACK {
				continue
			}
			return Parse(raw)
		}
	}
}

// Send implements Session.
func (c *Conn) Send(ctx context.Context, frame Frame, statusRequest bool) error {
	if c.kind != CommandSession {
		return fmt.Errorf("openwebnet: send on %s session", c.kind)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	select {
	case <-c.done.Done():
		return ErrSessionClosed
	default:
	}

	if err := c.write(string(frame)); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConnectionLost, frame, err)
	}

	timeout := c.opts.AckTimeout
	if statusRequest {
		timeout = c.opts.StatusTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		reply, err := c.await(ctx, time.Until(deadline))
		if err != nil {
			if errors.Is(err, ErrSessionClosed) || errors.Is(err, ErrConnectionLost) {
				return err
			}
			// The reply may still arrive and would be read as the answer
			// to the next frame, so the session cannot be reused.
			c.Close() //nolint:errcheck // the wait error takes precedence
			return fmt.Errorf("%w: no reply to %s: %w", ErrConnectionLost, frame, err)
		}
		switch reply {
		case ACK:
			return nil
		case NACK:
			return fmt.Errorf("%w: %s", ErrNACK, frame)
		}
		// status replies preceding the ACK
	}
}

// Close implements Session.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.done.Close()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// await returns the next raw frame, honouring ctx, timeout and Close.
func (c *Conn) await(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", ErrTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done.Done():
		return "", ErrSessionClosed
	case <-timer.C:
		return "", ErrTimeout
	case raw, ok := <-c.frames:
		if !ok {
			return "", c.lostError()
		}
		return raw, nil
	}
}

func (c *Conn) write(frame string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	_, err := io.WriteString(c.conn, frame)
	return err
}

// lostError is valid once frames has been closed.
func (c *Conn) lostError() error {
	select {
	case <-c.done.Done():
		return ErrSessionClosed
	default:
	}
	if c.readErr == nil || errors.Is(c.readErr, io.EOF) {
		return fmt.Errorf("%w: closed by gateway", ErrConnectionLost)
	}
	return fmt.Errorf("%w: %w", ErrConnectionLost, c.readErr)
}

// readLoop splits the byte stream into frames until the socket fails.
func (c *Conn) readLoop() {
	defer close(c.frames)

	sc := bufio.NewScanner(c.conn)
	sc.Buffer(make([]byte, 0, 256), maxFrameLen) //nolint:mnd // initial buffer
	sc.Split(splitFrames)

	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		select {
		case c.frames <- raw:
		case <-c.done.Done():
			return
		}
	}
	c.readErr = sc.Err()
}

// splitFrames is a bufio.SplitFunc yielding one "...##" frame per token.
func splitFrames(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.Index(data, []byte(frameTerminator)); i >= 0 {
		end := i + len(frameTerminator)
		return end, data[:end], nil
	}
	if atEOF {
		// trailing partial frame is discarded
		return len(data), nil, nil
	}
	return 0, nil, nil
}
