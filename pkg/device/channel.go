package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/itohio/gocharge/pkg/calib"
)

// maxLineLength bounds a single response line.
const maxLineLength = 64

// Transport is a byte stream to the device. A Read that returns zero bytes
// without an error is treated as a read timeout, matching go.bug.st/serial.
type Transport interface {
	io.ReadWriteCloser
}

// inputResetter is implemented by transports that can drop received bytes
// nobody has read yet. serial.Port does.
type inputResetter interface {
	ResetInputBuffer() error
}

// Channel is a synchronous request/response protocol layer over a Transport.
// Every call is exactly one command frame followed by one response line.
// It is not safe for concurrent use; the regulation loop owns it.
type Channel struct {
	t   Transport
	r   *bufio.Reader
	cal calib.Calibration

	// resync is set after a timeout: a late reply may still arrive and
	// must not be taken for the answer to the next request.
	resync bool
	// clamping is set while requested outputs fall outside the output range.
	clamping bool

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// NewChannel wraps a transport. The calibration must be valid.
func NewChannel(t Transport, cal calib.Calibration) (*Channel, error) {
	if _, err := calib.New(cal.Input, cal.Output); err != nil {
		return nil, err
	}
	return &Channel{
		t:   t,
		r:   bufio.NewReaderSize(&timeoutReader{r: t}, maxLineLength),
		cal: cal,
	}, nil
}

// Calibration returns the calibration used by the channel.
func (c *Channel) Calibration() calib.Calibration {
	return c.cal
}

// ReadInput samples an analog input and returns it in volts.
func (c *Channel) ReadInput(probe string) (float64, error) {
	req := fmt.Sprintf("get %sc", probe)
	code, resp, err := c.exchange(req)
	if err != nil {
		return 0, &ProtocolError{Op: "get", Probe: probe, Request: req, Response: resp, Err: err}
	}

	volts, err := c.cal.Input.ToAnalog(code)
	if err != nil {
		return 0, err
	}
	return volts, nil
}

// WriteOutput sets the output to the given voltage. Voltages outside the
// output range are clamped. Only entering and leaving the clamped range is
// logged.
func (c *Channel) WriteOutput(probe string, volts float64) error {
	code, err := c.cal.Output.ToDigital(volts)
	switch {
	case err == nil:
		if c.clamping {
			c.clamping = false
			log.Printf("device: output %s back in range at %.3fV", probe, volts)
		}
	case errors.Is(err, calib.ErrOutOfRange):
		if !c.clamping {
			c.clamping = true
			log.Printf("device: output %s: %v", probe, err)
		}
	default:
		return err
	}

	req := fmt.Sprintf("set %dc", code)
	status, resp, err := c.exchange(req)
	if err != nil {
		return &ProtocolError{Op: "set", Probe: probe, Request: req, Response: resp, Err: err}
	}
	if status != 0 {
		return &ProtocolError{Op: "set", Probe: probe, Request: req, Response: resp, Err: fmt.Errorf("%w: status %d", ErrStatus, status)}
	}
	return nil
}

// Close closes the transport. Subsequent calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closed = true
		c.closeErr = c.t.Close()
	})
	return c.closeErr
}

// exchange writes one request and parses one integer response line.
func (c *Channel) exchange(req string) (int, string, error) {
	if c.closed {
		return 0, "", ErrClosed
	}

	if c.resync {
		c.discardInput()
	}

	if _, err := io.WriteString(c.t, req); err != nil {
		return 0, "", fmt.Errorf("write: %w", err)
	}

	line, err := c.readLine()
	if err != nil {
		return 0, line, err
	}

	value, err := parseResponse(line)
	if err != nil {
		return 0, line, err
	}
	return value, line, nil
}

// readLine reads up to and including '\n' and returns the line without it.
func (c *Channel) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		// Drop the partial line so it does not prefix the next response.
		c.r.Reset(&timeoutReader{r: c.t})
		if errors.Is(err, errNoData) {
			c.resync = true
			return strings.TrimSpace(line), ErrTimeout
		}
		return strings.TrimSpace(line), fmt.Errorf("read: %w", err)
	}
	if len(line) > maxLineLength {
		return strings.TrimSpace(line), fmt.Errorf("%w: line too long", ErrMalformed)
	}
	return strings.TrimSpace(line), nil
}

// discardInput drops buffered and pending received bytes before a new
// request is sent.
func (c *Channel) discardInput() {
	c.resync = false
	c.r.Reset(&timeoutReader{r: c.t})
	rt, ok := c.t.(inputResetter)
	if !ok {
		return
	}
	if err := rt.ResetInputBuffer(); err != nil {
		log.Printf("device: failed to reset input buffer: %v", err)
	}
}

// parseResponse parses a decimal integer response line.
func parseResponse(line string) (int, error) {
	if line == "" {
		return 0, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}

var errNoData = errors.New("no data")

// timeoutReader turns zero-length reads into errNoData so that a read timeout
// on the serial port aborts the pending line instead of spinning.
type timeoutReader struct {
	r io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, errNoData
	}
	return n, err
}
