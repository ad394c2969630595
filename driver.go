package stratum

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// writerDequeueTimeout is the reference time-bound for the writer worker's
// send-queue poll (spec §4.5 "reference: 30 s"), so closure is observable
// without indefinite blocking.
const writerDequeueTimeout = 30 * time.Second

// Driver runs the illustrative reader and writer workers for one Transport
// bound to a ByteChannel (spec §4.5). It is illustrative, not mandatory:
// any code that reads lines, calls Transport.ReceiveMessages, and drains
// Transport's send queue satisfies the contract.
type Driver struct {
	transport *Transport
	channel   ByteChannel
	logger    *zap.Logger
}

// NewDriver constructs a Driver for an already-bound transport.
func NewDriver(transport *Transport, channel ByteChannel, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = defaultLogger()
	}
	return &Driver{transport: transport, channel: channel, logger: logger}
}

// Run starts the reader and writer workers and blocks until the reader
// exits (on end-of-stream, a read error, or a malformed message). The
// writer worker keeps running in the background until Close is observed.
func (d *Driver) Run() {
	go d.writeLoop()
	d.readLoop()
}

// readLoop reads LF-terminated lines, trims them, skips blank lines, and
// for each non-empty line holds the transport's coarse mutex only long
// enough to snapshot the current state's marshaller, then parses the line
// into zero-or-more messages and fans them out via ReceiveMessages. On
// end-of-stream or unexpected error, it closes the transport (spec §4.5,
// §7 "malformed message... reader logs and closes the connection").
func (d *Driver) readLoop() {
	reader := bufio.NewReader(d.channel)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			if parseErr := d.handleLine([]byte(trimmed)); parseErr != nil {
				d.logger.Error("malformed message, closing connection", zap.Error(parseErr))
				_ = d.transport.Close()
				return
			}
		}
		if err != nil {
			if !isClosingError(err) {
				d.logger.Error("read failed, closing connection", zap.Error(err))
			}
			_ = d.transport.Close()
			return
		}
	}
}

func (d *Driver) handleLine(line []byte) error {
	state := d.transport.CurrentState()
	if state == nil {
		return ErrNotConnected
	}
	msgs, err := state.Marshaller().Parse(line)
	if err != nil {
		return err
	}
	d.transport.ReceiveMessages(msgs)
	return nil
}

// writeLoop dequeues outbound messages from the transport's FIFO send
// queue and writes each as a single LF-terminated line, flushing after
// every write. The dequeue is time-bounded so the worker notices transport
// closure without blocking indefinitely.
func (d *Driver) writeLoop() {
	writer := bufio.NewWriter(d.channel)
	for {
		msg, ok := d.transport.dequeueSend(writerDequeueTimeout)
		if !ok {
			select {
			case <-d.transport.Done():
				return
			default:
				continue
			}
		}

		state := d.transport.CurrentState()
		if state == nil {
			continue
		}
		line, err := state.Marshaller().Serialize(msg)
		if err != nil {
			d.logger.Error("serialize failed", zap.Error(err))
			continue
		}
		if _, err := writer.Write(line); err != nil {
			d.logger.Error("write failed, closing connection", zap.Error(err))
			_ = d.transport.Close()
			return
		}
		if err := writer.WriteByte('\n'); err != nil {
			d.logger.Error("write failed, closing connection", zap.Error(err))
			_ = d.transport.Close()
			return
		}
		if err := writer.Flush(); err != nil {
			d.logger.Error("flush failed, closing connection", zap.Error(err))
			_ = d.transport.Close()
			return
		}
	}
}

// isClosingError reports if err occurs normally while a connection is
// being closed, so the reader doesn't log it as a failure.
func isClosingError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
