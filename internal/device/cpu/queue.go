package cpu

import (
	"fmt"

	"github.com/born-ml/accelconv/internal/device"
)

// command is one entry of the in-order command stream.
type command struct {
	op     string
	writes []*buffer
	run    func() error
	err    error // set under queueMu once the command ran or was dropped
}

// enqueue appends a command to the stream. writes lists the buffers the
// command stores into; they are marked lost if it fails or is dropped.
func (c *Context) enqueue(op string, run func() error, writes ...device.Buffer) *command {
	cmd := &command{op: op, run: run}
	for _, buf := range writes {
		if b, ok := buf.(*buffer); ok && b != nil && b.owner == c {
			cmd.writes = append(cmd.writes, b)
		}
	}
	c.queueMu.Lock()
	c.pending = append(c.pending, cmd)
	c.queueMu.Unlock()
	return cmd
}

// Finish executes all pending commands in order. After the first failure the
// remaining commands are dropped, since they may read what the failed one
// should have written. Every buffer the failed or dropped commands would have
// written is marked lost, so whoever reads it next gets the error even when
// another caller's Finish consumed it.
func (c *Context) Finish() error {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	cmds := c.pending
	c.pending = nil
	var first error
	for _, cmd := range cmds {
		if first != nil {
			cmd.err = &device.StatusError{
				Op:     cmd.op,
				Status: device.StatusOf(first),
				Err:    fmt.Errorf("%w: %w", device.ErrDropped, first),
			}
			c.markLost(cmd.writes, cmd.err)
			continue
		}
		if err := cmd.run(); err != nil {
			first, cmd.err = err, err
			c.markLost(cmd.writes, err)
		}
	}
	return first
}

// wait drains the stream and returns the outcome of cmd alone.
func (c *Context) wait(cmd *command) error {
	_ = c.Finish()
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return cmd.err
}

// markLost records why the contents of bufs are undefined.
func (c *Context) markLost(bufs []*buffer, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range bufs {
		if !b.released {
			b.lost = cause
		}
	}
}

// EnqueueWrite copies src into buf. A completed write makes buf valid again.
func (c *Context) EnqueueWrite(buf device.Buffer, src []float32, blocking bool) error {
	b, err := c.lookup("write buffer", buf)
	if err != nil {
		return err
	}
	if len(src)*4 != buf.Size() {
		return device.Errorf("write buffer", device.StatusInvalidValue, "host data holds %d bytes, buffer is %d", len(src)*4, buf.Size())
	}

	cmd := c.enqueue("write buffer", func() error {
		dst, err := c.resolve("write buffer", buf, false, false)
		if err != nil {
			return err
		}
		copy(dst, src)
		c.mu.Lock()
		b.lost = nil
		c.mu.Unlock()
		return nil
	}, buf)
	if blocking {
		return c.wait(cmd)
	}
	return nil
}

// EnqueueRead copies buf into dst. Reading a buffer whose producer failed or
// was dropped reports that failure.
func (c *Context) EnqueueRead(buf device.Buffer, dst []float32, blocking bool) error {
	if _, err := c.lookup("read buffer", buf); err != nil {
		return err
	}
	if len(dst)*4 != buf.Size() {
		return device.Errorf("read buffer", device.StatusInvalidValue, "host data holds %d bytes, buffer is %d", len(dst)*4, buf.Size())
	}

	cmd := c.enqueue("read buffer", func() error {
		src, err := c.resolve("read buffer", buf, false, false)
		if err != nil {
			return err
		}
		if err := c.checkLost("read buffer", buf); err != nil {
			return err
		}
		copy(dst, src)
		return nil
	})
	if blocking {
		return c.wait(cmd)
	}
	return nil
}
