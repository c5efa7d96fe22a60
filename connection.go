package tsodbc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultStreamingBatchSize is the number of statements queued in streaming
// mode before they are sent.
const DefaultStreamingBatchSize = 100

// ErrConnectionClosed is returned by statements of a closed connection.
var ErrConnectionClosed = errors.New("tsodbc: connection closed")

// Connection owns the statements opened on one session and the streaming
// ingestion state they share.
type Connection struct {
	session *Session

	mu        sync.Mutex
	streaming bool
	batchSize int
	pending   []string
	closed    bool
}

func NewConnection(s *Session) *Connection {
	return &Connection{session: s, batchSize: DefaultStreamingBatchSize}
}

func (c *Connection) Session() *Session { return c.session }

// NewStatement allocates a statement in the Unprepared state.
func (c *Connection) NewStatement() *Statement {
	return newStatement(c)
}

// Streaming reports whether streaming mode is on and its batch size.
func (c *Connection) Streaming() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming, c.batchSize
}

// Pending returns the number of statements waiting to be flushed.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// setStreaming switches streaming mode. Turning it off, or changing the batch
// size, flushes what is queued.
func (c *Connection) setStreaming(ctx context.Context, on bool, batchSize int) error {
	if _, err := c.Flush(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = on
	if batchSize > 0 {
		c.batchSize = batchSize
	}
	log.Debug().Bool("streaming", on).Int("batch_size", c.batchSize).Msg("streaming mode changed")
	return nil
}

func (c *Connection) isStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// enqueue adds text to the streaming queue and flushes the queue once it
// holds a full batch. It returns the number of statements flushed.
func (c *Connection) enqueue(ctx context.Context, text string) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrConnectionClosed
	}
	c.pending = append(c.pending, text)
	full := len(c.pending) >= c.batchSize
	c.mu.Unlock()

	if !full {
		return 0, nil
	}
	return c.Flush(ctx)
}

// Flush runs every queued statement in order and drains its pages. It stops
// at the first failure; statements after it stay queued.
func (c *Connection) Flush(ctx context.Context) (int, error) {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for i, text := range batch {
		if err := c.run(ctx, text); err != nil {
			c.mu.Lock()
			c.pending = append(batch[i+1:len(batch):len(batch)], c.pending...)
			c.mu.Unlock()
			return i, fmt.Errorf("streaming statement %d of %d failed: %w", i+1, len(batch), err)
		}
	}
	if len(batch) > 0 {
		log.Debug().Int("statements", len(batch)).Msg("flushed streaming batch")
	}
	return len(batch), nil
}

func (c *Connection) run(ctx context.Context, text string) error {
	outcome, _, err := c.session.Query(ctx, text)
	if err != nil {
		return err
	}
	return outcome.Drain(ctx, nil)
}

// Close flushes queued streaming statements. The connection rejects new
// streaming statements afterwards.
func (c *Connection) Close() error {
	_, err := c.Flush(context.Background())
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return err
}
