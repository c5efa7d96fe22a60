package tsodbc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethanyzhang/tsodbc/wire"
)

// internalCommand is a driver-side statement that never reaches the
// service.
type internalCommand struct {
	streaming bool
	batchSize int
}

// parseInternalCommand recognizes
//
//	SET STREAMING ON [BATCH_SIZE n]
//	SET STREAMING OFF
//
// case-insensitively. ok is false for any other text.
func parseInternalCommand(text string) (cmd internalCommand, ok bool, err error) {
	fields := strings.Fields(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	if len(fields) < 3 || !strings.EqualFold(fields[0], "SET") || !strings.EqualFold(fields[1], "STREAMING") {
		return cmd, false, nil
	}

	switch {
	case strings.EqualFold(fields[2], "OFF") && len(fields) == 3:
		return internalCommand{}, true, nil
	case strings.EqualFold(fields[2], "ON"):
		cmd = internalCommand{streaming: true, batchSize: DefaultStreamingBatchSize}
		switch len(fields) {
		case 3:
			return cmd, true, nil
		case 5:
			if !strings.EqualFold(fields[3], "BATCH_SIZE") {
				break
			}
			n, convErr := strconv.Atoi(fields[4])
			if convErr != nil || n < 1 {
				return cmd, true, fmt.Errorf("invalid streaming batch size %q", fields[4])
			}
			cmd.batchSize = n
			return cmd, true, nil
		}
	}
	return cmd, true, fmt.Errorf("malformed streaming command: %q", text)
}

// internalQuery applies an internalCommand to the connection. It has no
// result set.
type internalQuery struct {
	conn *Connection
	cmd  internalCommand
}

func (q *internalQuery) execute(ctx context.Context) error {
	return q.conn.setStreaming(ctx, q.cmd.streaming, q.cmd.batchSize)
}

func (q *internalQuery) columns() []ColumnMeta                       { return nil }
func (q *internalQuery) next() (bool, error)                         { return false, nil }
func (q *internalQuery) row() *wire.Row                              { return nil }
func (q *internalQuery) affectedRows() int64                         { return 0 }
func (q *internalQuery) nextResultSet(context.Context) (bool, error) { return false, nil }
func (q *internalQuery) warnings() []Warning                         { return nil }
func (q *internalQuery) cancel()                                     {}
func (q *internalQuery) close()                                      {}
