package output

import (
	"context"
	"fmt"
)

// MultiSink writes each table to every sink in order and stops at the first
// failure.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(ctx context.Context, t *Table) error {
	for i, sink := range m {
		if err := sink.Write(ctx, t); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}
