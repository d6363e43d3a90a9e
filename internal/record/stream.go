package record

import "context"

// Stream yields the records of one data connection in order. Next returns
// io.EOF when the device closes the connection and ctx.Err() once ctx is
// cancelled.
type Stream interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}
