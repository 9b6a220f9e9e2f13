// Package snowflake stamps a unique trace id onto each RPC channel's log
// lines, built on the teacher's own (indirect) github.com/tinode/snowflake
// dependency, given a direct home here.
package snowflake

import (
	"strconv"

	sf "github.com/tinode/snowflake"
)

// Gen is a process-wide trace id generator. It is safe for concurrent use
// (the underlying generator serializes internally).
type Gen struct {
	inner *sf.SnowFlake
}

// NewGen builds a generator for workerID in [0, 1023], the same id space
// the teacher reserves for its own snowflake-backed message ids.
func NewGen(workerID int64) (*Gen, error) {
	inner, err := sf.NewSnowFlake(workerID)
	if err != nil {
		return nil, err
	}
	return &Gen{inner: inner}, nil
}

// TraceID returns the next id as a short base-36 string, suitable for a log
// prefix such as "[chatd] [a1b2c3] ...".
func (g *Gen) TraceID() string {
	id := g.inner.Generate()
	return strconv.FormatInt(id, 36)
}
