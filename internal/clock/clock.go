// Package clock provides run timestamps, optionally taken from an NTP server.
package clock

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// System reads the local clock
type System struct{}

// Now implements results.Clock
func (System) Now() time.Time {
	return time.Now()
}

// NTP reads the time from an NTP server and falls back to the local clock
// when the server cannot be reached.
type NTP struct {
	Server string

	// Logger receives a message on every fallback. Optional.
	Logger func(format string, args ...any)

	// query is replaced in tests.
	query func(host string) (time.Time, error)

	warnOnce sync.Once
}

// NewNTP returns an NTP clock for the given server, e.g. "pool.ntp.org".
func NewNTP(server string) *NTP {
	return &NTP{
		Server: server,
		query:  ntp.Time,
	}
}

// Now implements results.Clock
func (c *NTP) Now() time.Time {
	query := c.query
	if query == nil {
		query = ntp.Time
	}

	t, err := query(c.Server)
	if err != nil {
		if c.Logger != nil {
			c.warnOnce.Do(func() {
				c.Logger("ntp server %s unreachable, using local clock: %v", c.Server, err)
			})
		}
		return time.Now()
	}
	return t
}
