package value_object

import (
	"time"
)

// TimeStamp is a UTC-normalized instant.
type TimeStamp struct{ t time.Time }

// Now returns the current time as a TimeStamp.
func Now() TimeStamp { return TimeStamp{time.Now().UTC()} }

// TimeStampFrom normalizes an external time.Time to UTC.
func TimeStampFrom(t time.Time) TimeStamp { return TimeStamp{t.UTC()} }

func (ts TimeStamp) Time() time.Time { return ts.t }
func (ts TimeStamp) Unix() int64 { return ts.t.Unix() }
func (ts TimeStamp) String() string { return ts.t.Format(time.RFC3339Nano) }
func (ts TimeStamp) Before(o TimeStamp) bool { return ts.t.Before(o.t) }
func (ts TimeStamp) After(o TimeStamp) bool { return ts.t.After(o.t) }
func (ts TimeStamp) Equal(o TimeStamp) bool { return ts.t.Equal(o.t) }
func (ts TimeStamp) Sub(o TimeStamp) time.Duration { return ts.t.Sub(o.t) }
func (ts TimeStamp) Add(d time.Duration) TimeStamp { return TimeStamp{ts.t.Add(d)} }
func (ts TimeStamp) IsZero() bool { return ts.t.IsZero() }
