package stream

import "github.com/juju/ratelimit"

type limitedStream struct {
	Stream
	upLimit   *ratelimit.Bucket
	downLimit *ratelimit.Bucket
}

// NewLimited caps the throughput of s to up bytes per second written
// and down bytes per second read. A zero limit leaves the direction
// unlimited.
func NewLimited(s Stream, up, down int64) Stream {
	l := &limitedStream{Stream: s}
	if up > 0 {
		l.upLimit = ratelimit.NewBucketWithRate(float64(up), up)
	}
	if down > 0 {
		l.downLimit = ratelimit.NewBucketWithRate(float64(down), down)
	}
	return l
}

func (l *limitedStream) Read(p []byte) (int, error) {
	n, err := l.Stream.Read(p)
	if l.downLimit != nil {
		l.downLimit.Wait(int64(n))
	}
	return n, err
}

func (l *limitedStream) Write(p []byte) (int, error) {
	n, err := l.Stream.Write(p)
	if l.upLimit != nil {
		l.upLimit.Wait(int64(n))
	}
	return n, err
}
