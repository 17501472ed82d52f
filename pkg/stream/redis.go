package stream

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStream stores a byte log in a single Redis string. Writes append
// to it, reads walk it forward with GETRANGE. The stream is sequential
// in both directions, wrap it in a ProxyStream to seek.
type RedisStream struct {
	rdb    *redis.Client
	ctx    context.Context
	key    string
	rpos   int64
	closed bool
}

// NewRedisStream connects to url (redis://...) and binds the stream to
// key.
func NewRedisStream(url, key string) (*RedisStream, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opt)
	ctx := context.Background()
	if err = rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	return &RedisStream{rdb: rdb, ctx: ctx, key: key}, nil
}

func (s *RedisStream) CanRead() bool  { return !s.closed }
func (s *RedisStream) CanWrite() bool { return !s.closed }
func (s *RedisStream) CanSeek() bool  { return false }

func (s *RedisStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	val, err := s.rdb.GetRange(s.ctx, s.key, s.rpos, s.rpos+int64(len(p))-1).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "GETRANGE %s", s.key)
	}
	if len(val) == 0 {
		return 0, io.EOF
	}
	n := copy(p, val)
	s.rpos += int64(n)
	return n, nil
}

func (s *RedisStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.rdb.Append(s.ctx, s.key, string(p)).Err(); err != nil {
		return 0, errors.Wrapf(err, "APPEND %s", s.key)
	}
	return len(p), nil
}

func (s *RedisStream) Seek(int64, int) (int64, error) { return 0, ErrSeekNotSupported }

func (s *RedisStream) Length() (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.rdb.StrLen(s.ctx, s.key).Result()
	return n, errors.Wrapf(err, "STRLEN %s", s.key)
}

func (s *RedisStream) SetLength(int64) error { return ErrSetLengthNotSupported }
func (s *RedisStream) Flush() error          { return nil }

func (s *RedisStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rdb.Close()
}
