package stream

import (
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
)

// SFTPStream exposes a remote file over an existing SFTP session. SFTP
// files seek natively, so a ProxyStream over one takes the passthrough
// fast path unless Forced buffering is requested.
type SFTPStream struct {
	f        *sftp.File
	path     string
	readable bool
	writable bool
}

// NewSFTPStream opens path on the remote side of client with flag
// (os.O_RDONLY and friends). The client stays owned by the caller.
func NewSFTPStream(client *sftp.Client, path string, flag int) (*SFTPStream, error) {
	f, err := client.OpenFile(path, flag)
	if err != nil {
		return nil, errors.Wrapf(err, "open remote file %s", path)
	}
	acc := flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR)
	return &SFTPStream{
		f:        f,
		path:     path,
		readable: acc == os.O_RDONLY || acc == os.O_RDWR,
		writable: acc == os.O_WRONLY || acc == os.O_RDWR,
	}, nil
}

func (s *SFTPStream) CanRead() bool  { return s.readable }
func (s *SFTPStream) CanWrite() bool { return s.writable }
func (s *SFTPStream) CanSeek() bool  { return true }

func (s *SFTPStream) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *SFTPStream) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *SFTPStream) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

func (s *SFTPStream) Length() (int64, error) {
	st, err := s.f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat remote file %s", s.path)
	}
	return st.Size(), nil
}

func (s *SFTPStream) SetLength(value int64) error {
	if !s.writable {
		return ErrSetLengthNotSupported
	}
	return errors.Wrapf(s.f.Truncate(value), "truncate remote file %s", s.path)
}

func (s *SFTPStream) Flush() error {
	if !s.writable {
		return nil
	}
	return s.f.Sync()
}

func (s *SFTPStream) Close() error { return s.f.Close() }
