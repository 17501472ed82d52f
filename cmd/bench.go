package main

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/urfave/cli/v2"

	"SeekStream/pkg/stream"
)

func benchFlags() *cli.Command {
	return &cli.Command{
		Name:   "bench",
		Usage:  "measure proxy throughput and cache residency",
		Action: bench,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "size",
				Value: 256,
				Usage: "bytes to push through the proxy (MiB)",
			},
			&cli.IntFlag{
				Name:  "block",
				Value: 1 << 17,
				Usage: "request size in bytes",
			},
			&cli.BoolFlag{
				Name:  "shared",
				Usage: "disable single-use mode (unbounded cache)",
			},
		},
	}
}

func bench(c *cli.Context) error {
	setLoggerLevel(c)
	total := int64(c.Int("size")) << 20
	block := make([]byte, c.Int("block"))
	rand.New(rand.NewSource(0)).Read(block)
	conf := &stream.Config{SingleUse: !c.Bool("shared")}

	// write path: proxy in front of a sequential sink
	wp, err := stream.NewProxy(stream.FromWriter(io.Discard), conf)
	if err != nil {
		return err
	}
	start := time.Now()
	var written, peak int64
	for written < total {
		n, err := wp.Write(block)
		if err != nil {
			return err
		}
		written += int64(n)
		if m := wp.UsedMemory(); m > peak {
			peak = m
		}
	}
	if err = wp.Close(); err != nil {
		return err
	}
	report("write", written, peak, time.Since(start))

	// read path: proxy in front of a sequential source
	rp, err := stream.NewProxy(stream.FromReader(&patternReader{n: total}), conf)
	if err != nil {
		return err
	}
	start = time.Now()
	var read int64
	peak = 0
	for {
		n, err := rp.Read(block)
		read += int64(n)
		if m := rp.UsedMemory(); m > peak {
			peak = m
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	if err = rp.Close(); err != nil {
		return err
	}
	report("read", read, peak, time.Since(start))
	return nil
}

func report(name string, bytes, peak int64, used time.Duration) {
	fmt.Printf("%5s: %d MiB in %s, %.1f MiB/s, peak cache %d KiB\n",
		name, bytes>>20, used.Round(time.Millisecond),
		float64(bytes)/1048576/used.Seconds(), peak>>10)
}

// patternReader yields n predictable bytes.
type patternReader struct {
	n   int64
	off int64
}

func (r *patternReader) Read(p []byte) (int, error) {
	if r.off >= r.n {
		return 0, io.EOF
	}
	count := int64(len(p))
	if count > r.n-r.off {
		count = r.n - r.off
	}
	for i := int64(0); i < count; i++ {
		p[i] = byte(r.off + i)
	}
	r.off += count
	return int(count), nil
}
