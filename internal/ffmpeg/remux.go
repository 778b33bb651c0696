package ffmpeg

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RemuxStream is an MPEG-TS byte stream produced by an ffmpeg remux.
type RemuxStream struct {
	proc *Process
}

// Remux starts ffmpeg rewrapping path as MPEG-TS on a pipe.
func Remux(ctx context.Context, bin, path string, logger *zerolog.Logger) (*RemuxStream, error) {
	p, err := Start(ctx, bin, RemuxArgs(path), StartOptions{Role: "remux", Logger: logger})
	if err != nil {
		return nil, err
	}
	return &RemuxStream{proc: p}, nil
}

// Read implements io.Reader. When the pipe is drained it reaps the process
// and surfaces a non-zero exit in place of io.EOF.
func (r *RemuxStream) Read(b []byte) (int, error) {
	n, err := r.proc.Stdout.Read(b)
	if err != nil && n == 0 {
		if werr := r.proc.Wait(); werr != nil {
			return 0, werr
		}
	}
	return n, err
}

// Close stops ffmpeg if it is still running.
func (r *RemuxStream) Close() error {
	return r.proc.Stop(2 * time.Second)
}
