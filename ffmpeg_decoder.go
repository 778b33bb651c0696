package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/internal/ffmpeg"
	"github.com/thesyncim/playback/internal/log"
)

// Queue depths between the caller and an ffmpeg child.
const (
	pipeInputDepth   = 16 // packets waiting to be written to stdin
	videoOutputDepth = 8  // decoded pictures waiting for ReceiveFrame
	audioOutputDepth = 32 // PCM chunks waiting for ReceiveSamples
)

// pipeDecoder runs an ffmpeg child that reads an elementary stream on stdin
// and writes decoded output on stdout. A writer goroutine feeds stdin from
// a bounded channel and a reader goroutine parses stdout into a bounded
// buffer, so neither send nor receive ever blocks the caller.
type pipeDecoder[T any] struct {
	proc    *ffmpeg.Process
	logger  zerolog.Logger
	timeout time.Duration
	depth   int
	in      chan []byte
	done    chan struct{} // reader returned
	wrote   chan struct{} // writer returned

	mu       sync.Mutex
	space    *sync.Cond // out shrank or the decoder is closing
	out      []T
	finished bool  // reader goroutine has returned
	readErr  error // why it returned, nil on a clean exit
	writeErr error
	inClosed bool
	flushed  bool
	progress time.Time // last output produced or taken
	timedOut error
	closing  bool

	closeOnce sync.Once
}

func startPipeDecoder[T any](bin string, args []string, role string, timeout time.Duration, depth int, logger zerolog.Logger,
	read func(r io.Reader, emit func(T)) error,
) (*pipeDecoder[T], error) {
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	proc, err := ffmpeg.Start(context.Background(), bin, args, ffmpeg.StartOptions{
		Role:   role,
		Stdin:  true,
		Logger: &logger,
	})
	if err != nil {
		return nil, err
	}

	d := &pipeDecoder[T]{
		proc:    proc,
		logger:  logger,
		timeout: timeout,
		depth:   depth,
		in:      make(chan []byte, pipeInputDepth),
		done:    make(chan struct{}),
		wrote:   make(chan struct{}),
	}
	d.space = sync.NewCond(&d.mu)
	go d.write()
	go d.run(read)
	return d, nil
}

// write copies queued packets to stdin and closes it once the input
// channel is closed. After a failed write the rest of the queue is dropped.
func (d *pipeDecoder[T]) write() {
	defer close(d.wrote)
	defer func() { _ = d.proc.Stdin.Close() }()

	var failed bool
	for data := range d.in {
		if failed {
			continue
		}
		if _, err := d.proc.Stdin.Write(data); err != nil {
			failed = true
			d.mu.Lock()
			d.writeErr = err
			d.mu.Unlock()
		}
	}
}

func (d *pipeDecoder[T]) run(read func(io.Reader, func(T)) error) {
	defer close(d.done)

	err := read(d.proc.Stdout, func(v T) {
		d.mu.Lock()
		defer d.mu.Unlock()
		for len(d.out) >= d.depth && !d.closing {
			d.space.Wait()
		}
		if !d.closing {
			d.out = append(d.out, v)
		}
		d.progress = time.Now()
	})
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if err != nil {
		// Output can no longer be parsed; do not leave ffmpeg blocked on a
		// full stdout pipe.
		_ = d.proc.Stop(0)
	}
	if werr := d.proc.Wait(); err == nil {
		err = werr
	}

	d.mu.Lock()
	d.finished = true
	d.readErr = err
	d.mu.Unlock()
}

// send queues data for the writer. It returns ErrDecoderBusy when the
// queue is full.
func (d *pipeDecoder[T]) send(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.inClosed:
		return errors.New("send after flush")
	case d.finished && d.readErr != nil:
		return d.readErr
	case d.writeErr != nil && d.finished:
		return fmt.Errorf("write packet: %w", d.writeErr)
	case d.writeErr != nil:
		// ffmpeg closed stdin and is exiting; receive reports why.
		return ErrDecoderBusy
	}
	select {
	case d.in <- data:
		return nil
	default:
		return ErrDecoderBusy
	}
}

// receive pops the next output. Before Flush it returns ErrNeedMorePackets
// when nothing is buffered. After Flush it returns ErrDecoderBusy while the
// child is still draining, then io.EOF on a clean exit. A child that makes
// no progress for the flush timeout after Flush is killed.
func (d *pipeDecoder[T]) receive() (T, error) {
	var zero T
	d.mu.Lock()

	if len(d.out) > 0 {
		v := d.out[0]
		d.out[0] = zero
		d.out = d.out[1:]
		d.progress = time.Now()
		d.space.Signal()
		d.mu.Unlock()
		return v, nil
	}

	var err error
	switch {
	case d.timedOut != nil:
		err = d.timedOut
	case !d.finished && !d.flushed:
		err = ErrNeedMorePackets
	case !d.finished && time.Since(d.progress) < d.timeout:
		err = ErrDecoderBusy
	case !d.finished:
		terr := fmt.Errorf("flush: timed out after %s", d.timeout)
		d.timedOut = terr
		d.mu.Unlock()
		d.logger.Warn().Dur("timeout", d.timeout).Msg("decoder flush timed out")
		_ = d.proc.Stop(0)
		return zero, terr
	case d.readErr != nil:
		err = d.readErr
	case d.flushed:
		err = io.EOF
	default:
		err = io.ErrUnexpectedEOF
	}
	d.mu.Unlock()
	return zero, err
}

// flush closes the input queue. The writer closes stdin once the queued
// packets are written; ffmpeg then drains and exits.
func (d *pipeDecoder[T]) flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flushed {
		return nil
	}
	d.flushed = true
	d.progress = time.Now()
	d.closeInputLocked()
	return nil
}

func (d *pipeDecoder[T]) closeInputLocked() {
	if !d.inClosed {
		d.inClosed = true
		close(d.in)
	}
}

func (d *pipeDecoder[T]) close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.closeInputLocked()
		d.space.Broadcast()
		d.mu.Unlock()

		select {
		case <-d.done:
		default:
			_ = d.proc.Stop(time.Second)
			<-d.done
		}
		<-d.wrote
		d.mu.Lock()
		d.out = nil
		d.mu.Unlock()
	})
	return nil
}

// ptsQueue hands out packet timestamps in presentation order. Decoders
// emit pictures in presentation order while packets arrive in decode order.
type ptsQueue []int64

func (q *ptsQueue) push(pts int64) {
	if pts < 0 {
		return
	}
	i, _ := slices.BinarySearch(*q, pts)
	*q = slices.Insert(*q, i, pts)
}

func (q *ptsQueue) pop() int64 {
	if len(*q) == 0 {
		return -1
	}
	pts := (*q)[0]
	*q = (*q)[1:]
	return pts
}

// ticksToNanos converts a 90 kHz timestamp to nanoseconds, keeping -1.
func ticksToNanos(ticks int64) int64 {
	if ticks < 0 {
		return -1
	}
	return ticks * 100000 / 9
}

// ffmpegVideoDecoder decodes through an ffmpeg subprocess producing
// YUV4MPEG2 on stdout.
type ffmpegVideoDecoder struct {
	*pipeDecoder[*VideoFrame]
	codec VideoCodec
	pts   ptsQueue
	stats DecoderStats
}

func newFFmpegVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error) {
	format := config.Codec.ElementaryFormat()
	if format == "" {
		return nil, fmt.Errorf("%w: ffmpeg cannot read %s elementary streams", ErrCodecNotSupported, config.Codec)
	}
	if err := ffmpeg.CheckBinaries(config.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotFound, err)
	}
	d, err := startFFmpegVideoDecoder(config, config.FFmpegPath, ffmpeg.DecodeVideoArgs(format, config.Threads))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func startFFmpegVideoDecoder(config VideoDecoderConfig, bin string, args []string) (*ffmpegVideoDecoder, error) {
	logger := log.Sub(config.Logger, "ffmpeg").With().Stringer(log.FieldCodec, config.Codec).Logger()
	pd, err := startPipeDecoder(bin, args, "decode-video", config.FlushTimeout, videoOutputDepth, logger, readY4MFrames)
	if err != nil {
		return nil, err
	}
	return &ffmpegVideoDecoder{pipeDecoder: pd, codec: config.Codec}, nil
}

func readY4MFrames(r io.Reader, emit func(*VideoFrame)) error {
	yr := ffmpeg.NewY4MReader(r)
	for {
		f, err := yr.Next()
		if err != nil {
			return err
		}
		cw := (f.Width + 1) / 2
		emit(&VideoFrame{
			Data:      [][]byte{f.Y, f.U, f.V},
			Stride:    []int{f.Width, cw, cw},
			Width:     f.Width,
			Height:    f.Height,
			Format:    PixelFormatI420,
			Timestamp: -1,
		})
	}
}

func (d *ffmpegVideoDecoder) SendPacket(p Packet) error {
	if err := d.send(p.Data); err != nil {
		if !errors.Is(err, ErrDecoderBusy) {
			d.stats.CorruptedFrames++
		}
		return err
	}
	d.pts.push(p.PTS)
	d.stats.PacketsSent++
	d.stats.BytesDecoded += uint64(len(p.Data))
	return nil
}

func (d *ffmpegVideoDecoder) ReceiveFrame() (*VideoFrame, error) {
	f, err := d.receive()
	if err != nil {
		return nil, err
	}
	f.Timestamp = ticksToNanos(d.pts.pop())
	d.stats.FramesDecoded++
	return f, nil
}

func (d *ffmpegVideoDecoder) Flush() error        { return d.flush() }
func (d *ffmpegVideoDecoder) Close() error        { return d.close() }
func (d *ffmpegVideoDecoder) Provider() Provider  { return ProviderFFmpeg }
func (d *ffmpegVideoDecoder) Codec() VideoCodec   { return d.codec }
func (d *ffmpegVideoDecoder) Stats() DecoderStats { return d.stats }

// ffmpegAudioDecoder decodes through an ffmpeg subprocess producing
// interleaved s16le PCM, already at the requested rate and channel count.
type ffmpegAudioDecoder struct {
	*pipeDecoder[[]byte]
	codec    AudioCodec
	rate     int
	channels int

	base    int64 // ns timestamp of the first packet, -1 until known
	emitted int64 // sample frames handed out
	stats   DecoderStats
}

func newFFmpegAudioDecoder(config AudioDecoderConfig) (AudioDecoder, error) {
	format := config.Codec.ElementaryFormat()
	if format == "" {
		return nil, fmt.Errorf("%w: ffmpeg cannot read %s elementary streams", ErrCodecNotSupported, config.Codec)
	}
	if err := ffmpeg.CheckBinaries(config.FFmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderNotFound, err)
	}
	d, err := startFFmpegAudioDecoder(config, config.FFmpegPath,
		ffmpeg.DecodeAudioArgs(format, config.SampleRate, config.Channels))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func startFFmpegAudioDecoder(config AudioDecoderConfig, bin string, args []string) (*ffmpegAudioDecoder, error) {
	if config.SampleRate <= 0 || config.Channels <= 0 {
		return nil, fmt.Errorf("invalid output format %d Hz x %d", config.SampleRate, config.Channels)
	}
	logger := log.Sub(config.Logger, "ffmpeg").With().Stringer(log.FieldCodec, config.Codec).Logger()
	frameSize := 2 * config.Channels
	read := func(r io.Reader, emit func([]byte)) error {
		return readPCM(r, frameSize, emit)
	}
	pd, err := startPipeDecoder(bin, args, "decode-audio", config.FlushTimeout, audioOutputDepth, logger, read)
	if err != nil {
		return nil, err
	}
	return &ffmpegAudioDecoder{
		pipeDecoder: pd,
		codec:       config.Codec,
		rate:        config.SampleRate,
		channels:    config.Channels,
		base:        -1,
	}, nil
}

// readPCM emits stdout in whole sample frames. A trailing partial frame is
// dropped.
func readPCM(r io.Reader, frameSize int, emit func([]byte)) error {
	buf := make([]byte, 32*1024)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			whole := len(data) - len(data)%frameSize
			if whole > 0 {
				emit(append([]byte(nil), data[:whole]...))
			}
			carry = append(carry[:0:0], data[whole:]...)
		}
		if err != nil {
			return err
		}
	}
}

func (d *ffmpegAudioDecoder) SendPacket(p Packet) error {
	if err := d.send(p.Data); err != nil {
		if !errors.Is(err, ErrDecoderBusy) {
			d.stats.CorruptedFrames++
		}
		return err
	}
	if d.base < 0 {
		d.base = ticksToNanos(p.PTS)
	}
	d.stats.PacketsSent++
	d.stats.BytesDecoded += uint64(len(p.Data))
	return nil
}

func (d *ffmpegAudioDecoder) ReceiveSamples() (*AudioSamples, error) {
	data, err := d.receive()
	if err != nil {
		return nil, err
	}
	count := len(data) / (2 * d.channels)
	ts := int64(-1)
	if d.base >= 0 {
		ts = d.base + d.emitted*int64(time.Second)/int64(d.rate)
	}
	d.emitted += int64(count)
	d.stats.FramesDecoded++
	return &AudioSamples{
		Data:        data,
		SampleRate:  d.rate,
		Channels:    d.channels,
		SampleCount: count,
		Format:      AudioFormatS16,
		Timestamp:   ts,
	}, nil
}

func (d *ffmpegAudioDecoder) Flush() error        { return d.flush() }
func (d *ffmpegAudioDecoder) Close() error        { return d.close() }
func (d *ffmpegAudioDecoder) Provider() Provider  { return ProviderFFmpeg }
func (d *ffmpegAudioDecoder) Codec() AudioCodec   { return d.codec }
func (d *ffmpegAudioDecoder) Stats() DecoderStats { return d.stats }

// The ffmpeg backend is always registered; whether the binary exists is
// checked when a decoder is created, since the path is configurable.
func init() {
	setProviderAvailable(ProviderFFmpeg)
	for _, c := range []VideoCodec{VideoCodecH264, VideoCodecH265, VideoCodecMPEG2} {
		registerVideoDecoder(c, ProviderFFmpeg, newFFmpegVideoDecoder)
	}
	for _, c := range []AudioCodec{AudioCodecAAC, AudioCodecMPEGAudio} {
		registerAudioDecoder(c, ProviderFFmpeg, newFFmpegAudioDecoder)
	}
}
