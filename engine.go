package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/internal/log"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	cfg      Config
	clock    Clock
	videoDec VideoDecoder
	audioDec AudioDecoder
	logger   *zerolog.Logger
	registry prometheus.Registerer
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option { return func(o *engineOptions) { o.cfg = cfg } }

// WithClock sets the pacer's clock. Tests use it to control time.
func WithClock(c Clock) Option { return func(o *engineOptions) { o.clock = c } }

// WithVideoDecoder uses dec instead of one from the registry. The engine
// takes ownership and closes it.
func WithVideoDecoder(dec VideoDecoder) Option { return func(o *engineOptions) { o.videoDec = dec } }

// WithAudioDecoder uses dec instead of one from the registry.
func WithAudioDecoder(dec AudioDecoder) Option { return func(o *engineOptions) { o.audioDec = dec } }

// WithLogger sets the parent logger. Defaults to the package base logger.
func WithLogger(l zerolog.Logger) Option { return func(o *engineOptions) { o.logger = &l } }

// WithMetrics registers the engine's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registry = reg }
}

func buildOptions(opts []Option) *engineOptions {
	o := &engineOptions{cfg: DefaultConfig(), clock: SystemClock()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EngineStats is a snapshot of engine counters.
type EngineStats struct {
	FramesDecoded   int64
	FramesReleased  int64
	AudioSpans      int64
	AudioDuration   time.Duration
	VideoQueued     int
	AudioQueued     int
	SourceExhausted bool
	VideoProvider   Provider
	AudioProvider   Provider
	VideoDecoder    DecoderStats
	AudioDecoder    DecoderStats
}

// Engine decodes one container and hands out frames and audio spans at the
// container's frame rate. It is driven by a single goroutine: the caller
// polls PacerDue each tick and, when due, takes a frame with PollFrame,
// audio with PollAudio and then calls MarkFrameReleased. Methods are not
// safe for concurrent use.
type Engine struct {
	id        string
	meta      ContainerMetadata
	src       PacketSource
	queues    *StreamQueues
	videoDec  VideoDecoder
	audioDec  AudioDecoder
	video     *videoPipeline
	audio     *audioPipeline
	pacer     *Pacer
	transport *TransportState
	metrics   *Metrics
	logger    zerolog.Logger

	released int64
	closed   bool
	closeErr error
}

// Open opens the container at path. Transport streams are demuxed
// directly; other containers are remuxed by ffmpeg first. Cancelling ctx
// stops the remux helper and the demuxer.
func Open(ctx context.Context, path string, meta ContainerMetadata, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	id, logger := engineLogger(o)
	src, err := openContainer(ctx, path, o.cfg.FFmpegPath, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str(log.FieldPath, path).Msg("container opened")
	return newEngine(o, id, logger, src, meta)
}

// OpenReader plays an MPEG transport stream read from r. If r is an
// io.Closer it is closed with the engine.
func OpenReader(ctx context.Context, r io.Reader, meta ContainerMetadata, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	id, logger := engineLogger(o)
	src, err := NewTSSource(ctx, r, logger)
	if err != nil {
		return nil, err
	}
	return newEngine(o, id, logger, src, meta)
}

// NewEngine builds an engine over src. The engine owns src from here on,
// including when NewEngine fails.
func NewEngine(src PacketSource, meta ContainerMetadata, opts ...Option) (*Engine, error) {
	o := buildOptions(opts)
	id, logger := engineLogger(o)
	return newEngine(o, id, logger, src, meta)
}

func engineLogger(o *engineOptions) (string, zerolog.Logger) {
	id := uuid.NewString()
	logger := log.WithComponent("engine")
	if o.logger != nil {
		logger = log.Sub(*o.logger, "engine")
	}
	if lvl, err := zerolog.ParseLevel(o.cfg.LogLevel); err == nil && o.cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}
	return id, logger.With().Str(log.FieldEngineID, id).Logger()
}

func newEngine(o *engineOptions, id string, logger zerolog.Logger, src PacketSource, meta ContainerMetadata) (e *Engine, err error) {
	videoDec, audioDec := o.videoDec, o.audioDec
	var metrics *Metrics
	defer func() {
		if err == nil {
			return
		}
		metrics.Unregister()
		if videoDec != nil {
			_ = videoDec.Close()
		}
		if audioDec != nil {
			_ = audioDec.Close()
		}
		_ = src.Close()
	}()

	if err := meta.Validate(); err != nil {
		return nil, err
	}
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if o.registry != nil {
		metrics = NewMetrics(o.registry, cfg.MetricsNamespace, id)
	}

	info := src.Streams()
	if videoDec == nil {
		vp, _ := cfg.videoProvider()
		videoDec, err = NewVideoDecoder(VideoDecoderConfig{
			Codec:        info.VideoCodec,
			Provider:     vp,
			Width:        meta.Width,
			Height:       meta.Height,
			Threads:      cfg.DecoderThreads,
			FFmpegPath:   cfg.FFmpegPath,
			FlushTimeout: cfg.FlushTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, &DecodeError{Stream: StreamVideo, Err: err}
		}
	}
	if audioDec == nil {
		ap, _ := cfg.audioProvider()
		audioDec, err = NewAudioDecoder(AudioDecoderConfig{
			Codec:        info.AudioCodec,
			Provider:     ap,
			SampleRate:   cfg.OutputSampleRate,
			Channels:     cfg.OutputChannels,
			FFmpegPath:   cfg.FFmpegPath,
			FlushTimeout: cfg.FlushTimeout,
			Logger:       logger,
		})
		if err != nil {
			return nil, &DecodeError{Stream: StreamAudio, Err: err}
		}
	}

	queues := NewStreamQueues(src, cfg.RefillBatch, log.Sub(logger, "queue"), metrics)
	transport := NewTransportState()
	pacer := NewPacer(meta, transport, o.clock)
	pacer.logger = log.Sub(logger, "pacer")
	pacer.metrics = metrics

	e = &Engine{
		id:        id,
		meta:      meta,
		src:       src,
		queues:    queues,
		videoDec:  videoDec,
		audioDec:  audioDec,
		video:     newVideoPipeline(queues, videoDec, meta, log.Sub(logger, "video"), metrics),
		audio:     newAudioPipeline(queues, audioDec, cfg.OutputSampleRate, cfg.OutputChannels, log.Sub(logger, "audio"), metrics),
		pacer:     pacer,
		transport: transport,
		metrics:   metrics,
		logger:    logger,
	}
	logger.Info().
		Str(log.FieldResolution, fmt.Sprintf("%dx%d", meta.Width, meta.Height)).
		Int(log.FieldFPS, meta.FPS).
		Dur(log.FieldInterval, meta.FrameInterval()).
		Stringer("video_codec", info.VideoCodec).
		Stringer("video_provider", videoDec.Provider()).
		Stringer("audio_codec", info.AudioCodec).
		Stringer("audio_provider", audioDec.Provider()).
		Msg("engine ready")
	return e, nil
}

// ID returns the engine's instance id, also attached to its log lines and
// metrics.
func (e *Engine) ID() string { return e.id }

// Metadata returns the container metadata the engine was built with.
func (e *Engine) Metadata() ContainerMetadata { return e.meta }

// Streams returns the selected elementary streams.
func (e *Engine) Streams() StreamInfo { return e.src.Streams() }

// PollFrame returns the next decoded frame in BGRX. It returns nil, nil
// when no frame is ready yet or the video stream has ended; VideoEnded
// tells the two apart. A *FormatMismatchError is returned again on every
// later call; any other error is reported once.
func (e *Engine) PollFrame() (*Frame, error) {
	if e.closed {
		return nil, ErrClosed
	}
	return e.video.Poll()
}

// PollAudio returns the next span of audio. It returns nil, nil when
// nothing is ready yet or the audio stream has ended; AudioEnded tells the
// two apart.
func (e *Engine) PollAudio() (*AudioSpan, error) {
	if e.closed {
		return nil, ErrClosed
	}
	return e.audio.Poll()
}

// PollAudioFor polls audio until the spans cover at least d or PollAudio
// has nothing more to give on this call. Spans gathered before an error are returned with it.
func (e *Engine) PollAudioFor(d time.Duration) ([]*AudioSpan, error) {
	var spans []*AudioSpan
	var total time.Duration
	for total < d {
		span, err := e.PollAudio()
		if err != nil {
			return spans, err
		}
		if span == nil {
			break
		}
		spans = append(spans, span)
		total += span.Duration()
	}
	return spans, nil
}

// VideoEnded reports whether PollFrame will never return another frame.
func (e *Engine) VideoEnded() bool { return e.closed || e.video.Ended() }

// AudioEnded reports whether PollAudio will never return another span.
func (e *Engine) AudioEnded() bool { return e.closed || e.audio.Ended() }

// PacerDue reports whether the next frame should be shown now. It never
// blocks.
func (e *Engine) PacerDue() bool {
	if e.closed {
		return false
	}
	return e.pacer.Due()
}

// Until returns how long the caller may wait before the next frame is due.
func (e *Engine) Until() time.Duration { return e.pacer.Until() }

// MarkFrameReleased tells the pacer a frame was shown now.
func (e *Engine) MarkFrameReleased() {
	if e.closed {
		return
	}
	e.pacer.MarkReleased()
	e.released++
}

// Transport returns the engine's transport controls.
func (e *Engine) Transport() *TransportState { return e.transport }

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		FramesDecoded:   e.video.Produced(),
		FramesReleased:  e.released,
		AudioSpans:      e.audio.spans,
		AudioDuration:   e.audio.duration,
		VideoQueued:     e.queues.Len(StreamVideo),
		AudioQueued:     e.queues.Len(StreamAudio),
		SourceExhausted: e.queues.Exhausted(),
		VideoProvider:   e.videoDec.Provider(),
		AudioProvider:   e.audioDec.Provider(),
		VideoDecoder:    e.videoDec.Stats(),
		AudioDecoder:    e.audioDec.Stats(),
	}
}

// Close releases the decoders and the source. Queued packets are dropped.
// It is safe to call more than once.
func (e *Engine) Close() error {
	if e.closed {
		return e.closeErr
	}
	e.closed = true
	e.queues.Drop()

	var errs []error
	if err := e.videoDec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close video decoder: %w", err))
	}
	if err := e.audioDec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audio decoder: %w", err))
	}
	if err := e.src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	e.closeErr = errors.Join(errs...)
	e.metrics.Unregister()

	s := e.Stats()
	e.logger.Info().
		Int64("frames_decoded", s.FramesDecoded).
		Int64("frames_released", s.FramesReleased).
		Dur("audio", s.AudioDuration).
		Err(e.closeErr).
		Msg("engine closed")
	return e.closeErr
}
