package playback

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFlushTimeout bounds how long a decoder may go without output while
// draining after Flush.
const DefaultFlushTimeout = 5 * time.Second

// VideoDecoderConfig configures a video decoder.
type VideoDecoderConfig struct {
	Codec    VideoCodec // Codec of the packets that will be sent
	Provider Provider   // Provider to use (ProviderAuto = library chooses)

	Width   int // Expected picture size, a hint only
	Height  int
	Threads int // Decoder threads (0 = auto)

	FFmpegPath   string        // ffmpeg binary for subprocess backends
	FlushTimeout time.Duration // max stall while draining after Flush
	Logger       zerolog.Logger
}

// DefaultVideoDecoderConfig returns a default decoder configuration.
func DefaultVideoDecoderConfig(codec VideoCodec) VideoDecoderConfig {
	return VideoDecoderConfig{
		Codec:        codec,
		Provider:     ProviderAuto,
		FFmpegPath:   "ffmpeg",
		FlushTimeout: DefaultFlushTimeout,
		Logger:       zerolog.Nop(),
	}
}

// AudioDecoderConfig configures an audio decoder.
type AudioDecoderConfig struct {
	Codec    AudioCodec
	Provider Provider

	// Output format requested from backends that can produce it directly.
	// Backends that cannot are resampled by the audio pipeline.
	SampleRate int
	Channels   int

	FFmpegPath   string
	FlushTimeout time.Duration
	Logger       zerolog.Logger
}

// DefaultAudioDecoderConfig returns a default audio decoder configuration.
func DefaultAudioDecoderConfig(codec AudioCodec) AudioDecoderConfig {
	return AudioDecoderConfig{
		Codec:        codec,
		Provider:     ProviderAuto,
		SampleRate:   DefaultOutputSampleRate,
		Channels:     DefaultOutputChannels,
		FFmpegPath:   "ffmpeg",
		FlushTimeout: DefaultFlushTimeout,
		Logger:       zerolog.Nop(),
	}
}

// DecoderStats provides decoding counters.
type DecoderStats struct {
	PacketsSent     uint64 // Packets accepted by SendPacket
	BytesDecoded    uint64 // Compressed bytes accepted
	FramesDecoded   uint64 // Pictures or sample blocks produced
	CorruptedFrames uint64 // Packets the backend rejected
}

// VideoDecoder decodes compressed video packets into raw pictures.
//
// Decoders follow a send/receive contract: every packet is handed to
// SendPacket, then ReceiveFrame is called until it reports
// ErrNeedMorePackets. After Flush, ReceiveFrame drains what the decoder
// still holds and then returns io.EOF.
//
// Decoders backed by another process may return ErrDecoderBusy from
// SendPacket (the packet was not taken) or ReceiveFrame (output is still
// being produced). Neither is an error; the caller retries on a later
// tick.
type VideoDecoder interface {
	io.Closer

	// SendPacket submits one access unit. The decoder may keep p.Data.
	SendPacket(p Packet) error

	// ReceiveFrame returns the next decoded picture. It never blocks.
	// The frame data may be reused after the next call.
	ReceiveFrame() (*VideoFrame, error)

	// Flush signals the end of input.
	Flush() error

	Provider() Provider
	Codec() VideoCodec
	Stats() DecoderStats
}

// AudioDecoder decodes compressed audio packets into raw samples, with the
// same contract as VideoDecoder.
type AudioDecoder interface {
	io.Closer
	SendPacket(p Packet) error
	ReceiveSamples() (*AudioSamples, error)
	Flush() error
	Provider() Provider
	Codec() AudioCodec
	Stats() DecoderStats
}

// --- Registry ---

type videoDecoderFactory func(VideoDecoderConfig) (VideoDecoder, error)
type audioDecoderFactory func(AudioDecoderConfig) (AudioDecoder, error)

type decoderRegistry struct {
	mu sync.RWMutex

	// codec -> provider -> factory
	videoProviders map[VideoCodec]map[Provider]videoDecoderFactory
	audioProviders map[AudioCodec]map[Provider]audioDecoderFactory

	videoDefaults map[VideoCodec]Provider
	audioDefaults map[AudioCodec]Provider
}

func newDecoderRegistry() *decoderRegistry {
	return &decoderRegistry{
		videoProviders: make(map[VideoCodec]map[Provider]videoDecoderFactory),
		audioProviders: make(map[AudioCodec]map[Provider]audioDecoderFactory),
		videoDefaults:  make(map[VideoCodec]Provider),
		audioDefaults:  make(map[AudioCodec]Provider),
	}
}

var globalDecoderRegistry = newDecoderRegistry()

// registerVideoDecoder registers a video decoder factory for a codec+provider.
func registerVideoDecoder(codec VideoCodec, provider Provider, factory videoDecoderFactory) {
	globalDecoderRegistry.registerVideo(codec, provider, factory)
}

// registerAudioDecoder registers an audio decoder factory for a codec+provider.
func registerAudioDecoder(codec AudioCodec, provider Provider, factory audioDecoderFactory) {
	globalDecoderRegistry.registerAudio(codec, provider, factory)
}

func (r *decoderRegistry) registerVideo(codec VideoCodec, provider Provider, factory videoDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.videoProviders[codec] == nil {
		r.videoProviders[codec] = make(map[Provider]videoDecoderFactory)
	}
	r.videoProviders[codec][provider] = factory

	// Prefer permissive license providers as default.
	current, exists := r.videoDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.videoDefaults[codec] = provider
	}
}

func (r *decoderRegistry) registerAudio(codec AudioCodec, provider Provider, factory audioDecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.audioProviders[codec] == nil {
		r.audioProviders[codec] = make(map[Provider]audioDecoderFactory)
	}
	r.audioProviders[codec][provider] = factory

	current, exists := r.audioDefaults[codec]
	if !exists || (provider.License().Permissive() && !current.License().Permissive()) {
		r.audioDefaults[codec] = provider
	}
}

// SetDefaultVideoDecoderProvider sets the default provider for a video codec.
func SetDefaultVideoDecoderProvider(codec VideoCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.videoDefaults[codec] = provider
}

// SetDefaultAudioDecoderProvider sets the default provider for an audio codec.
func SetDefaultAudioDecoderProvider(codec AudioCodec, provider Provider) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.audioDefaults[codec] = provider
}

// NewVideoDecoder creates a video decoder from the registered backends.
func NewVideoDecoder(config VideoDecoderConfig) (VideoDecoder, error) {
	return globalDecoderRegistry.newVideo(config)
}

// NewAudioDecoder creates an audio decoder from the registered backends.
func NewAudioDecoder(config AudioDecoderConfig) (AudioDecoder, error) {
	return globalDecoderRegistry.newAudio(config)
}

func (r *decoderRegistry) newVideo(config VideoDecoderConfig) (VideoDecoder, error) {
	r.mu.RLock()
	providers := r.videoProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.videoDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no decoders for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	config.Provider = p
	return factory(config)
}

func (r *decoderRegistry) newAudio(config AudioDecoderConfig) (AudioDecoder, error) {
	r.mu.RLock()
	providers := r.audioProviders[config.Codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.audioDefaults[config.Codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no decoders for %s", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, config.Codec)
	}
	config.Provider = p
	return factory(config)
}

// VideoDecoderProviders returns the available providers for a video codec.
func VideoDecoderProviders(codec VideoCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	return availableProviders(globalDecoderRegistry.videoProviders[codec])
}

// AudioDecoderProviders returns the available providers for an audio codec.
func AudioDecoderProviders(codec AudioCodec) []Provider {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	return availableProviders(globalDecoderRegistry.audioProviders[codec])
}

func availableProviders[F any](providers map[Provider]F) []Provider {
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	slices.Sort(result)
	return result
}
