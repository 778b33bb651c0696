package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/internal/ffmpeg"
	"github.com/thesyncim/playback/internal/mpegts"
)

// StreamID tags a packet with the elementary stream it belongs to.
type StreamID uint8

const (
	StreamVideo StreamID = iota
	StreamAudio
)

func (s StreamID) String() string {
	switch s {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Packet is one compressed access unit. Ownership moves to the decoder
// when it is sent.
type Packet struct {
	Stream StreamID
	Data   []byte
	PTS    int64 // 90 kHz, -1 if absent
	DTS    int64 // 90 kHz, -1 if absent
}

// StreamInfo describes the streams a source selected.
type StreamInfo struct {
	VideoCodec VideoCodec
	AudioCodec AudioCodec
	VideoPID   uint16
	AudioPID   uint16
}

// PacketSource yields packets of both streams in container order.
type PacketSource interface {
	// Next returns the next packet, io.EOF at the end of the container or
	// a *DemuxError if the container is malformed.
	Next() (Packet, error)
	Streams() StreamInfo
	Close() error
}

// tsSource demuxes an MPEG transport stream.
type tsSource struct {
	dmx    *mpegts.Demuxer
	closer io.Closer
	info   StreamInfo
	logger zerolog.Logger

	// PES units read while looking for the PMT.
	early []*mpegts.Unit
	err   error
}

// NewTSSource reads a transport stream from r. It consumes the stream up to
// the first PMT to select the video and audio elementary streams. If r is
// an io.Closer it is closed by Close.
func NewTSSource(ctx context.Context, r io.Reader, logger zerolog.Logger, opts ...mpegts.Option) (PacketSource, error) {
	s := &tsSource{dmx: mpegts.NewDemuxer(ctx, r, opts...), logger: logger}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	if err := s.selectStreams(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *tsSource) selectStreams() error {
	for {
		u, err := s.dmx.Next()
		if errors.Is(err, io.EOF) {
			if perr := s.dmx.PSIError(); perr != nil {
				return &DemuxError{Op: "read", Err: fmt.Errorf("no valid PMT: %w", perr)}
			}
			return &StreamNotFoundError{Stream: StreamVideo, Reason: "no PMT in container"}
		}
		if err != nil {
			return &DemuxError{Op: "read", Err: err}
		}
		switch {
		case u.PES != nil:
			// Units before the PMT cannot be routed yet.
			s.early = append(s.early, u)
			continue
		case u.PMT == nil:
			continue
		}

		var video, audio *mpegts.ElementaryStream
		for i := range u.PMT.Streams {
			es := &u.PMT.Streams[i]
			if video == nil && videoCodecFromStream(*es) != VideoCodecUnknown {
				video = es
			} else if audio == nil && audioCodecFromStream(*es) != AudioCodecUnknown {
				audio = es
			}
		}
		if video == nil {
			return &StreamNotFoundError{Stream: StreamVideo, Reason: "no supported video stream in PMT"}
		}
		if audio == nil {
			return &StreamNotFoundError{Stream: StreamAudio, Reason: "no supported audio stream in PMT"}
		}
		s.info = StreamInfo{
			VideoCodec: videoCodecFromStream(*video),
			AudioCodec: audioCodecFromStream(*audio),
			VideoPID:   video.PID,
			AudioPID:   audio.PID,
		}
		s.logger.Debug().
			Stringer("video", s.info.VideoCodec).Uint16("video_pid", video.PID).
			Stringer("audio", s.info.AudioCodec).Uint16("audio_pid", audio.PID).
			Msg("streams selected")
		return nil
	}
}

func (s *tsSource) Streams() StreamInfo { return s.info }

func (s *tsSource) Next() (Packet, error) {
	if s.err != nil {
		return Packet{}, s.err
	}
	for {
		var u *mpegts.Unit
		if len(s.early) > 0 {
			u, s.early = s.early[0], s.early[1:]
		} else {
			var err error
			u, err = s.dmx.Next()
			if errors.Is(err, io.EOF) {
				s.err = io.EOF
				return Packet{}, io.EOF
			}
			if err != nil {
				s.err = &DemuxError{Op: "read", Err: err}
				return Packet{}, s.err
			}
		}
		if u.PES == nil {
			continue
		}

		var id StreamID
		switch u.PID {
		case s.info.VideoPID:
			id = StreamVideo
		case s.info.AudioPID:
			id = StreamAudio
		default:
			continue
		}
		return Packet{Stream: id, Data: u.PES.Data, PTS: u.PES.PTS, DTS: u.PES.DTS}, nil
	}
}

func (s *tsSource) Close() error {
	if s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// openContainer opens path as a packet source. Transport streams are read
// directly; anything else is rewrapped to TS by ffmpeg.
func openContainer(ctx context.Context, path, ffmpegBin string, logger zerolog.Logger) (PacketSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &DemuxError{Op: "open", Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".trp":
		f, err := os.Open(path)
		if err != nil {
			return nil, &DemuxError{Op: "open", Err: err}
		}
		return NewTSSource(ctx, f, logger)
	case ".m2ts":
		f, err := os.Open(path)
		if err != nil {
			return nil, &DemuxError{Op: "open", Err: err}
		}
		return NewTSSource(ctx, f, logger, mpegts.WithPacketSize(192))
	}

	rs, err := ffmpeg.Remux(ctx, ffmpegBin, path, &logger)
	if err != nil {
		return nil, &DemuxError{Op: "open", Err: fmt.Errorf("remux %s: %w", path, err)}
	}
	return NewTSSource(ctx, rs, logger)
}
