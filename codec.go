package playback

import "github.com/thesyncim/playback/internal/mpegts"

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecH264
	VideoCodecH265
	VideoCodecMPEG2
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecH264:
		return "H264"
	case VideoCodecH265:
		return "H265"
	case VideoCodecMPEG2:
		return "MPEG2"
	default:
		return "Unknown"
	}
}

// ElementaryFormat returns the ffmpeg demuxer name for the raw elementary
// stream of this codec, or "" if it has none.
func (c VideoCodec) ElementaryFormat() string {
	switch c {
	case VideoCodecH264:
		return "h264"
	case VideoCodecH265:
		return "hevc"
	case VideoCodecMPEG2:
		return "mpegvideo"
	default:
		return ""
	}
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecAAC
	AudioCodecOpus
	AudioCodecMPEGAudio // MPEG-1/2 layer I-III
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecAAC:
		return "AAC"
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecMPEGAudio:
		return "MPEGAudio"
	default:
		return "Unknown"
	}
}

// ElementaryFormat returns the ffmpeg demuxer name for the raw elementary
// stream of this codec, or "" if it has none. Opus packets in TS carry no
// self-delimiting framing ffmpeg can demux.
func (c AudioCodec) ElementaryFormat() string {
	switch c {
	case AudioCodecAAC:
		return "aac"
	case AudioCodecMPEGAudio:
		return "mp3"
	default:
		return ""
	}
}

// videoCodecFromStream maps a PMT entry to a video codec.
func videoCodecFromStream(es mpegts.ElementaryStream) VideoCodec {
	switch es.StreamType {
	case mpegts.StreamTypeH264:
		return VideoCodecH264
	case mpegts.StreamTypeHEVC:
		return VideoCodecH265
	case mpegts.StreamTypeMPEG1Video, mpegts.StreamTypeMPEG2Video:
		return VideoCodecMPEG2
	case mpegts.StreamTypePrivatePES:
		if es.Registration() == "HEVC" {
			return VideoCodecH265
		}
	}
	return VideoCodecUnknown
}

// audioCodecFromStream maps a PMT entry to an audio codec.
func audioCodecFromStream(es mpegts.ElementaryStream) AudioCodec {
	switch es.StreamType {
	case mpegts.StreamTypeAACADTS:
		return AudioCodecAAC
	case mpegts.StreamTypeMPEG1Audio, mpegts.StreamTypeMPEG2Audio:
		return AudioCodecMPEGAudio
	case mpegts.StreamTypePrivatePES:
		if es.Registration() == "Opus" {
			return AudioCodecOpus
		}
	}
	return AudioCodecUnknown
}
