package ffmpeg

import "strconv"

// Decoders are fed through stdin, so they must not get -nostdin.
func baseArgs(stdin bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if !stdin {
		args = append(args, "-nostdin")
	}
	return args
}

// RemuxArgs rewraps the first video and audio stream of path into MPEG-TS
// on stdout without re-encoding. The mpegts muxer inserts the Annex B
// conversion for H.264 and HEVC itself. Both maps are optional so a missing
// stream shows up as an absent PMT entry rather than an ffmpeg failure.
func RemuxArgs(path string) []string {
	return append(baseArgs(false),
		"-i", path,
		"-map", "0:v:0?",
		"-map", "0:a:0?",
		"-c", "copy",
		"-f", "mpegts",
		"pipe:1",
	)
}

// DecodeVideoArgs reads an elementary stream of inputFormat on stdin and
// writes yuv420p frames on stdout in a YUV4MPEG2 stream, which carries the
// decoded picture size.
func DecodeVideoArgs(inputFormat string, threads int) []string {
	args := baseArgs(true)
	if threads > 0 {
		args = append(args, "-threads", strconv.Itoa(threads))
	}
	return append(args,
		"-f", inputFormat,
		"-i", "pipe:0",
		"-f", "yuv4mpegpipe",
		"-pix_fmt", "yuv420p",
		"pipe:1",
	)
}

// DecodeAudioArgs reads an elementary stream of inputFormat on stdin and
// writes interleaved s16le PCM at rate/channels on stdout.
func DecodeAudioArgs(inputFormat string, rate, channels int) []string {
	return append(baseArgs(true),
		"-f", inputFormat,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
}
