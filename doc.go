// Package playback decodes a media container and hands out display-ready
// video frames and output-ready audio at the container's frame rate.
//
// An Engine is built over one container. It demuxes the file into video and
// audio packets, decodes them lazily as the caller asks for output, and
// paces video release against the wall clock:
//
//	Open/OpenReader -> PacketSource -> StreamQueues -> video pipeline -> Frame (BGRX)
//	                                               \-> audio pipeline -> AudioSpan (S16, 48 kHz, stereo)
//
// The caller drives everything from one goroutine:
//
//	for !eng.VideoEnded() || !eng.AudioEnded() {
//		if eng.PacerDue() {
//			f, err := eng.PollFrame()
//			if f != nil {
//				// show f
//				eng.MarkFrameReleased()
//			}
//		}
//		spans, err := eng.PollAudioFor(20 * time.Millisecond)
//		// queue spans
//	}
//
// Nothing in the engine blocks waiting for time to pass. Until reports how
// long the caller may sleep. A poll that returns nil with the stream not
// ended means no output was ready on this tick: a refill brought only the
// other stream, or an ffmpeg decoder is still working.
//
// # Containers
//
// MPEG transport streams are demuxed natively. Other containers are remuxed
// to a transport stream by an ffmpeg child process. ReadMetadata reads the
// frame rate and dimensions with ffprobe.
//
// # Decoders
//
// Decoders are chosen from a provider registry. The ffmpeg provider pipes
// the elementary stream through an ffmpeg process and reads raw pictures
// and PCM back. Native providers (OpenH264, libopus) are registered when
// their libraries load; set STREAM_SDK_LIB_PATH (libstream_opus) or
// MEDIA_SDK_LIB_PATH (libmedia_h264) to the directory containing them.
//
// # Build Tags
//
//   - noh264, noopus: disable the native providers
//
// # Errors
//
// Failures are typed: *DemuxError, *DecodeError, *FormatMismatchError and
// *StreamNotFoundError wrap the ErrDemux, ErrDecode, ErrFormatMismatch and
// ErrStreamNotFound sentinels for errors.Is.
package playback
