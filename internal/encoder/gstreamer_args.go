package encoder

import (
	"fmt"
	"regexp"
	"strconv"
)

// buildGStreamerArgs synthesizes a gst-launch-1.0 pipeline description.
// inputPath is the named pipe the caller writes chunks into; filesrc
// reads from it instead of stdin.
func buildGStreamerArgs(cfg StreamConfig, inputPath string) []string {
	v := cfg.Encoder.Video
	a := cfg.Encoder.Audio

	gop := GOPSize(v.FPS)
	bitrateBps := v.Bitrate * 1000

	var encoder string
	switch v.Codec {
	case "h264_nvenc":
		encoder = fmt.Sprintf("nvh264enc bitrate=%d", v.Bitrate)
	default: // x264
		encoder = fmt.Sprintf("x264enc key-int-max=%d bitrate=%d", gop, v.Bitrate)
	}

	sink := gstreamerSink(cfg.Destination)

	pipeline := fmt.Sprintf(
		"filesrc location=%s ! decodebin name=d "+
			"d. ! videoconvert ! videorate ! video/x-raw,framerate=%d/1 ! %s ! queue ! mux. "+
			"d. ! audioconvert ! audioresample ! %s bitrate=%d ! queue ! mux. "+
			"%s name=mux ! %s",
		inputPath, v.FPS, encoder, a.Codec, bitrateBps, muxerFor(cfg.Destination), sink,
	)

	return []string{"-v", "-e", pipeline}
}

func muxerFor(d DestinationSpec) string {
	if d.Type == "rtmp" {
		return "flvmux"
	}
	return "mp4mux"
}

func gstreamerSink(d DestinationSpec) string {
	switch d.Type {
	case "rtmp":
		return fmt.Sprintf("rtmpsink location=%s", d.Path)
	case "file":
		return fmt.Sprintf("filesink location=%s", d.Path)
	default:
		return "fdsink fd=1"
	}
}

var gstreamerProgressLine = regexp.MustCompile(
	`fps:\s*([\d.]+).*?in:\s*(\d+).*?out:\s*(\d+).*?drop:\s*(\d+).*?dup:\s*(\d+)`,
)

// parseGStreamerStats extracts a Stats record from a progress line. The
// caller is responsible for the one-per-second rate limiting; this
// function only parses and stamps the truncated-second timestamp used
// for that dedup.
func parseGStreamerStats(line string) (Stats, bool) {
	m := gstreamerProgressLine.FindStringSubmatch(line)
	if m == nil {
		return Stats{}, false
	}

	fps, _ := strconv.ParseFloat(m[1], 64)
	inFrames, _ := strconv.ParseInt(m[2], 10, 64)
	outFrames, _ := strconv.ParseInt(m[3], 10, 64)
	dropped, _ := strconv.ParseInt(m[4], 10, 64)
	duplicated, _ := strconv.ParseInt(m[5], 10, 64)

	return Stats{
		FPS:              fps,
		InFrames:         inFrames,
		OutFrames:        outFrames,
		DroppedFrames:    dropped,
		DuplicatedFrames: duplicated,
		TimestampSec:     outFrames / maxInt64(1, int64(fps)),
	}, true
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
