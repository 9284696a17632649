package encoder

import (
	"strings"
	"testing"
)

func TestBuildGStreamerArgsIncludesInputPath(t *testing.T) {
	cfg := StreamConfig{Encoder: EncoderSpec{Video: VideoSpec{Codec: "x264", Bitrate: 2000, FPS: 30}, Audio: AudioSpec{Codec: "opus", Bitrate: 96000}}}
	args := buildGStreamerArgs(cfg, "/tmp/avgateway-gst.fifo")
	pipeline := args[len(args)-1]
	if !strings.Contains(pipeline, "/tmp/avgateway-gst.fifo") {
		t.Errorf("expected pipeline to reference the named pipe path, got %q", pipeline)
	}
}

func TestGstreamerSinkByDestinationType(t *testing.T) {
	cases := []struct {
		dest DestinationSpec
		want string
	}{
		{DestinationSpec{Type: "file", Path: "out.mp4"}, "filesink location=out.mp4"},
		{DestinationSpec{Type: "rtmp", Path: "rtmp://host/live"}, "rtmpsink location=rtmp://host/live"},
		{DestinationSpec{}, "fdsink fd=1"},
	}
	for _, c := range cases {
		if got := gstreamerSink(c.dest); got != c.want {
			t.Errorf("gstreamerSink(%+v) = %q, want %q", c.dest, got, c.want)
		}
	}
}

func TestParseGStreamerStats(t *testing.T) {
	line := "progress: fps: 29.97 in: 900 out: 898 drop: 2 dup: 0"
	stats, ok := parseGStreamerStats(line)
	if !ok {
		t.Fatalf("expected line to match")
	}
	if stats.InFrames != 900 || stats.OutFrames != 898 || stats.DroppedFrames != 2 {
		t.Errorf("unexpected parsed stats: %+v", stats)
	}
}

func TestIsGStreamerReadyMarker(t *testing.T) {
	if !isGStreamerReadyMarker("Pipeline is PREROLLED, setting state to PLAYING") {
		t.Error("expected PLAYING line to be recognized as the readiness marker")
	}
	if isGStreamerReadyMarker("Setting pipeline to PAUSED") {
		t.Error("expected a non-PLAYING line to not match")
	}
}
