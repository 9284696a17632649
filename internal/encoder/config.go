package encoder

import "encoding/json"

// StreamConfig is the operator-supplied configuration delivered in the
// payload of the SessionStart packet. Unknown fields are ignored; unset
// fields draw from per-adapter defaults.
type StreamConfig struct {
	Processor   string          `json:"processor"`
	Destination DestinationSpec `json:"destination"`
	Encoder     EncoderSpec     `json:"encoder"`
}

type DestinationSpec struct {
	Type string `json:"type"` // "file" | "rtmp" | "" (raw pipe to stdout)
	Path string `json:"path"`
}

type EncoderSpec struct {
	Video VideoSpec `json:"video"`
	Audio AudioSpec `json:"audio"`
}

type VideoSpec struct {
	Codec   string `json:"codec"`
	Bitrate int    `json:"bitrate"` // kbit/s
	FPS     int    `json:"fps"`
}

type AudioSpec struct {
	Codec      string `json:"codec"`
	Bitrate    int    `json:"bitrate"`    // bits/sec
	SampleRate int    `json:"sampleRate"` // Hz
}

// ParseStreamConfig decodes a SessionStart payload, applying per-adapter
// defaults for any field the client omitted.
func ParseStreamConfig(payload []byte) (StreamConfig, error) {
	var cfg StreamConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return StreamConfig{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *StreamConfig) applyDefaults() {
	if c.Processor == "" {
		c.Processor = "ffmpeg"
	}
	if c.Encoder.Video.Codec == "" {
		if c.Processor == "gstreamer" {
			c.Encoder.Video.Codec = "x264"
		} else {
			c.Encoder.Video.Codec = "libx264"
		}
	}
	if c.Encoder.Video.Bitrate == 0 {
		c.Encoder.Video.Bitrate = 3000
	}
	if c.Encoder.Video.FPS == 0 {
		c.Encoder.Video.FPS = 30
	}
	if c.Encoder.Audio.Codec == "" {
		c.Encoder.Audio.Codec = "aac"
	}
	if c.Encoder.Audio.Bitrate == 0 {
		c.Encoder.Audio.Bitrate = 128000
	}
	if c.Encoder.Audio.SampleRate == 0 {
		c.Encoder.Audio.SampleRate = 44100
	}
}

// cloudDestinationTypes are the additive destination.type values that
// stream the encoder's own stdout to a cloud object-storage sink rather
// than to a file or RTMP URL; the core's three original destination
// values (file, rtmp, "") are untouched by this set.
var cloudDestinationTypes = map[string]bool{
	"s3":     true,
	"azblob": true,
	"gcs":    true,
	"b2":     true,
}

// IsPipedDestination reports whether the argument synthesis should
// target stdout: true for the raw-pipe default ("") and for every
// additive cloud destination, which all relay the child's stdout into a
// destination.Sink instead of handing the tool a file path or URL.
func IsPipedDestination(destType string) bool {
	return destType == "" || cloudDestinationTypes[destType]
}

// GOPSize computes the keyframe interval from the target frame rate:
// round(fps * 2).
func GOPSize(fps int) int {
	return int(float64(fps)*2 + 0.5)
}

// FrameInterval is the minimum spacing, in milliseconds, the pacing
// worker must honor between successive writes to the encoder at the
// given frame rate: 1000 / fps.
func FrameInterval(fps int) int {
	if fps <= 0 {
		fps = 30
	}
	return 1000 / fps
}
