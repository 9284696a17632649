package encoder

import (
	"fmt"
	"regexp"
	"strconv"
)

// buildFFmpegArgs synthesizes the ffmpeg command line deterministically
// from cfg. Kept as a pure function per the "compose via the interface,
// not a shared base class" guidance: the gstreamer adapter has its own
// synthesis function with none of this shared.
func buildFFmpegArgs(cfg StreamConfig) []string {
	v := cfg.Encoder.Video
	a := cfg.Encoder.Audio

	gop := GOPSize(v.FPS)
	maxrate := v.Bitrate
	bufsize := 2 * v.Bitrate

	args := []string{
		"-loglevel", "info",
		"-f", "webm",
		"-i", "pipe:0",
	}

	switch v.Codec {
	case "h264_nvenc":
		args = append(args, "-c:v", "h264_nvenc", "-preset", "p4")
	case "hevc_nvenc":
		args = append(args, "-c:v", "hevc_nvenc", "-preset", "p4")
	default: // libx264
		args = append(args, "-c:v", "libx264", "-preset", "veryfast")
	}

	args = append(args,
		"-b:v", fmt.Sprintf("%dk", v.Bitrate),
		"-maxrate", fmt.Sprintf("%dk", maxrate),
		"-bufsize", fmt.Sprintf("%dk", bufsize),
		"-g", strconv.Itoa(gop),
		"-r", strconv.Itoa(v.FPS),
		"-c:a", a.Codec,
		"-b:a", strconv.Itoa(a.Bitrate),
		"-ar", strconv.Itoa(a.SampleRate),
	)

	switch {
	case cfg.Destination.Type == "rtmp":
		args = append(args, "-f", "flv", cfg.Destination.Path)
	case cfg.Destination.Type == "file":
		args = append(args, cfg.Destination.Path)
	default: // "" or an additive cloud destination.Type
		args = append(args, "-f", "mpegts", "pipe:1")
	}

	return args
}

var ffmpegStatsLine = regexp.MustCompile(
	`frame=\s*(\d+).*?fps=\s*([\d.]+).*?size=\s*(\d+)kB.*?time=(\d+):(\d+):(\d+)\.(\d+).*?bitrate=\s*([\d.]+)kbits/s.*?speed=\s*([\d.]+)x`,
)

// parseFFmpegStats extracts a Stats record from one ffmpeg progress line.
// ffmpeg emits a progress line at whatever cadence it chooses; every line
// that matches is reported, unlike the gstreamer adapter's one-per-second
// dedup.
func parseFFmpegStats(line string) (Stats, bool) {
	m := ffmpegStatsLine.FindStringSubmatch(line)
	if m == nil {
		return Stats{}, false
	}

	frame, _ := strconv.ParseInt(m[1], 10, 64)
	fps, _ := strconv.ParseFloat(m[2], 64)
	sizeKB, _ := strconv.ParseInt(m[3], 10, 64)
	hh, _ := strconv.ParseInt(m[4], 10, 64)
	mm, _ := strconv.ParseInt(m[5], 10, 64)
	ss, _ := strconv.ParseInt(m[6], 10, 64)
	cs, _ := strconv.ParseInt(m[7], 10, 64)
	bitrate, _ := strconv.ParseFloat(m[8], 64)
	speed, _ := strconv.ParseFloat(m[9], 64)

	timeMs := ((hh*3600+mm*60+ss)*1000 + cs*10)

	return Stats{
		Frame:       frame,
		FPS:         fps,
		SizeKB:      sizeKB,
		TimeMs:      timeMs,
		BitrateKbps: bitrate,
		Speed:       speed,
	}, true
}
