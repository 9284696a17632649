package obsv

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestSelfScrapeRendersRecordedInstruments(t *testing.T) {
	scrape := EnableSelfScrape()
	ctx := context.Background()

	PacketFramed(ctx, "in")
	PacketFramed(ctx, "in")
	ChunkQueued(ctx)
	EncoderReadyLatency(ctx, "ffmpeg", 0.42)

	var buf bytes.Buffer
	if err := scrape.WriteTo(ctx, &buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `avgateway_packets_framed_total{direction="in"} 2`) {
		t.Errorf("expected packet counter with direction attribute, got %q", out)
	}
	if !strings.Contains(out, "avgateway_chunks_queued_total 1") {
		t.Errorf("expected chunk counter, got %q", out)
	}
	if !strings.Contains(out, `avgateway_encoder_ready_latency_seconds_count{processor="ffmpeg"} 1`) {
		t.Errorf("expected histogram count line, got %q", out)
	}
}
