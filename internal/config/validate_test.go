package config

import "testing"

func TestValidateClampsMaxPacketSize(t *testing.T) {
	cfg := Default()
	cfg.MaxPacketSize = 10
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation warning for undersized max_packet_size")
	}
	if cfg.MaxPacketSize != DefaultMaxPacketSize {
		t.Fatalf("expected max_packet_size clamped to %d, got %d", DefaultMaxPacketSize, cfg.MaxPacketSize)
	}
}

func TestValidateClampsChunkWaitTimeout(t *testing.T) {
	cfg := Default()
	cfg.ChunkWaitTimeout = 0
	cfg.Validate()
	if cfg.ChunkWaitTimeout != 10 {
		t.Fatalf("expected chunk_wait_timeout clamped to 10, got %d", cfg.ChunkWaitTimeout)
	}

	cfg.ChunkWaitTimeout = 5000
	cfg.Validate()
	if cfg.ChunkWaitTimeout != 300 {
		t.Fatalf("expected chunk_wait_timeout clamped to 300, got %d", cfg.ChunkWaitTimeout)
	}
}

func TestValidateClampsCheckIntervalToTimeout(t *testing.T) {
	cfg := Default()
	cfg.ChunkWaitTimeout = 5
	cfg.ChunkWaitCheckInterval = 30
	cfg.Validate()
	if cfg.ChunkWaitCheckInterval != 5 {
		t.Fatalf("expected chunk_wait_check_interval clamped to timeout 5, got %d", cfg.ChunkWaitCheckInterval)
	}
}

func TestValidateFallsBackToPublicSTUNWhenEmpty(t *testing.T) {
	cfg := Default()
	cfg.ICEServers = nil
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation warning for empty ice_servers")
	}
	if len(cfg.ICEServers) == 0 {
		t.Fatal("expected a fallback STUN server to be populated")
	}
}

func TestValidateRejectsBadICEScheme(t *testing.T) {
	cfg := Default()
	cfg.ICEServers = []string{"http://example.com"}
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation error for a non stun/turn ice server")
	}
}

func TestValidateRejectsControlCharsInAuthKey(t *testing.T) {
	cfg := Default()
	cfg.AuthKey = "abc\x00def"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation error for control characters in auth_key")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected a validation error for an unknown log level")
	}
}

func TestDefaultPassesValidationCleanly(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("expected Default() to validate cleanly, got %v", errs)
	}
}
