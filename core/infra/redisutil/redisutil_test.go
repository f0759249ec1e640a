package redisutil

import "testing"

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestParseOptionsInvalid(t *testing.T) {
	if _, err := ParseOptions("not-a-url"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}

func TestInsecureTLSFromEnv(t *testing.T) {
	t.Setenv("ARMBRIDGE_REDIS_TLS_INSECURE", "true")
	opts, err := ParseOptions("rediss://localhost:6380")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure tls config, got %+v", opts.TLSConfig)
	}
}
