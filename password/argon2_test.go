package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	// Low cost keeps the suite fast; floors still apply.
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestHasher(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	record, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(record, "$argon2id$") {
		t.Fatalf("expected PHC argon2id record, got %q", record)
	}

	match, err := h.Verify("correct horse battery staple", record)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !match {
		t.Fatal("expected match for correct password")
	}

	match, err = h.Verify("wrong password!", record)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if match {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestHashProducesUniqueSalts(t *testing.T) {
	h := newTestHasher(t)

	first, err := h.Hash("same password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("same password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestVerifyMalformedRecords(t *testing.T) {
	h := newTestHasher(t)

	cases := []struct {
		name   string
		record string
	}{
		{"empty", ""},
		{"not phc", "plainhash"},
		{"wrong algorithm", "$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"},
		{"missing version", "$argon2id$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"},
		{"zero memory", "$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA"},
		{"short salt", "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, err := h.Verify("whatever password", tc.record)
			if match {
				t.Fatal("malformed record must never match")
			}
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected ErrMalformedRecord, got %v", err)
			}
		})
	}
}

func TestVerifyHonorsRecordParameters(t *testing.T) {
	weak := newTestHasher(t)

	record, err := weak.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	strongCfg := testConfig()
	strongCfg.Memory = 16 * 1024
	strongCfg.Time = 2
	strong, err := NewArgon2(strongCfg)
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	// The stronger hasher must still verify records written under the
	// weaker parameters.
	match, err := strong.Verify("correct horse battery staple", record)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !match {
		t.Fatal("expected cross-parameter verification to succeed")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newTestHasher(t)

	record, err := weak.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	needed, err := weak.NeedsUpgrade(record)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if needed {
		t.Fatal("record at current parameters must not need upgrade")
	}

	strongCfg := testConfig()
	strongCfg.Memory = 64 * 1024
	strong, err := NewArgon2(strongCfg)
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	needed, err = strong.NeedsUpgrade(record)
	if err != nil {
		t.Fatalf("NeedsUpgrade failed: %v", err)
	}
	if !needed {
		t.Fatal("weaker record must need upgrade under stronger config")
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Memory = 1024 },
		func(c *Config) { c.Time = 0 },
		func(c *Config) { c.Parallelism = 0 },
		func(c *Config) { c.SaltLength = 8 },
		func(c *Config) { c.KeyLength = 8 },
	}

	for i, mutate := range cases {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config rejection", i)
		}
	}
}
