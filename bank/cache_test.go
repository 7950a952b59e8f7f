package bank

import (
	"errors"
	"testing"
	"time"

	"github.com/mewspay/vpos/gateway"
)

// countingDirectory records how often each lookup reaches the backing
// directory.
type countingDirectory struct {
	profiles map[string]*Profile
	calls    int
}

func (d *countingDirectory) BankByCode(code string) (*Profile, error) {
	for _, p := range d.profiles {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, NewNotFound("bank " + code)
}

func (d *countingDirectory) BankByPrefix(prefix string) (*Profile, error) {
	d.calls++
	if p, ok := d.profiles[prefix]; ok {
		return p, nil
	}
	return nil, NewNotFound("bin " + prefix)
}

func (d *countingDirectory) DefaultBank() (*Profile, error) {
	return nil, NewNotFound("default bank")
}

func testDirectory() *countingDirectory {
	return &countingDirectory{profiles: map[string]*Profile{
		"411111": {Code: "garanti", Kind: gateway.KindGaranti, Active: true},
		"540669": {Code: "estpos", Kind: gateway.KindEstPOS, Active: true},
		"450634": {Code: "posnet", Kind: gateway.KindPosNet, Active: true},
	}}
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := cached.BankByPrefix("411111")
		if err != nil {
			t.Fatalf("BankByPrefix() error = %v", err)
		}
		if p.Code != "garanti" {
			t.Errorf("Code = %s", p.Code)
		}
	}

	if inner.calls != 1 {
		t.Errorf("backing lookups = %d, want 1", inner.calls)
	}

	stats := cached.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("hits=%d misses=%d, want 2/1", stats.Hits, stats.Misses)
	}
}

func TestCachedDirectory_CachesMisses(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := cached.BankByPrefix("999999")
		if !IsNotFound(err) {
			t.Fatalf("expected not-found, got %v", err)
		}
	}

	// An unknown prefix hits the directory once; repeats answer from
	// the cached miss.
	if inner.calls != 1 {
		t.Errorf("backing lookups = %d, want 1", inner.calls)
	}
}

func TestCachedDirectory_TTLExpiry(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, 10*time.Millisecond)

	if _, err := cached.BankByPrefix("411111"); err != nil {
		t.Fatalf("BankByPrefix() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cached.BankByPrefix("411111"); err != nil {
		t.Fatalf("BankByPrefix() error = %v", err)
	}

	if inner.calls != 2 {
		t.Errorf("backing lookups = %d, want 2 after TTL expiry", inner.calls)
	}
	if cached.Stats().TTLExpiries != 1 {
		t.Errorf("TTLExpiries = %d, want 1", cached.Stats().TTLExpiries)
	}
}

func TestCachedDirectory_LRUEviction(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 2, time.Minute)

	// Fill the two slots, then touch the first so the second is oldest.
	_, _ = cached.BankByPrefix("411111")
	_, _ = cached.BankByPrefix("540669")
	_, _ = cached.BankByPrefix("411111")

	// Inserting a third evicts 540669.
	_, _ = cached.BankByPrefix("450634")

	calls := inner.calls
	_, _ = cached.BankByPrefix("411111")
	if inner.calls != calls {
		t.Error("411111 should still be cached")
	}
	_, _ = cached.BankByPrefix("540669")
	if inner.calls != calls+1 {
		t.Error("540669 should have been evicted")
	}

	if cached.Stats().Evictions == 0 {
		t.Error("eviction counter not incremented")
	}
}

func TestCachedDirectory_Invalidate(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, time.Minute)

	_, _ = cached.BankByPrefix("411111")
	cached.Invalidate("411111")
	_, _ = cached.BankByPrefix("411111")

	if inner.calls != 2 {
		t.Errorf("backing lookups = %d, want 2 after invalidation", inner.calls)
	}
}

func TestCachedDirectory_Clear(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, time.Minute)

	_, _ = cached.BankByPrefix("411111")
	_, _ = cached.BankByPrefix("540669")
	cached.Clear()

	if got := cached.Stats().Size; got != 0 {
		t.Errorf("Size = %d after Clear", got)
	}

	_, _ = cached.BankByPrefix("411111")
	if inner.calls != 3 {
		t.Errorf("backing lookups = %d, want 3", inner.calls)
	}
}

func TestCachedDirectory_PassThroughLookups(t *testing.T) {
	inner := testDirectory()
	cached := NewCachedDirectory(inner, 10, time.Minute)

	p, err := cached.BankByCode("garanti")
	if err != nil {
		t.Fatalf("BankByCode() error = %v", err)
	}
	if p.Code != "garanti" {
		t.Errorf("Code = %s", p.Code)
	}

	if _, err := cached.DefaultBank(); !IsNotFound(err) {
		t.Errorf("expected not-found from inner, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	err := NewNotFound("bin 123456")
	if !IsNotFound(err) {
		t.Error("IsNotFound must detect its own errors")
	}
	if IsNotFound(errors.New("boom")) {
		t.Error("IsNotFound must reject unrelated errors")
	}
	if err.Error() != "bin 123456 not found" {
		t.Errorf("Error() = %s", err.Error())
	}
}

func TestProfileGatewayConfig(t *testing.T) {
	p := &Profile{
		Code:          "garanti",
		Kind:          gateway.KindGaranti,
		MerchantID:    "7000679",
		TerminalID:    "30691297",
		Username:      "PROVAUT",
		Password:      "pass",
		StoreKey:      "key",
		Environment:   "test",
		PaymentAPIURL: "https://bank.example/api",
	}

	cfg := p.GatewayConfig()
	if cfg[gateway.CfgMerchantID] != "7000679" || cfg[gateway.CfgTerminalID] != "30691297" {
		t.Errorf("credentials not mapped: %v", cfg)
	}
	if cfg[gateway.CfgEnvironment] != "test" {
		t.Errorf("environment = %s", cfg[gateway.CfgEnvironment])
	}
	if _, ok := cfg[gateway.CfgPosNetID]; ok {
		t.Error("empty fields must not appear in the config")
	}
}
