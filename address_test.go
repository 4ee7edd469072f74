package main

import (
	"context"
	"testing"
)

func TestScriptForAddressBase58(t *testing.T) {
	script, err := scriptForAddress("1BitcoinEaterAddressDontSendf59kuE", ChainParams())
	if err != nil {
		t.Fatalf("scriptForAddress: %v", err)
	}
	if len(script) == 0 {
		t.Fatal("expected non-empty script")
	}
}

func TestScriptForAddressBech32(t *testing.T) {
	script, err := scriptForAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", ChainParams())
	if err != nil {
		t.Fatalf("scriptForAddress: %v", err)
	}
	if len(script) != 22 {
		t.Fatalf("expected 22-byte v0 witness script, got %d", len(script))
	}
}

func TestScriptForAddressRejectsGarbage(t *testing.T) {
	for _, addr := range []string{"", "notanaddress", "  "} {
		if _, err := scriptForAddress(addr, ChainParams()); err == nil {
			t.Fatalf("address %q accepted", addr)
		}
	}
}

func TestValidatePayoutAddressLocalOnly(t *testing.T) {
	if err := validatePayoutAddress(context.Background(), nil, "1BitcoinEaterAddressDontSendf59kuE"); err != nil {
		t.Fatalf("local-only validation failed: %v", err)
	}
	if err := validatePayoutAddress(context.Background(), nil, "bogus"); err == nil {
		t.Fatal("invalid address passed local validation")
	}
}
