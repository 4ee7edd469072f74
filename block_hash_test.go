package main

import (
	"strings"
	"testing"
)

// The mainnet genesis block header; its hash is fixed forever.
const genesisHeaderHex = "0100000000000000000000000000000000000000000000000000000000000000000000003ba3edfd7a7b12b27ac72c3e67768f617fc81bc3888a51323a9fb8aa4b1e5e4a29ab5f49ffff001d1dac2b7c"

const genesisHash = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"

func TestSubmittedBlockHashGenesis(t *testing.T) {
	// A full block submission starts with the 80-byte header; trailing
	// transaction data must not affect the hash.
	blockHex := genesisHeaderHex + "01deadbeef"
	hash, err := submittedBlockHash(blockHex)
	if err != nil {
		t.Fatalf("submittedBlockHash: %v", err)
	}
	if hash != genesisHash {
		t.Fatalf("got %s want %s", hash, genesisHash)
	}
}

func TestSubmittedBlockHashHeaderOnly(t *testing.T) {
	hash, err := submittedBlockHash(genesisHeaderHex)
	if err != nil {
		t.Fatalf("submittedBlockHash: %v", err)
	}
	if hash != genesisHash {
		t.Fatalf("got %s want %s", hash, genesisHash)
	}
}

func TestSubmittedBlockHashTooShort(t *testing.T) {
	if _, err := submittedBlockHash("abcdef"); err == nil {
		t.Fatal("short block accepted")
	}
}

func TestSubmittedBlockHashBadHex(t *testing.T) {
	bad := strings.Repeat("zz", blockHeaderBytes)
	if _, err := submittedBlockHash(bad); err == nil {
		t.Fatal("non-hex block accepted")
	}
}
