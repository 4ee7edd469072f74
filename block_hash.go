package main

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const blockHeaderBytes = 80

func doubleSHA256(data []byte) [32]byte {
	first := sha256Sum(data)
	return sha256Sum(first[:])
}

// submittedBlockHash derives the display hash of a serialized block from its
// 80-byte header prefix. Used for block-solve logging only; validation is the
// node's job.
func submittedBlockHash(blockHex string) (string, error) {
	if len(blockHex) < blockHeaderBytes*2 {
		return "", fmt.Errorf("block hex shorter than header: %d chars", len(blockHex))
	}
	header, err := hex.DecodeString(blockHex[:blockHeaderBytes*2])
	if err != nil {
		return "", fmt.Errorf("decode block header: %w", err)
	}
	digest := doubleSHA256(header)
	var h chainhash.Hash
	if err := h.SetBytes(digest[:]); err != nil {
		return "", err
	}
	return h.String(), nil
}
