package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// scriptForAddress performs local validation of a Bitcoin address for the given
// network and returns the corresponding scriptPubKey. It supports base58
// (P2PKH/P2SH) and bech32/bech32m segwit destinations.
func scriptForAddress(addr string, params *chaincfg.Params) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" || params == nil {
		return nil, errors.New("empty address")
	}

	addrDecoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}

	if !addrDecoded.IsForNet(params) {
		return nil, fmt.Errorf("address %s is not valid for %s", addr, params.Name)
	}

	script, err := txscript.PayToAddrScript(addrDecoded)
	if err != nil {
		return nil, fmt.Errorf("pay to addr script: %w", err)
	}
	return script, nil
}

// validatePayoutAddress checks the pool payout address locally and, when a
// node client is supplied, cross-checks with the node's validateaddress RPC.
// Local validation is authoritative for script derivation; the RPC check
// catches network mismatches the local params may hide.
func validatePayoutAddress(ctx context.Context, node *nodeClient, addr string) error {
	if _, err := scriptForAddress(addr, ChainParams()); err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	ok, err := node.ValidateAddress(ctx, addr)
	if err != nil {
		logger.Warn("validateaddress rpc failed; relying on local validation", "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("node reports address %s invalid", addr)
	}
	return nil
}
