package main

import (
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg"
)

var chainParamsValue atomic.Pointer[chaincfg.Params]

func init() {
	chainParamsValue.Store(&chaincfg.MainNetParams)
}

// SetChainParams selects the btcd network parameters used for local address
// validation. Unknown names fall back to mainnet.
func SetChainParams(network string) {
	switch network {
	case "testnet", "testnet3":
		chainParamsValue.Store(&chaincfg.TestNet3Params)
	case "signet":
		chainParamsValue.Store(&chaincfg.SigNetParams)
	case "regtest":
		chainParamsValue.Store(&chaincfg.RegressionNetParams)
	default:
		chainParamsValue.Store(&chaincfg.MainNetParams)
	}
}

func ChainParams() *chaincfg.Params {
	return chainParamsValue.Load()
}
