package main

import "time"

const (
	generatorSoftwareName = "ckgenerator"
	generatorVersion      = "0.9.2"
)

// clientTag is sent as the subscribe client description and returned to
// client.get_version requests.
func clientTag() string {
	return generatorSoftwareName + "/" + generatorVersion
}

const (
	// Upstream stratum timing.
	defaultReadTimeout    = 5 * time.Second
	defaultMaxIdleReads   = 24 // ~120s of silence before a stall is declared
	defaultReconnectDelay = 5 * time.Second

	// Cache ageing.
	notifyExpiry    = 600 * time.Second
	notifyKeepCount = 3 // never age below this many cached jobs
	shareExpiry     = 120 * time.Second

	// Upstream share submissions waiting to be sent.
	sendQueueDepth = 256

	// Stratum subscribe limits.
	maxEnonce1Bytes = 15
	minNonce2Len    = 4
	maxNonce2Len    = 8
	maxMerkleBranch = 16

	controlReadTimeout  = 5 * time.Second
	controlWriteTimeout = 5 * time.Second
)
