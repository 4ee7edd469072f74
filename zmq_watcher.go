package main

import (
	"context"
	"encoding/hex"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
)

const (
	zmqReceiveTimeout    = time.Second
	zmqRecreateBackoffLo = time.Second
	zmqRecreateBackoffHi = 30 * time.Second
)

// watchZMQBlocks subscribes to bitcoind's hashblock publisher and signals the
// stratifier to refresh work whenever a new block arrives, instead of waiting
// for its next getbase poll. The socket is recreated with backoff on any
// failure; a missing publisher only costs freshness, never correctness.
func watchZMQBlocks(ctx context.Context, addr string, notifier procNotifier) {
	backoff := zmqRecreateBackoffLo
	for {
		if ctx.Err() != nil {
			return
		}

		sub, err := zmq4.NewSocket(zmq4.SUB)
		if err != nil {
			logger.Warn("zmq socket create failed", "error", err)
			backoff = zmqSleep(ctx, backoff)
			continue
		}
		_ = sub.SetLinger(0)
		if err := sub.SetSubscribe("hashblock"); err != nil {
			logger.Warn("zmq subscribe failed", "error", err)
			sub.Close()
			backoff = zmqSleep(ctx, backoff)
			continue
		}
		if err := sub.SetRcvtimeo(zmqReceiveTimeout); err != nil {
			logger.Warn("zmq set receive timeout failed", "error", err)
			sub.Close()
			backoff = zmqSleep(ctx, backoff)
			continue
		}
		if err := sub.Connect(addr); err != nil {
			logger.Warn("zmq connect failed", "addr", addr, "error", err)
			sub.Close()
			backoff = zmqSleep(ctx, backoff)
			continue
		}

		logger.Info("watching zmq block notifications", "addr", addr)
		backoff = zmqRecreateBackoffLo

		for {
			if ctx.Err() != nil {
				sub.Close()
				return
			}
			frames, err := sub.RecvMessageBytes(0)
			if err != nil {
				eno := zmq4.AsErrno(err)
				if eno == zmq4.Errno(syscall.EAGAIN) || eno == zmq4.ETIMEDOUT {
					continue
				}
				logger.Warn("zmq receive failed", "error", err)
				sub.Close()
				backoff = zmqSleep(ctx, backoff)
				break
			}
			if len(frames) < 2 {
				logger.Warn("zmq notification malformed", "frames", len(frames))
				continue
			}
			blockHash := hex.EncodeToString(frames[1])
			logger.Info("zmq block notification", "block_hash", blockHash)
			notifier.send(msgUpdate)
		}
	}
}

func zmqSleep(ctx context.Context, backoff time.Duration) time.Duration {
	_ = sleepContext(ctx, backoff)
	next := backoff * 2
	if next > zmqRecreateBackoffHi {
		next = zmqRecreateBackoffHi
	}
	return next
}
