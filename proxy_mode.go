package main

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/remeh/sizedwaitgroup"
)

// probeBound caps how many endpoints are probed at once during startup.
const probeBound = 4

// proxyMode connects to the configured upstream pools, selects the first
// that subscribes and authorizes successfully, and serves the stratifier
// from it until shutdown. Returns the process exit code.
func proxyMode(ctx context.Context, cfg Config, notifier procNotifier, metrics *genMetrics) int {
	sessions := make([]*upstreamSession, len(cfg.Upstreams))
	alive := make([]bool, len(cfg.Upstreams))

	swg := sizedwaitgroup.New(probeBound)
	for i, ep := range cfg.Upstreams {
		session, err := newUpstreamSession(ep, cfg.ClientTag, notifier, metrics)
		if err != nil {
			logger.Warn("bad upstream url", "url", ep.URL, "error", err)
			continue
		}
		sessions[i] = session
		swg.Add()
		go func(i int, s *upstreamSession) {
			defer swg.Done()
			alive[i] = probeUpstream(s)
		}(i, session)
	}
	swg.Wait()

	var proxi *upstreamSession
	for i, ok := range alive {
		if ok {
			proxi = sessions[i]
			break
		}
	}
	// Close losing probes; only the selected session keeps its connection.
	for i, s := range sessions {
		if s != nil && s != proxi && alive[i] {
			s.cs.close()
		}
	}
	if proxi == nil {
		logger.Error("no proxied upstream pools active")
		return 1
	}
	logger.Info("proxying upstream pool", "upstream", proxi.addr, "user", proxi.user)

	control, err := listenControl(controlSocketPath(cfg))
	if err != nil {
		logger.Error("control socket listen failed", "error", err)
		return 1
	}
	defer control.close()

	// The initial signals below cover any notify consumed while authorizing;
	// clear the flag before the receive goroutine takes ownership of it.
	proxi.notified = false

	workerCtx, cancel := context.WithCancel(ctx)
	var workers sync.WaitGroup
	var workerFailed atomic.Bool
	workers.Add(2)
	go func() {
		defer workers.Done()
		if err := proxi.runReceive(workerCtx); err != nil && workerCtx.Err() == nil {
			// Capability exhaustion on a reconnect leaves no way to serve
			// work; take the process down rather than serving stale jobs.
			logger.Error("receive loop exited", "upstream", proxi.addr, "error", err)
			workerFailed.Store(true)
			cancel()
		}
	}()
	go func() {
		defer workers.Done()
		if err := proxi.runSend(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("send loop exited", "upstream", proxi.addr, "error", err)
			workerFailed.Store(true)
			cancel()
		}
	}()

	// Not subscribed downstream yet: tell the stratifier to pull the first
	// subscription and current work. Any notify consumed while authorizing
	// is covered by this initial signal.
	notifier.send(msgSubscribe)
	notifier.send(msgNotify)

	err = control.serve(workerCtx, proxyControlHandler(proxi))

	cancel()
	proxi.cs.close()
	workers.Wait()

	if workerFailed.Load() {
		return 1
	}
	if err != nil && ctx.Err() == nil {
		return 1
	}
	return 0
}

// probeUpstream performs the initial connect/subscribe/authorize sequence
// that proves an upstream usable.
func probeUpstream(s *upstreamSession) bool {
	if err := s.connect(); err != nil {
		logger.Warn("upstream connect failed", "upstream", s.addr, "error", err)
		return false
	}
	if err := s.subscribe(); err != nil {
		logger.Warn("upstream subscribe failed", "upstream", s.addr, "error", err)
		s.cs.close()
		return false
	}
	if err := s.authorize(); err != nil {
		logger.Warn("upstream authorize failed", "upstream", s.addr, "error", err)
		s.cs.close()
		return false
	}
	return true
}
