package main

import (
	"context"
	"strings"
	"time"

	"github.com/remeh/sizedwaitgroup"
)

// serverInstance is one configured bitcoind endpoint and its probe outcome.
type serverInstance struct {
	url   string
	node  *nodeClient
	alive bool
}

// serverMode probes the configured bitcoinds, picks the first that can serve
// templates and accepts the payout address, and answers the stratifier's
// template requests until shutdown. Returns the process exit code.
func serverMode(ctx context.Context, cfg Config, notifier procNotifier, metrics *genMetrics) int {
	servers := make([]*serverInstance, len(cfg.BTCDs))

	swg := sizedwaitgroup.New(probeBound)
	for i, ep := range cfg.BTCDs {
		si := &serverInstance{
			url:  ep.URL,
			node: newNodeClient(ep.URL, ep.Auth, ep.Pass, metrics),
		}
		servers[i] = si
		swg.Add()
		go func(si *serverInstance) {
			defer swg.Done()
			si.alive = probeNode(ctx, si, cfg.BTCAddress)
		}(si)
	}
	swg.Wait()

	var si *serverInstance
	for _, candidate := range servers {
		if candidate.alive {
			si = candidate
			break
		}
	}
	if si == nil {
		logger.Error("no bitcoinds active")
		return 1
	}
	logger.Info("serving block templates", "node", si.node.endpointLabel())

	control, err := listenControl(controlSocketPath(cfg))
	if err != nil {
		logger.Error("control socket listen failed", "error", err)
		return 1
	}
	defer control.close()

	var solves *solveNotifier
	if cfg.DiscordBotToken != "" && cfg.DiscordNotifyChannelID != "" {
		solves, err = newSolveNotifier(cfg.DiscordBotToken, cfg.DiscordNotifyChannelID)
		if err != nil {
			logger.Warn("discord solve notifier disabled", "error", err)
		} else {
			solves.start(ctx)
			defer solves.close()
		}
	}

	if cfg.ZMQBlockAddr != "" {
		go watchZMQBlocks(ctx, cfg.ZMQBlockAddr, notifier)
	}

	err = control.serve(ctx, serverControlHandler(ctx, si.node, notifier, metrics, solves))
	if err != nil && ctx.Err() == nil {
		return 1
	}
	return 0
}

// probeNode proves a bitcoind usable: one test template fetch plus payout
// address validation.
func probeNode(ctx context.Context, si *serverInstance, payoutAddr string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := si.node.GetBlockTemplate(probeCtx); err != nil {
		logger.Warn("test block template failed", "node", si.node.endpointLabel(), "error", err)
		return false
	}
	if err := validatePayoutAddress(probeCtx, si.node, payoutAddr); err != nil {
		logger.Warn("invalid btcaddress", "node", si.node.endpointLabel(), "address", payoutAddr, "error", err)
		return false
	}
	return true
}

func serverControlHandler(ctx context.Context, node *nodeClient, notifier procNotifier, metrics *genMetrics, solves *solveNotifier) controlHandler {
	return func(req string) (string, bool) {
		switch {
		case hasVerb(req, "shutdown"):
			return "", true
		case hasVerb(req, "getbase"):
			tpl, err := node.GetBlockTemplate(ctx)
			if err != nil {
				logger.Warn("block template fetch failed", "node", node.endpointLabel(), "error", err)
				return "Failed", false
			}
			return string(tpl), false
		case hasVerb(req, "getbest"):
			hash, err := node.GetBestBlockHash(ctx)
			if err != nil {
				logger.Warn("no best block hash support", "node", node.endpointLabel(), "error", err)
				return "Failed", false
			}
			return hash, false
		case hasVerb(req, "getlast"):
			height, err := node.GetBlockCount(ctx)
			if err != nil {
				logger.Warn("block count fetch failed", "node", node.endpointLabel(), "error", err)
				return "Failed", false
			}
			hash, err := node.GetBlockHash(ctx, height)
			if err != nil {
				logger.Warn("block hash fetch failed", "node", node.endpointLabel(), "height", height, "error", err)
				return "Failed", false
			}
			logger.Debug("last block", "height", height, "hash", hash)
			return hash, false
		case hasVerb(req, "submitblock:"):
			blockHex := strings.TrimSpace(req[len("submitblock:"):])
			submitBlock(ctx, node, notifier, metrics, solves, blockHex)
			return "", false
		case hasVerb(req, "ping"):
			return "pong", false
		}
		logger.Warn("unrecognised control message", "req", req)
		return "", false
	}
}

// submitBlock pushes a solved block to the node and, on success, tells the
// stratifier to update its work and records the solve.
func submitBlock(ctx context.Context, node *nodeClient, notifier procNotifier, metrics *genMetrics, solves *solveNotifier, blockHex string) {
	hash, hashErr := submittedBlockHash(blockHex)
	if hashErr != nil {
		logger.Warn("block header hash unavailable", "error", hashErr)
	}
	logger.Info("submitting block", "hash", hash, "size_hex", len(blockHex))

	if err := node.SubmitBlock(ctx, blockHex); err != nil {
		logger.Error("block submission failed", "node", node.endpointLabel(), "hash", hash, "error", err)
		return
	}
	if metrics != nil {
		metrics.blocksSubmitted.Add(1)
	}
	logger.Info("block accepted by node", "hash", hash)
	notifier.send(msgUpdate)
	if solves != nil {
		solves.notify("Block found and submitted: " + hash)
	}
}
