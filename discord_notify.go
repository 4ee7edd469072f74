package main

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// solveNotifier posts block-solve notices to one Discord channel. Messages
// pass through a small queue so a slow Discord API never blocks the control
// loop that found the block.
type solveNotifier struct {
	dg        *discordgo.Session
	channelID string
	queue     chan string
}

func newSolveNotifier(token, channelID string) (*solveNotifier, error) {
	dg, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	dg.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds)
	if err := dg.Open(); err != nil {
		return nil, err
	}
	return &solveNotifier{
		dg:        dg,
		channelID: channelID,
		queue:     make(chan string, 16),
	}, nil
}

func (n *solveNotifier) start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-n.queue:
				if _, err := n.dg.ChannelMessageSend(n.channelID, msg); err != nil {
					logger.Warn("discord notice failed", "channel", n.channelID, "error", err)
				}
			}
		}
	}()
	logger.Info("discord solve notices enabled", "channel", n.channelID)
}

// notify enqueues a notice without blocking; when the queue is full the new
// notice is dropped with a debug log line, since notices are informational
// only.
func (n *solveNotifier) notify(msg string) {
	if n == nil {
		return
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	select {
	case n.queue <- "[" + generatorSoftwareName + "] " + msg:
	default:
		logger.Debug("discord notice queue full, dropping", "msg", msg)
	}
}

func (n *solveNotifier) close() {
	if n == nil || n.dg == nil {
		return
	}
	_ = n.dg.Close()
}
