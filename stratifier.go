package main

import (
	"net"
	"time"
)

// Messages sent to the stratifier process.
const (
	msgSubscribe = "subscribe"
	msgNotify    = "notify"
	msgDiff      = "diff"
	msgUpdate    = "update"
	msgShutdown  = "shutdown"
)

// procNotifier delivers one-shot messages to an adjacent process. Delivery is
// best-effort fire-and-forget; a stratifier that is down simply misses the
// signal and recovers on its next request.
type procNotifier interface {
	send(msg string)
}

// unixNotifier writes each message over a fresh unix-socket connection and
// closes it, the way the process supervisor's message plumbing works.
type unixNotifier struct {
	path string
}

func newUnixNotifier(path string) *unixNotifier {
	return &unixNotifier{path: path}
}

func (n *unixNotifier) send(msg string) {
	if n == nil || n.path == "" {
		return
	}
	conn, err := net.DialTimeout("unix", n.path, time.Second)
	if err != nil {
		logger.Debug("stratifier unreachable", "path", n.path, "msg", msg, "error", err)
		return
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write([]byte(msg)); err != nil {
		logger.Debug("stratifier send failed", "path", n.path, "msg", msg, "error", err)
	}
}
