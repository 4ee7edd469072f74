package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// controlServer accepts one-shot requests from the stratifier on a local
// unix socket: the client writes its request, half-closes, and reads the
// single reply. The handler returns the reply body (empty for none) and
// whether the verb asked the generator to shut down.
type controlServer struct {
	path string
	ln   net.Listener
}

type controlHandler func(req string) (resp string, shutdown bool)

func listenControl(path string) (*controlServer, error) {
	// A previous unclean exit may have left the socket file behind.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &controlServer{path: path, ln: ln}, nil
}

func (c *controlServer) close() {
	if c == nil || c.ln == nil {
		return
	}
	_ = c.ln.Close()
	_ = os.Remove(c.path)
}

// serve accepts requests until the handler requests shutdown or the context
// is cancelled. Returns nil on a clean shutdown verb.
func (c *controlServer) serve(ctx context.Context, handler controlHandler) error {
	go func() {
		<-ctx.Done()
		_ = c.ln.Close()
	}()

	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("control accept failed", "path", c.path, "error", err)
			return err
		}

		req, err := readControlRequest(conn)
		if err != nil {
			logger.Warn("control request read failed", "error", err)
			_ = conn.Close()
			continue
		}
		logger.Debug("control request", "req", req)

		resp, shutdown := handler(req)
		if resp != "" {
			_ = conn.SetWriteDeadline(time.Now().Add(controlWriteTimeout))
			if _, err := conn.Write([]byte(resp)); err != nil {
				logger.Warn("control reply write failed", "error", err)
			}
		}
		_ = conn.Close()
		if shutdown {
			return nil
		}
	}
}

func readControlRequest(conn net.Conn) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(controlReadTimeout))
	data, err := io.ReadAll(conn)
	if err != nil {
		return "", err
	}
	req := strings.TrimSpace(string(data))
	if req == "" {
		return "", errors.New("empty control request")
	}
	return req, nil
}

// hasVerb matches a control verb the way the historical daemon did: a
// case-insensitive prefix check.
func hasVerb(req, verb string) bool {
	return len(req) >= len(verb) && strings.EqualFold(req[:len(verb)], verb)
}

// proxyControlHandler serves the stratifier in proxy mode.
func proxyControlHandler(s *upstreamSession) controlHandler {
	return func(req string) (string, bool) {
		switch {
		case hasVerb(req, "shutdown"):
			return "", true
		case hasVerb(req, "getsubscribe"):
			return proxySubscribeReply(s), false
		case hasVerb(req, "getnotify"):
			return proxyNotifyReply(s), false
		case hasVerb(req, "getdiff"):
			return proxyDiffReply(s), false
		case hasVerb(req, "ping"):
			return "pong", false
		}
		// Anything else should be a share submission from the stratifier.
		if !acceptShareSubmission(s, req) {
			logger.Warn("unrecognised control message", "req", req)
		}
		return "", false
	}
}

func proxySubscribeReply(s *upstreamSession) string {
	enonce1, nonce2Len := s.subscribeInfo()
	body, err := fastJSONMarshal(map[string]interface{}{
		"enonce1":   enonce1,
		"nonce2len": nonce2Len,
	})
	if err != nil {
		return "Failed"
	}
	return string(body)
}

// proxyNotifyReply renders the current notification with the local job id in
// place of the upstream one, so downstream clients never see upstream ids.
func proxyNotifyReply(s *upstreamSession) string {
	n := s.notifies.currentNotify()
	if n == nil {
		return "Failed"
	}
	merkles := n.merkleBranch
	if merkles == nil {
		merkles = []string{}
	}
	body, err := fastJSONMarshal(map[string]interface{}{
		"jobid":      n.id,
		"prevhash":   n.prevHash,
		"coinbase1":  n.coinbase1,
		"coinbase2":  n.coinbase2,
		"merklehash": merkles,
		"bbversion":  n.bbVersion,
		"nbit":       n.nBits,
		"ntime":      n.nTime,
		"clean":      n.clean,
	})
	if err != nil {
		return "Failed"
	}
	return string(body)
}

func proxyDiffReply(s *upstreamSession) string {
	body, err := fastJSONMarshal(map[string]interface{}{"diff": s.currentDiff()})
	if err != nil {
		return "Failed"
	}
	return string(body)
}

// controlShare is the share submission shape the stratifier sends. client_id
// and msg_id identify the originating miner; they are stripped before the
// share goes upstream and restored when the result comes back.
type controlShare struct {
	ClientID *int64          `json:"client_id"`
	MsgID    json.RawMessage `json:"msg_id"`
	JobID    *int64          `json:"jobid"`
	Nonce2   string          `json:"nonce2"`
	NTime    string          `json:"ntime"`
	Nonce    string          `json:"nonce"`
}

func acceptShareSubmission(s *upstreamSession, req string) bool {
	var share controlShare
	if err := fastJSONUnmarshal([]byte(req), &share); err != nil {
		return false
	}
	if share.ClientID == nil || jsonIsNull(share.MsgID) || share.JobID == nil {
		return false
	}
	s.enqueueShare(*share.ClientID, share.MsgID, *share.JobID, share.Nonce2, share.NTime, share.Nonce)
	return true
}
