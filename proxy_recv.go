package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// runReceive is the receive loop: age the caches, read one upstream line, dispatch
// it, and signal the stratifier about anything new. A stalled upstream
// (maxIdleReads quiet read windows in a row) triggers a full reconnect.
func (s *upstreamSession) runReceive(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := time.Now()
		s.notifies.age(now)
		if reaped := s.shares.reap(now); reaped > 0 {
			if s.metrics != nil {
				s.metrics.sharesReaped.Add(uint64(reaped))
			}
			logger.Warn("reaped unanswered shares", "upstream", s.addr, "count", reaped)
		}

		var line string
		var err error
		for idle := 0; ; {
			line, err = s.cs.readLine(s.readTimeout)
			if !errors.Is(err, errReadIdle) {
				break
			}
			idle++
			if idle >= s.maxIdleReads {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("upstream stalled or broken, reconnecting", "upstream", s.addr, "error", err)
			if rerr := s.reconnect(ctx); rerr != nil {
				return rerr
			}
			continue
		}

		if s.parseMethod(line) {
			if s.notified {
				s.notifier.send(msgNotify)
				s.notified = false
			}
			if s.diffed {
				s.notifier.send(msgDiff)
				s.diffed = false
			}
			continue
		}
		if s.parseShareResult(line) {
			continue
		}
		logger.Warn("unhandled stratum message", "upstream", s.addr, "msg", line)
	}
}

// parseMethod dispatches a push method from upstream. Returns false when the
// line carries no method (or a non-null error), leaving it for share-result
// correlation.
func (s *upstreamSession) parseMethod(line string) bool {
	msg, err := decodeStratumMessage(line)
	if err != nil {
		logger.Warn("stratum decode failed", "upstream", s.addr, "error", err)
		return false
	}
	if msg.Method == "" {
		return false
	}
	if !jsonIsNull(msg.Error) {
		logger.Info("method message carries error", "upstream", s.addr, "error", string(msg.Error))
		return false
	}

	switch msg.Method {
	case "mining.notify":
		if s.parseNotify(msg.Params) {
			s.notified = true
		} else {
			s.notified = false
		}
		return true
	case "mining.set_difficulty":
		return s.parseDiff(msg.Params)
	case "client.reconnect":
		// The upstream wants us elsewhere or freshly connected. Close the
		// socket; the receive loop's error path performs a clean
		// resubscribe/re-auth cycle.
		logger.Info("upstream requested reconnect", "upstream", s.addr)
		s.cs.close()
		return true
	case "client.get_version":
		return s.sendVersion(msg.ID)
	case "client.show_message":
		return s.showMessage(msg.Params)
	}
	logger.Info("ignoring unknown stratum method", "upstream", s.addr, "method", msg.Method)
	return true
}

// parseNotify decodes a mining.notify params array into a notification and
// publishes it. Layout is positional; the seven string fields are mandatory.
func (s *upstreamSession) parseNotify(params json.RawMessage) bool {
	var arr []interface{}
	if err := fastJSONUnmarshal(params, &arr); err != nil {
		logger.Warn("notify params not an array", "upstream", s.addr, "error", err)
		return false
	}

	jobID, ok1 := jsonString(arr, 0)
	prevHash, ok2 := jsonString(arr, 1)
	coinbase1, ok3 := jsonString(arr, 2)
	coinbase2, ok4 := jsonString(arr, 3)
	bbVersion, ok5 := jsonString(arr, 5)
	nBits, ok6 := jsonString(arr, 6)
	nTime, ok7 := jsonString(arr, 7)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 || !ok7 {
		logger.Warn("notify missing mandatory fields", "upstream", s.addr)
		return false
	}
	if len(arr) < 5 {
		logger.Warn("notify missing merkle array", "upstream", s.addr)
		return false
	}
	merkleRaw, ok := arr[4].([]interface{})
	if !ok {
		logger.Warn("notify missing merkle array", "upstream", s.addr)
		return false
	}
	clean := false
	if len(arr) > 8 {
		if b, ok := arr[8].(bool); ok {
			clean = b
		}
	}

	merkles := make([]string, 0, len(merkleRaw))
	for i, m := range merkleRaw {
		str, ok := m.(string)
		if !ok {
			logger.Warn("notify merkle entry not a string", "upstream", s.addr, "index", i)
			return false
		}
		if i >= maxMerkleBranch {
			logger.Warn("notify merkle branch truncated", "upstream", s.addr, "entries", len(merkleRaw))
			break
		}
		merkles = append(merkles, str)
	}

	n := &notification{
		jobID:        jobID,
		prevHash:     prevHash,
		coinbase1:    coinbase1,
		coinbase2:    coinbase2,
		merkleBranch: merkles,
		bbVersion:    bbVersion,
		nBits:        nBits,
		nTime:        nTime,
		clean:        clean,
		receivedAt:   time.Now(),
	}
	localID := s.notifies.add(n)
	if s.metrics != nil {
		s.metrics.notifiesReceived.Add(1)
	}
	logger.Debug("new notify", "upstream", s.addr, "local_jobid", localID, "upstream_jobid", jobID, "clean", clean)
	return true
}

// parseDiff records a difficulty change. Zero and repeated values are
// accepted but do not re-raise the diff signal.
func (s *upstreamSession) parseDiff(params json.RawMessage) bool {
	var arr []interface{}
	if err := fastJSONUnmarshal(params, &arr); err != nil {
		logger.Warn("set_difficulty params not an array", "upstream", s.addr, "error", err)
		return false
	}
	if len(arr) == 0 {
		return false
	}
	diff, ok := arr[0].(float64)
	if !ok {
		return false
	}
	s.diffMu.Lock()
	if diff != 0 && diff != s.diff {
		s.diff = diff
		s.diffed = true
		if s.metrics != nil {
			s.metrics.diffChanges.Add(1)
		}
	}
	s.diffMu.Unlock()
	return true
}

func (s *upstreamSession) sendVersion(id json.RawMessage) bool {
	resp := struct {
		ID     json.RawMessage `json:"id"`
		Result string          `json:"result"`
		Error  interface{}     `json:"error"`
	}{ID: id, Result: s.tag}
	body, err := fastJSONMarshal(resp)
	if err != nil {
		return false
	}
	if err := s.cs.writeLine(body); err != nil {
		logger.Warn("send version reply failed", "upstream", s.addr, "error", err)
		return false
	}
	return true
}

func (s *upstreamSession) showMessage(params json.RawMessage) bool {
	var arr []interface{}
	if err := fastJSONUnmarshal(params, &arr); err != nil {
		return false
	}
	msg, ok := jsonString(arr, 0)
	if !ok {
		return false
	}
	logger.Info("upstream pool message", "upstream", s.addr, "message", msg)
	return true
}

// shareResultForward is the supplement message telling the stratifier how
// the upstream judged one of its clients' shares.
type shareResultForward struct {
	Result struct {
		ClientID int64           `json:"client_id"`
		MsgID    json.RawMessage `json:"msg_id"`
		Accepted bool            `json:"accepted"`
	} `json:"result"`
}

// parseShareResult correlates a response line with an outstanding share and
// forwards the verdict to the stratifier.
func (s *upstreamSession) parseShareResult(line string) bool {
	var resp struct {
		ID     *int64          `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	if err := fastJSONUnmarshal([]byte(line), &resp); err != nil {
		logger.Debug("share result decode failed", "upstream", s.addr, "error", err)
		return false
	}
	if resp.ID == nil {
		return false
	}
	rec, ok := s.shares.remove(*resp.ID)
	if !ok {
		logger.Info("no matching share for result", "upstream", s.addr, "id", *resp.ID)
		return false
	}

	var accepted bool
	_ = fastJSONUnmarshal(resp.Result, &accepted)
	if s.metrics != nil {
		if accepted {
			s.metrics.sharesAccepted.Add(1)
		} else {
			s.metrics.sharesRejected.Add(1)
		}
	}
	logger.Debug("share result", "upstream", s.addr, "client_id", rec.clientID, "accepted", accepted)

	var fwd shareResultForward
	fwd.Result.ClientID = rec.clientID
	fwd.Result.MsgID = rec.msgID
	fwd.Result.Accepted = accepted
	if body, err := fastJSONMarshal(fwd); err == nil {
		s.notifier.send(string(body))
	}
	return true
}
