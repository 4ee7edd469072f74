package main

import "context"

// runSend drains the share queue in FIFO order. Each submission is re-keyed
// from the local job id to the upstream one under the notify cache's lock; a
// job that has aged out or was flushed by a reconnect means the share is
// worthless, so it is dropped rather than retried.
func (s *upstreamSession) runSend(ctx context.Context) error {
	for {
		var sub *shareSubmission
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub = <-s.sendQueue:
		}

		upstreamJobID, ok := s.notifies.upstreamJobID(sub.jobID)
		if !ok {
			if s.metrics != nil {
				s.metrics.sharesDropped.Add(1)
			}
			logger.Warn("no matching job for share, dropping", "upstream", s.addr, "local_jobid", sub.jobID)
			continue
		}

		req := stratumRequest{
			ID:     sub.localID,
			Method: "mining.submit",
			Params: []interface{}{s.user, upstreamJobID, sub.nonce2, sub.nTime, sub.nonce},
		}
		body, err := fastJSONMarshal(req)
		if err != nil {
			logger.Error("encode mining.submit failed", "error", err)
			continue
		}
		if err := s.cs.writeLine(body); err != nil {
			// Closing the socket wakes the receive loop into its
			// reconnect path; the share is already tracked and will be
			// reaped if no response ever arrives.
			logger.Warn("share send failed, closing socket", "upstream", s.addr, "error", err)
			s.cs.close()
			continue
		}
		if s.metrics != nil {
			s.metrics.sharesSubmitted.Add(1)
		}
	}
}
