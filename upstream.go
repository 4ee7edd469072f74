package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// errSubscribeExhausted means every subscribe variant was rejected; there is
// nothing left to fall back to and the upstream is unusable.
var errSubscribeExhausted = errors.New("all subscription options failed")

// shareSubmission is one share on its way upstream, already re-keyed to a
// local share id. jobID is still the local notification id; the send loop
// resolves it to the upstream job id at transmit time.
type shareSubmission struct {
	localID int64
	jobID   int64
	nonce2  string
	nTime   string
	nonce   string
}

// upstreamSession is the per-upstream mutable state: one stratum connection,
// its negotiated parameters, the job and share caches, and the outbound share
// queue. One session is owned by the proxy-mode run and shared by the
// receive, send, and control goroutines.
type upstreamSession struct {
	addr string // host:port
	user string
	pass string
	tag  string

	cs       *connSock
	notifier procNotifier
	metrics  *genMetrics

	reqID atomic.Int64

	// Subscribe results. Written during (re)subscribe before the worker
	// goroutines observe the session, and re-written only from the receive
	// goroutine's reconnect path; subMu covers readers on the control path.
	subMu       sync.Mutex
	sessionID   string
	enonce1     string
	enonce1Bin  []byte
	nonce2Len   int
	noSessionID bool
	noParams    bool

	diffMu sync.Mutex
	diff   float64

	// Dispatch flags, owned by the goroutine currently reading the socket.
	notified bool
	diffed   bool

	notifies *notifyCache
	shares   *shareTracker

	sendQueue chan *shareSubmission

	// Timing knobs; defaults from const.go, shortened in tests.
	readTimeout    time.Duration
	maxIdleReads   int
	reconnectDelay time.Duration
	dialTimeout    time.Duration
}

func newUpstreamSession(ep EndpointConfig, tag string, notifier procNotifier, metrics *genMetrics) (*upstreamSession, error) {
	host, port, err := splitStratumURL(ep.URL)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		tag = clientTag()
	}
	return &upstreamSession{
		addr:           host + ":" + port,
		user:           ep.Auth,
		pass:           ep.Pass,
		tag:            tag,
		notifier:       notifier,
		metrics:        metrics,
		notifies:       newNotifyCache(),
		shares:         newShareTracker(),
		sendQueue:      make(chan *shareSubmission, sendQueueDepth),
		readTimeout:    defaultReadTimeout,
		maxIdleReads:   defaultMaxIdleReads,
		reconnectDelay: defaultReconnectDelay,
		dialTimeout:    30 * time.Second,
	}, nil
}

func (s *upstreamSession) nextReqID() int64 {
	return s.reqID.Add(1)
}

func (s *upstreamSession) connect() error {
	cs, err := dialConnSock(s.addr, s.dialTimeout)
	if err != nil {
		return err
	}
	s.cs = cs
	return nil
}

func (s *upstreamSession) sendRequest(req stratumRequest) error {
	body, err := fastJSONMarshal(req)
	if err != nil {
		return err
	}
	logger.Debug("sending stratum msg", "upstream", s.addr, "msg", string(body))
	return s.cs.writeLine(body)
}

// subscribe walks the three subscribe variants until one is accepted:
// session resumption, client tag only, then empty params. Each failure
// closes the socket, narrows the capability flags, and redials.
func (s *upstreamSession) subscribe() error {
	for {
		var params []interface{}
		switch {
		case s.sessionID != "":
			params = []interface{}{s.tag, s.sessionID}
		case !s.noParams:
			params = []interface{}{s.tag}
		default:
			params = []interface{}{}
		}
		req := stratumRequest{
			ID:     s.nextReqID(),
			Method: "mining.subscribe",
			Params: params,
		}
		err := s.sendRequest(req)
		if err == nil {
			err = s.parseSubscribe()
			if err == nil {
				return nil
			}
		}

		s.cs.close()
		if s.noParams {
			logger.Warn("all subscribe variants rejected", "upstream", s.addr, "error", err)
			return errSubscribeExhausted
		}
		if s.sessionID != "" {
			logger.Info("session resumption rejected, retrying without", "upstream", s.addr)
			s.subMu.Lock()
			s.noSessionID = true
			s.sessionID = ""
			s.subMu.Unlock()
		} else {
			logger.Info("subscribe with parameters rejected, retrying without", "upstream", s.addr)
			s.subMu.Lock()
			s.noParams = true
			s.subMu.Unlock()
		}
		if err := s.cs.redial(s.dialTimeout); err != nil {
			return fmt.Errorf("reconnect for subscribe retry: %w", err)
		}
	}
}

// parseSubscribe consumes the subscribe response and adopts the session
// parameters it carries.
func (s *upstreamSession) parseSubscribe() error {
	line, err := s.cs.readLine(s.readTimeout)
	if err != nil {
		return fmt.Errorf("read subscribe response: %w", err)
	}
	msg, err := decodeStratumMessage(line)
	if err != nil {
		return err
	}
	rawResult, err := messageResult(msg)
	if err != nil {
		return fmt.Errorf("subscribe response: %w", err)
	}

	var result []interface{}
	if err := fastJSONUnmarshal(rawResult, &result); err != nil {
		return fmt.Errorf("subscribe result not an array: %w", err)
	}
	if len(result) < 3 {
		return fmt.Errorf("subscribe result array too small: %d", len(result))
	}

	notify := findNotify(result)
	if notify == nil {
		return errors.New("no mining.notify descriptor in subscribe result")
	}

	var sessionID string
	if !s.noSessionID && !s.noParams && len(notify) > 1 {
		if sid, ok := notify[1].(string); ok {
			sessionID = sid
		}
	}

	enonce1, ok := jsonString(result, 1)
	if !ok || enonce1 == "" {
		return errors.New("missing enonce1 in subscribe result")
	}
	if len(enonce1)%2 != 0 {
		return fmt.Errorf("enonce1 hex length %d is odd", len(enonce1))
	}
	if len(enonce1)/2 > maxEnonce1Bytes {
		return fmt.Errorf("enonce1 too long at %d bytes", len(enonce1)/2)
	}
	enonce1Bin, err := hex.DecodeString(enonce1)
	if err != nil {
		return fmt.Errorf("decode enonce1: %w", err)
	}

	nonce2Len, ok := jsonInt(result, 2)
	if !ok {
		return errors.New("missing nonce2 length in subscribe result")
	}
	if nonce2Len < 1 || nonce2Len > maxNonce2Len {
		return fmt.Errorf("invalid nonce2 length %d", nonce2Len)
	}
	if nonce2Len < minNonce2Len {
		return fmt.Errorf("nonce2 length %d too small to proxy", nonce2Len)
	}

	s.subMu.Lock()
	if sessionID != "" {
		s.sessionID = sessionID
	}
	s.enonce1 = enonce1
	s.enonce1Bin = enonce1Bin
	s.nonce2Len = nonce2Len
	s.subMu.Unlock()

	logger.Info("subscribed to upstream", "upstream", s.addr, "enonce1", enonce1, "nonce2len", nonce2Len)
	return nil
}

// authorize sends mining.authorize and waits for its result. Upstreams often
// push set_difficulty and the first notify before answering, so pushed
// methods are dispatched until a non-method line arrives; that line must be a
// true result.
func (s *upstreamSession) authorize() error {
	req := stratumRequest{
		ID:     s.nextReqID(),
		Method: "mining.authorize",
		Params: []interface{}{s.user, s.pass},
	}
	if err := s.sendRequest(req); err != nil {
		s.cs.close()
		return fmt.Errorf("send authorize: %w", err)
	}

	for {
		line, err := s.cs.readLine(s.readTimeout)
		if err != nil {
			return fmt.Errorf("read authorize response: %w", err)
		}
		if s.parseMethod(line) {
			continue
		}
		msg, err := decodeStratumMessage(line)
		if err != nil {
			return err
		}
		rawResult, err := messageResult(msg)
		if err != nil {
			return fmt.Errorf("authorize response: %w", err)
		}
		var accepted bool
		if err := fastJSONUnmarshal(rawResult, &accepted); err != nil || !accepted {
			return fmt.Errorf("authorization rejected for %s", s.user)
		}
		logger.Info("authorized with upstream", "upstream", s.addr, "user", s.user)
		return nil
	}
}

// reconnect re-establishes the session from scratch: dump all cached jobs,
// then redial, resubscribe, and re-authorize until the full sequence
// succeeds. The stratifier is told to re-fetch its subscription afterwards
// because extranonce parameters may have changed.
func (s *upstreamSession) reconnect(ctx context.Context) error {
	s.notifies.flush()
	if s.metrics != nil {
		s.metrics.reconnects.Add(1)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.cs.close()
		if err := s.cs.redial(s.dialTimeout); err != nil {
			logger.Warn("upstream redial failed", "upstream", s.addr, "error", err)
			if err := sleepContext(ctx, s.reconnectDelay); err != nil {
				return err
			}
			continue
		}
		if err := s.subscribe(); err != nil {
			if errors.Is(err, errSubscribeExhausted) {
				return err
			}
			logger.Warn("resubscribe failed", "upstream", s.addr, "error", err)
			if err := sleepContext(ctx, s.reconnectDelay); err != nil {
				return err
			}
			continue
		}
		if err := s.authorize(); err != nil {
			logger.Warn("re-authorize failed", "upstream", s.addr, "error", err)
			if err := sleepContext(ctx, s.reconnectDelay); err != nil {
				return err
			}
			continue
		}
		break
	}
	s.notifier.send(msgSubscribe)
	return nil
}

// subscribeInfo returns the negotiated extranonce parameters for the
// stratifier's getsubscribe request.
func (s *upstreamSession) subscribeInfo() (enonce1 string, nonce2Len int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return s.enonce1, s.nonce2Len
}

func (s *upstreamSession) currentDiff() float64 {
	s.diffMu.Lock()
	defer s.diffMu.Unlock()
	return s.diff
}

// enqueueShare records the share in the tracker and queues it for the send
// loop. The local share id replaces the client identity in the outgoing
// message; the tracker remembers the mapping for the response.
func (s *upstreamSession) enqueueShare(clientID int64, msgID json.RawMessage, jobID int64, nonce2, nTime, nonce string) bool {
	rec := s.shares.add(clientID, msgID, time.Now())
	sub := &shareSubmission{
		localID: rec.id,
		jobID:   jobID,
		nonce2:  nonce2,
		nTime:   nTime,
		nonce:   nonce,
	}
	select {
	case s.sendQueue <- sub:
		return true
	default:
		// Queue full: the upstream is not draining. Drop and forget the
		// tracker entry so the reaper does not carry dead weight.
		s.shares.remove(rec.id)
		if s.metrics != nil {
			s.metrics.sharesDropped.Add(1)
		}
		logger.Warn("upstream send queue full, dropping share", "upstream", s.addr, "client_id", clientID)
		return false
	}
}
