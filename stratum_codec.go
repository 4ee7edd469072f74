package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// stratumRequest is an outbound JSON-RPC request on the upstream stratum
// connection.
type stratumRequest struct {
	ID     int64         `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// stratumMessage is any inbound line: a push method, or a response carrying
// result/error for one of our requests.
type stratumMessage struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func decodeStratumMessage(line string) (*stratumMessage, error) {
	var msg stratumMessage
	if err := fastJSONUnmarshal([]byte(line), &msg); err != nil {
		return nil, fmt.Errorf("decode stratum message: %w", err)
	}
	return &msg, nil
}

func jsonIsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// messageResult returns the result value of a response line, or an error when
// the message carries a non-null error or no result at all.
func messageResult(msg *stratumMessage) (json.RawMessage, error) {
	if !jsonIsNull(msg.Error) {
		return nil, fmt.Errorf("json-rpc error: %s", string(msg.Error))
	}
	if jsonIsNull(msg.Result) {
		return nil, fmt.Errorf("no json result found")
	}
	return msg.Result, nil
}

// findNotifyDepthLimit bounds the recursive descent so a hostile upstream
// cannot make us walk unbounded nesting.
const findNotifyDepthLimit = 32

// findNotify locates the mining.notify descriptor inside an arbitrarily
// nested decoded JSON value. Upstreams bury it at varying array depths, so
// any array whose first element is the string "mining.notify" wins.
func findNotify(v interface{}) []interface{} {
	return findNotifyDepth(v, 0)
}

func findNotifyDepth(v interface{}, depth int) []interface{} {
	if depth > findNotifyDepthLimit {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	if len(arr) > 0 {
		if s, ok := arr[0].(string); ok && strings.EqualFold(s, "mining.notify") {
			return arr
		}
	}
	for _, entry := range arr {
		if found := findNotifyDepth(entry, depth+1); found != nil {
			return found
		}
	}
	return nil
}

// jsonString returns arr[i] as a string when present.
func jsonString(arr []interface{}, i int) (string, bool) {
	if i < 0 || i >= len(arr) {
		return "", false
	}
	s, ok := arr[i].(string)
	return s, ok
}

// jsonInt returns arr[i] as an integer. JSON numbers decode as float64; an
// upstream sending a fractional value here is malformed.
func jsonInt(arr []interface{}, i int) (int, bool) {
	if i < 0 || i >= len(arr) {
		return 0, false
	}
	switch n := arr[i].(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int(n), true
	case int64:
		return int(n), true
	case json.Number:
		v, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(v), true
	}
	return 0, false
}
