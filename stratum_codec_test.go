package main

import (
	"encoding/json"
	"testing"
)

func decodeAny(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := fastJSONUnmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestFindNotifyTopLevel(t *testing.T) {
	v := decodeAny(t, `["mining.notify","abc"]`)
	got := findNotify(v)
	if got == nil {
		t.Fatal("expected notify at top level")
	}
	if s, _ := got[1].(string); s != "abc" {
		t.Fatalf("wrong descriptor: %v", got)
	}
}

func TestFindNotifyNested(t *testing.T) {
	// Upstreams bury the descriptor at varying depths.
	cases := []string{
		`[["mining.notify","abc"],"08000002",4]`,
		`[[["mining.notify","abc"]],"08000002",4]`,
		`[[["mining.set_difficulty","d"],["mining.notify","abc"]],"08000002",4]`,
	}
	for _, c := range cases {
		got := findNotify(decodeAny(t, c))
		if got == nil {
			t.Fatalf("notify not found in %s", c)
		}
		if s, _ := got[0].(string); s != "mining.notify" {
			t.Fatalf("wrong array returned for %s: %v", c, got)
		}
	}
}

func TestFindNotifyAbsent(t *testing.T) {
	for _, c := range []string{
		`["mining.set_difficulty","d"]`,
		`"mining.notify"`,
		`{"method":"mining.notify"}`,
		`[]`,
	} {
		if got := findNotify(decodeAny(t, c)); got != nil {
			t.Fatalf("unexpected notify in %s: %v", c, got)
		}
	}
}

func TestFindNotifyDepthCap(t *testing.T) {
	deep := `["mining.notify"]`
	for i := 0; i < findNotifyDepthLimit+5; i++ {
		deep = "[" + deep + "]"
	}
	if got := findNotify(decodeAny(t, deep)); got != nil {
		t.Fatal("descriptor beyond the depth cap must not be found")
	}
}

func TestMessageResult(t *testing.T) {
	msg, err := decodeStratumMessage(`{"id":1,"result":true,"error":null}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res, err := messageResult(msg)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if string(res) != "true" {
		t.Fatalf("unexpected result %s", res)
	}
}

func TestMessageResultError(t *testing.T) {
	msg, err := decodeStratumMessage(`{"id":1,"result":null,"error":[20,"Other/Unknown",null]}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := messageResult(msg); err == nil {
		t.Fatal("expected error for non-null error member")
	}
}

func TestMessageResultMissing(t *testing.T) {
	msg, err := decodeStratumMessage(`{"id":1}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := messageResult(msg); err == nil {
		t.Fatal("expected error when result is absent")
	}
}

func TestJSONIntRejectsFractions(t *testing.T) {
	arr := []interface{}{float64(4), float64(4.5), "4"}
	if v, ok := jsonInt(arr, 0); !ok || v != 4 {
		t.Fatalf("integer float rejected: %d %v", v, ok)
	}
	if _, ok := jsonInt(arr, 1); ok {
		t.Fatal("fractional value accepted")
	}
	if _, ok := jsonInt(arr, 2); ok {
		t.Fatal("string value accepted")
	}
	if _, ok := jsonInt(arr, 5); ok {
		t.Fatal("out of range index accepted")
	}
}

func TestStratumRequestEncoding(t *testing.T) {
	req := stratumRequest{ID: 3, Method: "mining.submit", Params: []interface{}{"user", "job", "n2", "nt", "nn"}}
	body, err := fastJSONMarshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		ID     int64    `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != 3 || decoded.Method != "mining.submit" || len(decoded.Params) != 5 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}
