package main

import (
	"testing"
	"time"

	"github.com/AlexxIT/lanbox2mqtt/lanbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvPub(t *testing.T, r *Router) pubMsg {
	t.Helper()
	select {
	case m := <-r.pub:
		return m
	default:
		t.Fatal("no publish queued")
		return pubMsg{}
	}
}

func recvOut(t *testing.T, r *Router) []byte {
	t.Helper()
	select {
	case b := <-r.out:
		return b
	default:
		t.Fatal("no agent send queued")
		return nil
	}
}

func assertIdle(t *testing.T, r *Router) {
	t.Helper()
	assert.Len(t, r.pub, 0)
	assert.Len(t, r.out, 0)
}

func TestReadRoundTrip(t *testing.T) {
	r := newRouter(time.Minute)

	cmd := `{"id":123,"method":"lanbox.control","params":{"name":"read","value":{"did":"D","sdid":"D","value":["0.4.85"]}}}`
	r.OnCommand([]byte(cmd))

	assert.JSONEq(t, cmd, string(recvOut(t, r)))
	assert.Equal(t, 1, r.cor.Len())

	reply := `{"id":123,"result":{"0.4.85":"250"}}`
	r.OnAgent([]byte(reply))

	ack := recvPub(t, r)
	assert.Equal(t, TopicCommandAck, ack.topic)
	assert.JSONEq(t, reply, string(ack.payload))

	res := recvPub(t, r)
	assert.Equal(t, TopicResponse, res.topic)
	assert.JSONEq(t,
		`{"id":123,"method":"lanbox.event","params":{"name":"read_done","value":{"result":{"0.4.85":"250"}}}}`,
		string(res.payload))

	assert.Equal(t, 0, r.cor.Len())
	assertIdle(t, r)
}

func TestDuplicateID(t *testing.T) {
	r := newRouter(time.Minute)

	cmd := `{"id":7,"method":"lanbox.control","params":{"name":"read","value":{"did":"D"}}}`
	r.OnCommand([]byte(cmd))
	recvOut(t, r)

	// second command with the same id is rejected locally, no transport send
	r.OnCommand([]byte(cmd))
	assert.Len(t, r.out, 0)

	res := recvPub(t, r)
	assert.Equal(t, TopicResponse, res.topic)
	assert.JSONEq(t, `{"id":7,"error":{"code":-33,"message":"duplicate request id"}}`, string(res.payload))
}

func TestInterestGate(t *testing.T) {
	r := newRouter(time.Minute)

	r.OnCommand([]byte(`{"id":1,"method":"lanbox.event","params":{"name":"hub_interest","value":{"hublist":["lumi1.aa"],"task":"t"}}}`))
	recvOut(t, r)

	// hub outside the interest list is rejected before the transport send
	r.OnCommand([]byte(`{"_to":524288,"id":2,"method":"lanbox.control","params":{"name":"write","value":{"did":"lumi1.bb"}}}`))
	assert.Len(t, r.out, 0)

	res := recvPub(t, r)
	assert.Equal(t, TopicResponse, res.topic)
	assert.JSONEq(t, `{"id":2,"error":{"code":-38,"message":"hub not in interest list"}}`, string(res.payload))

	// hub inside the interest list goes through
	r.OnCommand([]byte(`{"_to":524288,"id":3,"method":"lanbox.control","params":{"name":"write","value":{"did":"lumi1.aa"}}}`))
	recvOut(t, r)
	assert.Equal(t, 1, r.cor.Len())

	// local writes are never gated
	r.OnCommand([]byte(`{"id":4,"method":"lanbox.control","params":{"name":"write","value":{"did":"lumi1.bb"}}}`))
	recvOut(t, r)
	assertIdle(t, r)
}

func TestIftttSubscribe(t *testing.T) {
	r := newRouter(time.Minute)

	sub := `{"id":1,"method":"lanbox.control","params":{"name":"ifttt","value":{"operation":"sync/subscribe","data":[{"did":"X","rids":["a","b"]}],"pid":"lumi1.p","time":1700000000}}}`
	r.OnCommand([]byte(sub))
	recvOut(t, r)
	r.OnCommand([]byte(sub))
	recvOut(t, r)

	assert.Len(t, r.reg.Edges(), 2)
	assert.True(t, r.reg.Subscribed("lumi1.p", "X", "a"))

	del := `{"id":2,"method":"lanbox.control","params":{"name":"ifttt","value":{"operation":"del/subscribe","data":["a"],"delSubscribeDid":"X","did":"X","pid":"lumi1.p"}}}`
	r.OnCommand([]byte(del))
	recvOut(t, r)

	assert.Len(t, r.reg.Edges(), 1)
	assert.False(t, r.reg.Subscribed("lumi1.p", "X", "a"))
	assert.True(t, r.reg.Subscribed("lumi1.p", "X", "b"))
	assertIdle(t, r)
}

func TestResUnsubscribeEvent(t *testing.T) {
	r := newRouter(time.Minute)
	r.reg.SyncSubscribe("lumi1.p", []lanbox.SubscribeItem{{Did: "X", Rids: []string{"a", "b"}}})
	r.reg.SyncSubscribe("lumi1.q", []lanbox.SubscribeItem{{Did: "Y", Rids: []string{"a"}}})

	event := `{"_from":524288,"id":5,"method":"lanbox.event","params":{"name":"res_unsubscribe","value":{"did":"X","reslist":["X"],"task":"t"}}}`
	r.OnAgent([]byte(event))

	// republished unmodified
	res := recvPub(t, r)
	assert.Equal(t, TopicResport, res.topic)
	assert.JSONEq(t, event, string(res.payload))

	assert.Len(t, r.reg.Edges(), 1)
	assert.True(t, r.reg.Subscribed("lumi1.q", "Y", "a"))
	assertIdle(t, r)
}

func TestAutoForwardDecode(t *testing.T) {
	r := newRouter(time.Minute)

	r.OnAgent([]byte(`{"_from":524288,"id":9,"method":"auto.forward","params":{"name":"4.3.85","value":"323530"}}`))

	res := recvPub(t, r)
	assert.Equal(t, TopicResport, res.topic)
	assert.JSONEq(t,
		`{"_from":524288,"id":9,"method":"auto.forward","params":{"name":"4.3.85","value":"250"}}`,
		string(res.payload))
	assertIdle(t, r)
}

func TestAutoForwardNotHex(t *testing.T) {
	r := newRouter(time.Minute)

	// value that fails hex decoding is published raw, not dropped
	event := `{"id":9,"method":"auto.forward","params":{"name":"4.3.85","value":"zzz"}}`
	r.OnAgent([]byte(event))

	res := recvPub(t, r)
	assert.Equal(t, TopicResport, res.topic)
	assert.JSONEq(t, event, string(res.payload))
}

func TestTimeoutSweep(t *testing.T) {
	r := newRouter(time.Second)

	r.OnCommand([]byte(`{"id":11,"method":"lanbox.control","params":{"name":"read","value":{"did":"D"}}}`))
	recvOut(t, r)

	r.sweep(time.Now().Add(time.Minute))

	res := recvPub(t, r)
	assert.Equal(t, TopicResponse, res.topic)
	assert.JSONEq(t, `{"id":11,"error":{"code":-32,"message":"request timeout"}}`, string(res.payload))

	// swept id is no longer resolvable, the late reply is dropped
	r.OnAgent([]byte(`{"id":11,"result":"ok"}`))
	assertIdle(t, r)
}

func TestMalformedCommandDropped(t *testing.T) {
	r := newRouter(time.Minute)

	r.OnCommand([]byte(`no json`))
	r.OnCommand([]byte(`{"id":1,"method":"unknown.method","params":{"name":"read","value":{}}}`))
	r.OnAgent([]byte(`no json`))

	assertIdle(t, r)
	assert.Equal(t, 0, r.cor.Len())
}

func TestUnmatchedResponseDropped(t *testing.T) {
	r := newRouter(time.Minute)

	r.OnAgent([]byte(`{"id":99,"result":"ok"}`))
	assertIdle(t, r)
}

func TestUnsolicitedEventRepublished(t *testing.T) {
	r := newRouter(time.Minute)

	event := `{"id":12,"method":"auto.report","params":{"name":"4.1.85","value":{"v":1}}}`
	r.OnAgent([]byte(event))

	res := recvPub(t, r)
	assert.Equal(t, TopicResport, res.topic)
	assert.JSONEq(t, event, string(res.payload))
}

func TestShapedResponsePassThrough(t *testing.T) {
	r := newRouter(time.Minute)

	r.OnCommand([]byte(`{"id":21,"method":"lanbox.control","params":{"name":"read","value":{"did":"D"}}}`))
	recvOut(t, r)

	// gateway reply that already carries method+params goes through as is
	reply := `{"_from":524288,"id":21,"method":"lanbox.event","params":{"name":"read_done","value":{"result":{"0.4.85":"250"}}}}`
	r.OnAgent([]byte(reply))

	ack := recvPub(t, r)
	assert.Equal(t, TopicCommandAck, ack.topic)

	res := recvPub(t, r)
	assert.Equal(t, TopicResponse, res.topic)
	assert.JSONEq(t, reply, string(res.payload))
}

func TestPublishQueueDrop(t *testing.T) {
	r := newRouter(time.Minute)

	for i := 0; i < cap(r.pub)+10; i++ {
		r.publish(TopicResport, []byte(`{}`))
	}
	// overflow is dropped, never blocks the inbound path
	require.Len(t, r.pub, cap(r.pub))
}
