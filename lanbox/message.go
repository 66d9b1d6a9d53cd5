// Envelope format of the gateway LAN protocol. Messages are JSON objects with
// caller-chosen integer id, method string and params {name, value}. Requests
// carry _to, responses carry _from. The value shape depends on method+name and
// is checked against a fixed dispatch table, not a generic schema.
package lanbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	MethodAutoControl   = "auto.control"
	MethodAutoForward   = "auto.forward"
	MethodLanboxControl = "lanbox.control"
	MethodLanboxEvent   = "lanbox.event"
)

const (
	NameResWrite       = "/lumi/gw/res/write"
	NameHubInterest    = "hub_interest"
	NameWrite          = "write"
	NameRead           = "read"
	NameIfttt          = "ifttt"
	NameResUnsubscribe = "res_unsubscribe"
	NameReadDone       = "read_done"
	NameWriteAck       = "write_ack"
)

const (
	OpSyncSubscribe = "sync/subscribe"
	OpDelSubscribe  = "del/subscribe"
)

// AddrLanBox is the pseudo-address meaning "route via LAN to another gateway".
const AddrLanBox = 524288

var ErrMalformedEnvelope = errors.New("lanbox: malformed envelope")

type Message map[string]json.RawMessage

type Params struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewMessage parses any JSON object from the wire. Bare acks like {"id":1,
// "result":"ok"} are legal here - strict envelope checks live in ParseCommand.
func NewMessage(b []byte) (Message, error) {
	msg := make(Message)
	if err := json.Unmarshal(b, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

func (m Message) GetInt(key string) int64 {
	var v int64
	if err := json.Unmarshal(m[key], &v); err != nil {
		return 0
	}
	return v
}

func (m Message) GetString(key string) string {
	var v string
	if err := json.Unmarshal(m[key], &v); err != nil {
		return ""
	}
	return v
}

func (m Message) SetInt(key string, v int64) {
	m[key], _ = json.Marshal(v)
}

func (m Message) SetValue(key string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	m[key] = b
}

func (m Message) Method() string {
	return m.GetString("method")
}

func (m Message) Params() (Params, error) {
	raw, ok := m["params"]
	if !ok {
		return Params{}, fmt.Errorf("%w: missing params", ErrMalformedEnvelope)
	}
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return p, nil
}

func (m Message) SetParams(p Params) {
	m["params"], _ = json.Marshal(p)
}

func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

type shape byte

const (
	shapeObject shape = '{'
	shapeArray  shape = '['
)

func (s shape) match(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == byte(s)
}

// commandTable enumerates the envelopes accepted on miio/command and the
// required params.value shape for each.
var commandTable = map[string]map[string]shape{
	MethodAutoControl: {
		NameResWrite: shapeObject,
	},
	MethodLanboxEvent: {
		NameHubInterest: shapeObject,
	},
	MethodLanboxControl: {
		NameWrite: shapeObject,
		NameRead:  shapeObject,
		NameIfttt: shapeObject,
	},
}

// ParseCommand parses and validates an inbound command envelope against the
// dispatch table. Unknown method/name pairs are malformed, not forwarded.
func ParseCommand(b []byte) (Message, Params, error) {
	msg, err := NewMessage(b)
	if err != nil {
		return nil, Params{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if !msg.Has("id") {
		return nil, Params{}, fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	method := msg.Method()
	if method == "" {
		return nil, Params{}, fmt.Errorf("%w: missing method", ErrMalformedEnvelope)
	}
	p, err := msg.Params()
	if err != nil {
		return nil, Params{}, err
	}
	if p.Name == "" {
		return nil, Params{}, fmt.Errorf("%w: missing params.name", ErrMalformedEnvelope)
	}
	names, ok := commandTable[method]
	if !ok {
		return nil, Params{}, fmt.Errorf("%w: unknown method %q", ErrMalformedEnvelope, method)
	}
	sh, ok := names[p.Name]
	if !ok {
		return nil, Params{}, fmt.Errorf("%w: unknown name %q for %q", ErrMalformedEnvelope, p.Name, method)
	}
	if !sh.match(p.Value) {
		return nil, Params{}, fmt.Errorf("%w: wrong value shape for %s/%s", ErrMalformedEnvelope, method, p.Name)
	}
	return msg, p, nil
}

// ControlValue is the params.value of lanbox.control write/read and of
// auto.control /lumi/gw/res/write.
type ControlValue struct {
	Did   string          `json:"did"`
	Sdid  string          `json:"sdid,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// IftttValue is the params.value of lanbox.control ifttt. Data holds
// [{did, rids}] for sync/subscribe and [rid, ...] for del/subscribe.
type IftttValue struct {
	Operation       string          `json:"operation"`
	Data            json.RawMessage `json:"data"`
	Pid             string          `json:"pid,omitempty"`
	Did             string          `json:"did,omitempty"`
	DelSubscribeDid string          `json:"delSubscribeDid,omitempty"`
	Time            int64           `json:"time,omitempty"`
}

type SubscribeItem struct {
	Did  string   `json:"did"`
	Rids []string `json:"rids"`
}

type ResUnsubscribeValue struct {
	Did     string   `json:"did"`
	Reslist []string `json:"reslist"`
	Task    string   `json:"task,omitempty"`
}

type HubInterestValue struct {
	Hublist []string `json:"hublist"`
	Task    string   `json:"task,omitempty"`
}
