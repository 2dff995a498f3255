package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// Version is the JSON-RPC version carried in every envelope.
const Version = "2.0"

// ID is a request id: a number or a string.
type ID struct {
	num   int64
	str   string
	isStr bool
}

// NewNumberID returns a numeric id.
func NewNumberID(n int64) ID { return ID{num: n} }

// NewStringID returns a string id.
func NewStringID(s string) ID { return ID{str: s, isStr: true} }

// String renders the id for logs and map keys.
func (id ID) String() string {
	if id.isStr {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NewStringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer or string: %s", data)
	}
	*id = NewNumberID(n)
	return nil
}

// Message is a JSON-RPC envelope: a request (Method and ID), a notification
// (Method only) or a response (ID with Result or Error).
type Message struct {
	ID     *ID
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

// IsRequest reports whether m expects a response.
func (m *Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether m is a notification.
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether m answers a request.
func (m *Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler. Successful responses always carry
// a result member, null when empty.
func (m *Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		JSONRPC: Version,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
		Result:  m.Result,
		Error:   m.Error,
	}
	if m.IsResponse() && m.Error == nil && len(w.Result) == 0 {
		w.Result = json.RawMessage("null")
	}
	return json.Marshal(w)
}

// NewRequest builds a request envelope.
func NewRequest(id ID, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{ID: &id, Method: method, Params: raw}, nil
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{Method: method, Params: raw}, nil
}

// NewResponse builds a response envelope. A non-nil err produces an error
// response; its code is preserved when it is a *Error.
func NewResponse(id ID, result any, err error) (*Message, error) {
	if err != nil {
		return &Message{ID: &id, Error: AsError(err)}, nil
	}
	var raw json.RawMessage
	switch r := result.(type) {
	case nil:
	case json.RawMessage:
		raw = r
	default:
		b, merr := json.Marshal(result)
		if merr != nil {
			return nil, fmt.Errorf("marshal result: %w", merr)
		}
		raw = b
	}
	return &Message{ID: &id, Result: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return b, nil
}

const envelopeSchema = `{
  "type": "object",
  "required": ["jsonrpc"],
  "properties": {
    "jsonrpc": {"const": "2.0"},
    "id": {"type": ["integer", "string"]},
    "method": {"type": "string", "minLength": 1},
    "params": {"type": ["object", "array", "null"]},
    "error": {
      "type": "object",
      "required": ["code", "message"],
      "properties": {
        "code": {"type": "integer"},
        "message": {"type": "string"}
      }
    }
  },
  "oneOf": [
    {"required": ["method"]},
    {"required": ["id", "result"], "not": {"anyOf": [{"required": ["method"]}, {"required": ["error"]}]}},
    {"required": ["id", "error"], "not": {"anyOf": [{"required": ["method"]}, {"required": ["result"]}]}}
  ]
}`

var envelope = jsonschema.MustCompileString("envelope.json", envelopeSchema)

// Decode parses and validates one frame. Invalid JSON fails with ErrParse;
// anything that is not a well formed envelope fails with ErrProtocol. The
// returned *Error carries the offending id when one could be read.
func Decode(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, &Error{Code: CodeParseError, Message: "invalid JSON"}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Code: CodeParseError, Message: err.Error()}
	}
	if err := envelope.Validate(doc); err != nil {
		return nil, &Error{Code: CodeInvalidRequest, Message: "malformed message", Data: err.Error()}
	}

	msg := &Message{}
	if id := gjson.GetBytes(data, "id"); id.Exists() {
		var v ID
		if err := v.UnmarshalJSON([]byte(id.Raw)); err != nil {
			return nil, &Error{Code: CodeInvalidRequest, Message: err.Error()}
		}
		msg.ID = &v
	}
	if method := gjson.GetBytes(data, "method"); method.Exists() {
		msg.Method = method.String()
		if p := gjson.GetBytes(data, "params"); p.Exists() {
			msg.Params = json.RawMessage(p.Raw)
		}
		return msg, nil
	}
	if e := gjson.GetBytes(data, "error"); e.Exists() {
		var rpcErr Error
		if err := json.Unmarshal([]byte(e.Raw), &rpcErr); err != nil {
			return nil, &Error{Code: CodeInvalidRequest, Message: err.Error()}
		}
		msg.Error = &rpcErr
		return msg, nil
	}
	msg.Result = json.RawMessage(gjson.GetBytes(data, "result").Raw)
	return msg, nil
}

// PeekID returns the id of a frame that may have failed to decode, so an
// error response can still be correlated.
func PeekID(data []byte) *ID {
	r := gjson.GetBytes(data, "id")
	if !r.Exists() {
		return nil
	}
	var id ID
	if err := id.UnmarshalJSON([]byte(r.Raw)); err != nil {
		return nil
	}
	return &id
}
