// Package envelope encodes and decodes the NIP-01 (plus NIP-42) JSON array
// frames exchanged over the websocket: ["EVENT",...], ["REQ",...],
// ["CLOSE",...], ["AUTH",...] inbound, and ["EVENT",...], ["OK",...],
// ["EOSE",...], ["NOTICE",...], ["AUTH",...] outbound — exactly the frame
// set spec.md §6 names, and no others.
// Grounded on the teacher's protocol/socketapi frame dispatch, generalized
// from its fixed kind set to the shapes spec.md §2/§4 names.
package envelope

import (
	"encoding/hex"
	"encoding/json"

	"knotrelay.dev/errorf"
	"knotrelay.dev/event"
	"knotrelay.dev/filter"
)

// Kind identifies which of the client-to-relay frame shapes a decoded
// envelope holds.
type Kind int

const (
	KindUnknown Kind = iota
	KindEvent
	KindReq
	KindClose
	KindAuth
)

// In is a decoded inbound frame. Exactly one of Event, Req, Close, Auth is
// set, matching Kind.
type In struct {
	Kind  Kind
	Event *event.E
	Req   *ReqFrame
	Close string
	Auth  *event.E
}

// ReqFrame is a parsed REQ: a subscription id and its filter set.
type ReqFrame struct {
	SubID   string
	Filters filter.Filters
}

// Decode parses one inbound websocket text frame. EVENT and AUTH payloads
// are parsed but not validated — the caller must run event.Validate (or
// reuse an already-validated *event.E) before trusting Id/Sig/Pubkey.
func Decode(raw []byte) (*In, error) {
	var head []json.RawMessage
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errorf.W("malformed frame: %v", err)
	}
	if len(head) < 1 {
		return nil, errorf.W("empty frame")
	}
	var label string
	if err := json.Unmarshal(head[0], &label); err != nil {
		return nil, errorf.W("frame label is not a string")
	}

	switch label {
	case "EVENT":
		if len(head) != 2 {
			return nil, errorf.W("EVENT frame needs exactly one payload element")
		}
		ev := &event.E{}
		if err := json.Unmarshal(head[1], ev); err != nil {
			return nil, errorf.W("EVENT payload: %v", err)
		}
		return &In{Kind: KindEvent, Event: ev}, nil

	case "AUTH":
		if len(head) != 2 {
			return nil, errorf.W("AUTH frame needs exactly one payload element")
		}
		ev := &event.E{}
		if err := json.Unmarshal(head[1], ev); err != nil {
			return nil, errorf.W("AUTH payload: %v", err)
		}
		return &In{Kind: KindAuth, Auth: ev}, nil

	case "CLOSE":
		if len(head) != 2 {
			return nil, errorf.W("CLOSE frame needs exactly one payload element")
		}
		var subID string
		if err := json.Unmarshal(head[1], &subID); err != nil {
			return nil, errorf.W("CLOSE subscription id: %v", err)
		}
		return &In{Kind: KindClose, Close: subID}, nil

	case "REQ":
		if len(head) < 2 {
			return nil, errorf.W("REQ frame needs a subscription id")
		}
		var subID string
		if err := json.Unmarshal(head[1], &subID); err != nil {
			return nil, errorf.W("REQ subscription id: %v", err)
		}
		fs := make(filter.Filters, 0, len(head)-2)
		for _, raw := range head[2:] {
			f := filter.New()
			if err := json.Unmarshal(raw, f); err != nil {
				return nil, errorf.W("REQ filter: %v", err)
			}
			fs = append(fs, f)
		}
		return &In{Kind: KindReq, Req: &ReqFrame{SubID: subID, Filters: fs}}, nil

	default:
		return nil, errorf.W("unknown frame label %q", label)
	}
}

// EncodeEvent renders ["EVENT", subID, ev].
func EncodeEvent(subID string, ev *event.E) []byte {
	b, _ := json.Marshal([]interface{}{"EVENT", subID, ev})
	return b
}

// EncodeOK renders ["OK", idHex, ok, message].
func EncodeOK(id []byte, ok bool, message []byte) []byte {
	b, _ := json.Marshal([]interface{}{"OK", hex.EncodeToString(id), ok, string(message)})
	return b
}

// EncodeEOSE renders ["EOSE", subID].
func EncodeEOSE(subID string) []byte {
	b, _ := json.Marshal([]interface{}{"EOSE", subID})
	return b
}

// EncodeNotice renders ["NOTICE", message].
func EncodeNotice(message []byte) []byte {
	b, _ := json.Marshal([]interface{}{"NOTICE", string(message)})
	return b
}

// EncodeAuthChallenge renders ["AUTH", challenge].
func EncodeAuthChallenge(challenge string) []byte {
	b, _ := json.Marshal([]interface{}{"AUTH", challenge})
	return b
}
