package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrDecode matches every error returned by Decode.
var ErrDecode = errors.New("envelope decode failed")

// DecodeError describes why inbound bytes were rejected.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

type wireEnvelope struct {
	V       int             `json:"v,omitempty"`
	Type    string          `json:"type"`
	PeerID  string          `json:"peerId"`
	TS      *int64          `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serialises p from peerID, stamped with the current time.
func Encode(peerID string, p Payload) ([]byte, error) {
	return EncodeAt(peerID, time.Now().UnixMilli(), p)
}

// EncodeAt is Encode with an explicit sender timestamp in epoch milliseconds.
func EncodeAt(peerID string, ts int64, p Payload) ([]byte, error) {
	if p == nil {
		return nil, errors.New("encode envelope: nil payload")
	}
	if _, ok := p.(UnknownPayload); ok {
		return nil, fmt.Errorf("encode envelope: unknown type %q", p.Kind())
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", p.Kind(), err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", p.Kind(), err)
	}
	return json.Marshal(wireEnvelope{
		V:       Version,
		Type:    string(p.Kind()),
		PeerID:  peerID,
		TS:      &ts,
		Payload: body,
	})
}

// Decode parses one envelope. Malformed input of any shape yields a
// *DecodeError; an unrecognised type yields an UnknownPayload and no error.
func Decode(data []byte) (env Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			env, err = Envelope{}, &DecodeError{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Envelope{}, &DecodeError{Reason: "empty input"}
	}
	var w wireEnvelope
	if err := strictUnmarshal(data, &w); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if w.V < 0 || w.V > Version {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("unsupported version %d", w.V)}
	}
	if w.Type == "" {
		return Envelope{}, &DecodeError{Reason: "missing type"}
	}
	if !ValidPeerID(w.PeerID) {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("invalid peerId %q", w.PeerID)}
	}
	if w.TS == nil || *w.TS <= 0 {
		return Envelope{}, &DecodeError{Reason: "missing ts"}
	}

	env = Envelope{Version: w.V, Kind: Kind(w.Type), PeerID: w.PeerID, TS: *w.TS}
	payload, err := decodePayload(Kind(w.Type), w.Payload)
	if err != nil {
		return Envelope{}, &DecodeError{Reason: fmt.Sprintf("invalid %s payload", w.Type), Err: err}
	}
	env.Payload = payload
	return env, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindSchedule:
		var v SchedulePayload
		if err := unmarshalObject(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindReminder:
		var v ReminderPayload
		if err := unmarshalObject(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindCancel:
		var v CancelPayload
		if err := unmarshalObject(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case KindPing:
		if err := unmarshalObject(raw, &struct{}{}); err != nil {
			return nil, err
		}
		p = PingPayload{}
	case KindPong:
		if err := unmarshalObject(raw, &struct{}{}); err != nil {
			return nil, err
		}
		p = PongPayload{}
	default:
		return UnknownPayload{Type: string(kind), Raw: append(json.RawMessage(nil), raw...)}, nil
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalObject(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("payload must be an object")
	}
	return strictUnmarshal(trimmed, v)
}

// strictUnmarshal rejects unknown fields and trailing data.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("trailing data")
		}
		return err
	}
	return nil
}
