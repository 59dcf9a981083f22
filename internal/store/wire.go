package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/wesleywu/routesync/internal/route"
)

// Notification announces a changed object on the event channel.
type Notification struct {
	Key         string            `json:"key"`
	Op          string            `json:"op"`
	Fields      map[string]string `json:"fields,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// NewNotification captures o for publication.
func NewNotification(o *Object) Notification {
	n := Notification{
		Key:         o.Key(),
		Op:          o.Op.String(),
		Fingerprint: strconv.FormatUint(o.Fingerprint(), 16),
	}
	if o.Op != route.OpDelete {
		n.Fields = o.Fields()
	}
	return n
}

// RequestKind selects the handler for a request.
type RequestKind string

const (
	RequestWrite RequestKind = "write"
	RequestRead  RequestKind = "read"
)

// Request is a write or read request received from a client.
type Request struct {
	ID     string            `json:"id"`
	Kind   RequestKind       `json:"kind"`
	Op     string            `json:"op,omitempty"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Object rebuilds the request's target object.
func (r *Request) Object() (*Object, error) {
	cat, name := ParseKey(r.Key)
	if cat == "" {
		return nil, fmt.Errorf("request %s has no key", r.ID)
	}
	o := NewObject(cat, name)
	if r.Op != "" {
		op, err := route.ParseOperation(r.Op)
		if err != nil {
			return nil, err
		}
		o.Op = op
	}
	for k, v := range r.Fields {
		o.Set(k, v)
	}
	return o, nil
}

// Reply answers a request.
type Reply struct {
	ID      string         `json:"id"`
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Objects []Notification `json:"objects,omitempty"`
}

// DecodeRequest parses a request payload.
func DecodeRequest(payload []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if r.Kind != RequestWrite && r.Kind != RequestRead {
		return nil, fmt.Errorf("request %s: unknown kind %q", r.ID, r.Kind)
	}
	return &r, nil
}

// Encode marshals a notification, request or reply.
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
