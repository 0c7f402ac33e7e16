// Package webhook turns gateway webhook bodies into a canonical payload.
//
// Gateways post the same logical message in several shapes: a JSON object,
// a form-encoded body, or a JSON-wrapped byte array of either. Decode picks
// one decoder per shape from the Content-Type header and the body bytes.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime"
	"net/url"
	"strconv"
	"time"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

var ErrMissingFields = errors.New("missing required fields: from and message")

const UnknownRecipient = "unknown"

type Payload struct {
	ID      string
	From    string
	To      string
	Message string
}

type Encoding int

const (
	EncodingRaw Encoding = iota
	EncodingJSON
	EncodingForm
	EncodingBuffer
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingForm:
		return "form"
	case EncodingBuffer:
		return "buffer"
	default:
		return "raw"
	}
}

type fields map[string]string

// Decode never fails: a body no decoder understands yields an empty
// payload, which Normalize then rejects.
func Decode(contentType string, body []byte) (Payload, Encoding) {
	f, enc := decode(mediaType(contentType), body)
	return Payload{
		ID:      f["id"],
		From:    f["from"],
		To:      f["to"],
		Message: f["message"],
	}, enc
}

// Normalize applies defaults and rejects payloads without a sender or body.
func (p Payload) Normalize(now time.Time) (Payload, error) {
	if p.From == "" || p.Message == "" {
		return p, ErrMissingFields
	}
	if p.To == "" {
		p.To = UnknownRecipient
	}
	if p.ID == "" {
		p.ID = model.FallbackID(now)
	}
	return p, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}

func decode(mt string, body []byte) (fields, Encoding) {
	switch mt {
	case "application/x-www-form-urlencoded":
		return decodeForm(body), EncodingForm
	case "application/json":
		if f, enc, ok := decodeJSON(body, true); ok {
			return f, enc
		}
	}
	return decodeBytes(body, true)
}

// decodeBytes applies the raw-body heuristic. A body containing both '='
// and '&' is treated as form data even when it is JSON with those
// characters inside a string value.
func decodeBytes(body []byte, unwrap bool) (fields, Encoding) {
	if bytes.IndexByte(body, '=') >= 0 && bytes.IndexByte(body, '&') >= 0 {
		return decodeForm(body), EncodingForm
	}
	if json.Valid(body) {
		if f, enc, ok := decodeJSON(body, unwrap); ok {
			return f, enc
		}
	}
	return fields{}, EncodingRaw
}

func decodeForm(body []byte) fields {
	vals, err := url.ParseQuery(string(body))
	if err != nil && len(vals) == 0 {
		return fields{}
	}
	f := fields{}
	for k := range vals {
		f[k] = vals.Get(k)
	}
	return f
}

type bufferWrapper struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

func decodeJSON(body []byte, unwrap bool) (fields, Encoding, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, EncodingRaw, false
	}

	if unwrap {
		if raw, ok := unwrapBuffer(body); ok {
			f, _ := decodeBytes(raw, false)
			return f, EncodingBuffer, true
		}
	}

	f := fields{}
	for k, v := range obj {
		if s, ok := scalarString(v); ok {
			f[k] = s
		}
	}
	return f, EncodingJSON, true
}

func unwrapBuffer(body []byte) ([]byte, bool) {
	var w bufferWrapper
	if err := json.Unmarshal(body, &w); err != nil || w.Type != "Buffer" || w.Data == nil {
		return nil, false
	}
	out := make([]byte, len(w.Data))
	for i, b := range w.Data {
		if b < 0 || b > 255 {
			return nil, false
		}
		out[i] = byte(b)
	}
	return out, true
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
