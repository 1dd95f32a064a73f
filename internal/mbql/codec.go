package mbql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode parses a JSON document into a Node. Numbers keep their textual form.
func Decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("mbql: unexpected data after top-level value")
	}
	return n, nil
}

// DecodeMapping parses a JSON object. Any other top-level value is an error.
func DecodeMapping(data []byte) (*Mapping, error) {
	n, err := Decode(data)
	if err != nil {
		return nil, err
	}
	m, ok := n.(*Mapping)
	if !ok {
		return nil, fmt.Errorf("mbql: expected object, got %s", n.Kind())
	}
	return m, nil
}

func decodeValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("mbql: decode: %w", err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return decodeMapping(dec)
		case '[':
			return decodeSequence(dec)
		default:
			return nil, fmt.Errorf("mbql: unexpected delimiter %q", v)
		}
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		return Number(v), nil
	case string:
		return String(v), nil
	default:
		return nil, fmt.Errorf("mbql: unexpected token %T", tok)
	}
}

func decodeMapping(dec *json.Decoder) (*Mapping, error) {
	m := NewMapping()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("mbql: decode key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("mbql: object key is %T", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("mbql: decode object end: %w", err)
	}
	return m, nil
}

func decodeSequence(dec *json.Decoder) (*Sequence, error) {
	s := &Sequence{Items: []Node{}}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		s.Items = append(s.Items, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("mbql: decode array end: %w", err)
	}
	return s, nil
}

// Marshal encodes n as compact JSON without HTML escaping, so SQL text such as
// "a < b" survives a round trip byte for byte.
func Marshal(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent is Marshal followed by indentation.
func MarshalIndent(n Node, prefix, indent string) ([]byte, error) {
	raw, err := Marshal(n)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, prefix, indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, n Node) error {
	switch v := n.(type) {
	case nil:
		buf.WriteString("null")
	case Scalar:
		return encodeScalar(buf, v)
	case *Sequence:
		if v == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Mapping:
		if v == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, v.values[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("mbql: cannot encode %T", n)
	}
	return nil
}

func encodeScalar(buf *bytes.Buffer, s Scalar) error {
	switch s.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if s.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		if s.num == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(string(s.num))
	case KindString:
		return encodeString(buf, s.s)
	default:
		return fmt.Errorf("mbql: unknown scalar kind %d", s.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encoder.Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error)    { return Marshal(s) }
func (s *Sequence) MarshalJSON() ([]byte, error) { return Marshal(s) }
func (m *Mapping) MarshalJSON() ([]byte, error)  { return Marshal(m) }

// UnmarshalJSON lets a Mapping be the target of json.Unmarshal.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	out, err := DecodeMapping(data)
	if err != nil {
		return err
	}
	*m = *out
	return nil
}

// UnmarshalJSON lets a Sequence be the target of json.Unmarshal.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	n, err := Decode(data)
	if err != nil {
		return err
	}
	seq, ok := n.(*Sequence)
	if !ok {
		return fmt.Errorf("mbql: expected array, got %s", n.Kind())
	}
	*s = *seq
	return nil
}
