package codec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrEncoding = errors.New("codec: encoding failed")
	ErrDecoding = errors.New("codec: decoding failed")
)

// Codec converts frames to and from their wire representation.
type Codec interface {
	// Encode serializes a frame. It has no side effects.
	Encode(f Frame) ([]byte, error)

	// Decode parses one wire message into a frame.
	Decode(data []byte) (Frame, error)
}

// Frame is one decoded venue message.
type Frame struct {
	TemplateID int32
	Fields     map[string]any
}

// NewFrame creates a frame with an empty field map.
func NewFrame(templateID int32) Frame {
	return Frame{TemplateID: templateID, Fields: make(map[string]any)}
}

// With sets a field and returns the frame for chaining.
func (f Frame) With(key string, value any) Frame {
	if f.Fields == nil {
		f.Fields = make(map[string]any)
	}
	f.Fields[key] = value
	return f
}

// Has reports whether the field is present.
func (f Frame) Has(key string) bool {
	_, ok := f.Fields[key]
	return ok
}

// String returns a string field. Numbers are formatted.
func (f Frame) String(key string) string {
	switch v := f.Fields[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s
			}
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Strings returns a repeated string field.
func (f Frame) Strings(key string) []string {
	switch v := f.Fields[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64:
				out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Int returns an integer field. Struct numbers decode as float64, so both
// representations are accepted.
func (f Frame) Int(key string) (int64, bool) {
	switch v := f.Fields[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns a floating point field.
func (f Frame) Float(key string) (float64, bool) {
	switch v := f.Fields[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(v, 64)
		return n, err == nil
	}
	return 0, false
}

// Decimal returns a numeric field as a decimal. Missing fields are zero.
func (f Frame) Decimal(key string) decimal.Decimal {
	switch v := f.Fields[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case decimal.Decimal:
		return v
	}
	return decimal.Zero
}

// Bool returns a boolean field.
func (f Frame) Bool(key string) bool {
	switch v := f.Fields[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// Keys returns the field names in sorted order.
func (f Frame) Keys() []string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f Frame) GoString() string {
	return fmt.Sprintf("codec.Frame{TemplateID: %d, Fields: %v}", f.TemplateID, f.Fields)
}
