package codec

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// templateField carries the frame discriminator inside the Struct.
const templateField = "template_id"

// ProtoCodec encodes frames as protobuf Struct messages.
type ProtoCodec struct{}

// NewProtoCodec returns the protobuf codec.
func NewProtoCodec() *ProtoCodec {
	return &ProtoCodec{}
}

// Encode implements Codec.
func (ProtoCodec) Encode(f Frame) ([]byte, error) {
	if f.TemplateID <= 0 {
		return nil, fmt.Errorf("%w: invalid template id %d", ErrEncoding, f.TemplateID)
	}

	fields := make(map[string]any, len(f.Fields)+1)
	for k, v := range f.Fields {
		if k == templateField {
			return nil, fmt.Errorf("%w: reserved field %q", ErrEncoding, k)
		}
		nv, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrEncoding, k, err)
		}
		fields[k] = nv
	}
	fields[templateField] = float64(f.TemplateID)

	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return data, nil
}

// Decode implements Codec.
func (ProtoCodec) Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty message", ErrDecoding)
	}

	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecoding, err)
	}

	fields := st.AsMap()
	raw, ok := fields[templateField].(float64)
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing %s", ErrDecoding, templateField)
	}
	if raw <= 0 || raw > math.MaxInt32 || raw != math.Trunc(raw) {
		return Frame{}, fmt.Errorf("%w: invalid %s %v", ErrDecoding, templateField, raw)
	}
	delete(fields, templateField)

	return Frame{TemplateID: int32(raw), Fields: fields}, nil
}

// normalize maps Go values structpb cannot take directly onto ones it can.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint32, uint64, []any, map[string]any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, nil
	case decimal.Decimal:
		return x.String(), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
