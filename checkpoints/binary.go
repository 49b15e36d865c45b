package checkpoints

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tsawler/finetune/model"
)

// Binary checkpoint wire layout (protobuf wire format):
//
//	1 varint  epoch
//	2 fixed64 metric
//	3 varint  created-at, unix nanoseconds
//	4 varint  head input dim
//	5 varint  head class count
//	6 bytes   packed fixed64 weights, row-major
//	7 bytes   packed fixed64 bias
const (
	fieldEpoch      = 1
	fieldMetric     = 2
	fieldCreatedAt  = 3
	fieldInputDim   = 4
	fieldNumClasses = 5
	fieldWeights    = 6
	fieldBias       = 7
)

func encodeBinary(state *model.HeadState, meta Meta) []byte {
	b := make([]byte, 0, 64+8*(len(state.Weights)+len(state.Bias)))

	b = protowire.AppendTag(b, fieldEpoch, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(meta.Epoch))

	b = protowire.AppendTag(b, fieldMetric, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(meta.Metric))

	b = protowire.AppendTag(b, fieldCreatedAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(meta.CreatedAt.UnixNano()))

	b = protowire.AppendTag(b, fieldInputDim, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(state.InputDim))

	b = protowire.AppendTag(b, fieldNumClasses, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(state.NumClasses))

	b = protowire.AppendTag(b, fieldWeights, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloat64s(state.Weights))

	b = protowire.AppendTag(b, fieldBias, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloat64s(state.Bias))

	return b
}

func decodeBinary(data []byte) (*model.HeadState, Meta, error) {
	state := &model.HeadState{}
	var meta Meta

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, Meta{}, fmt.Errorf("malformed checkpoint: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, Meta{}, fmt.Errorf("malformed checkpoint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldEpoch:
				meta.Epoch = int(v)
			case fieldCreatedAt:
				meta.CreatedAt = time.Unix(0, int64(v)).UTC()
			case fieldInputDim:
				state.InputDim = int(v)
			case fieldNumClasses:
				state.NumClasses = int(v)
			}
		case typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, Meta{}, fmt.Errorf("malformed checkpoint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldMetric {
				meta.Metric = math.Float64frombits(v)
			}
		case typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, Meta{}, fmt.Errorf("malformed checkpoint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			values, err := unpackFloat64s(v)
			if err != nil {
				return nil, Meta{}, fmt.Errorf("checkpoint field %d: %w", num, err)
			}
			switch num {
			case fieldWeights:
				state.Weights = values
			case fieldBias:
				state.Bias = values
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, Meta{}, fmt.Errorf("malformed checkpoint field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if len(state.Weights) != state.InputDim*state.NumClasses {
		return nil, Meta{}, fmt.Errorf("checkpoint has %d weights, want %d",
			len(state.Weights), state.InputDim*state.NumClasses)
	}
	if len(state.Bias) != state.NumClasses {
		return nil, Meta{}, fmt.Errorf("checkpoint has %d biases, want %d",
			len(state.Bias), state.NumClasses)
	}
	return state, meta, nil
}

func packFloat64s(values []float64) []byte {
	b := make([]byte, 0, 8*len(values))
	for _, v := range values {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func unpackFloat64s(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("packed float data has %d bytes, not a multiple of 8", len(b))
	}
	values := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		values = append(values, math.Float64frombits(v))
		b = b[n:]
	}
	return values, nil
}
