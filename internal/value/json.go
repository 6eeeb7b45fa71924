package value

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// ToAny converts a Value into a plain Go value (map[string]any, []any,
// float64, string, bool, nil) suitable for json.Marshal by a Backend. Node
// values map to nil per §4.A ("JSON output maps Node→Null, others to their
// obvious JSON forms").
func ToAny(v Value) any {
	switch v.kind {
	case KindNull, KindNode:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToAny(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for _, p := range v.obj {
			out[p.Key] = ToAny(p.Value)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler so a Value can be passed directly
// wherever AnalysisResult.result (§3) is persisted.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(ToAny(v))
}

// ToJSON renders v to its compact JSON byte form, built incrementally with
// sjson rather than encoding/json.Marshal so that Object insertion order is
// preserved in the output (encoding/json always sorts map keys).
func ToJSON(v Value) ([]byte, error) {
	switch v.kind {
	case KindNull, KindNode:
		return []byte("null"), nil
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		doc := []byte("[]")
		var err error
		for i, e := range v.arr {
			var raw []byte
			raw, err = ToJSON(e)
			if err != nil {
				return nil, err
			}
			doc, err = sjson.SetRawBytes(doc, itoa(i), raw)
			if err != nil {
				return nil, err
			}
		}
		return doc, nil
	case KindObject:
		doc := []byte("{}")
		var err error
		for _, p := range v.obj {
			var raw []byte
			raw, err = ToJSON(p.Value)
			if err != nil {
				return nil, err
			}
			doc, err = sjson.SetRawBytes(doc, sjsonPath(p.Key), raw)
			if err != nil {
				return nil, err
			}
		}
		return doc, nil
	default:
		return []byte("null"), nil
	}
}

// Pretty renders v as indented JSON, backing the `pretty` transformer.
func Pretty(v Value) (string, error) {
	raw, err := ToJSON(v)
	if err != nil {
		return "", err
	}
	return string(pretty.Pretty(raw)), nil
}

// FromJSON parses arbitrary JSON bytes into a Value, used when a Backend
// hands previously stored analysis results back out (boltstore's
// IterateResults). Malformed JSON yields Null rather than an error,
// consistent with the analyzer's total evaluation model.
func FromJSON(data []byte) Value {
	if !gjson.ValidBytes(data) {
		return Null
	}
	return fromGJSON(gjson.ParseBytes(data))
}

func fromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.Number:
		return Number(r.Num)
	case gjson.String:
		return String(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			var arr []Value
			r.ForEach(func(_, val gjson.Result) bool {
				arr = append(arr, fromGJSON(val))
				return true
			})
			return ArrayFrom(arr)
		}
		var pairs []Pair
		r.ForEach(func(key, val gjson.Result) bool {
			pairs = append(pairs, Pair{Key: key.String(), Value: fromGJSON(val)})
			return true
		})
		return Object(pairs...)
	default:
		return Null
	}
}

// sjsonPath escapes a raw object key for use as an sjson path segment: sjson
// treats '.' and '*' specially, so keys containing them must be wrapped.
func sjsonPath(key string) string {
	for _, c := range key {
		if c == '.' || c == '*' || c == '?' {
			return ":" + key
		}
	}
	return key
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
