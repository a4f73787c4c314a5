package cmn

import (
	jsoniter "github.com/json-iterator/go"
)

// json is configured once and reused everywhere an opaque `*_json` column
// (analysis_json, extra_json, evidence, details) is encoded or decoded.
// Readers must tolerate unknown fields - jsoniter does this by default,
// which is why it was chosen over encoding/json here.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawJSON is an opaque JSON payload stored verbatim at rest; consumers
// parse it into a tagged variant type only when they need to read it.
type RawJSON []byte

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

func (r RawJSON) IsEmpty() bool { return len(r) == 0 }

func MustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	AssertNoErr(err)
	return b
}

func Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func MustMarshalString(v interface{}) string { return string(MustMarshal(v)) }
