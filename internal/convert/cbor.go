package convert

import (
	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/dadrian/hessian"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.EncOptions{
		Sort:    cbor.SortCanonical,
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	cborDec, err = cbor.DecOptions{
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ToCBOR writes v as CBOR. Dates are tag 0 RFC 3339 strings and map keys are in
// canonical order.
func ToCBOR(v hessian.Value) ([]byte, error) {
	n, err := ToNative(v)
	if err != nil {
		return nil, err
	}
	b, err := cborEnc.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "convert: cbor")
	}
	return b, nil
}

// FromCBOR parses one CBOR data item.
func FromCBOR(data []byte) (hessian.Value, error) {
	var n any
	if err := cborDec.Unmarshal(data, &n); err != nil {
		return nil, errors.Wrap(err, "convert: cbor")
	}
	return FromNative(n)
}
