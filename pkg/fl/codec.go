package fl

import (
	"fmt"

	pkgerrors "github.com/absmach/fedlearn/pkg/errors"
	"github.com/fxamacker/cbor/v2"
)

const ContentTypeCBOR = "application/cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v with deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}

	return nil
}

func MarshalParameters(p ParameterSet) ([]byte, error) {
	return Marshal(p)
}

func UnmarshalParameters(data []byte) (ParameterSet, error) {
	var p ParameterSet
	if err := Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}
