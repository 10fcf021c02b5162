package telemetry

import (
	"encoding/json"

	"codeberg.org/mutker/co2mqtt/internal/errors"
)

// JSONCodec produces the compact `{"co2":612,"temp":23}` form.
type JSONCodec struct{}

func (JSONCodec) Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}

	return b, nil
}

func (JSONCodec) Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.New().Wrap(ErrDecodeFailed, err)
	}

	return r, nil
}

func (JSONCodec) ContentType() string {
	return "application/json"
}
