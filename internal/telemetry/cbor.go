package telemetry

import (
	"codeberg.org/mutker/co2mqtt/internal/errors"
	"github.com/fxamacker/cbor/v2"
)

// CBORCodec uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// record always produces the same bytes.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	errFactory := errors.New()

	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, errFactory.Wrap(ErrCodecInit, err)
	}

	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, errFactory.Wrap(ErrCodecInit, err)
	}

	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Encode(r Record) ([]byte, error) {
	b, err := c.enc.Marshal(r)
	if err != nil {
		return nil, errors.New().Wrap(ErrEncodeFailed, err)
	}

	return b, nil
}

func (c *CBORCodec) Decode(data []byte) (Record, error) {
	var r Record
	if err := c.dec.Unmarshal(data, &r); err != nil {
		return Record{}, errors.New().Wrap(ErrDecodeFailed, err)
	}

	return r, nil
}

func (*CBORCodec) ContentType() string {
	return "application/cbor"
}
