package telemetry

// Record is one message handed to the transport. Which fields are present,
// not their values, tells consumers what happened: Error present means the
// sensor faulted and CO2, if present, is the last known average.
type Record struct {
	CO2   *int `json:"co2,omitempty"   cbor:"co2,omitempty"`
	Temp  *int `json:"temp,omitempty"  cbor:"temp,omitempty"`
	Error *int `json:"error,omitempty" cbor:"error,omitempty"`
}

// Codec serializes records for the wire.
type Codec interface {
	Encode(r Record) ([]byte, error)
	Decode(data []byte) (Record, error)
	ContentType() string
}

// Measurement builds the regular record carrying the averaged concentration
// and, when known, the latest temperature.
func Measurement(co2 int, temp *int) Record {
	return Record{CO2: &co2, Temp: temp}
}

// Fault builds the diagnostic record for a sensor error. avg is omitted when
// no average exists.
func Fault(code int, avg *int) Record {
	return Record{Error: &code, CO2: avg}
}

// IsFault reports whether r describes a sensor error.
func (r Record) IsFault() bool {
	return r.Error != nil
}
