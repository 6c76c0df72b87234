package sensors

import "fmt"

// UnidentifiedSensorError means a port reported a product name outside the
// catalog. The port map for the cycle must not be used.
type UnidentifiedSensorError struct {
	ProductName string
	Port        int
}

func (e *UnidentifiedSensorError) Error() string {
	if e.Port > 0 {
		return fmt.Sprintf("could not find sensor %q on port %d in catalog", e.ProductName, e.Port)
	}
	return fmt.Sprintf("could not find sensor %q in catalog", e.ProductName)
}

// DecodeError means a process data payload could not be turned into values
type DecodeError struct {
	Model   Model
	Payload string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload %q: %s", e.Model, e.Payload, e.Reason)
}
