package sensors

import (
	"fmt"
	"math"
	"strconv"
)

// wordLen is one 16 bit process data word in hex characters
const wordLen = 4

// ParseSigned16 parses a 4 digit hex word as two's complement int16
func ParseSigned16(word string) (int, error) {
	u, err := parseWord(word)
	if err != nil {
		return 0, err
	}
	v := int(u)
	if v&0x8000 != 0 {
		v -= 0x10000
	}
	return v, nil
}

// ParseShifted parses a 4 digit hex word unsigned and drops the two status bits
func ParseShifted(word string) (int, error) {
	u, err := parseWord(word)
	if err != nil {
		return 0, err
	}
	return int(u >> 2), nil
}

func parseWord(word string) (uint16, error) {
	if len(word) != wordLen {
		return 0, fmt.Errorf("word %q: expected %d hex digits", word, wordLen)
	}
	u, err := strconv.ParseUint(word, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("word %q: %w", word, err)
	}
	return uint16(u), nil
}

// Round2 rounds to two decimal places
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Format2 formats a value with exactly two decimals
func Format2(x float64) string {
	return strconv.FormatFloat(Round2(x), 'f', 2, 64)
}

// Decode turns a raw pdin string into the model's measurements
func (m Model) Decode(payload string) (Reading, error) {
	var (
		measurements []Measurement
		err          error
	)

	switch m {
	case ModelAH002:
		measurements, err = decodeAH002(payload)
	case ModelAT001:
		measurements, err = decodeAT001(payload)
	case ModelAP011:
		measurements, err = decodeAP011(payload)
	case ModelAS005Liqu:
		measurements, err = decodeAS005Liqu(payload)
	default:
		return Reading{}, &DecodeError{Model: m, Payload: payload, Reason: "no decoder for model"}
	}

	if err != nil {
		return Reading{}, &DecodeError{Model: m, Payload: payload, Reason: err.Error()}
	}

	return Reading{
		Model:        m,
		ModelName:    m.String(),
		Measurements: measurements,
	}, nil
}

func field(payload string, from, to int) (string, error) {
	if len(payload) < to {
		return "", fmt.Errorf("payload too short: need %d hex digits, got %d", to, len(payload))
	}
	return payload[from:to], nil
}

// AH002: humidity [0:4], temperature [8:12], both signed x 0.1
func decodeAH002(payload string) ([]Measurement, error) {
	humidityWord, err := field(payload, 0, 4)
	if err != nil {
		return nil, err
	}
	tempWord, err := field(payload, 8, 12)
	if err != nil {
		return nil, err
	}

	humidity, err := ParseSigned16(humidityWord)
	if err != nil {
		return nil, err
	}
	temp, err := ParseSigned16(tempWord)
	if err != nil {
		return nil, err
	}

	return []Measurement{
		newMeasurement(KeyHumidityRack, KeyHumidityRack, UnitPercent, float64(humidity)*0.1),
		newMeasurement(KeyTemperatureRack, KeyTemperatureRack, UnitCelsius, float64(temp)*0.1),
	}, nil
}

// AT001: the whole payload is one signed word x 0.1
func decodeAT001(payload string) ([]Measurement, error) {
	temp, err := ParseSigned16(payload)
	if err != nil {
		return nil, err
	}
	return []Measurement{
		newMeasurement(KeyTemperatureFlow, KeyTemperatureFlow, UnitCelsius, float64(temp)*0.1),
	}, nil
}

// AP011: word [0:4] unsigned >> 2, unscaled
func decodeAP011(payload string) ([]Measurement, error) {
	word, err := field(payload, 0, 4)
	if err != nil {
		return nil, err
	}
	pressure, err := ParseShifted(word)
	if err != nil {
		return nil, err
	}
	return []Measurement{
		newMeasurement(KeyPressure, KeyPressure, UnitBar, float64(pressure)),
	}, nil
}

// AS005_LIQU: flow [0:4] signed unscaled, return temperature [4:8] >> 2 x 0.1
func decodeAS005Liqu(payload string) ([]Measurement, error) {
	flowWord, err := field(payload, 0, 4)
	if err != nil {
		return nil, err
	}
	tempWord, err := field(payload, 4, 8)
	if err != nil {
		return nil, err
	}

	flow, err := ParseSigned16(flowWord)
	if err != nil {
		return nil, err
	}
	temp, err := ParseShifted(tempWord)
	if err != nil {
		return nil, err
	}

	return []Measurement{
		newMeasurement(KeyFlow, KeyFlow, UnitLitrePerHour, float64(flow)),
		newMeasurement(KeyTemperatureReturn, KeyTemperatureReturn, UnitCelsius, float64(temp)*0.1),
	}, nil
}
