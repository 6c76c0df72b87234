package sensors

// Model is a sensor type the decoder knows. Adding one means adding a
// constant, a name and a case in Decode.
type Model int

const (
	ModelUnknown Model = iota

	// humidity + temperature (rack)
	ModelAH002
	// flow temperature
	ModelAT001
	// pressure
	ModelAP011
	// flow + return temperature
	ModelAS005Liqu
)

var modelNames = map[Model]string{
	ModelAH002:     "AH002",
	ModelAT001:     "AT001",
	ModelAP011:     "AP011",
	ModelAS005Liqu: "AS005_LIQU",
}

// Models returns all known models in declaration order
func Models() []Model {
	return []Model{ModelAH002, ModelAT001, ModelAP011, ModelAS005Liqu}
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseModel maps a product name to its model
func ParseModel(productName string) (Model, error) {
	for model, name := range modelNames {
		if name == productName {
			return model, nil
		}
	}
	return ModelUnknown, &UnidentifiedSensorError{ProductName: productName}
}

// Measurement keys published per model
const (
	KeyHumidityRack      = "humidityRack"
	KeyTemperatureRack   = "temperatureRack"
	KeyTemperatureFlow   = "temperatureFlow"
	KeyPressure          = "pressure"
	KeyFlow              = "flow"
	KeyTemperatureReturn = "temperatureReturn"
	KeyTemperatureDelta  = "temperatureDelta"
)

// Units
const (
	UnitCelsius      = "°C"
	UnitPercent      = "%"
	UnitLitrePerHour = "l/h"
	UnitBar          = "bar"
)

// Measurement is one named physical value of a reading
type Measurement struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`

	// unrounded value, used for derived metrics
	raw float64
}

// Raw returns the value before two-decimal rounding
func (m Measurement) Raw() float64 {
	return m.raw
}

func newMeasurement(key, name, unit string, raw float64) Measurement {
	return Measurement{
		Key:   key,
		Name:  name,
		Unit:  unit,
		Value: Round2(raw),
		raw:   raw,
	}
}

// Reading is the decoded process data of one port
type Reading struct {
	Model        Model         `json:"-"`
	ModelName    string        `json:"model"`
	Measurements []Measurement `json:"measurements"`
}

// Get returns the measurement with the given key
func (r Reading) Get(key string) (Measurement, bool) {
	for _, m := range r.Measurements {
		if m.Key == key {
			return m, true
		}
	}
	return Measurement{}, false
}
