// Package samples holds the models, data generator and scenarios for the weather sample
// application: a Kinesis Data Analytics SQL application that reads WeatherSignals and writes
// the minimum, average and maximum temperature per postal code and time to OUTPUT_STREAM.
//
// The scenarios that run against a deployed application are behind the "integration" build
// tag.
package samples

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// Precision is how close two computed temperatures must be to be considered equal.
const Precision = 0.000001

// WeatherSignal is one reading from a device, written to the application's input.
type WeatherSignal struct {
	DeviceID   string  `json:"deviceId"`
	UTCTime    int64   `json:"utcTime"`
	Value      float64 `json:"value"`
	PostalCode string  `json:"postalCode"`
}

// ComputedTemperature is the application's aggregate of the signals for one postal code and
// time.
type ComputedTemperature struct {
	UTCTime    int64   `json:"UTC_TIME"`
	PostalCode string  `json:"POSTAL_CODE"`
	Minimum    float64 `json:"MINIMUM"`
	Average    float64 `json:"AVERAGE"`
	Maximum    float64 `json:"MAXIMUM"`
}

// Equivalent compares temperatures to within Precision.
func (c ComputedTemperature) Equivalent(other ComputedTemperature) bool {
	return c.UTCTime == other.UTCTime &&
		c.PostalCode == other.PostalCode &&
		fuzzyEqual(c.Minimum, other.Minimum) &&
		fuzzyEqual(c.Average, other.Average) &&
		fuzzyEqual(c.Maximum, other.Maximum)
}

func (c ComputedTemperature) String() string {
	return fmt.Sprintf("{time=%d postalCode=%s min=%f avg=%f max=%f}",
		c.UTCTime, c.PostalCode, c.Minimum, c.Average, c.Maximum)
}

func fuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) <= Precision
}

// InvalidWeatherSignal has a string where the application expects a numeric time, so the
// application rejects it at the input.
type InvalidWeatherSignal struct {
	DeviceID      string  `json:"deviceId"`
	NotAValidTime string  `json:"utcTime"`
	Value         float64 `json:"value"`
	PostalCode    string  `json:"postalCode"`
}

func NewInvalidWeatherSignal() InvalidWeatherSignal {
	return InvalidWeatherSignal{
		DeviceID:      uuid.NewString(),
		NotAValidTime: uuid.NewString(),
		Value:         10.0,
		PostalCode:    "12180",
	}
}
