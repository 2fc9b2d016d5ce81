package samples

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	m "github.com/launchdarkly/go-test-helpers/v2/matchers"
)

var postalCodeCounter int64 = 11110

// UniquePostalCode returns a postal code that no other scenario in this process uses, so
// that scenarios running against the same application do not see each other's results.
func UniquePostalCode() string {
	return strconv.FormatInt(atomic.AddInt64(&postalCodeCounter, 1), 10)
}

// TestCase is a set of input signals and the temperatures the application should compute
// from them.
type TestCase struct {
	Inputs   []WeatherSignal
	Expected []ComputedTemperature
}

// ExpectedOutputs matches a list of ComputedTemperatures that includes every expected one.
func (tc TestCase) ExpectedOutputs() m.Matcher {
	matchers := make([]m.Matcher, 0, len(tc.Expected))
	for _, e := range tc.Expected {
		matchers = append(matchers, EquivalentTo(e))
	}
	return m.ItemsInclude(matchers...)
}

// EquivalentTo matches a ComputedTemperature that is Equivalent to expected.
func EquivalentTo(expected ComputedTemperature) m.Matcher {
	return m.New(
		func(value interface{}) bool {
			actual, ok := value.(ComputedTemperature)
			return ok && actual.Equivalent(expected)
		},
		func() string {
			return "equivalent to " + expected.String()
		},
		func(value interface{}) string {
			return "not equivalent to " + expected.String()
		},
	)
}

// MultiplePostalCodesAndTimes generates signals from two devices in each of two new postal
// codes, at two times ten seconds apart.
func MultiplePostalCodesAndTimes() TestCase {
	now := time.Now().UnixMilli()
	return Generate(
		[]string{UniquePostalCode(), UniquePostalCode()},
		[]int64{now, now + 10000},
		2,
		nil,
	)
}

// Generate creates deviceCount devices per postal code, each sending one random signal at each
// time. Values are between 40 and 100. A nil random uses a time-seeded source.
func Generate(postalCodes []string, times []int64, deviceCount int, random *rand.Rand) TestCase {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // not used for security
	}
	devices := make(map[string][]string, len(postalCodes))
	for _, pc := range postalCodes {
		for i := 0; i < deviceCount; i++ {
			devices[pc] = append(devices[pc], uuid.NewString())
		}
	}
	var tc TestCase
	for _, t := range times {
		for _, pc := range postalCodes {
			signals := make([]WeatherSignal, 0, deviceCount)
			for _, device := range devices[pc] {
				signals = append(signals, WeatherSignal{
					DeviceID:   device,
					UTCTime:    t,
					Value:      40 + random.Float64()*60,
					PostalCode: pc,
				})
			}
			tc.Inputs = append(tc.Inputs, signals...)
			if expected, ok := Aggregate(signals); ok {
				tc.Expected = append(tc.Expected, expected)
			}
		}
	}
	return tc
}

// Aggregate computes what the application should output for signals that all have the same
// postal code and time. It returns false if there are no signals.
func Aggregate(signals []WeatherSignal) (ComputedTemperature, bool) {
	if len(signals) == 0 {
		return ComputedTemperature{}, false
	}
	ret := ComputedTemperature{
		UTCTime:    signals[0].UTCTime,
		PostalCode: signals[0].PostalCode,
		Minimum:    signals[0].Value,
		Maximum:    signals[0].Value,
	}
	var sum float64
	for _, s := range signals {
		if s.Value < ret.Minimum {
			ret.Minimum = s.Value
		}
		if s.Value > ret.Maximum {
			ret.Maximum = s.Value
		}
		sum += s.Value
	}
	ret.Average = sum / float64(len(signals))
	return ret, true
}
