package kdaerrors

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invalidInputJSON = `{"ERROR_TIME":"2019-06-18 19:23:59.393","ERROR_LEVEL":"Error",` +
	`"ERROR_NAME":"Data conversion error","MESSAGE":"Cannot parse INT_VALUE",` +
	`"DATA_ROWTIME":"2019-06-18 19:23:56.923",` +
	`"DATA_ROW":"7B225554435F54494D45223A313536303838353833363932332C22494E545F56414C5545223A2261227D",` +
	`"PUMP_NAME":"null"}`

type invalidRow struct {
	UTCTime  int64  `json:"UTC_TIME"`
	IntValue string `json:"INT_VALUE"`
}

func pumpErrorJSON(pump string, row string) []byte {
	return []byte(`{"ERROR_TIME":"2019-06-18 19:24:00.000","ERROR_LEVEL":"Error","ERROR_NAME":"SQL error",` +
		`"MESSAGE":"division by zero","DATA_ROWTIME":"2019-06-18 19:23:58.000","DATA_ROW":"` +
		hex.EncodeToString([]byte(row)) + `","PUMP_NAME":"` + pump + `"}`)
}

func TestDecodeInvalidInputEnvelope(t *testing.T) {
	rec, err := NewRegistry().Decode([]byte(invalidInputJSON))
	require.NoError(t, err)

	assert.Equal(t, int64(1560885839393), rec.ErrorTime.UnixMilli())
	assert.Equal(t, int64(1560885836923), rec.RowTime.UnixMilli())
	assert.Equal(t, "Error", rec.Level)
	assert.Equal(t, "Data conversion error", rec.Name)
	assert.Equal(t, "Cannot parse INT_VALUE", rec.Message)
	assert.Equal(t, InvalidInputPump, rec.PumpName)
	assert.True(t, rec.IsInvalidInput())
	assert.Equal(t, `{"UTC_TIME":1560885836923,"INT_VALUE":"a"}`, string(rec.RawDataRow))
	assert.Equal(t, `{"UTC_TIME":1560885836923,"INT_VALUE":"a"}`, rec.DataRow)
}

func TestDecodeUsesDecoderRegisteredForInvalidInput(t *testing.T) {
	registry := NewRegistry().Register(InvalidInputPump, JSONDataRow[invalidRow]())
	rec, err := registry.Decode([]byte(invalidInputJSON))
	require.NoError(t, err)
	assert.Equal(t, invalidRow{UTCTime: 1560885836923, IntValue: "a"}, rec.DataRow)
}

func TestDecodeUsesDecoderRegisteredForPump(t *testing.T) {
	registry := NewRegistry().
		Register(InvalidInputPump, JSONDataRow[invalidRow]()).
		Register("STREAM_PUMP", JSONDataRow[map[string]interface{}]())

	rec, err := registry.Decode(pumpErrorJSON("STREAM_PUMP", `{"TEMP":1}`))
	require.NoError(t, err)
	assert.False(t, rec.IsInvalidInput())
	assert.Equal(t, "STREAM_PUMP", rec.PumpName)
	assert.Equal(t, map[string]interface{}{"TEMP": float64(1)}, rec.DataRow)
}

func TestDecodeFallsBackToDefaultDecoder(t *testing.T) {
	rec, err := NewRegistry().Decode(pumpErrorJSON("OTHER_PUMP", "raw row"))
	require.NoError(t, err)
	assert.Equal(t, "raw row", rec.DataRow)

	custom := errors.New("no")
	_, err = NewRegistry().WithDefault(func([]byte) (interface{}, error) { return nil, custom }).
		Decode(pumpErrorJSON("OTHER_PUMP", "raw row"))
	assert.ErrorIs(t, err, custom)
}

func TestDecodeIgnoresUnknownProperties(t *testing.T) {
	rec, err := NewRegistry().Decode([]byte(`{"EXTRA":{"a":[1,2]},"DATA_ROW":"6869","PUMP_NAME":"P"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", rec.DataRow)
	assert.True(t, rec.ErrorTime.IsZero())
}

func TestDecodeErrors(t *testing.T) {
	for name, data := range map[string]string{
		"malformed JSON":  `{"ERROR_TIME":`,
		"not an object":   `[1]`,
		"bad error time":  `{"ERROR_TIME":"yesterday"}`,
		"bad row time":    `{"DATA_ROWTIME":"2019-06-18T19:23:56Z"}`,
		"bad hex":         `{"DATA_ROW":"zz"}`,
		"row not decoded": `{"DATA_ROW":"7B","PUMP_NAME":"null"}`,
	} {
		t.Run(name, func(t *testing.T) {
			registry := NewRegistry().Register(InvalidInputPump, JSONDataRow[invalidRow]())
			_, err := registry.Decode([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestTranslator(t *testing.T) {
	tr := NewTranslator(nil)
	rec, err := tr.ToValue(types.Record{Data: []byte(invalidInputJSON)})
	require.NoError(t, err)
	assert.True(t, rec.IsInvalidInput())
	assert.Equal(t, time.UTC, rec.ErrorTime.Location())
	assert.Contains(t, rec.String(), "Data conversion error")
}
