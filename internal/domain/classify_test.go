package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(hl ...[2]float64) []Candle {
	out := make([]Candle, 0, len(hl))
	for i, b := range hl {
		out = append(out, Candle{
			Time: Time(int64(i) * int64(5*60*1e9)),
			Low:  b[0],
			High: b[1],
			Open: b[0],
			Close: b[1],
		})
	}
	return out
}

func TestClassify_BullFirstBarLowHolds(t *testing.T) {
	candles := bars([2]float64{100, 110}, [2]float64{101, 108}, [2]float64{105, 109})
	status, side := Classify(candles)
	assert.Equal(t, StatusQualified, status)
	assert.Equal(t, SideLong, side)
}

func TestClassify_BearFirstBarHighHolds(t *testing.T) {
	candles := bars([2]float64{90, 120}, [2]float64{88, 115}, [2]float64{86, 118})
	status, side := Classify(candles)
	assert.Equal(t, StatusQualified, status)
	assert.Equal(t, SideShort, side)
}

func TestClassify_NeitherLevelHolds(t *testing.T) {
	candles := bars([2]float64{100, 110}, [2]float64{95, 115})
	status, _ := Classify(candles)
	assert.Equal(t, StatusDisqualified, status)
}

func TestClassify_DisqualifiedSideTracksCloserMiss(t *testing.T) {
	// High missed by 1, low missed by 5 → bear reading was closer.
	candles := bars([2]float64{100, 110}, [2]float64{95, 111})
	status, side := Classify(candles)
	assert.Equal(t, StatusDisqualified, status)
	assert.Equal(t, SideShort, side)

	// Low missed by 1, high missed by 5 → bull reading was closer.
	candles = bars([2]float64{100, 110}, [2]float64{99, 115})
	status, side = Classify(candles)
	assert.Equal(t, StatusDisqualified, status)
	assert.Equal(t, SideLong, side)

	// Exact tie resolves long.
	candles = bars([2]float64{100, 110}, [2]float64{98, 112})
	status, side = Classify(candles)
	assert.Equal(t, StatusDisqualified, status)
	assert.Equal(t, SideLong, side)
}

func TestClassify_FlatSessionPrefersBull(t *testing.T) {
	// First bar spans the whole session range: both tests pass.
	candles := bars([2]float64{100, 110}, [2]float64{102, 108}, [2]float64{101, 109})
	status, side := Classify(candles)
	assert.Equal(t, StatusQualified, status)
	assert.Equal(t, SideLong, side)
}

func TestClassify_EmptyCandlesIgnored(t *testing.T) {
	status, side := Classify(nil)
	assert.Equal(t, StatusIgnored, status)
	assert.Equal(t, SideLong, side)
}

func TestClassify_SingleBarQualifiesLong(t *testing.T) {
	status, side := Classify(bars([2]float64{100, 110}))
	assert.Equal(t, StatusQualified, status)
	assert.Equal(t, SideLong, side)
}

func TestClassify_Deterministic(t *testing.T) {
	candles := bars([2]float64{100, 110}, [2]float64{95, 115}, [2]float64{97, 112})
	s1, d1 := Classify(candles)
	for i := 0; i < 50; i++ {
		s2, d2 := Classify(candles)
		require.Equal(t, s1, s2)
		require.Equal(t, d1, d2)
	}
}

func TestNewDerivative_AttachesOIVerbatim(t *testing.T) {
	atm := 12.5
	oi := OIData{ATMChange: &atm, ITMChanges: []float64{3.2, -1.1}}
	d := NewDerivative("NSE:TCS-EQ", bars([2]float64{100, 110}), oi)
	assert.Equal(t, StatusQualified, d.Status)
	assert.Equal(t, SideLong, d.Side)
	require.NotNil(t, d.ATMOIChange)
	assert.Equal(t, 12.5, *d.ATMOIChange)
	assert.Equal(t, []float64{3.2, -1.1}, d.ITMOIChange)
}

func TestResults_AddBucketsByStatus(t *testing.T) {
	var r Results
	r.Add(Derivative{Symbol: "A", Status: StatusQualified, Side: SideLong})
	r.Add(Derivative{Symbol: "B", Status: StatusDisqualified, Side: SideShort})
	r.Add(Derivative{Symbol: "C", Status: StatusIgnored, Side: SideLong})
	assert.Len(t, r.Qualified, 1)
	assert.Len(t, r.Disqualified, 1)
	assert.Len(t, r.Ignored, 1)
	assert.Equal(t, 3, r.Len())
}
