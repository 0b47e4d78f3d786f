package domain

// Classify applies the opening-range qualification rule to a chronological
// candle sequence and returns the derivative's status and side.
//
// The rule works off the first bar of the session (typically the opening
// 5-minute candle):
//
//   - bull: the first bar's low is never undercut for the rest of the
//     session (first.Low == day low) → qualified long
//   - bear: the first bar's high is never exceeded (first.High == day high)
//     → qualified short
//
// When both hold (a flat or narrow session) the bull reading wins. When
// neither holds the symbol is disqualified, with the side set to whichever
// level came closer to holding so downstream tables can still bucket it;
// long on an exact tie.
//
// Comparisons are exact equality on the stored price representation.
// Qualification is a hard pass/fail signal, not a ranking, so no tolerance
// band is applied.
func Classify(candles []Candle) (Status, Side) {
	if len(candles) == 0 {
		return StatusIgnored, SideLong
	}

	first := candles[0]
	dayLow, dayHigh := first.Low, first.High
	for _, c := range candles[1:] {
		if c.Low < dayLow {
			dayLow = c.Low
		}
		if c.High > dayHigh {
			dayHigh = c.High
		}
	}

	if first.Low == dayLow {
		return StatusQualified, SideLong
	}
	if first.High == dayHigh {
		return StatusQualified, SideShort
	}

	if dayHigh-first.High < first.Low-dayLow {
		return StatusDisqualified, SideShort
	}
	return StatusDisqualified, SideLong
}

// NewDerivative assembles a symbol's scan outcome: classification from the
// candles, OI overlays attached verbatim. OI never influences status or side.
func NewDerivative(symbol string, candles []Candle, oi OIData) Derivative {
	status, side := Classify(candles)
	return Derivative{
		Symbol:      symbol,
		Status:      status,
		Side:        side,
		ATMOIChange: oi.ATMChange,
		ITMOIChange: oi.ITMChanges,
		Candles:     candles,
	}
}
