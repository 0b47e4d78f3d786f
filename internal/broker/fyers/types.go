package fyers

// Wire shapes for the Fyers v3 data API. Every response carries an "s"
// status field; "error" responses add a code and message.

type apiEnvelope struct {
	Status  string `json:"s"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// historyResponse holds candles as positional arrays:
// [epoch_sec, open, high, low, close, volume].
type historyResponse struct {
	apiEnvelope
	Candles [][]float64 `json:"candles"`
}

type quotesResponse struct {
	apiEnvelope
	Data []struct {
		Name   string `json:"n"`
		Status string `json:"s"`
		Values struct {
			LastPrice     float64 `json:"lp"`
			ChangePercent float64 `json:"chp"`
		} `json:"v"`
	} `json:"d"`
}

type optionChainResponse struct {
	apiEnvelope
	Data struct {
		LastPrice    float64       `json:"lastPrice"`
		OptionsChain []chainStrike `json:"optionsChain"`
	} `json:"data"`
}

type chainStrike struct {
	StrikePrice     float64 `json:"strike_price"`
	OptionType      string  `json:"option_type"` // "CE" or "PE"
	OpenInterest    float64 `json:"oi"`
	OIChange        float64 `json:"oich"`
	OIChangePercent float64 `json:"oichp"`
}

type refreshResponse struct {
	apiEnvelope
	AccessToken string `json:"access_token"`
}

// indexSymbols maps the dashboard's index names to Fyers instrument symbols.
var indexSymbols = map[string]string{
	"NIFTY50":        "NSE:NIFTY50-INDEX",
	"BANKNIFTY":      "NSE:NIFTYBANK-INDEX",
	"NIFTYMIDSELECT": "NSE:MIDCPNIFTY-INDEX",
	"SENSEX":         "BSE:SENSEX-INDEX",
	"FINNIFTY":       "NSE:FINNIFTY-INDEX",
	"NIFTYPVTBANK":   "NSE:NIFTYPVTBANK-INDEX",
	"NIFTYPSUBANK":   "NSE:NIFTYPSUBANK-INDEX",
	"NIFTYIT":        "NSE:NIFTYIT-INDEX",
	"NIFTYPHARMA":    "NSE:NIFTYPHARMA-INDEX",
	"NIFTYFMCG":      "NSE:NIFTYFMCG-INDEX",
	"NIFTYAUTO":      "NSE:NIFTYAUTO-INDEX",
	"NIFTYMETAL":     "NSE:NIFTYMETAL-INDEX",
	"NIFTYENERGY":    "NSE:NIFTYENERGY-INDEX",
	"NIFTYREALTY":    "NSE:NIFTYREALTY-INDEX",
}

func indexSymbol(name string) string {
	if sym, ok := indexSymbols[name]; ok {
		return sym
	}
	return name
}
