package router

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
)

// DemoSymbol is the only symbol synthetic contracts ever carry
const DemoSymbol = "DEMO"

// DemoPayload builds a clearly labeled synthetic chain. Contracts never carry the
// requested ticker, so demo rows cannot be mistaken for real identities.
func DemoPayload(symbol string, now time.Time) *contracts.Payload {
	const (
		spot    = 100.0
		step    = 5.0
		strikes = 9
		baseIV  = 0.25
		baseOI  = 2000
		baseVol = 400
	)

	today := contracts.Day(now)
	expiries := []time.Time{today.AddDate(0, 0, 7), today.AddDate(0, 0, 30)}

	records := make([]contracts.ChainRecord, 0, len(expiries)*strikes*2)
	for ei, exp := range expiries {
		for i := 0; i < strikes; i++ {
			strike := spot + step*float64(i-strikes/2)
			moneyness := math.Abs(strike-spot) / spot
			iv := baseIV + 0.5*moneyness*moneyness + 0.01*float64(ei)
			weight := math.Exp(-20 * moneyness * moneyness)

			for _, typ := range []contracts.OptionType{contracts.Call, contracts.Put} {
				intrinsic := math.Max(0, strike-spot)
				if typ == contracts.Call {
					intrinsic = math.Max(0, spot-strike)
				}
				mid := intrinsic + spot*iv*0.05*(1+float64(ei))
				records = append(records, contracts.ChainRecord{
					Symbol:       DemoSymbol,
					Strike:       strike,
					Expiry:       exp,
					Type:         typ,
					Bid:          round2(mid * 0.98),
					Ask:          round2(mid * 1.02),
					Last:         round2(mid),
					Volume:       int64(float64(baseVol) * weight),
					OpenInterest: int64(float64(baseOI) * weight),
					IV:           round2(iv),
					Timestamp:    now,
				})
			}
		}
	}

	return &contracts.Payload{
		Kind:            contracts.KindDemo,
		Symbol:          DemoSymbol,
		Synthetic:       true,
		Label:           fmt.Sprintf("Demo data for %s: live and historical data unavailable", symbol),
		UnderlyingPrice: spot,
		Chains:          records,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
