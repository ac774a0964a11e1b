package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	expiry := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)

	return Snapshot{
		Symbol:          "SPY",
		Date:            date,
		UnderlyingPrice: 478.2,
		Timestamp:       date.Add(21 * time.Hour),
		Chains: []ChainRecord{
			{Symbol: "SPY", Strike: 480, Expiry: expiry, Type: Call, Volume: 1200, OpenInterest: 5000, IV: 0.14},
			{Symbol: "SPY", Strike: 480, Expiry: expiry, Type: Put, Volume: 800, OpenInterest: 4200, IV: 0.16},
		},
		Stats: DailyStats{
			TotalVolume:     2000,
			TotalCallVolume: 1200,
			TotalPutVolume:  800,
			TotalCallOI:     5000,
			TotalPutOI:      4200,
			PutCallRatio:    0.667,
			PutCallOIRatio:  0.84,
			IVRank:          35,
		},
	}
}

func TestSnapshot_JSONRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"daily_stats"`)
	assert.Contains(t, string(data), `"put_call_ratio":0.667`)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap.Stats, decoded.Stats)
	assert.True(t, snap.Date.Equal(decoded.Date))
	require.Len(t, decoded.Chains, 2)
	assert.Equal(t, snap.Chains[0].ContractKey(), decoded.Chains[0].ContractKey())
}

func TestSnapshot_Find(t *testing.T) {
	snap := sampleSnapshot()
	expiry := time.Date(2024, 2, 16, 15, 30, 0, 0, time.UTC)

	rec, ok := snap.Find(480, expiry, Put)
	require.True(t, ok)
	assert.Equal(t, Put, rec.Type)

	rec, ok = snap.Find(480, expiry, "")
	require.True(t, ok)
	assert.Equal(t, Call, rec.Type)

	_, ok = snap.Find(490, expiry, "")
	assert.False(t, ok)
}

func TestSnapshot_Find_PutOnly(t *testing.T) {
	snap := sampleSnapshot()
	snap.Chains = snap.Chains[1:]

	rec, ok := snap.Find(480, snap.Chains[0].Expiry, "")
	require.True(t, ok)
	assert.Equal(t, Put, rec.Type)
}

func TestContractKey(t *testing.T) {
	expiry := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "SPY|2024-02-16|CALL|480.00", ContractKey("SPY", expiry, Call, 480))

	u := UnusualActivityRecord{Symbol: "SPY", Expiry: expiry, Type: Call, Strike: 480}
	assert.Equal(t, ContractKey("SPY", expiry, Call, 480), u.ContractKey())
}

func TestChainRecord_Mid(t *testing.T) {
	assert.Equal(t, 1.5, ChainRecord{Bid: 1, Ask: 2, Last: 9}.Mid())
	assert.Equal(t, 9.0, ChainRecord{Last: 9}.Mid())
}

func TestParseOptionType(t *testing.T) {
	typ, err := ParseOptionType("c")
	require.NoError(t, err)
	assert.Equal(t, Call, typ)

	typ, err = ParseOptionType("Put")
	require.NoError(t, err)
	assert.Equal(t, Put, typ)

	_, err = ParseOptionType("straddle")
	assert.Error(t, err)
}

func TestRawChain(t *testing.T) {
	var nilChain *RawChain
	assert.True(t, nilChain.Empty())
	assert.Equal(t, int64(0), nilChain.TotalVolume())

	chain := &RawChain{Records: sampleSnapshot().Chains}
	assert.False(t, chain.Empty())
	assert.Equal(t, int64(2000), chain.TotalVolume())
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2024, 1, 15, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Day(in))
}
