package contracts

import "context"

// LiveFetcher fetches the current chain from the brokerage.
// Implementations return ErrSourceUnavailable (wrapped) when no usable data exists.
// ⭐ SSOT: 실시간 체인 조회 인터페이스
type LiveFetcher interface {
	FetchLiveChain(ctx context.Context, symbol string) (*RawChain, error)
}

// LiveFetcherFunc adapts a function to LiveFetcher
type LiveFetcherFunc func(ctx context.Context, symbol string) (*RawChain, error)

// FetchLiveChain calls f
func (f LiveFetcherFunc) FetchLiveChain(ctx context.Context, symbol string) (*RawChain, error) {
	return f(ctx, symbol)
}
