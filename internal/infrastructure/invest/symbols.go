package invest

import (
	"fmt"
	"strings"
	"sync"

	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
)

// symbolIndex maps tickers to provider instrument identifiers and back.
// The provider keys every market data and order call by instrument UID,
// while the rest of the system only speaks tickers.
type symbolIndex struct {
	instruments *investgo.InstrumentsServiceClient

	mu       sync.Mutex
	byTicker map[string]string
	byUID    map[string]string
	shares   []*pb.Share
}

func newSymbolIndex(instruments *investgo.InstrumentsServiceClient) *symbolIndex {
	return &symbolIndex{instruments: instruments}
}

func (idx *symbolIndex) ensure() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.byTicker != nil {
		return nil
	}

	resp, err := idx.instruments.Shares(pb.InstrumentStatus_INSTRUMENT_STATUS_BASE)
	if err != nil {
		return fmt.Errorf("list shares: %w", err)
	}

	byTicker := make(map[string]string)
	byUID := make(map[string]string)
	shares := make([]*pb.Share, 0, len(resp.GetInstruments()))
	for _, share := range resp.GetInstruments() {
		if share == nil {
			continue
		}
		ticker := strings.TrimSpace(share.GetTicker())
		uid := strings.TrimSpace(share.GetUid())
		if ticker == "" || uid == "" {
			continue
		}
		byTicker[ticker] = uid
		byUID[uid] = ticker
		shares = append(shares, share)
	}

	idx.byTicker = byTicker
	idx.byUID = byUID
	idx.shares = shares
	return nil
}

func (idx *symbolIndex) uidFor(ticker string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	uid, ok := idx.byTicker[ticker]
	return uid, ok
}

func (idx *symbolIndex) tickerFor(uid string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ticker, ok := idx.byUID[uid]
	return ticker, ok
}

func (idx *symbolIndex) listShares() []*pb.Share {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]*pb.Share, len(idx.shares))
	copy(out, idx.shares)
	return out
}
