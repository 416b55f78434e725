// Package market defines the plain data objects the decision engine consumes.
// Everything here arrives from the ingestion layer fully formed; the engine
// never fetches data itself.
package market

import (
	"errors"
	"time"
)

// Direction of a trade or signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionNone Direction = "neutral"
)

// Opposite returns the opposing direction, or DirectionNone for neutral.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionNone
	}
}

// Candle is a single OHLCV bar.
type Candle struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Range returns high minus low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute open-to-close distance.
func (c Candle) Body() float64 {
	b := c.Close - c.Open
	if b < 0 {
		return -b
	}
	return b
}

// IsBullish reports whether the candle closed above its open.
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a snapshot of resting liquidity.
type OrderBook struct {
	Bids      []BookLevel `json:"bids"` // sorted best (highest) first
	Asks      []BookLevel `json:"asks"` // sorted best (lowest) first
	Spread    float64     `json:"spread"`
	Timestamp time.Time   `json:"timestamp"`
}

// MidPrice returns the bid/ask midpoint, or 0 when a side is empty.
func (ob *OrderBook) MidPrice() float64 {
	if ob == nil || len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	return (ob.Bids[0].Price + ob.Asks[0].Price) / 2
}

// TotalBidSize sums resting bid liquidity.
func (ob *OrderBook) TotalBidSize() float64 {
	if ob == nil {
		return 0
	}
	total := 0.0
	for _, lvl := range ob.Bids {
		total += lvl.Size
	}
	return total
}

// TotalAskSize sums resting ask liquidity.
func (ob *OrderBook) TotalAskSize() float64 {
	if ob == nil {
		return 0
	}
	total := 0.0
	for _, lvl := range ob.Asks {
		total += lvl.Size
	}
	return total
}

// Trade is a single executed print.
type Trade struct {
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Side      Direction `json:"side"` // aggressor side
	Timestamp time.Time `json:"timestamp"`
}

// NewsImpact grades a scheduled or breaking event.
type NewsImpact string

const (
	ImpactLow    NewsImpact = "low"
	ImpactMedium NewsImpact = "medium"
	ImpactHigh   NewsImpact = "high"
)

// NewsEvent is an economic-calendar or breaking-news item.
type NewsEvent struct {
	Time     time.Time  `json:"time"`
	Currency string     `json:"currency"`
	Impact   NewsImpact `json:"impact"`
}

// OpenPosition describes one live position from the portfolio snapshot.
type OpenPosition struct {
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	RiskAmount float64   `json:"risk_amount"`
}

// ErrInvalidPortfolio is returned when a portfolio snapshot fails validation.
// Malformed portfolio state must surface to the caller rather than silently
// defaulting.
var ErrInvalidPortfolio = errors.New("invalid portfolio snapshot")

// PortfolioSnapshot is the account state supplied by the bookkeeping layer.
type PortfolioSnapshot struct {
	Balance          float64        `json:"balance"`
	Equity           float64        `json:"equity"`
	OpenPositions    []OpenPosition `json:"open_positions"`
	TotalRisk        float64        `json:"total_risk"`
	AllocatedCapital float64        `json:"allocated_capital"`
	TotalCapital     float64        `json:"total_capital"`
	SharpeRatio      float64        `json:"sharpe_ratio"`
}

// Validate checks the snapshot for internally inconsistent values.
func (p *PortfolioSnapshot) Validate() error {
	if p == nil {
		return ErrInvalidPortfolio
	}
	if p.Balance < 0 || p.Equity < 0 || p.TotalRisk < 0 {
		return ErrInvalidPortfolio
	}
	if p.TotalCapital <= 0 {
		return ErrInvalidPortfolio
	}
	if p.AllocatedCapital < 0 || p.AllocatedCapital > p.TotalCapital {
		return ErrInvalidPortfolio
	}
	for _, pos := range p.OpenPositions {
		if pos.Pair == "" || pos.Size < 0 || pos.EntryPrice <= 0 {
			return ErrInvalidPortfolio
		}
	}
	return nil
}

// Snapshot bundles every input a single decision cycle consumes. The
// ingestion layer assembles it before the cycle starts; nothing inside the
// engine blocks waiting for data.
type Snapshot struct {
	Pair         string             `json:"pair"`
	CurrentPrice float64            `json:"current_price"`
	Candles      []Candle           `json:"candles"`
	Volumes      []float64          `json:"volumes,omitempty"`
	OrderBook    *OrderBook         `json:"order_book,omitempty"`
	Trades       []Trade            `json:"trades,omitempty"`
	News         []NewsEvent        `json:"news,omitempty"`
	Portfolio    *PortfolioSnapshot `json:"portfolio,omitempty"`
	Timestamp    time.Time          `json:"timestamp"`
}

// VolumeSeries returns the explicit volume series if supplied, otherwise the
// candle volumes.
func (s *Snapshot) VolumeSeries() []float64 {
	if len(s.Volumes) > 0 {
		return s.Volumes
	}
	vols := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		vols[i] = c.Volume
	}
	return vols
}
