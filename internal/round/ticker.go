package round

import "time"

// Ticker is the part of *time.Ticker the controller uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the per-round countdown ticker.
type TickerFactory interface {
	Create(d time.Duration) Ticker
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

type systemFactory struct{}

func (systemFactory) Create(d time.Duration) Ticker { return systemTicker{t: time.NewTicker(d)} }

// SystemTickers returns wall-clock tickers.
func SystemTickers() TickerFactory { return systemFactory{} }
