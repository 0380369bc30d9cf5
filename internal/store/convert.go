package store

import "github.com/coinforge/coinforge/internal/exchange"

func exchangeSide(s string) exchange.OrderSide {
	if s == string(exchange.SideSell) {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

func exchangePositionSide(s string) exchange.PositionSide {
	if s == string(exchange.PositionShort) {
		return exchange.PositionShort
	}
	return exchange.PositionLong
}
