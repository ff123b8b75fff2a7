package auction

import (
	"encoding/hex"
	"math/big"

	"fluxpool/core/events"
	"fluxpool/native/pool"
)

const (
	EventTypeAuctionCreated   = "auction.created"
	EventTypeLiquidityAdded   = "auction.liquidity_added"
	EventTypeSwapExecuted     = "auction.swap"
	EventTypeAuctionFinalized = "auction.finalized"
	EventTypeAuctionCancelled = "auction.cancelled"
	EventTypeMakerJoined      = "auction.maker_joined"
	EventTypeMakerLeft        = "auction.maker_left"
)

func newAuctionEvent(eventType string, id [32]byte, attrs map[string]string) events.Event {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["auctionId"] = hex.EncodeToString(id[:])
	return events.Event{Type: eventType, Attributes: attrs}
}

func auctionCreatedEvent(b *Book, community bool) events.Event {
	kind := "single"
	if community {
		kind = "community"
	}
	return newAuctionEvent(EventTypeAuctionCreated, b.ID, map[string]string{
		"poolA":    b.PoolA,
		"poolB":    b.PoolB,
		"reserveA": b.ReserveA.String(),
		"reserveB": b.ReserveB.String(),
		"feeBps":   new(big.Int).SetUint64(b.FeeBps).String(),
		"kind":     kind,
	})
}

func liquidityAddedEvent(id [32]byte, amountA, amountB *big.Int) events.Event {
	return newAuctionEvent(EventTypeLiquidityAdded, id, map[string]string{
		"amountA": amountA.String(),
		"amountB": amountB.String(),
	})
}

func swapExecutedEvent(id [32]byte, assetIn [20]byte, amountIn, amountOut, fee *big.Int) events.Event {
	return newAuctionEvent(EventTypeSwapExecuted, id, map[string]string{
		"assetIn":   hex.EncodeToString(assetIn[:]),
		"amountIn":  amountIn.String(),
		"amountOut": amountOut.String(),
		"fee":       fee.String(),
	})
}

func auctionFinalizedEvent(id [32]byte, status Status) events.Event {
	eventType := EventTypeAuctionFinalized
	if status == StatusCancelled {
		eventType = EventTypeAuctionCancelled
	}
	return newAuctionEvent(eventType, id, nil)
}

func makerJoinedEvent(id [32]byte, position pool.PositionKey, share *big.Int) events.Event {
	return newAuctionEvent(EventTypeMakerJoined, id, map[string]string{
		"position": hex.EncodeToString(position[:]),
		"share":    share.String(),
	})
}

func makerLeftEvent(id [32]byte, position pool.PositionKey, withdrawnA, withdrawnB *big.Int) events.Event {
	return newAuctionEvent(EventTypeMakerLeft, id, map[string]string{
		"position":   hex.EncodeToString(position[:]),
		"withdrawnA": withdrawnA.String(),
		"withdrawnB": withdrawnB.String(),
	})
}
