package model

import "time"

// Session is a scheduled screening of a movie in a hall.  The seat
// reservation core only reads sessions: it needs the current price and
// the geometry of the hall.
//
// Fields:
//  ID          – primary key identifier.
//  HallID      – hall where the session takes place.
//  Title       – movie title.
//  StartsAt    – when the session begins (UTC).
//  PriceCents  – current seat price in cents.
//  Hall        – hall geometry, loaded together with the session.
type Session struct {
    ID         uint64    `json:"id"`
    HallID     uint64    `json:"hall_id"`
    Title      string    `json:"title"`
    StartsAt   time.Time `json:"starts_at"`
    PriceCents uint32    `json:"price_cents"`
    Hall       Hall      `json:"hall"`
}
