package model

import "time"

// SeatRef addresses a physical seat inside a session's hall.
type SeatRef struct {
    Row  uint32 `json:"row"`
    Seat uint32 `json:"seat"`
}

// SeatState is the projected state of a seat on the seat map.
type SeatState string

const (
    SeatAvailable SeatState = "AVAILABLE"
    SeatReserved  SeatState = "RESERVED"
    SeatSold      SeatState = "SOLD"
)

// SeatStatus is one cell of a session's seat map.  ExpiresAt is set only
// for RESERVED seats so clients can render a countdown.
type SeatStatus struct {
    Row        uint32     `json:"row"`
    SeatNumber uint32     `json:"seat_number"`
    State      SeatState  `json:"state"`
    ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
