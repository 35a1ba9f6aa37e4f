package model

// Hall describes the seating grid of a screening hall.  Seats are
// addressed by 1-based row and 1-based seat number; every row holds
// SeatsPerRow seats.
//
// Fields:
//  ID          – primary key identifier.
//  Name        – display name of the hall.
//  SeatRows    – number of seating rows.
//  SeatsPerRow – number of seats in each row.
type Hall struct {
    ID          uint64 `json:"id"`
    Name        string `json:"name"`
    SeatRows    uint32 `json:"seat_rows"`
    SeatsPerRow uint32 `json:"seats_per_row"`
}

// Contains reports whether (row, seat) lies inside the hall grid.
func (h Hall) Contains(row, seat uint32) bool {
    return row >= 1 && row <= h.SeatRows && seat >= 1 && seat <= h.SeatsPerRow
}

// Capacity returns the total number of seats in the hall.
func (h Hall) Capacity() int {
    return int(h.SeatRows) * int(h.SeatsPerRow)
}
