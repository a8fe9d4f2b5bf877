package landing

import "fmt"

// Reservation is a prior-permission-required booking for an airport
type Reservation struct {
	ID           int64  `json:"id"`
	Airport      string `json:"airport"`
	DepartingTo  string `json:"departing_to"`
	Registration string `json:"registration"`
	Departure    int64  `json:"departure"`
	Arrival      int64  `json:"arrival"`
	ReceivedAt   int64  `json:"received_at"`
	Passes       int    `json:"passes"`
}

// Key identifies a reservation across repeated polls
func (r Reservation) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d", r.Registration, r.Airport, r.DepartingTo, r.Departure, r.Arrival)
}

// Side is one airport a reservation says the aircraft lands at, with the window to search in
type Side struct {
	Airport string
	At      int64 // reserved arrival or departure time
	From    int64
	To      int64
}

// Sides returns the usable sides of the reservation for the given window (seconds).
//
// The arrival side needs a known Airport and an arrival time; a landing is expected
// within half the window on either side of it. The departure side needs a known
// DepartingTo and a departure time; the landing there happens within the window after
// departure. A reservation with no usable side is invalid.
func (r Reservation) Sides(known Airports, window int64) []Side {
	var sides []Side
	if r.Registration == "" {
		return nil
	}
	if r.Arrival > 0 && known.Known(r.Airport) {
		sides = append(sides, Side{Airport: r.Airport, At: r.Arrival, From: r.Arrival - window/2, To: r.Arrival + window/2})
	}
	if r.Departure > 0 && known.Known(r.DepartingTo) {
		sides = append(sides, Side{Airport: r.DepartingTo, At: r.Departure, From: r.Departure, To: r.Departure + window})
	}
	return sides
}

// Valid reports whether the reservation has at least one usable side
func (r Reservation) Valid(known Airports) bool {
	return len(r.Sides(known, 0)) > 0
}
