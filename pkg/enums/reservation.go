package enums

// ReservationStatus is the lifecycle state of a stock reservation.
// Confirmed and Released are terminal.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusReleased  ReservationStatus = "released"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusHeld, ReservationStatusConfirmed, ReservationStatusReleased:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is legal.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusReleased
}
