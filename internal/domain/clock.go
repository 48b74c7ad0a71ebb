package domain

import "github.com/jonboulle/clockwork"

// clock paces geocoder calls. Tests swap it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for geocode pacing. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
