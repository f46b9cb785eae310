package netsync

import (
	"slices"

	"github.com/talgya/tradewinds/internal/economy"
	"github.com/talgya/tradewinds/internal/errx"
)

// CityLocks records which player holds a city's detail view. The first
// viewer holds the lock until it closes the view or disconnects.
type CityLocks struct {
	holders map[string]economy.PlayerID
}

// NewCityLocks returns an empty lock table.
func NewCityLocks() *CityLocks {
	return &CityLocks{holders: make(map[string]economy.PlayerID)}
}

// View takes the lock on city for player. It reports false when another
// player already holds it.
func (l *CityLocks) View(city string, player economy.PlayerID) bool {
	if h, ok := l.holders[city]; ok && h != player {
		return false
	}
	l.holders[city] = player
	return true
}

// Leave releases city if player holds it.
func (l *CityLocks) Leave(city string, player economy.PlayerID) bool {
	if l.holders[city] != player {
		return false
	}
	delete(l.holders, city)
	return true
}

// ReleaseAll drops every lock player holds and returns the released cities.
func (l *CityLocks) ReleaseAll(player economy.PlayerID) []string {
	var out []string
	for city, h := range l.holders {
		if h == player {
			out = append(out, city)
			delete(l.holders, city)
		}
	}
	slices.Sort(out)
	return out
}

// CanEdit returns ErrCityLocked when another player holds city.
func (l *CityLocks) CanEdit(city string, player economy.PlayerID) error {
	if h, ok := l.holders[city]; ok && h != player {
		return errx.ErrCityLocked.With("city", city).With("holder", h)
	}
	return nil
}

// Holder returns the player holding city, if any.
func (l *CityLocks) Holder(city string) (economy.PlayerID, bool) {
	h, ok := l.holders[city]
	return h, ok
}
