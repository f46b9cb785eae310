package errx

// Invariant violations. Any of these aborts the current turn.
var (
	ErrUnknownBuilding = NewConsistency("unknown_building", "building is not in the building table")
	ErrUnknownResource = NewConsistency("unknown_resource", "resource name is not recognised")
	ErrUnknownCity     = NewConsistency("unknown_city", "city id is not in the world")
	ErrUnreachable     = NewConsistency("unreachable", "no path between cities")
	ErrInvalidTier     = NewConsistency("invalid_tier", "tier outside 1..5")
	ErrEmptyPool       = NewConsistency("empty_pool", "no building available for race and tier")
	ErrBadTable        = NewConsistency("bad_table", "building table failed to load")
)

// Refused client requests.
var (
	ErrCityLocked     = NewRequest("city_locked", "city is being viewed by another player")
	ErrUnknownPlayer  = NewRequest("unknown_player", "player is not part of the session")
	ErrUnknownCaravan = NewRequest("unknown_caravan", "caravan does not exist")
	ErrNotOwner       = NewRequest("not_owner", "caravan belongs to another player")
	ErrBadPayload     = NewRequest("bad_payload", "message payload could not be decoded")
	ErrNotStarted     = NewRequest("not_started", "game has not started")
	ErrDesync         = NewRequest("desync", "regenerated world differs from the host")
)
