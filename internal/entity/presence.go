package entity

// Presence is an entry of the online registry, keyed by player id in the store.
type Presence struct {
	ID       string `json:"-"`
	Name     string `json:"name"`
	JoinedAt int64  `json:"joinedAt"`
}
