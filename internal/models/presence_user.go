package models

// PresenceUser is the ephemeral profile a presence channel reports for a
// connected member. It exists only while the channel says the user is online;
// nothing about it is persisted.
type PresenceUser struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}
