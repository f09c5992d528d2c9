package room

import "github.com/golang-jwt/jwt/v5"

type Claims struct {
	Room    string        `json:"room"`
	Context ClaimsContext `json:"context"`
	jwt.RegisteredClaims
}

type ClaimsContext struct {
	User     ClaimsUser     `json:"user"`
	Features ClaimsFeatures `json:"features"`
}

type ClaimsUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Moderator string `json:"moderator"`
}

type ClaimsFeatures struct {
	Livestreaming string `json:"livestreaming"`
	Recording     string `json:"recording"`
	Transcription string `json:"transcription"`
	OutboundCall  string `json:"outbound-call"`
}

func (c *Claims) Role() Role {
	if c.Context.User.Moderator == "true" {
		return RoleModerator
	}
	return RoleParticipant
}
