package domain

// IdentityUser is the identity backend's view of the signed-in user.
// Tokens are opaque to the core and only handed back to the backend.
type IdentityUser struct {
	UID           string
	Email         string
	EmailVerified bool
	IDToken       string
	RefreshToken  string
}

// Clone returns a copy that can be handed out without sharing state.
func (u *IdentityUser) Clone() *IdentityUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
