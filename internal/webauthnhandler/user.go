package webauthnhandler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
)

type sessionKey string

const (
	// userIDSessionKey holds the WebAuthn user handle of the signed-in user.
	userIDSessionKey sessionKey = "userID"
	// webAuthnSessionKey holds the webauthn.SessionData of an ongoing ceremony.
	webAuthnSessionKey sessionKey = "webAuthnSession"
)

// userHandleLength is the maximum length allowed by the WebAuthn spec.
const userHandleLength = 64

// passkeyUser implements webauthn.User.
type passkeyUser struct {
	// id is the internal database ID. It is zero until the user has been persisted.
	id          int
	handle      []byte
	displayName string
	credentials []webauthn.Credential
}

func (u *passkeyUser) WebAuthnID() []byte {
	return u.handle
}

func (u *passkeyUser) WebAuthnName() string {
	return u.displayName
}

func (u *passkeyUser) WebAuthnDisplayName() string {
	return u.displayName
}

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// newRandomUser creates an anonymous user. Passkeys make user names unnecessary so the display name is derived
// from the random handle.
func newRandomUser() (*passkeyUser, error) {
	handle := make([]byte, userHandleLength)
	if _, err := rand.Read(handle); err != nil {
		return nil, fmt.Errorf("read random user handle: %w", err)
	}
	return &passkeyUser{
		id:          0,
		handle:      handle,
		displayName: "Planfit " + hex.EncodeToString(handle[:4]),
		credentials: nil,
	}, nil
}
