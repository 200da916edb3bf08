// Package webauthnhandler signs users in with passkeys. Users are anonymous: registering creates a user with a
// random handle and the passkey is the only credential.
package webauthnhandler

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/myrjola/planfit/internal/errors"
	"github.com/myrjola/planfit/internal/ptr"
	"github.com/myrjola/planfit/internal/sqlite"
)

// ceremonyTimeout bounds both the registration and the login ceremonies.
const ceremonyTimeout = 5 * time.Minute

//nolint:gochecknoglobals // gob registration is process wide.
var registerSessionData sync.Once

type WebAuthnHandler struct {
	logger         *slog.Logger
	webAuthn       *webauthn.WebAuthn
	sessionManager *scs.SessionManager
	database       *sqlite.Database
}

// relyingPartyOrigins allows plain HTTP on the listen address for local development and HTTPS elsewhere.
func relyingPartyOrigins(addr, fqdn string) []string {
	if fqdn == "localhost" {
		//goland:noinspection HttpUrlsUsage // This is a local server.
		return []string{"http://" + addr}
	}
	return []string{"https://" + fqdn}
}

func New(
	addr string,
	fqdn string,
	logger *slog.Logger,
	sessionManager *scs.SessionManager,
	dbs *sqlite.Database,
) (*WebAuthnHandler, error) {
	// The ceremony state is stored in the scs session, which encodes values with gob.
	registerSessionData.Do(func() {
		gob.Register(webauthn.SessionData{}) //nolint:exhaustruct // only need to register the struct.
	})

	timeouts := webauthn.TimeoutConfig{Enforce: true, Timeout: ceremonyTimeout, TimeoutUVD: ceremonyTimeout}
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPID:                        fqdn,
		RPDisplayName:               "Planfit",
		RPOrigins:                   relyingPartyOrigins(addr, fqdn),
		RPTopOrigins:                nil,
		RPTopOriginVerificationMode: protocol.TopOriginIgnoreVerificationMode,
		AttestationPreference:       protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			RequireResidentKey:      ptr.Ref(true),
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationDiscouraged,
		},
		Debug:                false,
		EncodeUserIDAsString: false,
		Timeouts:             webauthn.TimeoutsConfig{Login: timeouts, Registration: timeouts},
		MDS:                  nil,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new webauthn", slog.String("fqdn", fqdn))
	}

	return &WebAuthnHandler{
		logger:         logger,
		webAuthn:       webAuthn,
		sessionManager: sessionManager,
		database:       dbs,
	}, nil
}

// BeginRegistration creates an anonymous user and returns the credential creation options as JSON.
func (h *WebAuthnHandler) BeginRegistration(ctx context.Context) ([]byte, error) {
	user, err := newRandomUser()
	if err != nil {
		return nil, errors.Wrap(err, "new user")
	}

	opts, session, err := h.webAuthn.BeginRegistration(
		user,
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
			RequireResidentKey:      protocol.ResidentKeyNotRequired(),
			ResidentKey:             protocol.ResidentKeyRequirementRequired,
			UserVerification:        protocol.VerificationDiscouraged,
		}),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired))
	if err != nil {
		return nil, errors.Wrap(err, "begin registration")
	}
	if err = h.upsertUser(ctx, user); err != nil {
		return nil, errors.Wrap(err, "upsert user")
	}
	return h.startCeremony(ctx, session, opts)
}

// FinishRegistration stores the new passkey and signs the user in.
func (h *WebAuthnHandler) FinishRegistration(r *http.Request) error {
	ctx := r.Context()
	session, err := h.ceremonySession(ctx)
	if err != nil {
		return err
	}

	user, err := h.getUser(ctx, session.UserID)
	if err != nil {
		return errors.Wrap(err, "get user")
	}
	credential, err := h.webAuthn.FinishRegistration(user, session, r)
	if err != nil {
		return errors.Wrap(err, "finish webauthn registration")
	}
	if err = h.upsertCredential(ctx, user.WebAuthnID(), credential); err != nil {
		return errors.Wrap(err, "upsert webauthn credential")
	}
	return h.signIn(ctx, user.WebAuthnID())
}

// BeginLogin starts a discoverable login so that the user does not need to type a user name.
func (h *WebAuthnHandler) BeginLogin(ctx context.Context) ([]byte, error) {
	options, session, err := h.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, errors.Wrap(err, "begin discoverable webauthn login")
	}
	return h.startCeremony(ctx, session, options)
}

func (h *WebAuthnHandler) FinishLogin(r *http.Request) error {
	ctx := r.Context()
	session, err := h.ceremonySession(ctx)
	if err != nil {
		return err
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponse(r)
	if err != nil {
		return errors.Wrap(err, "parse credential request response")
	}
	findUser := func(_, userHandle []byte) (webauthn.User, error) {
		return h.getUser(ctx, userHandle)
	}
	user, credential, err := h.webAuthn.ValidatePasskeyLogin(findUser, session, parsedResponse)
	if err != nil {
		return errors.Wrap(err, "validate passkey login")
	}

	// The sign count and flags change on every login.
	if err = h.upsertCredential(ctx, user.WebAuthnID(), credential); err != nil {
		return errors.Wrap(err, "upsert webauthn credential")
	}
	return h.signIn(ctx, user.WebAuthnID())
}

// DeleteUser deletes the user with all personal data and signs out.
func (h *WebAuthnHandler) DeleteUser(ctx context.Context, userID int) error {
	if err := h.deleteUser(ctx, userID); err != nil {
		return errors.Wrap(err, "delete user", slog.Int("user_id", userID))
	}
	return h.Logout(ctx)
}

func (h *WebAuthnHandler) Logout(ctx context.Context) error {
	if err := h.sessionManager.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	h.sessionManager.Remove(ctx, string(userIDSessionKey))
	return nil
}

// startCeremony stores the ceremony state in the session and encodes the options for the browser.
func (h *WebAuthnHandler) startCeremony(ctx context.Context, session *webauthn.SessionData, options any) ([]byte, error) {
	h.sessionManager.Put(ctx, string(webAuthnSessionKey), *session)
	out, err := json.Marshal(options)
	if err != nil {
		return nil, errors.Wrap(err, "encode webauthn options")
	}
	return out, nil
}

// ceremonySession pops the state stored by startCeremony so that a ceremony can be finished only once.
func (h *WebAuthnHandler) ceremonySession(ctx context.Context) (webauthn.SessionData, error) {
	value := h.sessionManager.Pop(ctx, string(webAuthnSessionKey))
	session, ok := value.(webauthn.SessionData)
	if !ok {
		return webauthn.SessionData{}, errors.New("no webauthn ceremony in session") //nolint:exhaustruct // zero value
	}
	return session, nil
}

// signIn renews the session token against fixation and stores the user handle in the session.
func (h *WebAuthnHandler) signIn(ctx context.Context, handle []byte) error {
	if err := h.sessionManager.RenewToken(ctx); err != nil {
		return errors.Wrap(err, "renew session token")
	}
	h.sessionManager.Put(ctx, string(userIDSessionKey), handle)
	return nil
}
