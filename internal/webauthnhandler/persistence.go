package webauthnhandler

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/myrjola/planfit/internal/errors"
)

// credentialColumns lists the credentials columns after id and user_id in the order credentialFields returns
// their values.
//
//nolint:gochecknoglobals // constant column list.
var credentialColumns = []string{
	"public_key",
	"attestation_type",
	"transport",
	"flag_user_present",
	"flag_user_verified",
	"flag_backup_eligible",
	"flag_backup_state",
	"authenticator_aaguid",
	"authenticator_sign_count",
	"authenticator_clone_warning",
	"authenticator_attachment",
}

// credentialFields returns pointers to the fields of c matching credentialColumns, plus the raw JSON transport
// that is decoded separately.
func credentialFields(c *webauthn.Credential, transport *[]byte) []any {
	return []any{
		&c.PublicKey,
		&c.AttestationType,
		transport,
		&c.Flags.UserPresent,
		&c.Flags.UserVerified,
		&c.Flags.BackupEligible,
		&c.Flags.BackupState,
		&c.Authenticator.AAGUID,
		&c.Authenticator.SignCount,
		&c.Authenticator.CloneWarning,
		&c.Authenticator.Attachment,
	}
}

func (h *WebAuthnHandler) upsertUser(ctx context.Context, u *passkeyUser) error {
	if _, err := h.database.ReadWrite.ExecContext(ctx, `INSERT INTO users (webauthn_user_id, display_name)
VALUES (:handle, :display_name)
ON CONFLICT (webauthn_user_id) DO UPDATE SET display_name = :display_name`,
		sql.Named("handle", u.handle), sql.Named("display_name", u.displayName)); err != nil {
		return errors.Wrap(err, "upsert user", slog.String("handle", hex.EncodeToString(u.handle)))
	}
	return nil
}

// getUser loads the user with handle together with its registered credentials.
func (h *WebAuthnHandler) getUser(ctx context.Context, handle []byte) (*passkeyUser, error) {
	u := passkeyUser{id: 0, handle: nil, displayName: "", credentials: nil}
	if err := h.database.ReadOnly.QueryRowContext(ctx,
		"SELECT id, webauthn_user_id, display_name FROM users WHERE webauthn_user_id = ?", handle,
	).Scan(&u.id, &u.handle, &u.displayName); err != nil {
		return nil, errors.Wrap(err, "read user")
	}

	rows, err := h.database.ReadOnly.QueryContext(ctx,
		"SELECT id, "+strings.Join(credentialColumns, ", ")+" FROM credentials WHERE user_id = ?", u.id)
	if err != nil {
		return nil, errors.Wrap(err, "query credentials")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			h.logger.LogAttrs(ctx, slog.LevelError, "close credential rows", errors.SlogError(closeErr))
		}
	}()

	for rows.Next() {
		var (
			c         webauthn.Credential
			transport []byte
		)
		if err = rows.Scan(append([]any{&c.ID}, credentialFields(&c, &transport)...)...); err != nil {
			return nil, errors.Wrap(err, "scan credential")
		}
		if err = json.Unmarshal(transport, &c.Transport); err != nil {
			return nil, errors.Wrap(err, "decode credential transport")
		}
		u.credentials = append(u.credentials, c)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate credentials")
	}
	return &u, nil
}

// upsertCredential stores a new credential or the updated sign count and flags of an existing one.
func (h *WebAuthnHandler) upsertCredential(ctx context.Context, handle []byte, c *webauthn.Credential) error {
	transport, err := json.Marshal(c.Transport)
	if err != nil {
		return errors.Wrap(err, "encode credential transport")
	}

	updates := make([]string, 0, len(credentialColumns)-1)
	for _, col := range credentialColumns[1:] {
		updates = append(updates, col+" = excluded."+col)
	}
	placeholders := strings.Repeat(", ?", len(credentialColumns))
	stmt := "INSERT INTO credentials (id, user_id, " + strings.Join(credentialColumns, ", ") + ")\n" +
		"VALUES (?, (SELECT id FROM users WHERE webauthn_user_id = ?)" + placeholders + ")\n" +
		"ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")

	args := []any{
		c.ID,
		handle,
		c.PublicKey,
		c.AttestationType,
		string(transport),
		c.Flags.UserPresent,
		c.Flags.UserVerified,
		c.Flags.BackupEligible,
		c.Flags.BackupState,
		c.Authenticator.AAGUID,
		c.Authenticator.SignCount,
		c.Authenticator.CloneWarning,
		string(c.Authenticator.Attachment),
	}
	if _, err = h.database.ReadWrite.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "upsert credential",
			slog.String("handle", hex.EncodeToString(handle)), slog.String("credential_id", hex.EncodeToString(c.ID)))
	}
	return nil
}

type role int

const (
	roleUser role = iota
	roleAdmin
)

// getUserIdentity returns the database ID and role of the user or sql.ErrNoRows if the user does not exist.
func (h *WebAuthnHandler) getUserIdentity(ctx context.Context, handle []byte) (int, role, error) {
	var (
		id      int
		isAdmin bool
	)
	if err := h.database.ReadOnly.QueryRowContext(ctx,
		"SELECT id, is_admin FROM users WHERE webauthn_user_id = ?", handle).Scan(&id, &isAdmin); err != nil {
		return 0, roleUser, fmt.Errorf("query user identity: %w", err)
	}
	if isAdmin {
		return id, roleAdmin, nil
	}
	return id, roleUser, nil
}

// deleteUser removes the user. Foreign keys cascade the deletion to all personal data.
func (h *WebAuthnHandler) deleteUser(ctx context.Context, userID int) error {
	var deleted int
	err := h.database.ReadWrite.QueryRowContext(ctx,
		"DELETE FROM users WHERE id = ? RETURNING id", userID).Scan(&deleted)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", userID, err)
	}
	return nil
}
