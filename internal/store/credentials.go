package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tanaikit/pool2api/internal/constant"
)

// Credential is a persistent authentication record for one upstream account.
// Provider is not a column; it is implied by the table the record lives in and
// filled in by the store on load.
type Credential struct {
	ID           int64        `db:"id"`
	Name         string       `db:"name"`
	AuthMethod   string       `db:"auth_method"`
	AccessToken  string       `db:"access_token"`
	RefreshToken string       `db:"refresh_token"`
	ClientID     string       `db:"client_id"`
	ClientSecret string       `db:"client_secret"`
	Region       string       `db:"region"`
	ProjectID    string       `db:"project_id"`
	ExpiresAt    sql.NullTime `db:"expires_at"`
	Active       bool         `db:"active"`
	UseCount     int64        `db:"use_count"`
	ErrorCount   int64        `db:"error_count"`
	LastError    sql.NullString `db:"last_error"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`

	// Provider identifies the upstream this credential belongs to.
	Provider string `db:"-"`
}

// ErrorCredential mirrors Credential for records quarantined after a fatal
// refresh failure.
type ErrorCredential struct {
	ID           int64          `db:"id"`
	Name         string         `db:"name"`
	AuthMethod   string         `db:"auth_method"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	ClientID     string         `db:"client_id"`
	ClientSecret string         `db:"client_secret"`
	Region       string         `db:"region"`
	ProjectID    string         `db:"project_id"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
	ErrorAt      time.Time      `db:"error_at"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`

	Provider string `db:"-"`
}

// Key returns the registry key for this credential, unique across providers.
func (c *Credential) Key() string {
	return fmt.Sprintf("%s/%d", c.Provider, c.ID)
}

// ExpiringSoon reports whether the access token expires within the window.
func (c *Credential) ExpiringSoon(window time.Duration) bool {
	if !c.ExpiresAt.Valid {
		return true
	}
	return time.Until(c.ExpiresAt.Time) < window
}

var credentialTables = map[string]string{
	constant.ProviderKiro:        "credentials",
	constant.ProviderAntigravity: "gemini_credentials",
	constant.ProviderOrchids:     "ws_credentials",
	constant.ProviderAgent:       "agent_credentials",
}

var errorCredentialTables = map[string]string{
	constant.ProviderKiro:        "error_credentials",
	constant.ProviderAntigravity: "gemini_error_credentials",
	constant.ProviderOrchids:     "ws_error_credentials",
	constant.ProviderAgent:       "agent_error_credentials",
}

func credentialTable(provider string) (string, error) {
	table, ok := credentialTables[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	return table, nil
}

func errorCredentialTable(provider string) (string, error) {
	table, ok := errorCredentialTables[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	return table, nil
}

// ListActiveCredentials returns the active credentials for a provider that are
// eligible for pool selection (refresh token present).
func (s *Store) ListActiveCredentials(ctx context.Context, provider string) ([]*Credential, error) {
	table, err := credentialTable(provider)
	if err != nil {
		return nil, err
	}
	var creds []*Credential
	query := `SELECT * FROM ` + table + ` WHERE active = 1 AND refresh_token <> '' ORDER BY id`
	if err = s.db.SelectContext(ctx, &creds, query); err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	for _, c := range creds {
		c.Provider = provider
	}
	return creds, nil
}

// GetCredential loads one credential by id.
func (s *Store) GetCredential(ctx context.Context, provider string, id int64) (*Credential, error) {
	table, err := credentialTable(provider)
	if err != nil {
		return nil, err
	}
	var cred Credential
	if err = s.db.GetContext(ctx, &cred, `SELECT * FROM `+table+` WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	cred.Provider = provider
	return &cred, nil
}

// InsertCredential persists a new credential and returns its surrogate id.
func (s *Store) InsertCredential(ctx context.Context, cred *Credential) (int64, error) {
	table, err := credentialTable(cred.Provider)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (name, auth_method, access_token, refresh_token,
			client_id, client_secret, region, project_id, expires_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.Name, cred.AuthMethod, cred.AccessToken, cred.RefreshToken,
		cred.ClientID, cred.ClientSecret, cred.Region, cred.ProjectID,
		cred.ExpiresAt, cred.Active)
	if err != nil {
		return 0, fmt.Errorf("failed to insert credential: %w", err)
	}
	return res.LastInsertId()
}

// UpdateCredentialTokens persists the result of a successful refresh.
func (s *Store) UpdateCredentialTokens(ctx context.Context, cred *Credential) error {
	table, err := credentialTable(cred.Provider)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+table+` SET access_token = ?, refresh_token = ?, expires_at = ?,
			project_id = ?, error_count = 0, last_error = NULL WHERE id = ?`,
		cred.AccessToken, cred.RefreshToken, cred.ExpiresAt, cred.ProjectID, cred.ID)
	if err != nil {
		return fmt.Errorf("failed to update credential tokens: %w", err)
	}
	return nil
}

// RecordCredentialError increments the error counter and stores the message.
func (s *Store) RecordCredentialError(ctx context.Context, provider string, id int64, msg string) error {
	table, err := credentialTable(provider)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE `+table+` SET error_count = error_count + 1, last_error = ? WHERE id = ?`,
		msg, id)
	if err != nil {
		return fmt.Errorf("failed to record credential error: %w", err)
	}
	return nil
}

// IncrementCredentialUse bumps the cumulative use counter.
func (s *Store) IncrementCredentialUse(ctx context.Context, provider string, id int64) error {
	table, err := credentialTable(provider)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE `+table+` SET use_count = use_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment use count: %w", err)
	}
	return nil
}

// QuarantineCredential moves a credential to the provider's error table in a
// single transaction. The original row is deleted.
func (s *Store) QuarantineCredential(ctx context.Context, cred *Credential, msg string) error {
	table, err := credentialTable(cred.Provider)
	if err != nil {
		return err
	}
	errTable, err := errorCredentialTable(cred.Provider)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+errTable+` (name, auth_method, access_token, refresh_token,
			client_id, client_secret, region, project_id, expires_at, error_message, created_at)
		SELECT name, auth_method, access_token, refresh_token,
			client_id, client_secret, region, project_id, expires_at, ?, created_at
		FROM `+table+` WHERE id = ?`, msg, cred.ID)
	if err != nil {
		return fmt.Errorf("failed to quarantine credential: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, cred.ID); err != nil {
		return fmt.Errorf("failed to remove quarantined credential: %w", err)
	}
	return tx.Commit()
}

// ListErrorCredentials returns all quarantined credentials for a provider.
func (s *Store) ListErrorCredentials(ctx context.Context, provider string) ([]*ErrorCredential, error) {
	table, err := errorCredentialTable(provider)
	if err != nil {
		return nil, err
	}
	var creds []*ErrorCredential
	if err = s.db.SelectContext(ctx, &creds, `SELECT * FROM `+table+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list error credentials: %w", err)
	}
	for _, c := range creds {
		c.Provider = provider
	}
	return creds, nil
}

// RestoreCredential moves a quarantined credential back to the active table.
// The restored row receives a new surrogate id; the old id is returned to the
// caller for logging.
func (s *Store) RestoreCredential(ctx context.Context, ec *ErrorCredential, cred *Credential) (int64, error) {
	table, err := credentialTable(ec.Provider)
	if err != nil {
		return 0, err
	}
	errTable, err := errorCredentialTable(ec.Provider)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (name, auth_method, access_token, refresh_token,
			client_id, client_secret, region, project_id, expires_at, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		ec.Name, ec.AuthMethod, cred.AccessToken, cred.RefreshToken,
		ec.ClientID, ec.ClientSecret, ec.Region, cred.ProjectID, cred.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("failed to restore credential: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+errTable+` WHERE id = ?`, ec.ID); err != nil {
		return 0, fmt.Errorf("failed to remove restored credential: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteCredential removes a credential permanently.
func (s *Store) DeleteCredential(ctx context.Context, provider string, id int64) error {
	table, err := credentialTable(provider)
	if err != nil {
		return err
	}
	if _, err = s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
