package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Credential holds vault-encrypted material for the authenticated
// rendering path (session cookies, tokens). Value and Nonce are the
// AES-GCM ciphertext and nonce produced by the vault.
type Credential struct {
	Name      string    `json:"name"`
	Value     []byte    `json:"-"`
	Nonce     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveCredential(c *Credential) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (name, value, nonce)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			nonce = excluded.nonce`,
		c.Name, c.Value, c.Nonce)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(name string) (*Credential, error) {
	c := &Credential{}
	err := s.db.QueryRow(`SELECT name, value, nonce, created_at FROM credentials WHERE name = ?`, name).
		Scan(&c.Name, &c.Value, &c.Nonce, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCredential(name string) error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE name = ?`, name)
	return err
}
