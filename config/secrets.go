package config

import (
	"crypto/rand"
	"io"
	"log"
)

const secretsSettingsName = "secrets"

type Secrets struct {
	SessionKey []byte
	CsrfKey    []byte
}

// LoadSecrets reads the session and CSRF keys, generating and storing any
// that are missing.
func LoadSecrets(store Store) (*Secrets, error) {
	s := &Secrets{}
	if err := store.GetSettings(secretsSettingsName, s); err != nil {
		return nil, err
	}

	dirty := false

	if len(s.SessionKey) < 32 {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		s.SessionKey = key
		dirty = true
	}

	if len(s.CsrfKey) < 32 {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		s.CsrfKey = key
		dirty = true
	}

	if dirty {
		if err := store.PutSettings(secretsSettingsName, s); err != nil {
			log.Printf("Unable to persist secrets, sessions will not survive a restart: %v", err)
		}
	}

	return s, nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
