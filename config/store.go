package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

type Backend interface {
	GetConfig(name string) ([]byte, error)
	PutConfig(name string, content []byte) error
}

type Store interface {
	GetSettings(name string, val interface{}) error
	PutSettings(name string, val interface{}) error
}

// NewStore returns an encrypting store if key is a hex encoded 256 bit key,
// and a store that keeps nothing otherwise.
func NewStore(backend Backend, key string) Store {
	keyBytes, _ := hex.DecodeString(key)
	if len(keyBytes) == 32 {
		var k [32]byte
		copy(k[:], keyBytes)
		return &EncryptedStore{
			key:     k,
			backend: backend,
		}
	}
	return &DummyStore{}
}

type EncryptedStore struct {
	key     [32]byte
	backend Backend
}

func (c EncryptedStore) GetSettings(name string, val interface{}) error {
	data, err := c.backend.GetConfig(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	gcm, err := c.cipher()
	if err != nil {
		return err
	}

	if len(data) < gcm.NonceSize() {
		return errors.New("malformed ciphertext")
	}

	decrypted, err := gcm.Open(nil,
		data[:gcm.NonceSize()],
		data[gcm.NonceSize():],
		nil,
	)
	if err != nil {
		return fmt.Errorf("unable to decrypt %s settings: %w", name, err)
	}

	return json.Unmarshal(decrypted, val)
}

func (c EncryptedStore) PutSettings(name string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	gcm, err := c.cipher()
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	return c.backend.PutConfig(name, gcm.Seal(nonce, nonce, data, nil))
}

func (c EncryptedStore) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

type DummyStore struct{}

func (d DummyStore) GetSettings(name string, _ interface{}) error {
	log.Printf("Warning: no encryption key specified, using a blank '%s' config\n", name)
	return nil
}

func (d DummyStore) PutSettings(string, interface{}) error {
	return errors.New("no encryption key specified; config cannot be saved")
}

// DirBackend keeps each settings document in its own file under Dir.
type DirBackend struct {
	Dir string
}

func (d DirBackend) path(name string) string {
	return filepath.Join(d.Dir, name+".enc")
}

func (d DirBackend) GetConfig(name string) ([]byte, error) {
	return os.ReadFile(d.path(name))
}

func (d DirBackend) PutConfig(name string, content []byte) error {
	if err := os.MkdirAll(d.Dir, 0o700); err != nil {
		return fmt.Errorf("unable to create settings directory: %w", err)
	}
	return os.WriteFile(d.path(name), content, 0o600)
}
