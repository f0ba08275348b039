// Package credstore caches remote credentials at "<repo>/.git/minigit-credentials"
// so a later fetch against the same remote can run without the caller
// supplying them again. Entries are
// encrypted at rest with AES-GCM, keyed by a PBKDF2-derived key from a
// passphrase the caller supplies (typically machine-specific, read from an
// environment variable by the CLI layer).
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

const (
	saltSize   = 16
	nonceSize  = 12
	pbkdf2Iter = 100_000
	keySize    = 32 // AES-256
)

// Credential is one cached (username, password/token) pair for a remote.
type Credential struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	CachedAt time.Time `json:"cached_at"`
}

type entry struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Box   []byte `json:"box"`
}

// Store is a single encrypted file holding credentials keyed by remote URL.
type Store struct {
	path   string
	secret []byte
	ttl    time.Duration
}

// Open returns a Store backed by path, encrypting/decrypting with a key
// derived from secret (e.g. a per-machine passphrase).
func Open(path, secret string, ttl time.Duration) *Store {
	return &Store{path: path, secret: []byte(secret), ttl: ttl}
}

// Get returns the cached credential for remoteURL, if present and not
// expired per ttl.
func (s *Store) Get(remoteURL string) (Credential, bool, error) {
	all, err := s.loadAll()
	if err != nil {
		return Credential{}, false, err
	}
	cred, ok := all[remoteURL]
	if !ok {
		return Credential{}, false, nil
	}
	if s.ttl > 0 && time.Since(cred.CachedAt) > s.ttl {
		return Credential{}, false, nil
	}
	return cred, true, nil
}

// Put stores (or replaces) the credential cached for remoteURL.
func (s *Store) Put(remoteURL string, cred Credential) error {
	all, err := s.loadAll()
	if err != nil {
		return err
	}
	if all == nil {
		all = map[string]Credential{}
	}
	all[remoteURL] = cred
	return s.saveAll(all)
}

// Forget removes a cached credential, e.g. after the remote rejects it.
func (s *Store) Forget(remoteURL string) error {
	all, err := s.loadAll()
	if err != nil {
		return err
	}
	if all == nil {
		return nil
	}
	delete(all, remoteURL)
	return s.saveAll(all)
}

func (s *Store) loadAll() (map[string]Credential, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Credential{}, nil
		}
		return nil, giterrors.Wrap(giterrors.IOError, "read credential cache", err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, giterrors.Wrap(giterrors.MalformedObject, "parse credential cache", err)
	}

	gcm, err := s.gcmFor(e.Salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, e.Nonce, e.Box, nil)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.AuthMissing, "decrypt credential cache: wrong passphrase or tampered file", err)
	}

	var all map[string]Credential
	if err := json.Unmarshal(plain, &all); err != nil {
		return nil, giterrors.Wrap(giterrors.MalformedObject, "parse decrypted credential cache", err)
	}
	return all, nil
}

func (s *Store) saveAll(all map[string]Credential) error {
	plain, err := json.Marshal(all)
	if err != nil {
		return giterrors.Wrap(giterrors.MalformedObject, "encode credential cache", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return giterrors.Wrap(giterrors.IOError, "generate credential cache salt", err)
	}
	gcm, err := s.gcmFor(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return giterrors.Wrap(giterrors.IOError, "generate credential cache nonce", err)
	}
	box := gcm.Seal(nil, nonce, plain, nil)

	raw, err := json.Marshal(entry{Salt: salt, Nonce: nonce, Box: box})
	if err != nil {
		return giterrors.Wrap(giterrors.MalformedObject, "encode credential cache entry", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return giterrors.Wrap(giterrors.IOError, "create credential cache directory", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return giterrors.Wrap(giterrors.IOError, "write credential cache", err)
	}
	return nil
}

func (s *Store) gcmFor(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.secret, salt, pbkdf2Iter, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "build AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "build AES-GCM", err)
	}
	return gcm, nil
}
