// Package encryption implements the per-block encryption envelope of spec
// §4.3 (C3): key registry, rotation, and wrap/unwrap of data blocks.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// Algorithm identifies the AEAD construction used for a key/block.
type Algorithm int

const (
	// None is an identity passthrough: no confidentiality is applied.
	None Algorithm = iota
	Aes256Gcm
	ChaCha20Poly1305
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Aes256Gcm:
		return "aes-256-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return "unknown"
	}
}

const (
	keyLen   = 32
	nonceLen = 12
	tagLen   = 16
)

// Key is a registered encryption key. Algorithm=None requires an empty
// KeyBytes; any other algorithm requires exactly 32 key bytes.
type Key struct {
	ID           string
	Algorithm    Algorithm
	KeyBytes     []byte
	CreatedAt    time.Time
	RotatedFrom  string // empty if this key was not produced by a rotation
}

// NewKey validates and constructs a Key.
func NewKey(id string, alg Algorithm, keyBytes []byte, createdAt time.Time) (Key, error) {
	if alg == None {
		if len(keyBytes) != 0 {
			return Key{}, claudefserrs.Validation.New("algorithm=None requires empty key bytes")
		}
	} else if len(keyBytes) != keyLen {
		return Key{}, claudefserrs.Validation.New("key %s requires %d key bytes, got %d", id, keyLen, len(keyBytes))
	}
	return Key{ID: id, Algorithm: alg, KeyBytes: keyBytes, CreatedAt: createdAt}, nil
}

// Block is an encrypted block produced by Envelope.Encrypt.
type Block struct {
	Ciphertext   []byte
	Nonce        [nonceLen]byte
	Tag          [tagLen]byte
	KeyID        string
	Algorithm    Algorithm
	OriginalSize uint64
}

// Stats tracks envelope-wide counters.
type Stats struct {
	BlocksEncrypted  uint64
	BlocksDecrypted  uint64
	BytesEncrypted   uint64
	BytesDecrypted   uint64
	KeyRotations     uint64
	EncryptionErrors uint64
}

// Envelope is the key registry plus the current encrypt/decrypt path. All
// known keys (including rotated-out ones) are retained so older blocks
// remain decryptable.
type Envelope struct {
	mu        sync.RWMutex
	keys      map[string]Key
	currentID string
	stats     Stats
}

// New returns an empty Envelope with no current key.
func New() *Envelope {
	return &Envelope{keys: make(map[string]Key)}
}

// RegisterKey adds key to the registry without making it current.
func (e *Envelope) RegisterKey(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys[key.ID] = key
}

// SetCurrentKey designates an already-registered key as current.
func (e *Envelope) SetCurrentKey(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.keys[id]; !ok {
		return claudefserrs.NotFound.New("key %s not registered", id)
	}
	e.currentID = id
	return nil
}

// RotateKey installs newKey as current, retaining all prior keys, and
// returns the id of the previously current key (empty if none was set).
// A newKey with an empty RotatedFrom is stored with RotatedFrom set to
// that previous id.
func (e *Envelope) RotateKey(newKey Key) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.currentID
	if newKey.RotatedFrom == "" {
		newKey.RotatedFrom = old
	}
	e.keys[newKey.ID] = newKey
	e.currentID = newKey.ID
	e.stats.KeyRotations++
	return old
}

// KeyCount returns the number of registered keys.
func (e *Envelope) KeyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.keys)
}

// Stats returns a snapshot of the envelope's counters.
func (e *Envelope) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Encrypt wraps plaintext under the current key. Fails if no current key
// is set. Nonces are derived deterministically from (key id, plaintext)
// for test reproducibility, per spec §9's open question — production use
// must swap this for a counter or CSPRNG nonce source keyed uniquely per
// (key, message).
func (e *Envelope) Encrypt(plaintext []byte) (Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentID == "" {
		e.stats.EncryptionErrors++
		return Block{}, claudefserrs.Validation.New("no current encryption key set")
	}
	key := e.keys[e.currentID]

	if key.Algorithm == None {
		block := Block{
			Ciphertext:   append([]byte(nil), plaintext...),
			KeyID:        key.ID,
			Algorithm:    None,
			OriginalSize: uint64(len(plaintext)),
		}
		e.stats.BlocksEncrypted++
		e.stats.BytesEncrypted += uint64(len(plaintext))
		return block, nil
	}

	aead, err := newAEAD(key)
	if err != nil {
		e.stats.EncryptionErrors++
		return Block{}, err
	}

	nonce := deterministicNonce(key.ID, plaintext)
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	ct := sealed[:len(sealed)-tagLen]
	var tag [tagLen]byte
	copy(tag[:], sealed[len(sealed)-tagLen:])

	e.stats.BlocksEncrypted++
	e.stats.BytesEncrypted += uint64(len(plaintext))

	return Block{
		Ciphertext:   ct,
		Nonce:        nonce,
		Tag:          tag,
		KeyID:        key.ID,
		Algorithm:    key.Algorithm,
		OriginalSize: uint64(len(plaintext)),
	}, nil
}

// Decrypt unwraps block, looking up its key id (which may be a
// rotated-out key) among all retained keys.
func (e *Envelope) Decrypt(block Block) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if block.Algorithm == None {
		e.stats.BlocksDecrypted++
		e.stats.BytesDecrypted += block.OriginalSize
		return append([]byte(nil), block.Ciphertext...), nil
	}

	key, ok := e.keys[block.KeyID]
	if !ok {
		e.stats.EncryptionErrors++
		return nil, claudefserrs.NotFound.New("decryption key %s not found", block.KeyID)
	}

	aead, err := newAEAD(key)
	if err != nil {
		e.stats.EncryptionErrors++
		return nil, err
	}

	sealed := append(append([]byte(nil), block.Ciphertext...), block.Tag[:]...)
	plaintext, err := aead.Open(nil, block.Nonce[:], sealed, nil)
	if err != nil {
		e.stats.EncryptionErrors++
		return nil, claudefserrs.Protocol.New("decryption failed: %v", err)
	}

	e.stats.BlocksDecrypted++
	e.stats.BytesDecrypted += block.OriginalSize
	return plaintext, nil
}

func newAEAD(key Key) (cipher.AEAD, error) {
	switch key.Algorithm {
	case Aes256Gcm:
		block, err := aes.NewCipher(key.KeyBytes)
		if err != nil {
			return nil, claudefserrs.Protocol.New("aes cipher: %v", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, claudefserrs.Protocol.New("gcm: %v", err)
		}
		return aead, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key.KeyBytes)
		if err != nil {
			return nil, claudefserrs.Protocol.New("chacha20poly1305: %v", err)
		}
		return aead, nil
	default:
		return nil, claudefserrs.Validation.New("unsupported algorithm %s", key.Algorithm)
	}
}

func deterministicNonce(keyID string, plaintext []byte) [nonceLen]byte {
	mac := hmac.New(sha256.New, []byte(keyID))
	mac.Write(plaintext)
	sum := mac.Sum(nil)

	var nonce [nonceLen]byte
	copy(nonce[:], sum[:nonceLen])
	return nonce
}
