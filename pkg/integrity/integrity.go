package integrity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/idleforge/idlesync/pkg/snapshot"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key size.
	KeySize = 32
	// SaltSize is the key-derivation salt size.
	SaltSize = 32
	// NonceSize is the AES-GCM nonce size.
	NonceSize = 12
	// DefaultIterations is the PBKDF2 iteration count.
	DefaultIterations = 100000
)

// Envelope is the encrypted, checksummed, versioned storage form of a
// snapshot. All binary fields are lowercase hex.
type Envelope struct {
	Encrypted string `json:"encrypted"`
	Salt      string `json:"salt"`
	IV        string `json:"iv"`
	Tag       string `json:"tag"`
	Checksum  string `json:"checksum"`
	Version   int64  `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

// ErrIntegrityFailure marks a snapshot that failed any step of the
// trust path: authentication, checksum, or declared metadata. The
// snapshot must be discarded, never partially trusted.
type ErrIntegrityFailure struct {
	Reason string
}

func (e *ErrIntegrityFailure) Error() string {
	return "integrity failure: " + e.Reason
}

// IsIntegrityFailure reports whether err is an ErrIntegrityFailure.
func IsIntegrityFailure(err error) bool {
	_, ok := err.(*ErrIntegrityFailure)
	return ok
}

// Service provides canonical checksumming and authenticated
// encryption for snapshots.
type Service struct {
	iterations int
}

// NewServiceOptions contains options for creating a new Service.
type NewServiceOptions struct {
	// Iterations overrides the PBKDF2 iteration count. Zero selects
	// DefaultIterations.
	Iterations int
}

func NewService(opts NewServiceOptions) *Service {
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Service{iterations: iterations}
}

// GenerateChecksum hashes the canonical serialization of a snapshot.
// Field ordering never changes the digest.
func (s *Service) GenerateChecksum(snap *snapshot.Snapshot) (string, error) {
	canonical, err := canonicalJSON(snap)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize snapshot: %v", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyIntegrity recomputes the snapshot checksum and compares it to
// the expected digest in constant time.
func (s *Service) VerifyIntegrity(snap *snapshot.Snapshot, expected string) bool {
	actual, err := s.GenerateChecksum(snap)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

// EncryptSnapshot seals a snapshot into an envelope. The checksum is
// computed over the pre-encryption canonical plaintext; the plaintext
// is zstd-compressed and encrypted with AES-256-GCM under a key derived
// from the user secret with a fresh random salt.
func (s *Service) EncryptSnapshot(snap *snapshot.Snapshot, userKey string) (*Envelope, error) {
	checksum, err := s.GenerateChecksum(snap)
	if err != nil {
		return nil, err
	}

	plaintext, err := canonicalJSON(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize snapshot: %v", err)
	}

	compressed, err := compress(plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %v", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	gcm, err := s.aead(userKey, salt)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, compressed, nil)
	// The GCM tag is the trailing block; the envelope carries it
	// separately.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return &Envelope{
		Encrypted: hex.EncodeToString(ciphertext),
		Salt:      hex.EncodeToString(salt),
		IV:        hex.EncodeToString(nonce),
		Tag:       hex.EncodeToString(tag),
		Checksum:  checksum,
		Version:   snap.Version,
		Timestamp: snap.Timestamp,
	}, nil
}

// DecryptSnapshot opens an envelope and verifies the full trust path:
// authenticate, recompute the plaintext checksum against the declared
// checksum, then compare the plaintext's own version and timestamp to
// the envelope metadata. Any mismatch fails closed.
func (s *Service) DecryptSnapshot(env *Envelope, userKey string) (*snapshot.Snapshot, error) {
	ciphertext, err := hex.DecodeString(env.Encrypted)
	if err != nil {
		return nil, &ErrIntegrityFailure{Reason: "malformed ciphertext encoding"}
	}
	salt, err := hex.DecodeString(env.Salt)
	if err != nil || len(salt) != SaltSize {
		return nil, &ErrIntegrityFailure{Reason: "malformed salt"}
	}
	nonce, err := hex.DecodeString(env.IV)
	if err != nil || len(nonce) != NonceSize {
		return nil, &ErrIntegrityFailure{Reason: "malformed iv"}
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil {
		return nil, &ErrIntegrityFailure{Reason: "malformed tag"}
	}

	gcm, err := s.aead(userKey, salt)
	if err != nil {
		return nil, err
	}

	compressed, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, &ErrIntegrityFailure{Reason: "authentication failed"}
	}

	plaintext, err := decompress(compressed)
	if err != nil {
		return nil, &ErrIntegrityFailure{Reason: "decompression failed"}
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, &ErrIntegrityFailure{Reason: "malformed plaintext"}
	}

	if !s.VerifyIntegrity(&snap, env.Checksum) {
		return nil, &ErrIntegrityFailure{Reason: "checksum mismatch"}
	}
	if snap.Version != env.Version {
		return nil, &ErrIntegrityFailure{Reason: "version mismatch"}
	}
	if snap.Timestamp != env.Timestamp {
		return nil, &ErrIntegrityFailure{Reason: "timestamp mismatch"}
	}

	return &snap, nil
}

// aead derives a 256-bit key from the user secret and salt and returns
// an AES-GCM instance for it.
func (s *Service) aead(userKey string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(userKey), salt, s.iterations, KeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}
	return gcm, nil
}

func compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w, err := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
