package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
)

const (
	SchemeArgon2id = "argon2id"
	SchemeBcrypt   = "bcrypt"
)

var (
	ErrInvalidHash         = errors.New("invalid password hash format")
	ErrUnknownHashScheme   = errors.New("unknown password hash scheme")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnsupportedParams   = errors.New("unsupported argon2 parameters")
)

// PasswordHasher turns plaintext passwords into self-describing hash tokens.
// Verify reports a mismatch as (false, nil); errors mean the stored token
// itself could not be interpreted.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) (bool, error)
	NeedsRehash(hash string) bool
}

// Scheme returns the algorithm tag embedded in a hash token, or "" when the
// token carries none this package knows.
func Scheme(hash string) string {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return SchemeArgon2id
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return SchemeBcrypt
	default:
		return ""
	}
}

type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB:   constants.DefaultArgon2MemoryKiB,
		Iterations:  constants.DefaultArgon2Iterations,
		Parallelism: constants.DefaultArgon2Parallelism,
		SaltLength:  constants.Argon2SaltLength,
		KeyLength:   constants.Argon2KeyLength,
	}
}

// Upper bounds accepted when decoding stored hashes. Hashing parameters
// above them would produce tokens Verify refuses.
const (
	MaxArgon2MemoryKiB   = 1 << 20
	MaxArgon2Iterations  = 64
	MaxArgon2Parallelism = 64
	MaxArgon2KeyLength   = 1024
)

// Validate reports whether hashes made with p can be decoded again.
func (p Argon2idParams) Validate() error {
	if p.MemoryKiB == 0 || p.MemoryKiB > MaxArgon2MemoryKiB ||
		p.Iterations == 0 || p.Iterations > MaxArgon2Iterations ||
		p.Parallelism == 0 || p.Parallelism > MaxArgon2Parallelism ||
		p.KeyLength > MaxArgon2KeyLength {
		return fmt.Errorf("%w: m=%d t=%d p=%d (limits m<=%d t<=%d p<=%d)", ErrUnsupportedParams,
			p.MemoryKiB, p.Iterations, p.Parallelism, MaxArgon2MemoryKiB, MaxArgon2Iterations, MaxArgon2Parallelism)
	}
	return nil
}

type Argon2idHasher struct {
	params Argon2idParams
}

func NewArgon2idHasher(params Argon2idParams) *Argon2idHasher {
	if params.SaltLength == 0 {
		params.SaltLength = constants.Argon2SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = constants.Argon2KeyLength
	}
	return &Argon2idHasher{params: params}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(hash string, password string) (bool, error) {
	params, salt, key, err := decodeArgon2id(hash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, params.KeyLength)

	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

func (h *Argon2idHasher) NeedsRehash(hash string) bool {
	params, _, _, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	return params.MemoryKiB != h.params.MemoryKiB ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength
}

func decodeArgon2id(hash string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != SchemeArgon2id {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return Argon2idParams{}, nil, nil, ErrIncompatibleVersion
	}

	var params Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Iterations, &params.Parallelism); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if params.Validate() != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > MaxArgon2KeyLength {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	return params, salt, key, nil
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = constants.BcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(hash string, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %v", ErrInvalidHash, err)
}

func (h *BcryptHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.cost
}

// VersionedHasher hashes with one current scheme and verifies any registered
// scheme, dispatching on the tag embedded in the stored token.
type VersionedHasher struct {
	currentScheme string
	schemes       map[string]PasswordHasher
}

func NewVersionedHasher(currentScheme string, current PasswordHasher) *VersionedHasher {
	return &VersionedHasher{
		currentScheme: currentScheme,
		schemes:       map[string]PasswordHasher{currentScheme: current},
	}
}

// WithLegacy registers a scheme accepted for verification only.
func (h *VersionedHasher) WithLegacy(scheme string, hasher PasswordHasher) *VersionedHasher {
	h.schemes[scheme] = hasher
	return h
}

func (h *VersionedHasher) Hash(password string) (string, error) {
	return h.schemes[h.currentScheme].Hash(password)
}

func (h *VersionedHasher) Verify(hash string, password string) (bool, error) {
	scheme := Scheme(hash)
	hasher, ok := h.schemes[scheme]
	if !ok {
		return false, ErrUnknownHashScheme
	}
	return hasher.Verify(hash, password)
}

func (h *VersionedHasher) NeedsRehash(hash string) bool {
	scheme := Scheme(hash)
	if scheme != h.currentScheme {
		return true
	}
	return h.schemes[scheme].NeedsRehash(hash)
}

// NewDefaultHasher hashes with Argon2id and still accepts bcrypt tokens
// written before the switch.
func NewDefaultHasher(params Argon2idParams) *VersionedHasher {
	return NewVersionedHasher(SchemeArgon2id, NewArgon2idHasher(params)).
		WithLegacy(SchemeBcrypt, NewBcryptHasher(constants.BcryptCost))
}
