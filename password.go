package authkit

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrNoEmptyString rejects empty plaintext passwords.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode("EMPTY_PASSWORD").
	WithCode(goerrors.CodeBadRequest)

const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16

	generatedSecretLen = 32
)

// Argon2Hasher is the default Hasher: argon2id for new digests, with
// transparent verification of legacy bcrypt digests and an upgraded
// argon2id digest handed back so callers can opportunistically persist it.
type Argon2Hasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

var _ Hasher = (*Argon2Hasher)(nil)

// NewArgon2Hasher returns a hasher with the package default parameters.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		time:    argonTime,
		memory:  argonMemory,
		threads: argonThreads,
	}
}

// Hash produces an argon2id digest in the standard encoded form.
func (h *Argon2Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrNoEmptyString
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random salt")
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.time, h.memory, h.threads, argonKeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyAndUpgrade checks plaintext against digest. Legacy bcrypt digests
// verify through bcrypt and, on match, yield a fresh argon2id digest as the
// second value. Argon2 digests hashed under stale parameters are upgraded
// the same way.
func (h *Argon2Hasher) VerifyAndUpgrade(plaintext, digest string) (bool, string) {
	if digest == "" {
		// Still burn comparable work so missing records are not
		// observable through timing.
		h.dummyVerify(plaintext)
		return false, ""
	}

	if strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$") {
		if bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) != nil {
			return false, ""
		}
		upgraded, err := h.Hash(plaintext)
		if err != nil {
			return true, ""
		}
		return true, upgraded
	}

	params, salt, key, err := parseArgon2Digest(digest)
	if err != nil {
		h.dummyVerify(plaintext)
		return false, ""
	}

	candidate := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.threads, uint32(len(key)))
	if subtle.ConstantTimeCompare(candidate, key) != 1 {
		return false, ""
	}

	if params.time != h.time || params.memory != h.memory || params.threads != h.threads || uint32(len(key)) != argonKeyLen {
		upgraded, err := h.Hash(plaintext)
		if err != nil {
			return true, ""
		}
		return true, upgraded
	}

	return true, ""
}

// Generate returns a URL-safe random secret.
func (h *Argon2Hasher) Generate() (string, error) {
	buf := make([]byte, generatedSecretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random secret")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// dummyVerify runs a full argon2id derivation against a fixed digest so
// code paths without a real record take comparable time. Callers on
// user-not-found paths must invoke VerifyAndUpgrade with any input rather
// than returning early.
func (h *Argon2Hasher) dummyVerify(plaintext string) {
	salt := make([]byte, argonSaltLen)
	argon2.IDKey([]byte(plaintext), salt, h.time, h.memory, h.threads, argonKeyLen)
}

// DummyDigest returns a syntactically valid digest for timing-equalization
// on lookup misses.
func (h *Argon2Hasher) DummyDigest() string {
	digest, err := h.Hash("dummy-timing-equalization")
	if err != nil {
		return ""
	}
	return digest
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

func parseArgon2Digest(digest string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, fmt.Errorf("unrecognized digest format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Params{}, nil, nil, err
	}
	if version != argon2.Version {
		return argon2Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var params argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return argon2Params{}, nil, nil, err
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, nil, nil, err
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Params{}, nil, nil, err
	}

	return params, salt, key, nil
}
