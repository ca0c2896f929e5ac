package config

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/quickserve/quickserve/internal/apperror"
)

const maxPlainPasswordLen = 255

// Password is a closed set of ways a configured account's password can be
// stored: as plaintext, or as a SHA-256/SHA-512 digest of the real password.
type Password interface {
	// Match reports whether the presented plaintext password matches.
	Match(presented string) bool
	isPassword()
}

// Plain is a plaintext configured password, compared byte-for-byte (in
// constant time, since this still runs on every request an unauthenticated
// client makes).
type Plain string

func (p Plain) Match(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(p), []byte(presented)) == 1
}
func (Plain) isPassword() {}

// Sha256 stores the SHA-256 digest of the real password.
type Sha256 []byte

func (h Sha256) Match(presented string) bool {
	sum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(sum[:], h) == 1
}
func (Sha256) isPassword() {}

// Sha512 stores the SHA-512 digest of the real password.
type Sha512 []byte

func (h Sha512) Match(presented string) bool {
	sum := sha512.Sum512([]byte(presented))
	return subtle.ConstantTimeCompare(sum[:], h) == 1
}
func (Sha512) isPassword() {}

// Account is one configured user. Uniqueness by username is not enforced;
// the auth matcher takes the first account whose username matches.
type Account struct {
	Username string
	Password Password
}

// ParseAuthString parses the CLI auth-string grammar:
//
//	username:password            (plaintext, must be <= 255 bytes)
//	username:sha256:HEXDIGEST
//	username:sha512:HEXDIGEST
func ParseAuthString(s string) (Account, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return Account{}, apperror.New(apperror.InvalidAuthFormat, s)
	}
	username := parts[0]
	if username == "" {
		return Account{}, apperror.New(apperror.InvalidAuthFormat, s)
	}

	if len(parts) == 2 {
		pass := parts[1]
		if len(pass) > maxPlainPasswordLen {
			return Account{}, apperror.New(apperror.PasswordTooLong, username)
		}
		return Account{Username: username, Password: Plain(pass)}, nil
	}

	method, hexDigest := parts[1], parts[2]
	digest, err := hex.DecodeString(hexDigest)
	if err != nil {
		return Account{}, apperror.Wrap(apperror.InvalidPasswordHash, s, err)
	}
	switch method {
	case "sha256":
		if len(digest) != sha256.Size {
			return Account{}, apperror.New(apperror.InvalidPasswordHash, s)
		}
		return Account{Username: username, Password: Sha256(digest)}, nil
	case "sha512":
		if len(digest) != sha512.Size {
			return Account{}, apperror.New(apperror.InvalidPasswordHash, s)
		}
		return Account{Username: username, Password: Sha512(digest)}, nil
	default:
		return Account{}, apperror.New(apperror.InvalidHashMethod, method)
	}
}

// LoadAuthFile reads one auth-string entry per line (blank lines and lines
// starting with "#" are skipped) and appends each to the returned account
// list, supplementing accounts given directly via --auth.
func LoadAuthFile(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.IO, path, err)
	}
	var accounts []Account
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		acct, err := ParseAuthString(line)
		if err != nil {
			return nil, apperror.Wrap(apperror.InvalidAuthFormat, fmt.Sprintf("%s:%d", path, i+1), err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}
