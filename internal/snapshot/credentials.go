package snapshot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

const tempSecretBytes = 9

// Hasher turns a plaintext secret into a salted one-way hash.
type Hasher interface {
	Hash(secret string) (string, error)
}

// BcryptHasher hashes with bcrypt at Cost (bcrypt.DefaultCost when zero).
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

type credential struct {
	plain string
	hash  string
}

func generateTempSecret() (string, error) {
	b := make([]byte, tempSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate temp secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func handleKey(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// prepareCredentials generates and hashes a temporary secret for every
// identity. It must run before the restore transaction opens.
func prepareCredentials(ctx context.Context, hasher Hasher, identities []IdentityRecord) (map[string]credential, error) {
	creds := make(map[string]credential, len(identities))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, ident := range identities {
		key := handleKey(ident.Handle)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plain, err := generateTempSecret()
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(plain)
			if err != nil {
				return fmt.Errorf("hash temp secret for %s: %w", key, err)
			}
			mu.Lock()
			creds[key] = credential{plain: plain, hash: hash}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return creds, nil
}
