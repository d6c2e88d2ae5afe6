package mirror

import (
	"strings"
	"sync"

	"github.com/google/go-containerregistry/pkg/authn"
)

// NewStaticKeychain builds a keychain for authenticating against specific
// registries. Registry hostnames are matched case-insensitively and a leading
// "*." matches any subdomain.
func NewStaticKeychain(creds map[string]authn.Authenticator) *StaticKeychain {
	kc := &StaticKeychain{creds: make(map[string]authn.Authenticator, len(creds))}
	for registry, authenticator := range creds {
		kc.Set(registry, authenticator)
	}
	return kc
}

type StaticKeychain struct {
	mu    sync.RWMutex
	creds map[string]authn.Authenticator
}

// Set registers authenticator for registry, replacing any previous entry.
func (s *StaticKeychain) Set(registry string, authenticator authn.Authenticator) {
	if authenticator == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(registry))
	if trimmed == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds == nil {
		s.creds = make(map[string]authn.Authenticator)
	}
	s.creds[trimmed] = authenticator
}

func (s *StaticKeychain) Resolve(resource authn.Resource) (authn.Authenticator, error) {
	if s == nil {
		return authn.Anonymous, nil
	}
	registry := strings.ToLower(strings.TrimSpace(resource.RegistryStr()))

	s.mu.RLock()
	defer s.mu.RUnlock()
	if auth, ok := s.creds[registry]; ok {
		return auth, nil
	}
	for pattern, auth := range s.creds {
		suffix, ok := strings.CutPrefix(pattern, "*.")
		if ok && strings.HasSuffix(registry, "."+suffix) {
			return auth, nil
		}
	}
	return authn.Anonymous, nil
}
