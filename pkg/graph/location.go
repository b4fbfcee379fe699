package graph

import (
	"net/url"
	"strings"
	"sync"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
)

// Location is the navigable address of the current view. Selecting a node
// writes its address as the fragment, and a fragment present at startup
// seeds the first selection (see [State.InitFromLocation]).
type Location interface {
	Fragment() string
	SetFragment(fragment string)
}

// MemoryLocation is an in-process Location.
type MemoryLocation struct {
	mu       sync.Mutex
	fragment string
}

// NewMemoryLocation returns a location with the given initial fragment.
func NewMemoryLocation(fragment string) *MemoryLocation {
	return &MemoryLocation{fragment: strings.TrimPrefix(fragment, "#")}
}

func (l *MemoryLocation) Fragment() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fragment
}

func (l *MemoryLocation) SetFragment(fragment string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fragment = strings.TrimPrefix(fragment, "#")
}

// ParseDeepLink extracts the account address from a shareable graph link.
// It accepts a bare address, a "#address" fragment or a full URL such as
// https://stellar.expert/explorer/public/account-relations#GA...
func ParseDeepLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	address := raw
	if strings.Contains(raw, "#") {
		if u, err := url.Parse(raw); err == nil {
			address = u.Fragment
		} else {
			address = raw[strings.LastIndex(raw, "#")+1:]
		}
	}
	if err := apperrors.ValidateAccountAddress(address); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInvalidAddress, err, "deep link %q", raw)
	}
	return address, nil
}
