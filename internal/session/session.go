// Package session owns the credential and the authenticated identity: the
// single Session of the orchestrator. Sign-out, whether explicit or cascaded
// from a collaborator reporting an authorization failure, clears the
// credential, its durable copy, and fans out to registered listeners so
// dependent state (cached projects, current project) is dropped in one
// place.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/torvik/sketchbridge/internal/models"
	"github.com/torvik/sketchbridge/internal/remote"
)

// ErrNotSignedIn reports an operation that requires an authenticated
// session. Raised locally, never sent to a collaborator.
var ErrNotSignedIn = errors.New("session: not signed in")

// Identity is who the credential proves the user to be.
type Identity struct {
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url"`
}

// Snapshot is the read-only session view for the presentation layer.
type Snapshot struct {
	Authenticated bool      `json:"authenticated"`
	Identity      *Identity `json:"identity,omitempty"`
}

// IdentityVerifier fetches the identity a credential proves.
type IdentityVerifier interface {
	Fetch(ctx context.Context, token string) (*remote.Identity, error)
}

// Authorizer starts the external authorization round trip and redeems its
// result.
type Authorizer interface {
	// AuthURL returns the provider URL the client must navigate to.
	AuthURL(state string) string
	// Exchange redeems the authorization code for a credential.
	Exchange(ctx context.Context, code string) (string, error)
}

// CredentialStore persists the credential across restarts. The local
// sqlite store satisfies it.
type CredentialStore interface {
	SaveCredential(token, handle, avatarURL string) error
	LoadCredential() (*models.Credential, error)
	ClearCredential() error
}

// Manager is the Session Manager.
type Manager struct {
	authorizer Authorizer
	verifier   IdentityVerifier
	store      CredentialStore

	mu        sync.Mutex
	token     string
	identity  *Identity
	lastState string // outstanding OAuth state parameter
	onSignOut []func()
}

// NewManager creates a signed-out Manager.
func NewManager(authorizer Authorizer, verifier IdentityVerifier, store CredentialStore) *Manager {
	return &Manager{authorizer: authorizer, verifier: verifier, store: store}
}

// OnSignOut registers a listener invoked after every sign-out, explicit or
// cascaded. Listeners run outside the session lock.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

// BeginSignIn returns the provider authorization URL for the client to
// navigate to. No local state changes beyond remembering the state
// parameter for callback validation.
func (m *Manager) BeginSignIn(state string) (string, error) {
	if m.authorizer == nil {
		return "", fmt.Errorf("session: no identity provider configured")
	}
	url := m.authorizer.AuthURL(state)
	m.mu.Lock()
	m.lastState = state
	m.mu.Unlock()
	return url, nil
}

// ExpectedState returns the state parameter of the outstanding
// authorization round trip.
func (m *Manager) ExpectedState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

// CompleteSignIn stores the credential durably, sets identity optimistically
// from hint, then verifies it against the provider. An authorization failure
// during verification invalidates the credential; any other failure keeps
// the optimistic identity. Idempotent for a repeated credential.
func (m *Manager) CompleteSignIn(ctx context.Context, token string, hint *Identity) error {
	if token == "" {
		return fmt.Errorf("session: empty credential")
	}

	m.mu.Lock()
	m.token = token
	m.lastState = ""
	if hint != nil {
		m.identity = &Identity{Handle: hint.Handle, AvatarURL: hint.AvatarURL}
	}
	m.mu.Unlock()
	m.persist()

	id, err := m.verifier.Fetch(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			log.Printf("session: credential rejected during verification, signing out")
			m.SignOut()
			return fmt.Errorf("session: verify identity: %w", err)
		}
		log.Printf("session: identity verification deferred: %v", err)
		return nil
	}

	m.mu.Lock()
	m.identity = &Identity{Handle: id.Handle, AvatarURL: id.AvatarURL}
	m.mu.Unlock()
	m.persist()
	log.Printf("session: signed in as %s", id.Handle)
	return nil
}

// Exchange redeems an authorization code and completes sign-in with the
// resulting credential.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	if m.authorizer == nil {
		return fmt.Errorf("session: no identity provider configured")
	}
	token, err := m.authorizer.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("session: exchange code: %w", err)
	}
	return m.CompleteSignIn(ctx, token, nil)
}

// Resume restores a persisted credential on startup. The identity is
// re-verified; on any failure the credential is treated as invalid and
// cleared, and the manager stays signed out. Never retries.
func (m *Manager) Resume(ctx context.Context) error {
	cred, err := m.store.LoadCredential()
	if err != nil {
		return fmt.Errorf("session: resume: %w", err)
	}
	if cred == nil {
		return nil
	}
	token := cred.Token

	id, err := m.verifier.Fetch(ctx, token)
	if err != nil {
		log.Printf("session: stored credential invalid, clearing: %v", err)
		if clearErr := m.store.ClearCredential(); clearErr != nil {
			log.Printf("session: clear credential: %v", clearErr)
		}
		return nil
	}

	m.mu.Lock()
	m.token = token
	m.identity = &Identity{Handle: id.Handle, AvatarURL: id.AvatarURL}
	m.mu.Unlock()
	m.persist()
	log.Printf("session: resumed as %s", id.Handle)
	return nil
}

// SignOut clears the credential, identity, and durable copy, then fans out
// to listeners.
func (m *Manager) SignOut() {
	m.mu.Lock()
	wasSignedIn := m.token != ""
	m.token = ""
	m.identity = nil
	listeners := append([]func(){}, m.onSignOut...)
	m.mu.Unlock()

	if err := m.store.ClearCredential(); err != nil {
		log.Printf("session: clear credential: %v", err)
	}
	if wasSignedIn {
		log.Printf("session: signed out")
	}
	for _, fn := range listeners {
		fn()
	}
}

// NoteAuthFailure is the single cascade point for AuthorizationFailure: if
// err reports the credential invalid, the whole session is ended exactly as
// an explicit SignOut. Reports whether the cascade fired.
func (m *Manager) NoteAuthFailure(err error) bool {
	if err == nil || !errors.Is(err, remote.ErrUnauthorized) {
		return false
	}
	log.Printf("session: authorization failure reported, signing out: %v", err)
	m.SignOut()
	return true
}

// IsAuthenticated reports whether a credential is held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != ""
}

// Token supplies the current credential for outbound calls. Shaped to fit
// remote.TokenFunc.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

// Snapshot returns the read-only session view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Authenticated: m.token != ""}
	if m.identity != nil {
		id := *m.identity
		snap.Identity = &id
	}
	return snap
}

// persist writes the current credential and identity durably.
func (m *Manager) persist() {
	m.mu.Lock()
	token := m.token
	var handle, avatar string
	if m.identity != nil {
		handle = m.identity.Handle
		avatar = m.identity.AvatarURL
	}
	m.mu.Unlock()

	if token == "" {
		return
	}
	if err := m.store.SaveCredential(token, handle, avatar); err != nil {
		log.Printf("session: persist credential: %v", err)
	}
}
