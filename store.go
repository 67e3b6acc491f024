package authclient

import (
	"sort"
	"sync"
)

// Snapshot is an immutable copy of the session state.
//
// IsAuthenticated implies User != nil and Token != "". A token without a
// user is a legal transient state while initializing.
type Snapshot struct {
	User            *User      `json:"user"`
	Token           string     `json:"-"`
	IsAuthenticated bool       `json:"is_authenticated"`
	IsLoading       bool       `json:"is_loading"`
	Error           string     `json:"error,omitempty"`
	Status          Status     `json:"status"`
	TokenInfo       *TokenInfo `json:"token_info,omitempty"`
}

// HasToken reports whether a bearer token is held in memory.
func (s Snapshot) HasToken() bool {
	return s.Token != ""
}

// ActiveRole is the role currently governing permissions.
func (s Snapshot) ActiveRole() Role {
	return ActiveRole(s.User)
}

// Permissions projects the active role.
func (s Snapshot) Permissions() Permissions {
	return PermissionsFor(s.User)
}

type sessionState struct {
	user            *User
	token           string
	isAuthenticated bool
	err             string
	status          Status
	tokenInfo       *TokenInfo
	inflight        int
}

func (s *sessionState) snapshot() Snapshot {
	var info *TokenInfo
	if s.tokenInfo != nil {
		c := *s.tokenInfo
		info = &c
	}
	return Snapshot{
		User:            s.user.Clone(),
		Token:           s.token,
		IsAuthenticated: s.isAuthenticated,
		IsLoading:       s.inflight > 0,
		Error:           s.err,
		Status:          s.status,
		TokenInfo:       info,
	}
}

// Listener receives a snapshot after every applied update.
type Listener func(Snapshot)

// Store is the single state container shared by the session components.
// Updates are applied in the order they arrive. Listeners run after the
// update, serialized, and must not call back into session transitions.
type Store struct {
	mu        sync.RWMutex
	notifyMu  sync.Mutex
	state     sessionState
	listeners map[int]Listener
	nextID    int
}

// NewStore returns an empty container in StatusUnknown.
func NewStore() *Store {
	return &Store{
		state:     sessionState{status: StatusUnknown},
		listeners: map[int]Listener{},
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// Subscribe registers fn and returns a function that removes it. After the
// returned function runs, fn receives no further snapshots.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) update(fn func(st *sessionState)) Snapshot {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	snap := s.state.snapshot()
	listeners := s.orderedListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
	return snap
}

func (s *Store) orderedListeners() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
