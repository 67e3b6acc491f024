package authclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// SelectionSource tells where the selected church came from.
type SelectionSource string

const (
	SelectionNone      SelectionSource = "none"
	SelectionPersisted SelectionSource = "persisted"
	SelectionHome      SelectionSource = "home"
	SelectionExplicit  SelectionSource = "explicit"
)

// Selection is the church the UI is scoped to. A nil Church means no
// scoping ("all churches").
type Selection struct {
	Church *Church        `json:"church"`
	Source SelectionSource `json:"source"`
}

// IsNone reports that no church is selected.
func (s Selection) IsNone() bool {
	return s.Church == nil
}

// ID returns the selected church id or "".
func (s Selection) ID() string {
	if s.Church == nil {
		return ""
	}
	return s.Church.ID
}

func (s Selection) clone() Selection {
	if s.Church != nil {
		c := *s.Church
		s.Church = &c
	}
	return s
}

// ResolveSelection picks the church to scope to:
//  1. the persisted id, if it is in churches
//  2. the user's home church, if it is in churches
//  3. none
//
// Persisted values that cannot be read are treated as absent.
func ResolveSelection(persisted string, user *User, churches []Church) Selection {
	if id, ok := parsePersistedID(persisted); ok {
		if church, found := findChurch(churches, id); found {
			return Selection{Church: &church, Source: SelectionPersisted}
		}
	}

	if id, ok := user.HomeChurchID(); ok {
		if church, found := findChurch(churches, id); found {
			return Selection{Church: &church, Source: SelectionHome}
		}
	}

	return Selection{Source: SelectionNone}
}

func parsePersistedID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(raw), &unquoted); err != nil {
			return "", false
		}
		raw = strings.TrimSpace(unquoted)
	}
	switch raw {
	case "", "null", "undefined":
		return "", false
	}
	return raw, true
}

func findChurch(churches []Church, id string) (Church, bool) {
	for _, c := range churches {
		if c.ID == id {
			return c, true
		}
	}
	return Church{}, false
}

// ChurchSelector caches the selected church for the current session. It
// resets itself when the session loses its user.
type ChurchSelector struct {
	backend  ChurchBackend
	creds    CredentialStore
	store    *Store
	logger   Logger
	activity ActivitySink
	now      func() time.Time

	mu          sync.RWMutex
	selection   Selection
	churches    []Church
	resolved    bool
	generation  uint64
	changes     uint64
	unsubscribe func()
}

// NewChurchSelector returns a selector bound to the session store.
func NewChurchSelector(backend ChurchBackend, creds CredentialStore, store *Store) *ChurchSelector {
	s := &ChurchSelector{
		backend:   backend,
		creds:     creds,
		store:     store,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		now:       time.Now,
		selection: Selection{Source: SelectionNone},
	}
	if store != nil {
		s.unsubscribe = store.Subscribe(s.onSession)
	}
	return s
}

func (s *ChurchSelector) WithLogger(logger Logger) *ChurchSelector {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *ChurchSelector) WithActivitySink(sink ActivitySink) *ChurchSelector {
	s.activity = normalizeActivitySink(sink)
	return s
}

// Close stops following the session store.
func (s *ChurchSelector) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Selected returns the selected church, nil when none.
func (s *ChurchSelector) Selected() *Church {
	return s.Selection().Church
}

// Selection returns the current selection and its source.
func (s *ChurchSelector) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection.clone()
}

// Churches returns the last fetched list.
func (s *ChurchSelector) Churches() []Church {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Church(nil), s.churches...)
}

// Resolved reports whether Resolve has run for the current session.
func (s *ChurchSelector) Resolved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolved
}

// Resolve computes the selection from the persisted id, the user and a
// freshly fetched church list. Nothing happens without a user.
func (s *ChurchSelector) Resolve(ctx context.Context, user *User, churches []Church) Selection {
	if user == nil {
		return s.Selection()
	}

	s.mu.RLock()
	gen, changes := s.generation, s.changes
	s.mu.RUnlock()

	persisted := s.readPersisted(ctx)
	selection := ResolveSelection(persisted, user, churches)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		// session ended while reading storage
		return s.selection.clone()
	}
	s.churches = append([]Church(nil), churches...)
	s.resolved = true
	if changes != s.changes {
		// an explicit choice arrived while reading storage
		return s.selection.clone()
	}
	s.selection = selection

	s.logger.Debug("church selection resolved to %q (%s)", selection.ID(), selection.Source)
	return selection.clone()
}

// Refresh fetches the church list and resolves against the current user.
func (s *ChurchSelector) Refresh(ctx context.Context) (Selection, error) {
	user := s.currentUser()
	if user == nil {
		return s.Selection(), ErrNotAuthenticated
	}

	churches, err := s.backend.Churches(ctx)
	if err != nil {
		s.logger.Warn("church list request failed: %v", err)
		return s.Selection(), err
	}
	return s.Resolve(ctx, user, churches), nil
}

// ChangeSelection sets the selected church; "" clears it. The id is not
// checked against the current list. Memory is updated first, persistence
// failures are logged and do not undo the change.
func (s *ChurchSelector) ChangeSelection(ctx context.Context, id string) Selection {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	selection := Selection{Source: SelectionExplicit}
	if id != "" {
		church, found := findChurch(s.churches, id)
		if !found {
			church = Church{ID: id}
		}
		selection.Church = &church
	}
	s.selection = selection
	s.changes++
	s.mu.Unlock()

	s.persist(ctx, id)

	userID := ""
	if user := s.currentUser(); user != nil {
		userID = user.ID
	}
	recordActivity(ctx, s.activity, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventChurchSelected,
		UserID:    userID,
		Metadata:  map[string]any{"church_id": id},
	})
	return selection.clone()
}

func (s *ChurchSelector) persist(ctx context.Context, id string) {
	if s.creds == nil {
		return
	}
	var err error
	if id == "" {
		err = s.creds.Remove(ctx, KeySelectedChurch)
		if IsCredentialNotFound(err) {
			err = nil
		}
	} else {
		err = s.creds.Set(ctx, KeySelectedChurch, id)
	}
	if err != nil {
		s.logger.Warn("failed to persist church selection: %v", err)
	}
}

func (s *ChurchSelector) readPersisted(ctx context.Context) string {
	if s.creds == nil {
		return ""
	}
	value, err := s.creds.Get(ctx, KeySelectedChurch)
	if err != nil {
		if !IsCredentialNotFound(err) {
			s.logger.Warn("failed to read church selection, treating as absent: %v", err)
		}
		return ""
	}
	return value
}

func (s *ChurchSelector) currentUser() *User {
	if s.store == nil {
		return nil
	}
	return s.store.Snapshot().User
}

func (s *ChurchSelector) onSession(snap Snapshot) {
	if snap.User != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = Selection{Source: SelectionNone}
	s.churches = nil
	s.resolved = false
	s.generation++
}
