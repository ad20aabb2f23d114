package state

import (
	"log/slog"
	"slices"
	"sync"
)

type stackKey struct {
	author string
	page   string
}

type authorStacks struct {
	undo []string
	redo []string
}

// ActionStore is the per-page action log with per-(author,page) undo and
// redo stacks. An action id lives in at most one of the two stacks of its
// (author,page) pair. Unknown ids and empty stacks are no-ops, never errors.
type ActionStore struct {
	mu        sync.RWMutex
	limit     int
	actions   map[string]*Action
	order     map[string][]string // page -> ids in commit order
	stacks    map[stackKey]*authorStacks
	baselines map[string]string // page -> data URL
	logger    *slog.Logger
}

// NewActionStore creates an empty store. limit <= 0 uses HistoryLimit.
func NewActionStore(limit int, logger *slog.Logger) *ActionStore {
	if limit <= 0 {
		limit = HistoryLimit
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ActionStore{
		limit:     limit,
		actions:   make(map[string]*Action),
		order:     make(map[string][]string),
		stacks:    make(map[stackKey]*authorStacks),
		baselines: make(map[string]string),
		logger:    logger,
	}
}

func (s *ActionStore) stacksFor(author, page string) *authorStacks {
	k := stackKey{author, page}
	st, ok := s.stacks[k]
	if !ok {
		st = &authorStacks{}
		s.stacks[k] = st
	}
	return st
}

func (s *ActionStore) push(stack []string, id string) []string {
	if slices.Contains(stack, id) {
		return stack
	}
	stack = append(stack, id)
	if over := len(stack) - s.limit; over > 0 {
		stack = slices.Delete(stack, 0, over)
	}
	return stack
}

func remove(stack []string, id string) []string {
	if i := slices.Index(stack, id); i >= 0 {
		return slices.Delete(stack, i, i+1)
	}
	return stack
}

// Record appends a into its page log, clears the author's redo stack for
// that page and pushes a onto the undo stack. An action recorded inactive
// goes onto the emptied redo stack instead, so it can still be redone. It
// returns false when a is invalid or its id was already recorded.
func (s *ActionStore) Record(a *Action) bool {
	if a == nil || a.ID == "" || a.PageID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.actions[a.ID]; exists {
		s.logger.Debug("action already recorded, ignoring", "action", a.ID)
		return false
	}
	s.actions[a.ID] = a
	s.order[a.PageID] = append(s.order[a.PageID], a.ID)

	st := s.stacksFor(a.AuthorID, a.PageID)
	st.redo = st.redo[:0]
	if a.Active {
		st.undo = s.push(st.undo, a.ID)
	} else {
		st.redo = s.push(st.redo, a.ID)
	}
	s.logger.Debug("action recorded", "action", a.ID, "type", a.Type, "author", a.AuthorID, "page", a.PageID)
	return true
}

// SetActive toggles an action and moves its id to the matching stack.
func (s *ActionStore) SetActive(id string, active bool) (*Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, false
	}
	a.Active = active
	st := s.stacksFor(a.AuthorID, a.PageID)
	if active {
		st.redo = remove(st.redo, id)
		st.undo = s.push(st.undo, id)
	} else {
		st.undo = remove(st.undo, id)
		st.redo = s.push(st.redo, id)
	}
	return a, true
}

// Undo deactivates the author's most recent undoable action on page.
func (s *ActionStore) Undo(author, page string) *Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stacksFor(author, page)
	for len(st.undo) > 0 {
		id := st.undo[len(st.undo)-1]
		st.undo = st.undo[:len(st.undo)-1]
		a, ok := s.actions[id]
		if !ok {
			continue
		}
		a.Active = false
		st.redo = s.push(st.redo, id)
		return a
	}
	return nil
}

// Redo reactivates the author's most recently undone action on page.
func (s *ActionStore) Redo(author, page string) *Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stacksFor(author, page)
	for len(st.redo) > 0 {
		id := st.redo[len(st.redo)-1]
		st.redo = st.redo[:len(st.redo)-1]
		a, ok := s.actions[id]
		if !ok {
			continue
		}
		a.Active = true
		st.undo = s.push(st.undo, id)
		return a
	}
	return nil
}

// Reset forgets every action and author stack scoped to page. The baseline
// is left alone; use SetBaseline.
func (s *ActionStore) Reset(page string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order[page] {
		delete(s.actions, id)
	}
	delete(s.order, page)
	for k := range s.stacks {
		if k.page == page {
			delete(s.stacks, k)
		}
	}
}

// ResetAll drops every page's log and baseline.
func (s *ActionStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.actions)
	clear(s.order)
	clear(s.stacks)
	clear(s.baselines)
}

func (s *ActionStore) SetBaseline(page, dataURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[page] = dataURL
}

// Baseline returns the page's baseline data URL. ok is false when no
// baseline was ever set; "" with ok is a blank page.
func (s *ActionStore) Baseline(page string) (dataURL string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataURL, ok = s.baselines[page]
	return dataURL, ok
}

// ForgetPage drops a removed page's log and baseline.
func (s *ActionStore) ForgetPage(page string) {
	s.Reset(page)
	s.mu.Lock()
	delete(s.baselines, page)
	s.mu.Unlock()
}

func (s *ActionStore) Action(id string) (*Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	return a, ok
}

// PageActions returns the page's actions in commit order, active or not.
func (s *ActionStore) PageActions(page string) []*Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[page]
	out := make([]*Action, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.actions[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Counts returns the undo and redo depth for (author, page).
func (s *ActionStore) Counts(author, page string) (undo, redo int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stacks[stackKey{author, page}]
	if !ok {
		return 0, 0
	}
	return len(st.undo), len(st.redo)
}

// Stacks returns copies of the (author, page) stacks, oldest first.
func (s *ActionStore) Stacks(author, page string) (undo, redo []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stacks[stackKey{author, page}]
	if !ok {
		return nil, nil
	}
	return slices.Clone(st.undo), slices.Clone(st.redo)
}
