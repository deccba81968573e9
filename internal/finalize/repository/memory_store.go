package repository

import (
	"context"
	"sort"
	"sync"

	"simoj/internal/finalize/model"
	"simoj/internal/finalize/policy"
)

// MemoryStore is an in-process SubmissionStore. Transactions run one at a
// time against a private copy that replaces the committed state on Commit,
// which makes them serializable. It backs tests and the embedded dev mode.
type MemoryStore struct {
	txSlot chan struct{}

	mu              sync.RWMutex
	submissions     map[int64]*model.Submission
	contestProblems map[int64]model.ContestProblem
	nextID          int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txSlot:          make(chan struct{}, 1),
		submissions:     make(map[int64]*model.Submission),
		contestProblems: make(map[int64]model.ContestProblem),
	}
}

// PutSubmission inserts or replaces a submission as its own transaction.
// A zero id is assigned the next free id.
func (s *MemoryStore) PutSubmission(sub model.Submission) int64 {
	s.txSlot <- struct{}{}
	defer func() { <-s.txSlot }()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == 0 {
		s.nextID++
		sub.ID = s.nextID
	} else if sub.ID > s.nextID {
		s.nextID = sub.ID
	}
	s.submissions[sub.ID] = cloneSubmission(&sub)
	return sub.ID
}

// PutContestProblem inserts or replaces a contest problem.
func (s *MemoryStore) PutContestProblem(cp model.ContestProblem) {
	s.txSlot <- struct{}{}
	defer func() { <-s.txSlot }()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contestProblems[cp.ID] = cp
}

// RemoveContestProblem deletes a contest problem, leaving its submissions.
func (s *MemoryStore) RemoveContestProblem(id int64) {
	s.txSlot <- struct{}{}
	defer func() { <-s.txSlot }()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contestProblems, id)
}

// Submission returns a copy of the committed submission.
func (s *MemoryStore) Submission(id int64) (model.Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, false
	}
	return *cloneSubmission(sub), true
}

// Snapshot returns copies of all committed submissions ordered by id.
func (s *MemoryStore) Snapshot() []model.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, *cloneSubmission(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BeginTx waits for the transaction slot and opens a private working copy.
func (s *MemoryStore) BeginTx(ctx context.Context) (SubmissionTx, error) {
	select {
	case s.txSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	work := make(map[int64]*model.Submission, len(s.submissions))
	for id, sub := range s.submissions {
		work[id] = cloneSubmission(sub)
	}
	cps := make(map[int64]model.ContestProblem, len(s.contestProblems))
	for id, cp := range s.contestProblems {
		cps[id] = cp
	}
	s.mu.RUnlock()

	return &memoryTx{store: s, submissions: work, contestProblems: cps}, nil
}

// FindFinal reads the committed holder of flag for key.
func (s *MemoryStore) FindFinal(_ context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	if err := validateFlag(flag, key); err != nil {
		return 0, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best int64
	found := false
	for _, sub := range s.submissions {
		if sub.Matches(key) && sub.FlagValue(flag) && (!found || sub.ID > best) {
			best, found = sub.ID, true
		}
	}
	return best, found, nil
}

// ListContestOwners returns distinct owners of a contest problem's submissions.
func (s *MemoryStore) ListContestOwners(_ context.Context, contestProblemID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, sub := range s.submissions {
		if sub.OwnerID != nil && sub.ContestProblemID != nil && *sub.ContestProblemID == contestProblemID {
			seen[*sub.OwnerID] = struct{}{}
		}
	}
	owners := make([]int64, 0, len(seen))
	for id := range seen {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

type memoryTx struct {
	store           *MemoryStore
	submissions     map[int64]*model.Submission
	contestProblems map[int64]model.ContestProblem
	closed          bool
}

func (t *memoryTx) candidates(key model.Key, q model.CandidateQuery) []*model.Submission {
	var out []*model.Submission
	for _, sub := range t.submissions {
		if !sub.IsFinalCandidate || !sub.Matches(key) {
			continue
		}
		if q.Score != nil && sub.Score != *q.Score {
			continue
		}
		if q.Rank != nil && statusRank(sub, q.Field) != *q.Rank {
			continue
		}
		out = append(out, sub)
	}
	return out
}

func statusRank(sub *model.Submission, field model.StatusField) int {
	return policy.Rule{TieBreak: field}.StatusRank(policy.CandidateFrom(sub))
}

func (t *memoryTx) FindMaxScore(_ context.Context, key model.Key) (int64, bool, error) {
	if t.closed {
		return 0, false, ErrTxClosed
	}
	var best int64
	found := false
	for _, sub := range t.candidates(key, model.CandidateQuery{}) {
		if !found || sub.Score > best {
			best, found = sub.Score, true
		}
	}
	return best, found, nil
}

func (t *memoryTx) FindBestStatusRank(_ context.Context, key model.Key, q model.CandidateQuery) (int, bool, error) {
	if t.closed {
		return 0, false, ErrTxClosed
	}
	if _, err := rankExpr(q.Field); err != nil {
		return 0, false, err
	}
	best, found := 0, false
	for _, sub := range t.candidates(key, model.CandidateQuery{Score: q.Score}) {
		if r := statusRank(sub, q.Field); !found || r > best {
			best, found = r, true
		}
	}
	return best, found, nil
}

func (t *memoryTx) FindMaxID(_ context.Context, key model.Key, q model.CandidateQuery) (int64, bool, error) {
	if t.closed {
		return 0, false, ErrTxClosed
	}
	var best int64
	found := false
	for _, sub := range t.candidates(key, q) {
		if !found || sub.ID > best {
			best, found = sub.ID, true
		}
	}
	return best, found, nil
}

func (t *memoryTx) GetContestProblem(_ context.Context, id int64) (*model.ContestProblem, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	cp, ok := t.contestProblems[id]
	if !ok {
		return nil, ErrContestProblemNotFound
	}
	return &cp, nil
}

func (t *memoryTx) GetSubmission(_ context.Context, id int64) (*model.Submission, error) {
	if t.closed {
		return nil, ErrTxClosed
	}
	sub, ok := t.submissions[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	return cloneSubmission(sub), nil
}

func (t *memoryTx) DeleteSubmission(_ context.Context, id int64) error {
	if t.closed {
		return ErrTxClosed
	}
	if _, ok := t.submissions[id]; !ok {
		return ErrSubmissionNotFound
	}
	delete(t.submissions, id)
	return nil
}

func (t *memoryTx) SetFinalCandidate(_ context.Context, id int64, candidate bool) error {
	if t.closed {
		return ErrTxClosed
	}
	if sub, ok := t.submissions[id]; ok {
		sub.IsFinalCandidate = candidate
	}
	return nil
}

func (t *memoryTx) SetFlagExclusive(_ context.Context, flag model.Flag, key model.Key, winner *int64) (int64, error) {
	if t.closed {
		return 0, ErrTxClosed
	}
	if err := validateFlag(flag, key); err != nil {
		return 0, err
	}
	var changed int64
	for _, sub := range t.submissions {
		if !sub.Matches(key) {
			continue
		}
		want := winner != nil && sub.ID == *winner
		if sub.FlagValue(flag) != want {
			sub.SetFlagValue(flag, want)
			changed++
		}
	}
	return changed, nil
}

func (t *memoryTx) FindFinal(_ context.Context, flag model.Flag, key model.Key) (int64, bool, error) {
	if t.closed {
		return 0, false, ErrTxClosed
	}
	if err := validateFlag(flag, key); err != nil {
		return 0, false, err
	}
	var best int64
	found := false
	for _, sub := range t.submissions {
		if sub.Matches(key) && sub.FlagValue(flag) && (!found || sub.ID > best) {
			best, found = sub.ID, true
		}
	}
	return best, found, nil
}

func (t *memoryTx) CountFlagged(_ context.Context, flag model.Flag, key model.Key) (int64, error) {
	if t.closed {
		return 0, ErrTxClosed
	}
	if err := validateFlag(flag, key); err != nil {
		return 0, err
	}
	var n int64
	for _, sub := range t.submissions {
		if sub.Matches(key) && sub.FlagValue(flag) {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) Commit() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	t.store.mu.Lock()
	t.store.submissions = t.submissions
	t.store.mu.Unlock()
	<-t.store.txSlot
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	<-t.store.txSlot
	return nil
}

func cloneSubmission(sub *model.Submission) *model.Submission {
	c := *sub
	if sub.OwnerID != nil {
		owner := *sub.OwnerID
		c.OwnerID = &owner
	}
	if sub.ContestProblemID != nil {
		cp := *sub.ContestProblemID
		c.ContestProblemID = &cp
	}
	return &c
}

var _ SubmissionStore = (*MemoryStore)(nil)
