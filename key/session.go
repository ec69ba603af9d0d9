package key

import "sync"

// Session tracks keys already archived within one Archiver lifetime,
// raising ErrDuplicateKey on re-submission when Strict is set. This is
// the seen_ set of spec.md §4.1.
type Session struct {
	Strict bool

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewSession returns a Session with an empty seen-set.
func NewSession(strict bool) *Session {
	return &Session{Strict: strict, seen: make(map[string]struct{})}
}

// Mark records fingerprint as archived. It returns ErrDuplicateKey if the
// fingerprint was already seen and the session is strict; non-strict
// sessions never error and simply update bookkeeping.
func (s *Session) Mark(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[fingerprint]; dup {
		if s.Strict {
			return ErrDuplicateKey
		}
		return nil
	}
	s.seen[fingerprint] = struct{}{}
	return nil
}

// Reset clears the seen-set, e.g. after a flush boundary that callers
// consider a new logical session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}
