package proctoring

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"peerprep/interview/internal/models"
)

type memSessions struct {
	mu          sync.Mutex
	sessions    map[string]*models.InterviewSession
	faceErr     error
	finalizeHit func(*models.InterviewSession)
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]*models.InterviewSession{}}
}

func (m *memSessions) add(s *models.InterviewSession) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	m.sessions[s.ID.Hex()] = s
	return s.ID.Hex()
}

func (m *memSessions) get(id string) *models.InterviewSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.sessions[id]
	return &cp
}

func (m *memSessions) GetSession(_ context.Context, id string) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	cp.Cheating.Incidents = append([]models.Incident(nil), s.Cheating.Incidents...)
	return &cp, nil
}

func (m *memSessions) ResetMismatchStreak(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.ErrSessionNotFound
	}
	s.Cheating.ConsecutiveMismatchCount = 0
	return nil
}

func (m *memSessions) IncrementMismatchStreak(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	s.Cheating.ConsecutiveMismatchCount++
	return s.Cheating.ConsecutiveMismatchCount, nil
}

func (m *memSessions) IncrementFaceMismatch(_ context.Context, id string, criticalAt int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.faceErr != nil {
		return 0, m.faceErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return 0, models.ErrSessionNotFound
	}
	s.Cheating.FaceMismatchCount++
	if s.Cheating.FaceMismatchCount >= criticalAt {
		s.Cheating.IsDetected = true
	}
	return s.Cheating.FaceMismatchCount, nil
}

func (m *memSessions) RecordIncident(_ context.Context, id string, inc models.Incident, penalty int) (*models.CheatingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if s.FinalizedAt != nil {
		return nil, models.ErrSessionCompleted
	}
	s.Cheating.IncidentCount++
	s.Cheating.PenaltyPoints += penalty
	s.Cheating.IsDetected = true
	s.Cheating.Incidents = append(s.Cheating.Incidents, inc)
	cp := s.Cheating
	return &cp, nil
}

func (m *memSessions) FinalizeScore(_ context.Context, snap *models.InterviewSession, total, pct int, at time.Time) (bool, error) {
	if m.finalizeHit != nil {
		hook := m.finalizeHit
		m.finalizeHit = nil
		hook(snap)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[snap.ID.Hex()]
	if !ok {
		return false, models.ErrSessionNotFound
	}
	if s.FinalizedAt != nil || s.Cheating.PenaltyPoints != snap.Cheating.PenaltyPoints || s.CurrentIndex != snap.CurrentIndex {
		return false, nil
	}
	s.TotalScore, s.OverallPercentage, s.IsCompleted, s.FinalizedAt = total, pct, true, &at
	return true, nil
}

type memLedger struct {
	mu        sync.Mutex
	rows      []models.Violation
	appendErr error
	seq       int
}

func (l *memLedger) Append(_ context.Context, v *models.Violation) (*models.Violation, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return nil, false, l.appendErr
	}
	if v.EventID != "" {
		for i := range l.rows {
			if l.rows[i].SessionID == v.SessionID && l.rows[i].EventID == v.EventID {
				cp := l.rows[i]
				return &cp, false, nil
			}
		}
	}
	l.seq++
	cp := *v
	cp.ID = primitive.NewObjectID().Hex()
	cp.Timestamp = cp.Timestamp.Add(time.Duration(l.seq) * time.Millisecond)
	l.rows = append(l.rows, cp)
	return &cp, true, nil
}

func (l *memLedger) CountByType(_ context.Context, sessionID string, types ...models.ViolationType) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.rows {
		if r.SessionID != sessionID {
			continue
		}
		for _, t := range types {
			if r.ViolationType == t {
				n++
				break
			}
		}
	}
	return n, nil
}

func (l *memLedger) ListBySession(_ context.Context, sessionID string) ([]models.Violation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Violation
	for _, r := range l.rows {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

type memUsers struct {
	mu         sync.Mutex
	embeddings map[string][]float64
	lookups    int
}

func newMemUsers() *memUsers {
	return &memUsers{embeddings: map[string][]float64{}}
}

func (u *memUsers) add(embedding []float64) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	id := primitive.NewObjectID().Hex()
	u.embeddings[id] = embedding
	return id
}

func (u *memUsers) UserExists(_ context.Context, id string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.embeddings[id]
	return ok, nil
}

func (u *memUsers) EnrolledEmbedding(_ context.Context, id string) ([]float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lookups++
	emb, ok := u.embeddings[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	if len(emb) == 0 {
		return nil, models.ErrEnrollmentMissing
	}
	return emb, nil
}

func (u *memUsers) SetFaceEmbedding(_ context.Context, id string, emb []float64) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.embeddings[id]; !ok {
		return models.ErrUserNotFound
	}
	u.embeddings[id] = emb
	return nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float64
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]float64{}} }

func (c *mapCache) Get(_ context.Context, id string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *mapCache) Set(_ context.Context, id string, emb []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = emb
}

func (c *mapCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

type fakeEvidence struct {
	saveFn  func([]byte, string) (string, error)
	saved   []string
	removed []string
}

func (f *fakeEvidence) Save(_ context.Context, data []byte, name string) (string, error) {
	if f.saveFn != nil {
		return f.saveFn(data, name)
	}
	url := "/uploads/violations/" + name + ".jpg"
	f.saved = append(f.saved, url)
	return url, nil
}

func (f *fakeEvidence) Remove(_ context.Context, url string) error {
	f.removed = append(f.removed, url)
	return nil
}

type published struct {
	channel string
	payload any
}

type fakeEvents struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeEvents) Publish(_ context.Context, channel string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{channel, payload})
	return nil
}

func (f *fakeEvents) channels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.sent {
		out = append(out, p.channel)
	}
	return out
}

type fakeReports struct {
	reports []*models.InterviewReport
	err     error
}

func (f *fakeReports) UpsertReport(_ context.Context, r *models.InterviewReport) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, r)
	return nil
}

type fakeDetector struct {
	detectFn func(string) (*models.DetectionResult, error)
}

func (f *fakeDetector) Detect(_ context.Context, image string) (*models.DetectionResult, error) {
	if f.detectFn != nil {
		return f.detectFn(image)
	}
	return nil, errors.New("not implemented")
}

// a 1x1 PNG
const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
