package interview

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"peerprep/interview/internal/models"
	"peerprep/interview/internal/scoring"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.InterviewSession
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*models.InterviewSession{}}
}

func (m *memStore) Create(_ context.Context, s *models.InterviewSession) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = primitive.NewObjectID()
	cp := *s
	m.sessions[s.ID.Hex()] = &cp
	return s, nil
}

func (m *memStore) GetSession(_ context.Context, id string) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	cp := *s
	cp.Questions = append([]models.QuestionRecord(nil), s.Questions...)
	return &cp, nil
}

func (m *memStore) SaveAnswer(_ context.Context, id string, index int, q models.QuestionRecord) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	if s.CurrentIndex != index {
		return nil, models.ErrAnswerConflict
	}
	slot := &s.Questions[index]
	slot.Answer, slot.Score, slot.Feedback, slot.Behavior, slot.AnsweredAt = q.Answer, q.Score, q.Feedback, q.Behavior, q.AnsweredAt
	s.CurrentIndex++
	cp := *s
	cp.Questions = append([]models.QuestionRecord(nil), s.Questions...)
	return &cp, nil
}

func (m *memStore) SetBodyLanguage(_ context.Context, id, userID string, bl models.BodyLanguage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.UserID.Hex() != userID {
		return models.ErrSessionNotFound
	}
	s.BodyLanguage = &bl
	return nil
}

type fakeScorer struct {
	evaluateFn func(in scoring.AnswerInput) scoring.Evaluation
	inputs     []scoring.AnswerInput
}

func (f *fakeScorer) Evaluate(_ context.Context, in scoring.AnswerInput) scoring.Evaluation {
	f.inputs = append(f.inputs, in)
	return f.evaluateFn(in)
}

func startRequest(questions ...string) models.StartInterviewRequest {
	req := models.StartInterviewRequest{Role: "Backend Engineer"}
	for _, q := range questions {
		req.Questions = append(req.Questions, models.QuestionInput{Question: q, IdealAnswer: "ideal " + q})
	}
	return req
}

func TestStartCreatesSession(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeScorer{}, zap.NewNop())
	userID := primitive.NewObjectID().Hex()

	s, err := svc.Start(context.Background(), userID, startRequest(" q1 ", "q2"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalQuestions)
	assert.Equal(t, "q1", s.Questions[0].Question)
	assert.Equal(t, userID, s.UserID.Hex())

	_, err = svc.Start(context.Background(), "bad", startRequest("q1"))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestSubmitAnswerAdvances(t *testing.T) {
	store := newMemStore()
	scorer := &fakeScorer{evaluateFn: func(in scoring.AnswerInput) scoring.Evaluation {
		return scoring.Evaluation{Score: 7, Feedback: "good"}
	}}
	svc := NewService(store, scorer, nil)
	userID := primitive.NewObjectID().Hex()
	ctx := context.Background()

	s, err := svc.Start(ctx, userID, startRequest("q1", "q2"))
	require.NoError(t, err)
	id := s.ID.Hex()

	res, err := svc.SubmitAnswer(ctx, userID, models.SubmitAnswerRequest{SessionID: id, Answer: "a1", Behavior: &models.Behavior{Confident: 0.8}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.QuestionIndex)
	assert.Equal(t, 7, res.Score)
	assert.False(t, res.IsLastQuestion)
	require.NotNil(t, res.NextQuestion)
	assert.Equal(t, "q2", *res.NextQuestion)
	assert.Equal(t, "ideal q1", scorer.inputs[0].IdealAnswer)

	res, err = svc.SubmitAnswer(ctx, userID, models.SubmitAnswerRequest{SessionID: id, Answer: "a2"})
	require.NoError(t, err)
	assert.True(t, res.IsLastQuestion)
	assert.Nil(t, res.NextQuestion)
	assert.Equal(t, 2, res.AnsweredCount)

	_, err = svc.SubmitAnswer(ctx, userID, models.SubmitAnswerRequest{SessionID: id, Answer: "a3"})
	assert.ErrorIs(t, err, models.ErrSessionCompleted)

	stored, _ := store.GetSession(ctx, id)
	require.NotNil(t, stored.Questions[0].Behavior)
	assert.Equal(t, 0.8, stored.Questions[0].Behavior.Confident)
	assert.NotNil(t, stored.Questions[1].AnsweredAt)
}

func TestSubmitAnswerRejectsOtherUserAndFinalized(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, &fakeScorer{evaluateFn: func(scoring.AnswerInput) scoring.Evaluation { return scoring.Evaluation{} }}, nil)
	owner := primitive.NewObjectID().Hex()
	ctx := context.Background()

	s, err := svc.Start(ctx, owner, startRequest("q1"))
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, primitive.NewObjectID().Hex(), models.SubmitAnswerRequest{SessionID: s.ID.Hex(), Answer: "a"})
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	done := time.Now()
	store.sessions[s.ID.Hex()].FinalizedAt = &done
	_, err = svc.SubmitAnswer(ctx, owner, models.SubmitAnswerRequest{SessionID: s.ID.Hex(), Answer: "a"})
	assert.ErrorIs(t, err, models.ErrSessionCompleted)
}

func TestSubmitAnswerConflict(t *testing.T) {
	store := newMemStore()
	store.saveErr = models.ErrAnswerConflict
	svc := NewService(store, &fakeScorer{evaluateFn: func(scoring.AnswerInput) scoring.Evaluation { return scoring.Evaluation{Score: 3} }}, nil)
	owner := primitive.NewObjectID().Hex()

	s, err := svc.Start(context.Background(), owner, startRequest("q1"))
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(context.Background(), owner, models.SubmitAnswerRequest{SessionID: s.ID.Hex(), Answer: "a"})
	assert.ErrorIs(t, err, models.ErrAnswerConflict)
}

func TestBehavioralRoleSelectsVariant(t *testing.T) {
	store := newMemStore()
	scorer := &fakeScorer{evaluateFn: func(scoring.AnswerInput) scoring.Evaluation { return scoring.Evaluation{} }}
	svc := NewService(store, scorer, nil)
	owner := primitive.NewObjectID().Hex()

	req := startRequest("Tell me about a conflict")
	req.Role = "Behavioral Round"
	s, err := svc.Start(context.Background(), owner, req)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(context.Background(), owner, models.SubmitAnswerRequest{SessionID: s.ID.Hex(), Answer: "a"})
	require.NoError(t, err)
	assert.True(t, scorer.inputs[0].Behavioral)
}

func TestSaveBodyLanguage(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)
	owner := primitive.NewObjectID().Hex()
	s, err := svc.Start(context.Background(), owner, startRequest("q1"))
	require.NoError(t, err)

	f := func(v float64) *float64 { return &v }
	bl, err := svc.SaveBodyLanguage(context.Background(), owner, models.BodyLanguageRequest{
		SessionID:   s.ID.Hex(),
		EyeContact:  f(80),
		Engagement:  f(70),
		Attention:   f(40),
		Stability:   f(90),
		SampleCount: 12,
	})
	require.NoError(t, err)
	assert.Equal(t, "distracted", bl.DominantBehavior)
	assert.Equal(t, "distracted", store.sessions[s.ID.Hex()].BodyLanguage.DominantBehavior)

	_, err = svc.SaveBodyLanguage(context.Background(), primitive.NewObjectID().Hex(), models.BodyLanguageRequest{SessionID: s.ID.Hex()})
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestDominantBehavior(t *testing.T) {
	cases := []struct {
		eye, stability, attention float64
		want                      string
	}{
		{80, 80, 80, "confident"},
		{80, 80, 30, "distracted"},
		{40, 80, 80, "nervous"},
		{80, 40, 80, "nervous"},
		{30, 30, 30, "distracted"},
		{0, 80, 80, "confident"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DominantBehavior(tc.eye, tc.stability, tc.attention), "%+v", tc)
	}
}

func TestOverallScore(t *testing.T) {
	assert.Equal(t, 73, OverallScore(models.BodyLanguage{EyeContact: 80, Engagement: 70, Attention: 53, Stability: 90}))
}
