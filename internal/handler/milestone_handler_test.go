package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"milestone-service/internal/escrow"
	"milestone-service/internal/handler"
	"milestone-service/internal/httpserver"
	"milestone-service/internal/model"
	"milestone-service/internal/repository"
	milestonesvc "milestone-service/internal/service/milestone"
	"milestone-service/internal/workflow"
	"milestone-service/pkg/util"
)

const testSecret = "handler-test-secret"

type memStore struct {
	m *model.Milestone
}

func (s *memStore) Insert(_ context.Context, m *model.Milestone) error {
	s.m = m
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Milestone, error) {
	if s.m == nil || s.m.ID != id {
		return nil, repository.ErrMilestoneNotFound
	}
	copied := *s.m
	return &copied, nil
}

func (s *memStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]model.Milestone, error) {
	if s.m == nil || s.m.ProjectID != projectID {
		return nil, nil
	}
	return []model.Milestone{*s.m}, nil
}

func (s *memStore) InTransition(_ context.Context, id uuid.UUID, fn repository.TransitionFunc) error {
	if s.m == nil || s.m.ID != id {
		return repository.ErrMilestoneNotFound
	}
	working := *s.m
	if err := fn(&working, &memTx{m: &working}); err != nil {
		return err
	}
	s.m = &working
	return nil
}

type memTx struct {
	m *model.Milestone
}

func (t *memTx) SetStatus(_ context.Context, status workflow.Status, gate bool) error {
	t.m.Status = status
	t.m.SupervisorGate = gate
	return nil
}

func (t *memTx) SetDetails(_ context.Context, m *model.Milestone) error {
	*t.m = *m
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, _ string, _ any) error { return nil }
func (t *memTx) Delete(_ context.Context) error                      { return nil }

type memProjects struct {
	p *model.Project
}

func (s *memProjects) GetByID(_ context.Context, id uuid.UUID) (*model.Project, error) {
	if s.p == nil || s.p.ID != id {
		return nil, repository.ErrProjectNotFound
	}
	return s.p, nil
}

type stubLedger struct{}

func (stubLedger) Fund(_ context.Context, id uuid.UUID, amount int64, currency string) (*escrow.Receipt, error) {
	return &escrow.Receipt{Reference: "esc-1", MilestoneID: id, Operation: "fund", Amount: amount, Currency: currency, RecordedAt: time.Now()}, nil
}

func (stubLedger) Release(_ context.Context, id uuid.UUID) (*escrow.Receipt, error) {
	return &escrow.Receipt{Reference: "esc-2", MilestoneID: id, Operation: "release", RecordedAt: time.Now()}, nil
}

type testEnv struct {
	router  *gin.Engine
	store   *memStore
	ownerID uuid.UUID
	otherID uuid.UUID
}

func newTestEnv(t *testing.T, status workflow.Status, gate bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ownerID := uuid.New()
	assigneeID := uuid.New()
	project := &model.Project{ID: uuid.New(), OwnerID: ownerID, AssigneeID: &assigneeID, Title: "Lab rig"}
	m := &model.Milestone{
		ID:             uuid.New(),
		ProjectID:      project.ID,
		Title:          "Phase one",
		Amount:         1000,
		Currency:       "EUR",
		Status:         status,
		SupervisorGate: gate,
		Version:        1,
	}

	store := &memStore{m: m}
	svc := milestonesvc.NewService(store, &memProjects{p: project}, stubLedger{}, zap.NewNop())

	milestoneHandler := handler.NewMilestoneHandler(svc, zap.NewNop())
	notificationHandler := handler.NewNotificationHandler(nil, zap.NewNop())
	adminHandler := handler.NewAdminHandler(nil, zap.NewNop())

	router := httpserver.NewRouter(
		milestoneHandler,
		notificationHandler,
		adminHandler,
		testSecret,
		zap.NewNop(),
		nil,
		nil,
	)

	return &testEnv{router: router, store: store, ownerID: ownerID, otherID: assigneeID}
}

func (e *testEnv) do(t *testing.T, method, path string, userID uuid.UUID, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		token, err := util.GenerateJWT(userID, role, testSecret)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, _ := body["code"].(string)
	return code
}

func TestCommandWithoutTokenIsUnauthorized(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/accept", uuid.Nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAcceptHappyPath(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/accept", env.ownerID, "organization")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, workflow.StatusAccepted, env.store.m.Status)
}

func TestForbiddenRoleMapsTo403(t *testing.T) {
	env := newTestEnv(t, workflow.StatusFinalized, false)
	// The assignee has no funding permission anywhere in the matrix.
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/fund", env.otherID, "participant")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission_denied", errorCode(t, w))
}

func TestInvalidTransitionMapsTo409(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/fund", env.ownerID, "organization")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", errorCode(t, w))
}

func TestGateViolationMapsTo409(t *testing.T) {
	env := newTestEnv(t, workflow.StatusPartnerReview, false)
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/approve-release", env.ownerID, "organization")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "gate_not_satisfied", errorCode(t, w))
}

func TestUnknownMilestoneMapsTo404(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/milestones/"+uuid.NewString()+"/accept", env.ownerID, "organization")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))
}

func TestUnknownRoleTokenIsForbidden(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/milestones/"+env.store.m.ID.String()+"/accept", env.ownerID, "superuser")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPermissionsEndpoint(t *testing.T) {
	env := newTestEnv(t, workflow.StatusPartnerReview, true)
	w := env.do(t, http.MethodGet, "/milestones/"+env.store.m.ID.String()+"/permissions", env.ownerID, "organization")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Permissions workflow.Permissions `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Permissions.CanApproveAndRelease)
	assert.False(t, body.Permissions.CanFundEscrow)
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t, workflow.StatusProposed, false)
	w := env.do(t, http.MethodPost, "/admin/outbox/replay-failed", env.ownerID, "organization")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
