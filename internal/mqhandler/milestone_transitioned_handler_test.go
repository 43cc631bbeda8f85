package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "milestone-service/contracts/mq"
	"milestone-service/internal/model"
	"milestone-service/internal/workflow"
)

type fakeResolver struct {
	proj *model.Project
}

func (f *fakeResolver) GetByID(_ context.Context, _ uuid.UUID) (*model.Project, error) {
	return f.proj, nil
}

type fakeNotifStore struct {
	inserted []model.Notification
	err      error
}

func (f *fakeNotifStore) Insert(_ context.Context, n *model.Notification) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, *n)
	return int64(len(f.inserted)), nil
}

type fakeDeduper struct {
	held     map[string]bool
	released []string
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, key string) bool {
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	k := handler + "/" + key
	if f.held[k] {
		return false
	}
	f.held[k] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, key string) {
	k := handler + "/" + key
	delete(f.held, k)
	f.released = append(f.released, k)
}

func handoffEvent(milestoneID, projectID uuid.UUID) mqcontracts.MilestoneTransitionedPayload {
	return mqcontracts.MilestoneTransitionedPayload{
		EventID:     uuid.New(),
		MilestoneID: milestoneID,
		ProjectID:   projectID,
		Title:       "Phase one",
		OldStatus:   string(workflow.StatusSubmitted),
		NewStatus:   string(workflow.StatusSupervisorReview),
		OccurredAt:  time.Now().UTC(),
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func testProject(withAssignee bool) *model.Project {
	p := &model.Project{ID: uuid.New(), OwnerID: uuid.New(), Title: "Bridge survey"}
	if withAssignee {
		id := uuid.New()
		p.AssigneeID = &id
	}
	return p
}

func roles(rcpts []recipient) []workflow.Role {
	out := make([]workflow.Role, 0, len(rcpts))
	for _, r := range rcpts {
		out = append(out, r.role)
	}
	return out
}

func TestRepeatedHandoffBothNotify(t *testing.T) {
	// A resubmission replays the same SUBMITTED to SUPERVISOR_REVIEW pair
	// for the same milestone; each occurrence is a distinct event and
	// must fan out on its own.
	proj := testProject(true)
	store := &fakeNotifStore{}
	h := NewMilestoneTransitionedHandler(&fakeResolver{proj: proj}, store, &fakeDeduper{}, zap.NewNop())

	milestoneID := uuid.New()
	first := handoffEvent(milestoneID, proj.ID)
	second := handoffEvent(milestoneID, proj.ID)
	assert.NotEqual(t, eventDedupeKey(first), eventDedupeKey(second))

	require.NoError(t, h.Handle(context.Background(), mustMarshal(t, first)))
	require.NoError(t, h.Handle(context.Background(), mustMarshal(t, second)))

	// Owner and supervisor per handoff, twice over.
	assert.Len(t, store.inserted, 4)
}

func TestRedeliveredEventIsSuppressed(t *testing.T) {
	proj := testProject(true)
	store := &fakeNotifStore{}
	h := NewMilestoneTransitionedHandler(&fakeResolver{proj: proj}, store, &fakeDeduper{}, zap.NewNop())

	ev := handoffEvent(uuid.New(), proj.ID)
	require.NoError(t, h.Handle(context.Background(), mustMarshal(t, ev)))
	require.NoError(t, h.Handle(context.Background(), mustMarshal(t, ev)))

	assert.Len(t, store.inserted, 2, "the redelivery must not write a second batch")
}

func TestInsertFailureFreesDedupeSlot(t *testing.T) {
	proj := testProject(true)
	store := &fakeNotifStore{err: errors.New("connection reset")}
	ded := &fakeDeduper{}
	h := NewMilestoneTransitionedHandler(&fakeResolver{proj: proj}, store, ded, zap.NewNop())

	ev := handoffEvent(uuid.New(), proj.ID)
	require.Error(t, h.Handle(context.Background(), mustMarshal(t, ev)), "a failed write requeues the message")
	assert.Len(t, ded.released, 1, "the slot is freed so the redelivery can retry")

	// The redelivery succeeds once the store recovers.
	store.err = nil
	require.NoError(t, h.Handle(context.Background(), mustMarshal(t, ev)))
	assert.Len(t, store.inserted, 2)
}

func TestMalformedPayloadIsAckedAndDropped(t *testing.T) {
	h := NewMilestoneTransitionedHandler(&fakeResolver{}, &fakeNotifStore{}, &fakeDeduper{}, zap.NewNop())
	assert.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"milestone_id":`)))
}

func TestAudienceForSubmission(t *testing.T) {
	proj := testProject(true)
	rcpts := audienceFor(workflow.StatusSupervisorReview, proj)
	assert.ElementsMatch(t, []workflow.Role{workflow.RoleOrganization, workflow.RoleSupervisor}, roles(rcpts))
}

func TestAudienceForChangesRequested(t *testing.T) {
	proj := testProject(true)
	rcpts := audienceFor(workflow.StatusChangesRequested, proj)
	assert.ElementsMatch(t, []workflow.Role{workflow.RoleParticipant}, roles(rcpts))
	assert.Equal(t, proj.AssigneeID, rcpts[0].userID)

	// Without an assignee there is nobody to tell.
	assert.Empty(t, audienceFor(workflow.StatusChangesRequested, testProject(false)))
}

func TestAudienceForRelease(t *testing.T) {
	proj := testProject(true)
	rcpts := audienceFor(workflow.StatusReleased, proj)
	assert.ElementsMatch(t, []workflow.Role{workflow.RoleOrganization, workflow.RoleParticipant}, roles(rcpts))
}

func TestAudienceForDisputeIncludesOversight(t *testing.T) {
	proj := testProject(true)
	rcpts := audienceFor(workflow.StatusDisputed, proj)
	assert.ElementsMatch(t, []workflow.Role{
		workflow.RoleOrganization,
		workflow.RoleParticipant,
		workflow.RoleSupervisor,
		workflow.RoleUniversity,
	}, roles(rcpts))
}

func TestSupervisorRecipientIsRoleAddressed(t *testing.T) {
	proj := testProject(true)
	for _, r := range audienceFor(workflow.StatusSupervisorReview, proj) {
		if r.role == workflow.RoleSupervisor {
			assert.Nil(t, r.userID, "supervisor notifications are addressed to the role")
		}
	}
}

func TestComposeMessage(t *testing.T) {
	p := mqcontracts.MilestoneTransitionedPayload{
		MilestoneID: uuid.New(),
		Title:       "Phase one",
		OldStatus:   string(workflow.StatusPartnerReview),
		NewStatus:   string(workflow.StatusReleased),
		OccurredAt:  time.Now(),
	}
	assert.Equal(t, `Funds for milestone "Phase one" were released`, composeMessage(p))

	p.NewStatus = "SOMETHING_NEW"
	assert.Equal(t, `Milestone "Phase one" moved to SOMETHING_NEW`, composeMessage(p))
}
