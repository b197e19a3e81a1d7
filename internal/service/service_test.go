package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/disaster-relief-claims/internal/claimid"
	"github.com/kylejryan/disaster-relief-claims/internal/ddb"
	"github.com/kylejryan/disaster-relief-claims/internal/models"
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"
)

// memStore keeps snapshots by id and enforces revisions like the DynamoDB store.
type memStore struct {
	mu        sync.Mutex
	claims    map[string]models.ClaimView
	taken     map[string]bool
	saveErr   error
	saves     int
	lastLimit int32
}

func newMemStore() *memStore {
	return &memStore{claims: map[string]models.ClaimView{}, taken: map[string]bool{}}
}

func (m *memStore) Create(_ context.Context, c *models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[c.ID()]; ok {
		return ddb.ErrDuplicateID
	}
	m.claims[c.ID()] = c.View()
	return nil
}

func (m *memStore) Exists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[id]
	return ok || m.taken[id], nil
}

func (m *memStore) Load(_ context.Context, id string) (*models.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ddb.ErrNotFound, id)
	}
	return models.Restore(v)
}

func (m *memStore) Save(_ context.Context, c *models.Claim, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	v, ok := m.claims[c.ID()]
	if !ok || v.Revision != expected {
		return ddb.ErrConflict
	}
	m.claims[c.ID()] = c.View()
	return nil
}

func (m *memStore) Delete(_ context.Context, c *models.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.claims[c.ID()]
	if !ok || v.Revision != c.Revision() {
		return ddb.ErrConflict
	}
	delete(m.claims, c.ID())
	return nil
}

func (m *memStore) ListByDisaster(_ context.Context, disasterID string, limit int32) ([]models.ClaimSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []models.ClaimSummary
	for _, v := range m.claims {
		if v.DisasterID != disasterID {
			continue
		}
		c, err := models.Restore(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmissionDate.After(out[j].SubmissionDate) })
	return out, nil
}

type fakeArtifacts struct {
	deleted    []string
	presignErr error
	deleteErr  error
}

func (f *fakeArtifacts) PresignUpload(_ context.Context, ev models.Evidence) (s3io.Upload, error) {
	if f.presignErr != nil {
		return s3io.Upload{}, f.presignErr
	}
	return s3io.Upload{
		URL:       "https://evidence.example/" + ev.S3Key,
		Headers:   s3io.UploadHeaders(ev.ClaimID, ev.ID, ev.ContentType),
		ExpiresIn: time.Minute,
	}, nil
}

func (f *fakeArtifacts) Delete(_ context.Context, keys ...string) error {
	f.deleted = append(f.deleted, keys...)
	return f.deleteErr
}

type fixture struct {
	svc       *Service
	store     *memStore
	artifacts *fakeArtifacts
	logs      *logtest.Hook
	ctx       context.Context
}

func newFixture() *fixture {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	store := newMemStore()
	arts := &fakeArtifacts{}
	now := time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)
	return &fixture{
		svc: &Service{
			Store:     store,
			Artifacts: arts,
			Log:       logger,
			Clock: func() time.Time {
				now = now.Add(time.Second)
				return now
			},
			IDAttempts: 3,
		},
		store:     store,
		artifacts: arts,
		logs:      hook,
		ctx:       context.Background(),
	}
}

func claimInput(disasterID string) models.ClaimInput {
	lat, lng := 26.64, -81.87
	return models.ClaimInput{
		DisasterID: disasterID,
		Claimant:   models.Claimant{Name: "Lee Moran", Email: "lee@example.org", Phone: "239-555-0188"},
		Property:   models.Property{Address: "9 Gulf Dr, Fort Myers FL", PostalCode: "33901"},
		Latitude:   &lat,
		Longitude:  &lng,
	}
}

func photoInput(name string) models.EvidenceInput {
	return models.EvidenceInput{Kind: models.EvidencePhoto, Filename: name + ".jpg", ContentType: "image/jpeg"}
}

func (f *fixture) submit(t *testing.T) *models.Claim {
	t.Helper()
	c, err := f.svc.Submit(f.ctx, claimInput("IAN-2022"), "intake-clerk")
	require.NoError(t, err)
	return c
}

func TestSubmit(t *testing.T) {
	f := newFixture()
	c := f.submit(t)

	assert.True(t, claimid.Belongs(c.ID(), "IAN-2022"))
	assert.Equal(t, models.StatusSubmitted, c.Status())
	stored, err := f.store.Load(f.ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, c.View(), stored.View())

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "claim submitted", entry.Message)
	assert.Equal(t, c.ID(), entry.Data["claim_id"])
	assert.Equal(t, "intake-clerk", entry.Data["actor"])
}

func TestSubmit_ValidationCreatesNothing(t *testing.T) {
	f := newFixture()
	in := claimInput("IAN-2022")
	in.Claimant.Email = ""

	_, err := f.svc.Submit(f.ctx, in, "intake-clerk")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "claimantEmail", ve.Field)
	assert.Empty(t, f.store.claims)
}

func TestSubmit_AllIDsTaken(t *testing.T) {
	f := newFixture()
	f.svc.Store = &alwaysTaken{memStore: f.store}

	_, err := f.svc.Submit(f.ctx, claimInput("IAN-2022"), "intake-clerk")
	assert.ErrorIs(t, err, claimid.ErrExhausted)
	assert.Empty(t, f.store.claims)
}

type alwaysTaken struct{ *memStore }

func (alwaysTaken) Exists(context.Context, string) (bool, error) { return true, nil }

func TestTransition(t *testing.T) {
	f := newFixture()
	c := f.submit(t)

	got, err := f.svc.Transition(f.ctx, c.ID(), models.StatusUnderReview, "adjuster-7")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, got.Status())

	stored, err := f.store.Load(f.ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, stored.Status())

	entry := f.logs.LastEntry()
	assert.Equal(t, models.StatusSubmitted, entry.Data["from"])
	assert.Equal(t, models.StatusUnderReview, entry.Data["to"])
}

func TestLoadedClaimsUseServiceClock(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	submitted := c.SubmissionDate()
	require.Equal(t, time.Date(2024, 10, 10, 9, 0, 1, 0, time.UTC), submitted)

	got, err := f.svc.Transition(f.ctx, c.ID(), models.StatusUnderReview, "adjuster-7")
	require.NoError(t, err)
	assert.Equal(t, submitted.Add(time.Second), got.LastUpdated())

	ev, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("gutter"), "claimant")
	require.NoError(t, err)
	assert.Equal(t, submitted.Add(2*time.Second), ev.AddedAt)

	stored, err := f.store.Load(f.ctx, c.ID())
	require.NoError(t, err)
	assert.Equal(t, submitted, stored.SubmissionDate())
	assert.Equal(t, submitted.Add(3*time.Second), stored.LastUpdated())

	confirmed, err := f.svc.ConfirmUpload(f.ctx, ev.S3Key, 64, "etag-9")
	require.NoError(t, err)
	assert.Equal(t, submitted.Add(4*time.Second), confirmed.UploadedAt)
}

func TestTransition_Invalid(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	saves := f.store.saves

	_, err := f.svc.Transition(f.ctx, c.ID(), models.StatusPaymentProcessing, "adjuster-7")
	assert.True(t, models.IsInvalidTransition(err))
	assert.Equal(t, saves, f.store.saves)

	stored, _ := f.store.Load(f.ctx, c.ID())
	assert.Equal(t, models.StatusSubmitted, stored.Status())
}

func TestTransition_NotFoundAndConflict(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Transition(f.ctx, "IAN-2022-00000000", models.StatusUnderReview, "a")
	assert.ErrorIs(t, err, ddb.ErrNotFound)

	c := f.submit(t)
	f.store.saveErr = ddb.ErrConflict
	_, err = f.svc.Transition(f.ctx, c.ID(), models.StatusUnderReview, "a")
	assert.ErrorIs(t, err, ddb.ErrConflict)
}

func TestAddEvidence(t *testing.T) {
	f := newFixture()
	c := f.submit(t)

	ev, up, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("roof"), "claimant")
	require.NoError(t, err)
	assert.Equal(t, c.ID(), ev.ClaimID)
	assert.Equal(t, s3io.BuildKey(c.ID(), ev.ID, "roof.jpg"), ev.S3Key)
	assert.True(t, strings.HasSuffix(up.URL, ev.S3Key))
	assert.Equal(t, ev.ID, up.Headers["x-amz-meta-evidence_id"])

	stored, _ := f.store.Load(f.ctx, c.ID())
	require.Len(t, stored.Evidences(), 1)
	assert.Equal(t, ev.ID, stored.Evidences()[0].ID)
}

func TestAddEvidence_Failures(t *testing.T) {
	f := newFixture()
	c := f.submit(t)

	_, _, err := f.svc.AddEvidence(f.ctx, c.ID(), models.EvidenceInput{Kind: models.EvidencePhoto, Filename: "x.exe", ContentType: "image/png"}, "claimant")
	assert.True(t, models.IsValidation(err))

	f.artifacts.presignErr = errors.New("signing failed")
	_, _, err = f.svc.AddEvidence(f.ctx, c.ID(), photoInput("porch"), "claimant")
	assert.ErrorIs(t, err, f.artifacts.presignErr)

	stored, _ := f.store.Load(f.ctx, c.ID())
	assert.Empty(t, stored.Evidences(), "nothing saved when signing fails")
}

func TestRemoveEvidence(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	ev, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("shed"), "claimant")
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveEvidence(f.ctx, c.ID(), ev.ID, "claimant"))
	stored, _ := f.store.Load(f.ctx, c.ID())
	assert.Empty(t, stored.Evidences())
	assert.Equal(t, []string{ev.S3Key}, f.artifacts.deleted)

	err = f.svc.RemoveEvidence(f.ctx, c.ID(), ev.ID, "claimant")
	assert.ErrorIs(t, err, models.ErrEvidenceNotFound)
}

func TestRemoveEvidence_ArtifactFailureIsLogged(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	ev, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("shed"), "claimant")
	require.NoError(t, err)
	f.artifacts.deleteErr = errors.New("access denied")

	require.NoError(t, f.svc.RemoveEvidence(f.ctx, c.ID(), ev.ID, "claimant"))
	entry := f.logs.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "artifact clean-up failed", entry.Message)
}

func TestConfirmUpload(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	ev, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("attic"), "claimant")
	require.NoError(t, err)

	got, err := f.svc.ConfirmUpload(f.ctx, ev.S3Key, 1024, "etag-1")
	require.NoError(t, err)
	assert.True(t, got.Uploaded())
	assert.Equal(t, int64(1024), got.SizeBytes)

	saves := f.store.saves
	again, err := f.svc.ConfirmUpload(f.ctx, ev.S3Key, 1024, "etag-1")
	require.NoError(t, err)
	assert.Equal(t, got.ETag, again.ETag)
	assert.Equal(t, saves, f.store.saves, "repeat notification is a no-op")
}

func TestConfirmUpload_Orphans(t *testing.T) {
	f := newFixture()

	_, err := f.svc.ConfirmUpload(f.ctx, "user/x/y.txt", 1, "e")
	assert.ErrorIs(t, err, ErrUnrecognizedKey)
	assert.Empty(t, f.artifacts.deleted)

	gone := s3io.BuildKey("IAN-2022-00000000", "01HZX0000000000000000000AB", "a.jpg")
	_, err = f.svc.ConfirmUpload(f.ctx, gone, 1, "e")
	assert.ErrorIs(t, err, ErrOrphanArtifact)
	assert.Equal(t, []string{gone}, f.artifacts.deleted)

	c := f.submit(t)
	unknown := s3io.BuildKey(c.ID(), "01HZX0000000000000000000AB", "a.jpg")
	_, err = f.svc.ConfirmUpload(f.ctx, unknown, 1, "e")
	assert.ErrorIs(t, err, ErrOrphanArtifact)
}

func TestDelete(t *testing.T) {
	f := newFixture()
	c := f.submit(t)
	a, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("one"), "claimant")
	require.NoError(t, err)
	b, _, err := f.svc.AddEvidence(f.ctx, c.ID(), photoInput("two"), "claimant")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(f.ctx, c.ID(), "supervisor"))

	_, err = f.svc.Get(f.ctx, c.ID())
	assert.ErrorIs(t, err, ddb.ErrNotFound)
	assert.ElementsMatch(t, []string{a.S3Key, b.S3Key}, f.artifacts.deleted)

	// Evidence is unreachable once its claim is gone.
	_, err = f.svc.ConfirmUpload(f.ctx, a.S3Key, 1, "e")
	assert.ErrorIs(t, err, ErrOrphanArtifact)
}

func TestListByDisaster(t *testing.T) {
	f := newFixture()
	first := f.submit(t)
	second := f.submit(t)
	_, err := f.svc.Submit(f.ctx, claimInput("HELENE-2024"), "intake-clerk")
	require.NoError(t, err)

	got, err := f.svc.ListByDisaster(f.ctx, "IAN-2022", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID(), got[0].ID)
	assert.Equal(t, first.ID(), got[1].ID)
	assert.Equal(t, int32(DefaultListLimit), f.store.lastLimit)

	_, err = f.svc.ListByDisaster(f.ctx, "IAN-2022", 5000)
	require.NoError(t, err)
	assert.Equal(t, int32(MaxListLimit), f.store.lastLimit)
}
