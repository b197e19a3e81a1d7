// Package service runs the claim workflow: it loads claims from the store,
// applies lifecycle and evidence operations, and writes them back.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kylejryan/disaster-relief-claims/internal/claimid"
	"github.com/kylejryan/disaster-relief-claims/internal/ddb"
	"github.com/kylejryan/disaster-relief-claims/internal/models"
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"

	"github.com/sirupsen/logrus"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ErrUnrecognizedKey is returned for artifact keys outside the evidence layout.
var ErrUnrecognizedKey = errors.New("not an evidence artifact key")

// ErrOrphanArtifact is returned when an uploaded artifact has no live evidence
// record; the artifact has been deleted.
var ErrOrphanArtifact = errors.New("artifact has no owning evidence")

// Store is the claim persistence contract.
type Store interface {
	Create(ctx context.Context, c *models.Claim) error
	Exists(ctx context.Context, id string) (bool, error)
	Load(ctx context.Context, id string) (*models.Claim, error)
	Save(ctx context.Context, c *models.Claim, expectedRevision int64) error
	Delete(ctx context.Context, c *models.Claim) error
	ListByDisaster(ctx context.Context, disasterID string, limit int32) ([]models.ClaimSummary, error)
}

// Artifacts stores the files behind evidence items.
type Artifacts interface {
	PresignUpload(ctx context.Context, ev models.Evidence) (s3io.Upload, error)
	Delete(ctx context.Context, keys ...string) error
}

// Service coordinates store, artifacts and the claim aggregate.
type Service struct {
	Store      Store
	Artifacts  Artifacts
	Log        logrus.FieldLogger
	Clock      func() time.Time
	IDAttempts int
}

// Submit opens a claim with an id that is free in the store.
func (s *Service) Submit(ctx context.Context, in models.ClaimInput, actor string) (*models.Claim, error) {
	if err := models.ValidateClaimInput(in); err != nil {
		return nil, err
	}
	id, err := claimid.Unique(ctx, in.DisasterID, s.Store.Exists, s.IDAttempts)
	if err != nil {
		return nil, err
	}
	opts := []models.Option{models.WithID(id)}
	if s.Clock != nil {
		opts = append(opts, models.WithClock(s.Clock))
	}
	c, err := models.NewClaim(in, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, c); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{
		"claim_id":    c.ID(),
		"disaster_id": c.DisasterID(),
		"actor":       actor,
	}).Info("claim submitted")
	return c, nil
}

// Get loads one claim.
func (s *Service) Get(ctx context.Context, id string) (*models.Claim, error) {
	return s.load(ctx, id)
}

// load reads a claim and points it at the service clock.
func (s *Service) load(ctx context.Context, id string) (*models.Claim, error) {
	c, err := s.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.UseClock(s.Clock)
	return c, nil
}

// ListByDisaster returns claim summaries for a disaster. A non-positive limit
// means DefaultListLimit; larger limits are capped at MaxListLimit.
func (s *Service) ListByDisaster(ctx context.Context, disasterID string, limit int) ([]models.ClaimSummary, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.Store.ListByDisaster(ctx, disasterID, int32(limit))
}

// Transition moves a stored claim to target.
func (s *Service) Transition(ctx context.Context, id string, target models.ClaimStatus, actor string) (*models.Claim, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rev, from := c.Revision(), c.Status()
	if err := c.UpdateStatus(target); err != nil {
		return nil, err
	}
	if err := s.Store.Save(ctx, c, rev); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{
		"claim_id": id,
		"actor":    actor,
		"from":     from,
		"to":       target,
	}).Info("claim status changed")
	return c, nil
}

// AddEvidence attaches a new evidence item to a claim and returns it with a
// presigned upload for its artifact.
func (s *Service) AddEvidence(ctx context.Context, id string, in models.EvidenceInput, actor string) (models.Evidence, s3io.Upload, error) {
	if err := models.ValidateEvidenceInput(in); err != nil {
		return models.Evidence{}, s3io.Upload{}, err
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return models.Evidence{}, s3io.Upload{}, err
	}
	rev := c.Revision()
	added, err := c.AddEvidence(in, models.WithArtifactKey(s3io.BuildKey))
	if err != nil {
		return models.Evidence{}, s3io.Upload{}, err
	}
	// Sign before saving so a signing failure leaves the store untouched.
	upload, err := s.Artifacts.PresignUpload(ctx, added)
	if err != nil {
		return models.Evidence{}, s3io.Upload{}, err
	}
	if err := s.Store.Save(ctx, c, rev); err != nil {
		return models.Evidence{}, s3io.Upload{}, err
	}
	s.Log.WithFields(logrus.Fields{
		"claim_id":    id,
		"evidence_id": added.ID,
		"actor":       actor,
	}).Info("evidence added")
	return added, upload, nil
}

// RemoveEvidence destroys an evidence item and its artifact.
func (s *Service) RemoveEvidence(ctx context.Context, id, evidenceID, actor string) error {
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	rev := c.Revision()
	removed, err := c.RemoveEvidence(evidenceID)
	if err != nil {
		return err
	}
	if err := s.Store.Save(ctx, c, rev); err != nil {
		return err
	}
	log := s.Log.WithFields(logrus.Fields{
		"claim_id":    id,
		"evidence_id": evidenceID,
		"actor":       actor,
	})
	log.Info("evidence removed")
	s.deleteArtifacts(ctx, log, removed.S3Key)
	return nil
}

// ConfirmUpload records that the artifact at key has landed in storage.
// An artifact whose evidence no longer exists is deleted and ErrOrphanArtifact
// is returned.
func (s *Service) ConfirmUpload(ctx context.Context, key string, sizeBytes int64, etag string) (models.Evidence, error) {
	claimID, evidenceID, ok := s3io.ParseKey(key)
	if !ok {
		return models.Evidence{}, fmt.Errorf("%w: %s", ErrUnrecognizedKey, key)
	}
	log := s.Log.WithFields(logrus.Fields{"claim_id": claimID, "evidence_id": evidenceID, "s3_key": key})

	c, err := s.load(ctx, claimID)
	if errors.Is(err, ddb.ErrNotFound) {
		return models.Evidence{}, s.orphan(ctx, log, key)
	}
	if err != nil {
		return models.Evidence{}, err
	}
	ev, ok := c.Evidence(evidenceID)
	if !ok || ev.S3Key != key {
		return models.Evidence{}, s.orphan(ctx, log, key)
	}
	if ev.Uploaded() && ev.ETag == etag {
		return ev, nil
	}

	rev := c.Revision()
	ev, err = c.RecordEvidenceUpload(evidenceID, sizeBytes, etag)
	if err != nil {
		return models.Evidence{}, err
	}
	if err := s.Store.Save(ctx, c, rev); err != nil {
		return models.Evidence{}, err
	}
	log.WithField("size_bytes", sizeBytes).Info("evidence upload confirmed")
	return ev, nil
}

// Delete removes a claim, all its evidence records and their artifacts.
func (s *Service) Delete(ctx context.Context, id, actor string) error {
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(c.Evidences()))
	for _, e := range c.Evidences() {
		keys = append(keys, e.S3Key)
	}
	if err := s.Store.Delete(ctx, c); err != nil {
		return err
	}
	log := s.Log.WithFields(logrus.Fields{"claim_id": id, "actor": actor, "evidence_count": len(keys)})
	log.Info("claim deleted")
	s.deleteArtifacts(ctx, log, keys...)
	return nil
}

func (s *Service) orphan(ctx context.Context, log logrus.FieldLogger, key string) error {
	log.Warn("deleting artifact with no owning evidence")
	s.deleteArtifacts(ctx, log, key)
	return fmt.Errorf("%w: %s", ErrOrphanArtifact, key)
}

// deleteArtifacts runs after the records are gone, so a failure only leaves
// unreachable objects behind; it is logged rather than returned.
func (s *Service) deleteArtifacts(ctx context.Context, log logrus.FieldLogger, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.Artifacts.Delete(ctx, keys...); err != nil {
		log.WithError(err).Error("artifact clean-up failed")
	}
}
