// Package recruiter resolves the recruiter behind a vacancy from the handle mentioned in its text.
package recruiter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/tg-responder/internal/model"
)

// DefaultIgnore lists handles of job boards that repost vacancies.
var DefaultIgnore = []string{"best_itjob", "it_rab", "freeIT_job"}

var handlePattern = regexp.MustCompile(`@([a-zA-Z0-9_]{5,32})`)

// Store persists recruiters. CreateRecruiter must fail with model.ErrConflict
// when a recruiter with the same external id already exists.
type Store interface {
	RecruiterByHandle(ctx context.Context, handle string) (*model.Recruiter, error)
	RecruiterByExternalID(ctx context.Context, externalID int64) (*model.Recruiter, error)
	CreateRecruiter(ctx context.Context, r *model.Recruiter) (*model.Recruiter, error)
	UpdateRecruiterHandle(ctx context.Context, id int64, handle string) error
}

// Directory looks identities up on the chat transport.
type Directory interface {
	LookupIdentity(ctx context.Context, handle string) (*model.Identity, error)
}

type Resolver struct {
	store     Store
	directory Directory
	ignore    map[string]bool
	logger    *zap.Logger
}

func New(store Store, directory Directory, ignore []string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	set := make(map[string]bool, len(ignore))
	for _, handle := range ignore {
		handle = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
		if handle != "" {
			set[handle] = true
		}
	}

	return &Resolver{
		store:     store,
		directory: directory,
		ignore:    set,
		logger:    logger,
	}
}

// ExtractHandle returns the first mentioned handle that is not ignored, without the "@".
func (r *Resolver) ExtractHandle(text string) string {
	for _, match := range handlePattern.FindAllStringSubmatch(text, -1) {
		if !r.ignore[strings.ToLower(match[1])] {
			return match[1]
		}
	}
	return ""
}

// Resolve returns the recruiter mentioned in text or nil.
// Transport failures are logged and yield nil; only storage errors are returned.
func (r *Resolver) Resolve(ctx context.Context, text string) (*model.Recruiter, error) {
	handle := r.ExtractHandle(text)
	if handle == "" {
		return nil, nil
	}

	log := r.logger.With(zap.String("handle", handle))

	known, err := r.store.RecruiterByHandle(ctx, handle)
	switch {
	case err == nil:
		return known, nil
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("looking up recruiter @%s: %w", handle, err)
	}

	identity, err := r.directory.LookupIdentity(ctx, handle)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			log.Warn("user not found")
		} else {
			log.Warn("failed to get user info", zap.Error(err))
		}
		return nil, nil
	}

	if identity.Handle == "" {
		identity.Handle = handle
	}

	return r.upsert(ctx, identity, log)
}

func (r *Resolver) upsert(ctx context.Context, identity *model.Identity, log *zap.Logger) (*model.Recruiter, error) {
	existing, err := r.store.RecruiterByExternalID(ctx, identity.ID)
	switch {
	case err == nil:
		return r.refreshHandle(ctx, existing, identity.Handle, log)
	case !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("looking up recruiter %d: %w", identity.ID, err)
	}

	created, err := r.store.CreateRecruiter(ctx, &model.Recruiter{
		ExternalID: identity.ID,
		Handle:     identity.Handle,
		Phone:      identity.Phone,
		FirstName:  identity.FirstName,
		LastName:   identity.LastName,
	})
	if errors.Is(err, model.ErrConflict) {
		// Someone else resolved the same person first.
		existing, err = r.store.RecruiterByExternalID(ctx, identity.ID)
		if err != nil {
			return nil, fmt.Errorf("re-reading recruiter %d after conflict: %w", identity.ID, err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating recruiter @%s: %w", identity.Handle, err)
	}

	log.Info("added new recruiter", zap.Int64("recruiter_id", created.ID))
	return created, nil
}

func (r *Resolver) refreshHandle(ctx context.Context, rec *model.Recruiter, handle string, log *zap.Logger) (*model.Recruiter, error) {
	if rec.Handle == handle {
		return rec, nil
	}

	if err := r.store.UpdateRecruiterHandle(ctx, rec.ID, handle); err != nil {
		return nil, fmt.Errorf("refreshing handle of recruiter %d: %w", rec.ID, err)
	}

	log.Info("recruiter handle changed", zap.String("previous", rec.Handle))
	rec.Handle = handle
	return rec, nil
}
