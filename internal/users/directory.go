// Package users indexes the user lists of the source and target instances so
// owner and access-rule references can be translated between them. Email is
// the only identity shared across instances.
package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/resource"
)

// Lister fetches a platform's user list
type Lister interface {
	ListUsers(ctx context.Context) ([]resource.User, error)
}

// Index maps emails to platform-local user ids and back
type Index struct {
	byEmail map[string]string
	byID    map[string]string
}

// NewIndex builds an index. Entries without id or email are ignored; on
// duplicate emails the first entry wins.
func NewIndex(list []resource.User) *Index {
	idx := &Index{
		byEmail: make(map[string]string, len(list)),
		byID:    make(map[string]string, len(list)),
	}
	for _, u := range list {
		email := normalizeEmail(u.Email)
		if u.ID == "" || email == "" {
			continue
		}
		if _, ok := idx.byEmail[email]; !ok {
			idx.byEmail[email] = u.ID
		}
		idx.byID[u.ID] = email
	}
	return idx
}

// Len returns the number of indexed users
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byID)
}

// IDOf returns the user id registered for email
func (i *Index) IDOf(email string) (string, bool) {
	if i == nil {
		return "", false
	}
	id, ok := i.byEmail[normalizeEmail(email)]
	return id, ok
}

// EmailOf returns the normalized email of user id
func (i *Index) EmailOf(id string) (string, bool) {
	if i == nil {
		return "", false
	}
	email, ok := i.byID[id]
	return email, ok
}

// Directory is the pair of indexes built for one run
type Directory struct {
	Source *Index
	Target *Index
	// DefaultOwnerID is used when an owner cannot be mapped. Empty means
	// unmapped owners are omitted.
	DefaultOwnerID string
}

// Load fetches both user lists concurrently. A side that fails to load
// yields an empty index and a warning; remapping then degrades to the
// default owner or omission. Only an authentication failure is returned as
// an error.
func Load(ctx context.Context, source, target Lister, defaultOwnerID string) (*Directory, []error, error) {
	var srcUsers, tgtUsers []resource.User
	var srcErr, tgtErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srcUsers, srcErr = source.ListUsers(gctx)
		if client.IsFatal(srcErr) {
			return srcErr
		}
		return nil
	})
	g.Go(func() error {
		tgtUsers, tgtErr = target.ListUsers(gctx)
		if client.IsFatal(tgtErr) {
			return tgtErr
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var warnings []error
	if srcErr != nil {
		warnings = append(warnings, fmt.Errorf("source users unavailable, owners fall back to default: %w", srcErr))
		srcUsers = nil
	}
	if tgtErr != nil {
		warnings = append(warnings, fmt.Errorf("target users unavailable, owners fall back to default: %w", tgtErr))
		tgtUsers = nil
	}

	return &Directory{
		Source:         NewIndex(srcUsers),
		Target:         NewIndex(tgtUsers),
		DefaultOwnerID: defaultOwnerID,
	}, warnings, nil
}

// RemapOwner translates a source owner id to the target instance. It returns
// the target id when the owner's email exists in the target, otherwise the
// default owner when one is configured. ok is false when the owner field
// must be omitted.
func RemapOwner(sourceOwnerID string, src, tgt *Index, defaultOwnerID string) (string, bool) {
	if id, ok := lookup(sourceOwnerID, src, tgt); ok {
		return id, true
	}
	if defaultOwnerID != "" {
		return defaultOwnerID, true
	}
	return "", false
}

// RemapOwner applies RemapOwner with the directory's indexes and default
func (d *Directory) RemapOwner(sourceOwnerID string) (string, bool) {
	if d == nil {
		return "", false
	}
	return RemapOwner(sourceOwnerID, d.Source, d.Target, d.DefaultOwnerID)
}

// RemapRelated translates a user id referenced by an access rule. There is no
// default fallback: an unmapped reference is reported as not found.
func (d *Directory) RemapRelated(sourceUserID string) (string, bool) {
	if d == nil {
		return "", false
	}
	return lookup(sourceUserID, d.Source, d.Target)
}

func lookup(sourceID string, src, tgt *Index) (string, bool) {
	if sourceID == "" {
		return "", false
	}
	email, ok := src.EmailOf(sourceID)
	if !ok {
		return "", false
	}
	return tgt.IDOf(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
