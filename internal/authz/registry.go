// Package authz implements the authorization registry (component 4.B): the
// id-tag -> status map, authorization sessions, and the dev-mode bypass for
// unknown tags.
package authz

import (
	"sync"
	"time"

	"github.com/chargepoint/central-system/internal/cache"
	"github.com/chargepoint/central-system/internal/clock"
	"github.com/chargepoint/central-system/internal/ocpp"
)

// Verdict is the result of validate(idTag): a status plus the optional
// expiry/parent that ride along on the wire as an IdTagInfo.
type Verdict struct {
	Status      ocpp.AuthorizationStatus
	ExpiryDate  *time.Time
	ParentIdTag *string
}

// tagEntry is what register() stores; validate() derives a Verdict from it,
// possibly overriding Status to Expired without mutating the entry.
type tagEntry struct {
	status      ocpp.AuthorizationStatus
	expiryDate  *time.Time
	parentIdTag *string
}

// session records that idTag is actively authorized at a station.
type session struct {
	chargePointID string
	idTag         string
	startTime     time.Time
}

// Registry is the authorization registry. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tags  map[string]tagEntry
	sessions map[string]session // key: chargePointID + "\x00" + idTag

	cache *cache.Cache
	clk   clock.Clock

	// AcceptUnknownTags is the dev-mode bypass: an idTag with no registry
	// entry is reported Accepted instead of Invalid. Production deployments
	// leave this false.
	AcceptUnknownTags bool
}

// New builds an empty authorization registry.
func New(clk clock.Clock, acceptUnknownTags bool) *Registry {
	return &Registry{
		tags:              make(map[string]tagEntry),
		sessions:          make(map[string]session),
		cache:             cache.New(8, 0),
		clk:               clk,
		AcceptUnknownTags: acceptUnknownTags,
	}
}

func sessionKey(chargePointID, idTag string) string {
	return chargePointID + "\x00" + idTag
}

// Register inserts or overwrites the status for idTag. This is the only
// write path; seeding is always explicit, never hard-coded.
func (r *Registry) Register(idTag string, status ocpp.AuthorizationStatus, parentIdTag *string, expiryDate *time.Time) {
	r.mu.Lock()
	r.tags[idTag] = tagEntry{status: status, expiryDate: expiryDate, parentIdTag: parentIdTag}
	r.mu.Unlock()
	r.cache.Delete(idTag)
}

// Validate looks up idTag and returns its current verdict. A known tag past
// its expiry is reported Expired without mutating storage. An unknown tag
// is Invalid, or Accepted when AcceptUnknownTags is set.
func (r *Registry) Validate(idTag string) Verdict {
	if cached, ok := r.cache.Get(idTag); ok {
		return r.applyExpiry(cached.(tagEntry))
	}

	r.mu.RLock()
	entry, known := r.tags[idTag]
	r.mu.RUnlock()

	if !known {
		if r.AcceptUnknownTags {
			return Verdict{Status: ocpp.AuthAccepted}
		}
		return Verdict{Status: ocpp.AuthInvalid}
	}

	r.cache.Set(idTag, entry, 30*time.Second)
	return r.applyExpiry(entry)
}

func (r *Registry) applyExpiry(entry tagEntry) Verdict {
	status := entry.status
	if entry.expiryDate != nil && r.clk.Now().After(*entry.expiryDate) {
		status = ocpp.AuthExpired
	}
	return Verdict{Status: status, ExpiryDate: entry.expiryDate, ParentIdTag: entry.parentIdTag}
}

// StartSession validates idTag and, only if Accepted, records a session for
// (chargePointID, idTag). Returns the verdict either way so callers can
// build an IdTagInfo regardless of outcome.
func (r *Registry) StartSession(chargePointID, idTag string) Verdict {
	verdict := r.Validate(idTag)
	if verdict.Status != ocpp.AuthAccepted {
		return verdict
	}

	r.mu.Lock()
	r.sessions[sessionKey(chargePointID, idTag)] = session{
		chargePointID: chargePointID,
		idTag:         idTag,
		startTime:     r.clk.Now(),
	}
	r.mu.Unlock()

	return verdict
}

// IsAuthorized reports whether an active session exists for the pair.
func (r *Registry) IsAuthorized(chargePointID, idTag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionKey(chargePointID, idTag)]
	return ok
}

// EndSession removes the session if present. Idempotent: ending a session
// that does not exist is not an error.
func (r *Registry) EndSession(chargePointID, idTag string) {
	r.mu.Lock()
	delete(r.sessions, sessionKey(chargePointID, idTag))
	r.mu.Unlock()
}
