// Package catalog models the remote repository as a lazily populated tree of
// entities: one Server root, its Projects, their Datasets, the Images inside
// them and a synthetic orphaned-images folder. Entities are created by their
// parent's listing fetch and live exactly as long as the owning session.
package catalog

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/async"
)

// Kind tags an entity variant.
type Kind string

const (
	KindServer         Kind = "server"
	KindProject        Kind = "project"
	KindDataset        Kind = "dataset"
	KindImage          Kind = "image"
	KindOrphanedFolder Kind = "orphaned"
)

// PopulationState tracks the lazy-children lifecycle of one entity.
type PopulationState int32

const (
	PopulationNotStarted PopulationState = iota
	PopulationInProgress
	PopulationDone
)

// Attribute is one display key/value pair reported by the server.
type Attribute struct {
	Label string
	Value string
}

// Lister fetches the child listing of one entity. Implemented by the session
// layer on top of the remote API; the catalog itself never touches the wire.
type Lister interface {
	ListChildren(ctx context.Context, e *Entity) ([]*Entity, error)
}

// Entity is one node of the repository tree. All variants share this record;
// behavior differences are dispatched on Kind.
type Entity struct {
	Kind       Kind
	ID         int64
	Name       string
	OwnerID    int64
	GroupID    int64
	Parent     *Entity // lookup only, never owned
	Attributes []Attribute

	lister Lister
	logger *zap.Logger
	// runCtx bounds every fetch this entity issues; the session cancels it on
	// close so in-flight populations stop best-effort.
	runCtx context.Context

	mu             sync.Mutex
	state          PopulationState
	pending        *async.Task[[]*Entity]
	children       []*Entity
	childCountHint int
}

// Options carries the construction-time collaborators shared by a whole tree.
type Options struct {
	Lister Lister
	Logger *zap.Logger
	// Ctx bounds listing fetches; defaults to context.Background().
	Ctx context.Context
}

// New creates an entity of the given kind under parent (nil for the root).
func New(kind Kind, id int64, name string, parent *Entity, opts Options) *Entity {
	if opts.Ctx == nil {
		opts.Ctx = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Entity{
		Kind:   kind,
		ID:     id,
		Name:   name,
		Parent: parent,
		lister: opts.Lister,
		logger: opts.Logger.Named("catalog"),
		runCtx: opts.Ctx,
	}
}

// SetChildCountHint records the server-reported child count known before
// population.
func (e *Entity) SetChildCountHint(n int) {
	e.mu.Lock()
	e.childCountHint = n
	e.mu.Unlock()
}

// GetChildren returns a task resolving to this entity's ordered children.
// The first call starts exactly one listing fetch; calls made while the fetch
// is in flight observe the same task, and calls after completion observe a
// resolved task. A failed fetch resets the entity so it can be populated
// again.
func (e *Entity) GetChildren() *async.Task[[]*Entity] {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case PopulationDone:
		return async.Completed(e.children)
	case PopulationInProgress:
		return e.pending
	}

	if e.Kind == KindImage || e.lister == nil {
		// Images are leaves; they are Done from the start.
		e.state = PopulationDone
		return async.Completed[[]*Entity](nil)
	}

	e.state = PopulationInProgress
	task := async.Go(e.runCtx, func(ctx context.Context) ([]*Entity, error) {
		children, err := e.lister.ListChildren(ctx, e)
		e.finishPopulation(children, err)
		return children, err
	})
	e.pending = task
	return task
}

func (e *Entity) finishPopulation(children []*Entity, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.state = PopulationNotStarted
		e.pending = nil
		e.logger.Warn("population failed",
			zap.String("kind", string(e.Kind)),
			zap.Int64("id", e.ID),
			zap.Error(err))
		return
	}

	e.children = children
	e.state = PopulationDone
	e.pending = nil

	// The cheap metadata count and the fetched listing must eventually agree;
	// when they do not, the listing wins and the mismatch is only reported.
	if e.childCountHint > 0 && e.childCountHint != len(children) {
		e.logger.Warn("child count mismatch, preferring fetched listing",
			zap.String("kind", string(e.Kind)),
			zap.Int64("id", e.ID),
			zap.Int("reported", e.childCountHint),
			zap.Int("fetched", len(children)))
	}
}

// IsPopulating reports whether a listing fetch is currently in flight.
func (e *Entity) IsPopulating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == PopulationInProgress
}

// State returns the current population state.
func (e *Entity) State() PopulationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Children returns the populated children, or nil before population is done.
// The returned slice must not be mutated.
func (e *Entity) Children() []*Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != PopulationDone {
		return nil
	}
	return e.children
}

// NumberOfChildren returns the populated child count when known, otherwise
// the server-reported hint.
func (e *Entity) NumberOfChildren() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == PopulationDone {
		return len(e.children)
	}
	return e.childCountHint
}

// Attribute returns the display attribute at index i.
func (e *Entity) Attribute(i int) (label, value string) {
	if i < 0 || i >= len(e.Attributes) {
		return "", ""
	}
	return e.Attributes[i].Label, e.Attributes[i].Value
}

// MatchesFilter evaluates the display filter against already-known fields.
// A nil group or owner and an empty name each mean "match all". Name matching
// is case-insensitive substring. The result is independent of population
// state.
func (e *Entity) MatchesFilter(group, owner *int64, name string) bool {
	if group != nil && e.GroupID != *group {
		return false
	}
	if owner != nil && e.OwnerID != *owner {
		return false
	}
	if name != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(name)) {
		return false
	}
	return true
}
