package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/axonlab/mirador/internal/catalog"
	"github.com/axonlab/mirador/internal/remote"
)

// OrphanedFolderID is the synthetic id of the orphaned-images folder; the
// remote API never returns it.
const OrphanedFolderID int64 = -1

// lister implements catalog.Lister on top of the remote API for one session.
// The orphaned-images folder is synthesized here as the last child of the
// server root; the listing API itself knows nothing about it.
type lister struct {
	session *Session
}

var _ catalog.Lister = (*lister)(nil)

func (l *lister) opts() catalog.Options {
	return catalog.Options{
		Lister: l,
		Logger: l.session.logger,
		Ctx:    l.session.runCtx,
	}
}

// ListChildren implements catalog.Lister.ListChildren
func (l *lister) ListChildren(ctx context.Context, e *catalog.Entity) ([]*catalog.Entity, error) {
	children, err := l.listChildren(ctx, e)
	l.session.metrics.ObserveListing(string(e.Kind), err)
	if err != nil {
		l.session.handleAuthError(err)
		return nil, err
	}
	return children, nil
}

func (l *lister) listChildren(ctx context.Context, e *catalog.Entity) ([]*catalog.Entity, error) {
	api := l.session.api
	switch e.Kind {
	case catalog.KindServer:
		records, err := api.Projects(ctx)
		if err != nil {
			return nil, err
		}
		children := make([]*catalog.Entity, 0, len(records)+1)
		for _, rec := range records {
			children = append(children, l.newEntity(catalog.KindProject, rec, e))
		}
		orphaned := catalog.New(catalog.KindOrphanedFolder, OrphanedFolderID, "Orphaned images", e, l.opts())
		children = append(children, orphaned)
		return children, nil

	case catalog.KindProject:
		records, err := api.Datasets(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		children := make([]*catalog.Entity, 0, len(records))
		for _, rec := range records {
			children = append(children, l.newEntity(catalog.KindDataset, rec, e))
		}
		return children, nil

	case catalog.KindDataset:
		records, err := api.Images(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		return l.imageEntities(records, e), nil

	case catalog.KindOrphanedFolder:
		records, err := api.OrphanedImages(ctx)
		if err != nil {
			return nil, err
		}
		return l.imageEntities(records, e), nil

	default:
		return nil, nil
	}
}

func (l *lister) newEntity(kind catalog.Kind, rec remote.Record, parent *catalog.Entity) *catalog.Entity {
	e := catalog.New(kind, rec.ID, rec.Name, parent, l.opts())
	e.OwnerID = rec.OwnerID
	e.GroupID = rec.GroupID
	e.SetChildCountHint(rec.ChildCount)
	e.Attributes = []catalog.Attribute{
		{Label: "Name", Value: rec.Name},
		{Label: "ID", Value: strconv.FormatInt(rec.ID, 10)},
		{Label: "Owner", Value: strconv.FormatInt(rec.OwnerID, 10)},
		{Label: "Group", Value: strconv.FormatInt(rec.GroupID, 10)},
	}
	return e
}

func (l *lister) imageEntities(records []remote.ImageRecord, parent *catalog.Entity) []*catalog.Entity {
	children := make([]*catalog.Entity, 0, len(records))
	for _, rec := range records {
		e := l.newEntity(catalog.KindImage, rec.Record, parent)
		e.Attributes = append(e.Attributes,
			catalog.Attribute{Label: "Size", Value: fmt.Sprintf("%d x %d", rec.Width, rec.Height)},
			catalog.Attribute{Label: "Pixel type", Value: string(rec.PixelType)},
			catalog.Attribute{Label: "Channels", Value: strconv.Itoa(rec.Channels)},
		)
		children = append(children, e)
	}
	return children
}
