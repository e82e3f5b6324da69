package pgstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/BobSilent/aggregator-cli/pkg/field"
	"github.com/BobSilent/aggregator-cli/pkg/remote"
)

// itemRow holds the head of an item. It is locked while a revision is added.
type itemRow struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Rev       int       `bun:"rev,notnull"`
	Deleted   bool      `bun:"deleted,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// revisionRow is one immutable revision of an item.
type revisionRow struct {
	bun.BaseModel `bun:"table:item_revisions,alias:r"`

	ItemID    int64                  `bun:"item_id,pk"`
	Rev       int                    `bun:"rev,pk"`
	Deleted   bool                   `bun:"deleted,notnull,default:false"`
	Fields    map[string]field.Value `bun:"fields,type:jsonb,notnull"`
	Relations []remote.Relation      `bun:"relations,type:jsonb,notnull"`
	CreatedAt time.Time              `bun:"created_at,notnull,default:current_timestamp"`
}

func (r *revisionRow) snapshot(base string) *remote.Snapshot {
	return &remote.Snapshot{
		ID:        r.ItemID,
		Rev:       r.Rev,
		URL:       remote.RecycleBinURL(base, r.ItemID, r.Deleted),
		Fields:    r.Fields,
		Relations: r.Relations,
	}
}

func newRevision(snap *remote.Snapshot, deleted bool) *revisionRow {
	row := &revisionRow{
		ItemID:    snap.ID,
		Rev:       snap.Rev,
		Deleted:   deleted,
		Fields:    snap.Fields,
		Relations: snap.Relations,
	}
	if row.Fields == nil {
		row.Fields = map[string]field.Value{}
	}
	if row.Relations == nil {
		row.Relations = []remote.Relation{}
	}
	return row
}
