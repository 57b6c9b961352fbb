package state

import (
	"errors"
	"time"

	"github.com/danielpatrickdp/ouroboros/internal/attribute"
)

// #region version
// Version is one saved record together with its lineage.
type Version struct {
	ID        string
	ParentID  string
	Kind      attribute.Kind
	Record    attribute.Record
	CreatedAt time.Time
}

// Size reports the number of attributes for a mapping or the number of
// cycles for a cycle collection.
func (v Version) Size() int {
	switch r := v.Record.(type) {
	case attribute.Mapping:
		return len(r)
	case attribute.Cycles:
		return len(r)
	}
	return 0
}
// #endregion version

// ErrNoActiveVersion is returned by GetCurrent before anything was saved.
var ErrNoActiveVersion = errors.New("no active version")

// timeLayout is fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
