package tablebill

import "github.com/xraph/tablebill/id"

// ID is the primary identifier type for all tablebill entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
