package tablebill

import "github.com/xraph/tablebill/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// TableSession is re-exported from types package.
type TableSession = types.TableSession

// Re-export Money constructors
var (
	MXN   = types.MXN
	USD   = types.USD
	Zero  = types.Zero
	Sum   = types.Sum
	SumOf = types.SumOf
)

// DefaultCurrency is the currency used when a session does not name one.
const DefaultCurrency = types.DefaultCurrency
