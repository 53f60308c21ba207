package topology

import "errors"

var (
	ErrMissingSchema     = errors.New("topology: space has no schema")
	ErrReservedSpace     = errors.New("topology: reserved space id")
	ErrUnknownSpace      = errors.New("topology: unknown space")
	ErrDuplicateHost     = errors.New("topology: duplicate host address")
	ErrUnknownInstance   = errors.New("topology: unknown instance")
	ErrBadRegion         = errors.New("topology: malformed region")
	ErrUnknownRegion     = errors.New("topology: unknown region")
	ErrEmptyRegion       = errors.New("topology: region has no chain members")
	ErrDuplicatePosition = errors.New("topology: duplicate chain position")
	ErrChainGap          = errors.New("topology: chain positions are not contiguous")
	ErrDuplicateMember   = errors.New("topology: instance appears twice in a chain")
	ErrRegionOverlap     = errors.New("topology: regions overlap")
	ErrRegionGap         = errors.New("topology: regions do not cover the hash space")
	ErrMissingHasher     = errors.New("topology: subspace has no replication hasher")
	ErrBadTransfer       = errors.New("topology: malformed transfer")

	ErrStaleVersion = errors.New("topology: configuration version is not newer than the current one")
	ErrNilSnapshot  = errors.New("topology: nil snapshot")
)

// ValidationError is the first structural inconsistency found while
// building a snapshot. Kind is one of the sentinel errors above.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Kind.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}
