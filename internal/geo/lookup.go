// Package geo provides the geographic lookup boundary: resolving
// administrative division names (region, department, municipality) through an
// external reference service, with an explicit bounded cache owned by the
// caller, plus great-circle distance helpers for route summaries.
package geo

import (
	"context"
	"errors"
	"math"
	"sync"
)

// DivisionKind identifies the administrative level of a division id.
type DivisionKind string

const (
	KindRegion       DivisionKind = "region"
	KindDepartment   DivisionKind = "department"
	KindMunicipality DivisionKind = "municipality"
)

// ErrNameNotFound is returned when the reference service has no entry for
// the requested division.
var ErrNameNotFound = errors.New("division name not found")

// UnknownName is the display value used when a best-effort lookup fails.
const UnknownName = "unknown"

// Lookup resolves division ids to display names. Implementations wrap the
// external geographic reference service.
type Lookup interface {
	// ResolveName returns the display name of a division, or ErrNameNotFound.
	ResolveName(ctx context.Context, kind DivisionKind, id string) (string, error)
}

// DefaultCacheSize bounds a NameCache when the caller gives no limit.
const DefaultCacheSize = 256

// NameCache is a bounded read-through cache in front of a Lookup. It is
// owned by the caller and scoped to a request or session; there is no
// eviction beyond the insertion bound, entries live as long as the cache.
type NameCache struct {
	mu      sync.RWMutex
	lookup  Lookup
	maxSize int
	names   map[string]string
}

// NewNameCache creates a bounded cache over the given lookup.
func NewNameCache(lookup Lookup, maxSize int) *NameCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &NameCache{
		lookup:  lookup,
		maxSize: maxSize,
		names:   make(map[string]string),
	}
}

func cacheKey(kind DivisionKind, id string) string {
	return string(kind) + ":" + id
}

// ResolveName resolves through the cache, consulting the underlying lookup
// on a miss. Successful resolutions are cached until the size bound; misses
// and failures are never cached.
func (c *NameCache) ResolveName(ctx context.Context, kind DivisionKind, id string) (string, error) {
	key := cacheKey(kind, id)

	c.mu.RLock()
	name, ok := c.names[key]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}

	name, err := c.lookup.ResolveName(ctx, kind, id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if len(c.names) < c.maxSize {
		c.names[key] = name
	}
	c.mu.Unlock()

	return name, nil
}

// BestEffortName resolves a division name, degrading to UnknownName on any
// failure. A nil lookup or empty id also degrades rather than erroring.
func BestEffortName(ctx context.Context, lookup Lookup, kind DivisionKind, id string) string {
	if lookup == nil || id == "" {
		return UnknownName
	}
	name, err := lookup.ResolveName(ctx, kind, id)
	if err != nil {
		return UnknownName
	}
	return name
}

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometers between two
// points given in decimal degrees, using the haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const deg = math.Pi / 180

	dLat := (lat2 - lat1) * deg
	dLng := (lng2 - lng1) * deg

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*deg)*math.Cos(lat2*deg)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
