package tenantcache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// TenantID identifies an isolation boundary (tenant or executor pool).
//
// Cache treats it as an opaque value.
type TenantID string

// Key is a composite cache key.
type Key struct {
	Tenant TenantID
	Key    string
}

// hash returns seeded xxhash of key.
//
// Tenant length is written first, so that ("ab", "c") and ("a", "bc") never share a hashed stream.
func (k Key) hash(seed uint64) uint64 {
	var l [8]byte

	binary.LittleEndian.PutUint64(l[:], uint64(len(k.Tenant)))

	d := xxhash.NewWithSeed(seed)

	_, _ = d.Write(l[:])
	_, _ = d.WriteString(string(k.Tenant))
	_, _ = d.WriteString(k.Key)

	return d.Sum64()
}

// flightKey returns a length-prefixed unambiguous string representation of key.
func (k Key) flightKey() string {
	b := make([]byte, 0, binary.MaxVarintLen64+len(k.Tenant)+len(k.Key))
	b = binary.AppendUvarint(b, uint64(len(k.Tenant)))
	b = append(b, string(k.Tenant)...)
	b = append(b, k.Key...)

	return string(b)
}
