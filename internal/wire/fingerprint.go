package wire

import (
	"encoding/binary"
	"hash/fnv"
	"strings"
)

// Fingerprint computes the commutative 64-bit env fingerprint from spec.md
// §4.1: for each kept (key, value) pair, seed a hash with len(key), update
// with key then value, and XOR the result into an accumulator. XOR makes
// the combination order-independent, which is required because env is an
// unordered set of pairs.
func Fingerprint(env map[string]string, filterPrefix string) uint64 {
	var acc uint64
	for k, v := range env {
		if filterPrefix != "" && strings.HasPrefix(k, filterPrefix) {
			continue
		}
		acc ^= hashPair(k, v)
	}
	return acc
}

// FingerprintPairs is Fingerprint over an already-ordered slice of pairs,
// used on the client side where the environment is read as a list.
func FingerprintPairs(pairs []EnvPair, filterPrefix string) uint64 {
	var acc uint64
	for _, p := range pairs {
		if filterPrefix != "" && strings.HasPrefix(p.Key, filterPrefix) {
			continue
		}
		acc ^= hashPair(p.Key, p.Value)
	}
	return acc
}

func hashPair(key, value string) uint64 {
	h := fnv.New64a()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(key)))
	h.Write(lenBuf[:])
	h.Write([]byte(key))
	h.Write([]byte(value))
	return h.Sum64()
}
