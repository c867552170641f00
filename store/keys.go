// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package store

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes for the six sub-databases sharing one badger keyspace.
// Multi-byte key components are big-endian so lexicographic iteration
// follows numeric order; record values stay little-endian.
const (
	prefixMeta      = 'm'
	prefixTemplates = 't'
	prefixFamilies  = 'f'
	prefixDims      = 'd'
	prefixWitnesses = 'w'
	prefixPrefilter = 'p'
)

// Meta key names.
const (
	metaSchemaVersion = "schema_version"
	metaCanonVersion  = "canonicalization_version"
	metaModel         = "model"
	metaTemplateCount = "template_count"
	metaWitnessCount  = "witness_count"
)

func metaKey(name string) []byte {
	return append([]byte{prefixMeta}, name...)
}

// templateKey indexes templates_by_hash: model, width, gate count, hash.
func templateKey(model uint8, width uint8, gateCount uint16, hash [32]byte) []byte {
	k := make([]byte, 0, 1+1+1+2+32)
	k = append(k, prefixTemplates, model, width)
	k = binary.BigEndian.AppendUint16(k, gateCount)
	k = append(k, hash[:]...)
	return k
}

// familyKey indexes template_families: model, family hash.
func familyKey(model uint8, familyHash [32]byte) []byte {
	k := make([]byte, 0, 1+1+32)
	k = append(k, prefixFamilies, model)
	k = append(k, familyHash[:]...)
	return k
}

// dimsKey indexes templates_by_dims: model, width, gate count, id. The
// value is the template's canonical hash, pointing back into
// templates_by_hash.
func dimsKey(model uint8, width uint8, gateCount uint16, id uint64) []byte {
	k := dimsPrefix(model, width, gateCount)
	return binary.BigEndian.AppendUint64(k, id)
}

// dimsPrefix is the iteration prefix for one (model, width, gc) cell.
func dimsPrefix(model uint8, width uint8, gateCount uint16) []byte {
	k := make([]byte, 0, 1+1+1+2+8)
	k = append(k, prefixDims, model, width)
	return binary.BigEndian.AppendUint16(k, gateCount)
}

// dims carries the components of a templates_by_dims key.
type dims struct {
	model     uint8
	width     uint8
	gateCount uint16
	id        uint64
}

// parseDimsKey recovers the components of a templates_by_dims key.
func parseDimsKey(key []byte) (dims, error) {
	if len(key) != 1+1+1+2+8 || key[0] != prefixDims {
		return dims{}, fmt.Errorf("%w: bad dims key %x", ErrCorruptRecord, key)
	}
	return dims{
		model:     key[1],
		width:     key[2],
		gateCount: binary.BigEndian.Uint16(key[3:]),
		id:        binary.BigEndian.Uint64(key[5:]),
	}, nil
}

// witnessKey indexes witnesses_by_hash: model, width, length, hash.
func witnessKey(model uint8, width uint8, length uint16, hash [32]byte) []byte {
	k := make([]byte, 0, 1+1+1+2+32)
	k = append(k, prefixWitnesses, model, width)
	k = binary.BigEndian.AppendUint16(k, length)
	k = append(k, hash[:]...)
	return k
}

// witnessPrefix is the iteration prefix for one (model, width) cell.
func witnessPrefix(model uint8, width uint8) []byte {
	return []byte{prefixWitnesses, model, width}
}

// prefilterKey indexes witness_prefilter: model, width, token.
func prefilterKey(model uint8, width uint8, token uint64) []byte {
	k := make([]byte, 0, 1+1+1+8)
	k = append(k, prefixPrefilter, model, width)
	return binary.BigEndian.AppendUint64(k, token)
}

// appendIDList appends id to a concatenated little-endian u64 id list if
// it is not already present, reporting whether the list changed.
func appendIDList(list []byte, id uint64) ([]byte, bool, error) {
	ids, err := decodeIDList(list)
	if err != nil {
		return nil, false, err
	}
	for _, have := range ids {
		if have == id {
			return list, false, nil
		}
	}
	out := make([]byte, len(list), len(list)+8)
	copy(out, list)
	return binary.LittleEndian.AppendUint64(out, id), true, nil
}

// decodeIDList parses a concatenated little-endian u64 id list.
func decodeIDList(list []byte) ([]uint64, error) {
	if len(list)%8 != 0 {
		return nil, fmt.Errorf("%w: id list length %d", ErrCorruptRecord, len(list))
	}
	ids := make([]uint64, 0, len(list)/8)
	for off := 0; off < len(list); off += 8 {
		ids = append(ids, binary.LittleEndian.Uint64(list[off:]))
	}
	return ids, nil
}
