// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash/crc32"
)

// checkpoint is the stored snapshot. Seq is the last journal entry it
// includes.
type checkpoint[T any] struct {
	Seq      uint64
	Elements []T
}

// encodeEntry gob-encodes v behind a CRC32 of the encoding.
//
// Layout: [4-byte big-endian CRC32][gob data]
func encodeEntry(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 4))
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[:4], crc32.ChecksumIEEE(data[4:]))
	return data, nil
}

// decodeEntry verifies the checksum and decodes into v.
func decodeEntry(data []byte, v any) error {
	if len(data) < 5 {
		return fmt.Errorf("%w: entry too short", ErrJournalCorrupted)
	}
	stored := binary.BigEndian.Uint32(data[:4])
	if computed := crc32.ChecksumIEEE(data[4:]); stored != computed {
		return fmt.Errorf("%w: stored=%08x computed=%08x", ErrJournalCorrupted, stored, computed)
	}
	if err := gob.NewDecoder(bytes.NewReader(data[4:])).Decode(v); err != nil {
		return fmt.Errorf("%w: gob decode: %v", ErrJournalCorrupted, err)
	}
	return nil
}
