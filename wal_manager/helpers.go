package wal_manager

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

func (r *WALRecord) Encode() []byte {
	buf := make([]byte, RecordHeaderSize+len(r.Data))

	binary.BigEndian.PutUint64(buf[0:8], r.LSN)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Data)))
	binary.BigEndian.PutUint32(buf[12:16], r.Sum)
	copy(buf[16:], r.Data)

	return buf
}

func (r *WALRecord) Valid() bool {
	return checksum(r.LSN, r.Data) == r.Sum
}

// checksum is the low 32 bits of xxhash64 over the big-endian LSN followed
// by the payload.
func checksum(lsn uint64, data []byte) uint32 {
	var lsnBytes [8]byte
	binary.BigEndian.PutUint64(lsnBytes[:], lsn)

	d := xxhash.New()
	d.Write(lsnBytes[:])
	d.Write(data)
	return uint32(d.Sum64())
}
