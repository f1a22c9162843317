package device

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
)

// shaderCacheVersion is bumped whenever the index layout changes;
// a version mismatch invalidates the whole cache (spec §6: "discarding
// it must not affect output").
const shaderCacheVersion uint32 = 1

// shaderCacheEntry mirrors spec §6's on-disk index record:
// "{shader_hash, entry_hash, payload_length, payload_offset}".
type shaderCacheEntry struct {
	ShaderHash    uint32
	EntryHash     uint32
	PayloadLength uint32
	PayloadOffset uint32
}

const shaderCacheEntrySize = 16

// ShaderCache persists compiled-pipeline blobs keyed by source hash,
// split into an index file and a separate blob file: little-endian
// fixed-width records via encoding/binary.
type ShaderCache struct {
	indexPath string
	blobPath  string
	entries   map[uint64]shaderCacheEntry // key = shaderHash<<32 | entryHash
	blob      []byte
}

func cacheKey(shaderHash, entryHash uint32) uint64 {
	return uint64(shaderHash)<<32 | uint64(entryHash)
}

// OpenShaderCache loads an existing cache pair, or returns an empty,
// usable cache if either file is missing or its version doesn't match
// (cache misses are never fatal, spec §6).
func OpenShaderCache(indexPath, blobPath string) *ShaderCache {
	c := &ShaderCache{
		indexPath: indexPath,
		blobPath:  blobPath,
		entries:   make(map[uint64]shaderCacheEntry),
	}
	raw, err := os.ReadFile(indexPath)
	if err != nil || len(raw) < 4 {
		return c
	}
	version := binary.LittleEndian.Uint32(raw[0:4])
	if version != shaderCacheVersion {
		return c
	}
	body := raw[4:]
	for off := 0; off+shaderCacheEntrySize <= len(body); off += shaderCacheEntrySize {
		e := shaderCacheEntry{
			ShaderHash:    binary.LittleEndian.Uint32(body[off : off+4]),
			EntryHash:     binary.LittleEndian.Uint32(body[off+4 : off+8]),
			PayloadLength: binary.LittleEndian.Uint32(body[off+8 : off+12]),
			PayloadOffset: binary.LittleEndian.Uint32(body[off+12 : off+16]),
		}
		c.entries[cacheKey(e.ShaderHash, e.EntryHash)] = e
	}
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		c.entries = make(map[uint64]shaderCacheEntry)
		return c
	}
	c.blob = blob
	return c
}

// Lookup returns the cached payload for (shaderHash, entryHash), if
// present and within bounds of the loaded blob.
func (c *ShaderCache) Lookup(shaderHash, entryHash uint32) ([]byte, bool) {
	e, ok := c.entries[cacheKey(shaderHash, entryHash)]
	if !ok {
		return nil, false
	}
	end := int(e.PayloadOffset) + int(e.PayloadLength)
	if end > len(c.blob) {
		return nil, false
	}
	return c.blob[e.PayloadOffset:end], true
}

// Store appends a compiled payload, keyed by the CRC32 hash of its
// source text (source hash keying per spec §6).
func (c *ShaderCache) Store(source string, entryHash uint32, payload []byte) {
	shaderHash := crc32.ChecksumIEEE([]byte(source))
	off := uint32(len(c.blob))
	c.blob = append(c.blob, payload...)
	c.entries[cacheKey(shaderHash, entryHash)] = shaderCacheEntry{
		ShaderHash:    shaderHash,
		EntryHash:     entryHash,
		PayloadLength: uint32(len(payload)),
		PayloadOffset: off,
	}
}

// Flush writes both files to disk. A write failure is reported but
// never fatal: a missing or corrupt cache only costs a recompile.
func (c *ShaderCache) Flush() error {
	if err := os.WriteFile(c.blobPath, c.blob, 0o644); err != nil {
		return fmt.Errorf("shader cache: write blob: %w", err)
	}
	body := make([]byte, 4, 4+len(c.entries)*shaderCacheEntrySize)
	binary.LittleEndian.PutUint32(body[0:4], shaderCacheVersion)
	for _, e := range c.entries {
		var rec [shaderCacheEntrySize]byte
		binary.LittleEndian.PutUint32(rec[0:4], e.ShaderHash)
		binary.LittleEndian.PutUint32(rec[4:8], e.EntryHash)
		binary.LittleEndian.PutUint32(rec[8:12], e.PayloadLength)
		binary.LittleEndian.PutUint32(rec[12:16], e.PayloadOffset)
		body = append(body, rec[:]...)
	}
	if err := os.WriteFile(c.indexPath, body, 0o644); err != nil {
		return fmt.Errorf("shader cache: write index: %w", err)
	}
	return nil
}
