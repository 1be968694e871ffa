// Package ids provides the content-addressed identifier scheme shared by
// every store: MD5-prefixed record ids and deterministic UUID point ids.
package ids

import (
	"crypto/md5" //nolint:gosec // Not used for security; ids must match persisted state.
	"encoding/hex"

	"github.com/google/uuid"
)

// Separator is the literal string used to join list-typed values inside
// graph node and edge properties.
const Separator = "<SEP>"

// Id prefixes. The prefix participates in the hash input so that records of
// different kinds never collide even for identical content.
const (
	PrefixDocument = "doc-"
	PrefixChunk    = "chunk-"
	PrefixEntity   = "ent-"
	PrefixRelation = "rel-"
	PrefixTask     = "task-"
)

// Hash returns the prefixed MD5 hex digest of prefix+content.
func Hash(prefix, content string) string {
	sum := md5.Sum([]byte(prefix + content)) //nolint:gosec

	return prefix + hex.EncodeToString(sum[:])
}

// ForDocument returns the stable id of a document with the given content.
func ForDocument(content string) string {
	return Hash(PrefixDocument, content)
}

// ForChunk returns the content-addressed id of a chunk.
func ForChunk(content string) string {
	return Hash(PrefixChunk, content)
}

// ForEntity returns the vector-record id of an entity node.
func ForEntity(name string) string {
	return Hash(PrefixEntity, name)
}

// ForRelation returns the vector-record id of a relation edge.
// The id is orientation-sensitive; callers query both orientations.
func ForRelation(source, target string) string {
	return Hash(PrefixRelation, source+target)
}

// ForTask returns the id of a queue task derived from the given seed.
func ForTask(seed string) string {
	return Hash(PrefixTask, seed)
}

// PointUUID derives a deterministic UUIDv5 for a vector-store point from
// the workspace prefix and the record id. Stable across restarts so that
// re-upserts overwrite rather than duplicate.
func PointUUID(workspace, recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(workspace+":"+recordID)).String()
}
