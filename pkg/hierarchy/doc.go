// Package hierarchy indexes folders and the documents placed in them.
//
// Folders form a forest: each folder has at most one parent and following
// parent links always ends at a root. Every operation that changes a
// folder's parent walks the proposed parent's ancestors and refuses the
// change with domain.InvariantViolation if it would revisit the folder.
//
// Three implementations of Index are provided:
//
//   - MemoryIndex keeps everything in maps behind a sync.RWMutex.
//   - SQLIndex uses the folders and documents tables (see Migrations).
//     Structural changes run in a transaction; on PostgreSQL the
//     transaction also takes an advisory lock.
//   - CachedIndex wraps another Index with expiring LRU caches for
//     ParentOf and FolderOf.
//
// Permission resolution depends only on the Reader subset.
package hierarchy
