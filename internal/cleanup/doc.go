// Package cleanup provides a LIFO stack of release guards.
//
// Every resource a build acquires (temporary directories, mounts, device
// mappings) is paired with a Guard that knows how to release it. Guards are
// pushed as resources are acquired and released most-recent-first, so a
// mount is always released before the directory it was mounted into.
//
// ReleaseAll is best-effort: it runs every guard even if earlier ones fail.
// Failures of guards marked ignorable are logged and dropped; all other
// failures are logged and returned together.
package cleanup
