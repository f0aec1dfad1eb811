// Package protect defines the path patterns that must survive every deploy,
// and the exclude sets used for each transfer direction.
//
// The production set guards device registries, Zigbee/Z-Wave networks, auth
// tokens, secrets and databases. Overwriting any of them is a correctness
// bug, so every write into the production tree passes all of these patterns
// as rsync excludes.
package protect

import (
	"path"
	"strings"
)

// productionPatterns is the Protected Set: never written to production.
var productionPatterns = []string{
	".storage/",           // device, entity and auth registries
	"backups/",            // backup archives
	"secrets.yaml",        // production secrets, never from git
	"*.db",                // SQLite databases
	"*.db-shm",            // SQLite shared memory
	"*.db-wal",            // SQLite write-ahead log
	"home-assistant.log*", // main log and rotations
	"*.log",               // other logs
	"tts/",                // text-to-speech cache
	"deps/",               // python deps managed by the service
	"__pycache__/",        // python bytecode cache
	".cloud/",             // cloud config
	".ha_run.lock",        // run lock
	".HA_VERSION",         // version marker managed by the service
}

// stagingPushPatterns are excluded when pushing the local tree to staging.
// Staging wants full fidelity otherwise, so this list only drops local
// repository metadata and material that never belongs in a transfer.
var stagingPushPatterns = []string{
	".git/",
	".gitignore",
	"secrets.yaml",
	".storage/",
	"backups/",
	"*.db",
	"*.log*",
	"tts/",
	"deps/",
	"__pycache__/",
}

// Production returns the Protected Set patterns applied on every write
// into the production tree.
func Production() []string {
	return append([]string(nil), productionPatterns...)
}

// StagingPush returns the exclude patterns for the local-to-staging push.
func StagingPush() []string {
	return append([]string(nil), stagingPushPatterns...)
}

// Pull returns the exclude patterns for bootstrapping the local tree from
// production. Protected material is never pulled either.
func Pull() []string {
	return Production()
}

// RsyncArgs renders patterns as rsync --exclude arguments.
func RsyncArgs(patterns []string) []string {
	args := make([]string, 0, len(patterns))
	for _, p := range patterns {
		args = append(args, "--exclude="+p)
	}
	return args
}

// Excluded reports whether relPath (slash-separated, relative to the tree
// root) is covered by any of the given patterns, and which one matched.
// Matching mirrors rsync semantics closely enough for dry-run reporting:
// a trailing slash anchors a directory name, a pattern without a slash is
// matched against every path component, and * does not cross separators.
func Excluded(relPath string, patterns []string) (string, bool) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		return "", false
	}
	parts := strings.Split(relPath, "/")

	for _, pattern := range patterns {
		// A directory pattern protects the directory and everything under
		// it; a bare pattern matches any path component.
		name := strings.TrimSuffix(pattern, "/")
		for _, part := range parts {
			if match(name, part) {
				return pattern, true
			}
		}
	}

	return "", false
}

// ProductionExcluded reports whether relPath is covered by the Protected Set.
func ProductionExcluded(relPath string) (string, bool) {
	return Excluded(relPath, productionPatterns)
}

func match(pattern, component string) bool {
	ok, err := path.Match(pattern, component)
	return err == nil && ok
}
