package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SnapshotFolder is one graph's backup directory, named "<GraphName>_<EntityID>".
type SnapshotFolder struct {
	Name      string `json:"name"`
	GraphName string `json:"graph_name"`
	EntityID  int64  `json:"entity_id"`
	Path      string `json:"path"`
}

// ParseFolderName splits a folder name on its last underscore.
// Everything before is the graph name, which may itself contain
// underscores; the suffix must be a decimal entity id.
func ParseFolderName(name string) (graphName string, entityID int64, ok bool) {
	i := strings.LastIndexByte(name, '_')
	if i < 0 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(name[i+1:], 10, 64)
	if err != nil || id < 0 {
		return "", 0, false
	}
	return name[:i], id, true
}

// FolderName is the inverse of ParseFolderName for an already-sanitized name.
func FolderName(graphName string, entityID int64) string {
	return graphName + "_" + strconv.FormatInt(entityID, 10)
}

// GlobPattern converts a wildcard token into an anchored regular expression:
// '?' matches one character, '*' matches any run, everything else is literal.
// Matching is case-sensitive.
func GlobPattern(token string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(token)
	quoted = strings.ReplaceAll(quoted, `\?`, ".")
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	// QuoteMeta output is always a valid expression.
	return regexp.MustCompile("^" + quoted + "$")
}

// MatchFolder picks the folder a token refers to. A token that parses as an
// integer is first compared with every folder's entity id; failing that the
// token is treated as a glob over graph names. The first match in sequence
// order wins.
func MatchFolder(folders []SnapshotFolder, token string) (SnapshotFolder, bool) {
	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		for _, f := range folders {
			if f.EntityID == id {
				return f, true
			}
		}
	}

	re := GlobPattern(token)
	for _, f := range folders {
		if re.MatchString(f.GraphName) {
			return f, true
		}
	}
	return SnapshotFolder{}, false
}

// SnapshotFile is one committed export inside a SnapshotFolder.
type SnapshotFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SizeKB is the file size in kilobytes as shown in listings.
func (f SnapshotFile) SizeKB() float64 {
	return float64(f.Size) / 1024.0
}

// SnapshotMeta describes what a snapshot contains.
type SnapshotMeta struct {
	IdentityID int64  `json:"identity_id"`
	EntityID   int64  `json:"entity_id"`
	GraphName  string `json:"graph_name"`
}

// Snapshot is a verified snapshot read back from disk.
type Snapshot struct {
	File      SnapshotFile
	Meta      SnapshotMeta
	CreatedAt time.Time
	Data      []byte
}
