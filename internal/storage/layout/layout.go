// Package layout maps identities and graphs to their backup directories.
//
//	<root>/<identityId>/<graphName>_<entityId>/<snapshotFile>
//
// All functions are pure; none touch the filesystem.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// DefaultDirName is the root directory name used when none is configured.
const DefaultDirName = "Backup"

// RootPath returns the cleaned backup root, or DefaultDirName under the
// working directory when dir is empty.
func RootPath(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return DefaultDirName
	}
	return filepath.Clean(dir)
}

// PlayerPath returns the directory holding every graph folder of one identity.
func PlayerPath(root string, identityID int64) (string, error) {
	if identityID < 0 {
		return "", domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("negative identity id %d", identityID))
	}
	return filepath.Join(root, strconv.FormatInt(identityID, 10)), nil
}

// GraphFolderPath returns playerPath/<graphName>_<entityId> with the graph
// name sanitized.
func GraphFolderPath(playerPath, graphName string, entityID int64) (string, error) {
	if entityID < 0 {
		return "", domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("negative entity id %d", entityID))
	}
	return filepath.Join(playerPath, domain.FolderName(SanitizeName(graphName), entityID)), nil
}

// SanitizeName makes a world-supplied grid name safe as a single path
// element. Separators, NUL and other control characters become '_'.
// Names that would resolve to "." or ".." are escaped the same way.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == filepath.Separator || r == ':':
			b.WriteByte('_')
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "." || s == ".." {
		return strings.Repeat("_", len(s))
	}
	return s
}
