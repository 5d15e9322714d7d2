package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/gridbackup-go/internal/core/domain"
)

// Magic bytes identify snapshot files.
var magicBytes = []byte("GBAKSNAP")

const (
	filePrefix    = "backup-"
	fileExtension = ".sbc"
	tempPattern   = ".backup-*.tmp"
	checksumSize  = 32
	headerVersion = 1

	// maxSeq bounds the collision search within one second.
	maxSeq = 9999
)

var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
	ErrNoCipher         = errors.New("snapshot: snapshot is encrypted but no passphrase is configured")
)

type fileHeader struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	Encrypted bool   `json:"encrypted"`
	Salt      []byte `json:"salt,omitempty"`
	domain.SnapshotMeta
}

// Config configures the store.
type Config struct {
	// Root is the backup root directory.
	Root string

	// Cipher, if set, seals every written snapshot and is required to read
	// encrypted ones.
	Cipher *Cipher
}

// Store reads and writes the versioned backup directory tree.
type Store struct {
	root   string
	cipher *Cipher
	now    func() time.Time
}

// NewStore creates the root directory if needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("snapshot: root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0750); err != nil {
		return nil, domain.ErrIO.WithCause(err).WithDetails("create root: " + err.Error())
	}
	return &Store{
		root:   cfg.Root,
		cipher: cfg.Cipher,
		now:    time.Now,
	}, nil
}

// Root returns the backup root directory.
func (s *Store) Root() string {
	return s.root
}

// Encrypted reports whether new snapshots are sealed.
func (s *Store) Encrypted() bool {
	return s.cipher != nil
}

// ListGraphFolders returns every well-formed graph folder under playerPath
// in directory enumeration order. Entries whose names do not parse as
// "<name>_<id>" are skipped. A missing player directory yields no folders.
func (s *Store) ListGraphFolders(playerPath string) ([]domain.SnapshotFolder, error) {
	entries, err := os.ReadDir(playerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.ErrIO.WithCause(err).WithDetails(err.Error())
	}

	folders := make([]domain.SnapshotFolder, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		graphName, entityID, ok := domain.ParseFolderName(e.Name())
		if !ok {
			continue
		}
		folders = append(folders, domain.SnapshotFolder{
			Name:      e.Name(),
			GraphName: graphName,
			EntityID:  entityID,
			Path:      filepath.Join(playerPath, e.Name()),
		})
	}
	return folders, nil
}

// FindFolder resolves token against folders: exact entity id first, then
// a wildcard match on the graph name.
func (s *Store) FindFolder(folders []domain.SnapshotFolder, token string) (domain.SnapshotFolder, bool) {
	return domain.MatchFolder(folders, token)
}

// ListSnapshots returns the snapshot files in folderPath, newest first.
// Files are never modified after commit, so the modification time is
// their creation time. Equal times fall back to the name, which embeds
// the commit timestamp and sequence.
func (s *Store) ListSnapshots(folderPath string) ([]domain.SnapshotFile, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.ErrIO.WithCause(err).WithDetails(err.Error())
	}

	files := make([]domain.SnapshotFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		files = append(files, domain.SnapshotFile{
			Name:      name,
			Path:      filepath.Join(folderPath, name),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.After(files[j].CreatedAt)
		}
		return files[i].Name > files[j].Name
	})
	return files, nil
}

// WriteSnapshot commits data as a new snapshot in folderPath, creating the
// folder tree if needed. On failure nothing is left behind.
func (s *Store) WriteSnapshot(folderPath string, meta domain.SnapshotMeta, data []byte) (domain.SnapshotFile, error) {
	if err := os.MkdirAll(folderPath, 0750); err != nil {
		return domain.SnapshotFile{}, ioErr("create folder", err)
	}

	now := s.now()
	hdr := fileHeader{
		Version:      headerVersion,
		CreatedAt:    now.UnixMilli(),
		SnapshotMeta: meta,
	}
	if s.cipher != nil {
		sealed, salt, err := s.cipher.Seal(data)
		if err != nil {
			return domain.SnapshotFile{}, ioErr("encrypt", err)
		}
		data = sealed
		hdr.Encrypted = true
		hdr.Salt = salt
	}

	file, err := os.CreateTemp(folderPath, tempPattern)
	if err != nil {
		return domain.SnapshotFile{}, ioErr("create temp file", err)
	}
	tempPath := file.Name()
	defer os.Remove(tempPath)

	if err := writeEnvelope(file, hdr, data); err != nil {
		file.Close()
		return domain.SnapshotFile{}, ioErr("write", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return domain.SnapshotFile{}, ioErr("sync", err)
	}
	if err := file.Close(); err != nil {
		return domain.SnapshotFile{}, ioErr("close", err)
	}

	finalPath, err := commit(tempPath, folderPath, now)
	if err != nil {
		return domain.SnapshotFile{}, err
	}

	stat, err := os.Stat(finalPath)
	if err != nil {
		return domain.SnapshotFile{}, ioErr("stat", err)
	}
	return domain.SnapshotFile{
		Name:      filepath.Base(finalPath),
		Path:      finalPath,
		Size:      stat.Size(),
		CreatedAt: stat.ModTime(),
	}, nil
}

// commit links tempPath to the first free name for ts.
func commit(tempPath, folderPath string, ts time.Time) (string, error) {
	stamp := ts.Format("20060102150405")
	for seq := 1; seq <= maxSeq; seq++ {
		finalPath := filepath.Join(folderPath, fmt.Sprintf("%s%s-%04d%s", filePrefix, stamp, seq, fileExtension))
		err := os.Link(tempPath, finalPath)
		if err == nil {
			return finalPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", ioErr("commit", err)
		}
	}
	return "", domain.ErrIO.WithDetails("commit: no free snapshot name for " + stamp)
}

func writeEnvelope(w io.Writer, hdr fileHeader, data []byte) error {
	hash := sha256.New()
	bw := bufio.NewWriter(w)
	mw := io.MultiWriter(bw, hash)

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	var hdrLen, dataLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	binary.BigEndian.PutUint32(dataLen[:], uint32(len(data)))

	for _, chunk := range [][]byte{magicBytes, hdrLen[:], hdrJSON, dataLen[:], data} {
		if _, err := mw.Write(chunk); err != nil {
			return err
		}
	}
	// checksum trailer is not part of the hash
	if _, err := bw.Write(hash.Sum(nil)); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadSnapshot verifies and decodes the snapshot at path.
func (s *Store) ReadSnapshot(path string) (*domain.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrSnapshotNotFound.WithDetails(filepath.Base(path))
		}
		return nil, ioErr("read", err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, ioErr("stat", err)
	}

	hdr, data, err := decodeEnvelope(raw)
	if err != nil {
		return nil, domain.ErrSnapshotCorrupt.WithCause(err).WithDetails(filepath.Base(path) + ": " + err.Error())
	}

	switch {
	case hdr.Encrypted && s.cipher == nil:
		return nil, domain.ErrSnapshotCorrupt.WithCause(ErrNoCipher).WithDetails(ErrNoCipher.Error())
	case hdr.Encrypted:
		plain, err := s.cipher.Open(data, hdr.Salt)
		if err != nil {
			return nil, domain.ErrSnapshotCorrupt.WithCause(err).WithDetails(err.Error())
		}
		data = plain
	}

	return &domain.Snapshot{
		File: domain.SnapshotFile{
			Name:      filepath.Base(path),
			Path:      path,
			Size:      stat.Size(),
			CreatedAt: stat.ModTime(),
		},
		Meta:      hdr.SnapshotMeta,
		CreatedAt: time.UnixMilli(hdr.CreatedAt),
		Data:      data,
	}, nil
}

func decodeEnvelope(raw []byte) (fileHeader, []byte, error) {
	var hdr fileHeader
	if len(raw) < len(magicBytes)+8+checksumSize {
		return hdr, nil, ErrChecksumMismatch
	}
	body, trailer := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return hdr, nil, ErrChecksumMismatch
	}
	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return hdr, nil, ErrInvalidMagic
	}
	r := bytes.NewReader(body[len(magicBytes):])

	hdrJSON, err := readBlock(r)
	if err != nil {
		return hdr, nil, fmt.Errorf("read header: %w", err)
	}
	if len(hdrJSON) == 0 {
		return hdr, nil, fmt.Errorf("empty header")
	}
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return hdr, nil, fmt.Errorf("unsupported version %d", hdr.Version)
	}

	data, err := readBlock(r)
	if err != nil {
		return hdr, nil, fmt.Errorf("read data: %w", err)
	}
	return hdr, data, nil
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	block := make([]byte, n)
	_, err := io.ReadFull(r, block)
	return block, err
}

// Prune removes all but the newest keep snapshots in folderPath and
// returns how many were removed. keep <= 0 disables pruning.
func (s *Store) Prune(folderPath string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	files, err := s.ListSnapshots(folderPath)
	if err != nil {
		return 0, err
	}
	if len(files) <= keep {
		return 0, nil
	}

	removed := 0
	var firstErr error
	for _, f := range files[keep:] {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = ioErr("prune "+f.Name, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// ListIdentities returns the numeric identity directories under the root.
func (s *Store) ListIdentities() ([]int64, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("list root", err)
	}
	var ids []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil || id < 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func ioErr(op string, err error) *domain.DomainError {
	return domain.ErrIO.WithCause(err).WithDetails(op + ": " + err.Error())
}
