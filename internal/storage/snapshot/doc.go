// Package snapshot stores and reads grid backups on disk.
//
// Layout (see package layout):
//
//	<root>/<identityId>/<graphName>_<entityId>/backup-<yyyyMMddHHmmss>-<seq>.sbc
//
// Each file is an envelope around the serializer's bytes:
//
//	[magic:8 "GBAKSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (serialized grid, or encrypted bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// Files are written to a hidden temp name, synced, then hard-linked to
// their final name. Linking fails when the name exists, so a commit never
// replaces an earlier snapshot and readers never see a partial file.
//
// When a passphrase is configured the data block is sealed with
// XChaCha20-Poly1305 using a per-file key derived from the store's master key.
package snapshot
