package prefs

import "fmt"

// StringKey declares a string-valued preference with its default.
type StringKey struct {
	Name    string
	Default string
}

// BoolKey declares a bool-valued preference with its default.
type BoolKey struct {
	Name    string
	Default bool
}

// IntKey declares an int-valued preference with its default.
type IntKey struct {
	Name    string
	Default int
}

// Preference keys shared across the application.
var (
	// KeyDriveAccount records the Google account the Drive destination was
	// linked with, for display in status output.
	KeyDriveAccount = StringKey{Name: "drive_account"}

	// KeyLastBackupAt holds the RFC 3339 timestamp of the most recent
	// successful backup run, any category.
	KeyLastBackupAt = StringKey{Name: "last_backup_at"}
)

// Per-category destination keys. At most one of UseLocalDir/UseDrive may be
// set for a category; the store's SetDestination helpers maintain that.
func UseLocalDir(category string) BoolKey {
	return BoolKey{Name: fmt.Sprintf("%s.use_local_dir", category)}
}

func UseDrive(category string) BoolKey {
	return BoolKey{Name: fmt.Sprintf("%s.use_drive", category)}
}

// LocalDirPath holds the directory backing a category's local destination.
func LocalDirPath(category string) StringKey {
	return StringKey{Name: fmt.Sprintf("%s.local_dir_path", category)}
}

// DriveFolderID caches the resolved Drive folder ID for a category so the
// folder lookup is a one-time cost.
func DriveFolderID(category string) StringKey {
	return StringKey{Name: fmt.Sprintf("%s.drive_folder_id", category)}
}

// LastBackupAt holds the RFC 3339 timestamp of a category's latest backup.
func LastBackupAt(category string) StringKey {
	return StringKey{Name: fmt.Sprintf("%s.last_backup_at", category)}
}
