package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// tmpSuffix is appended to the target path while writing the new state.
const tmpSuffix = ".tmp"

// stateFilePerm is the permission mode for persisted state files.
const stateFilePerm = 0o644

// SaveAtomic writes state to path using the codec, going through a
// temporary sibling file plus rename so a crash mid-write never leaves a
// partially written target.
func SaveAtomic(path string, codec Codec, state any) error {
	tmpPath := path + tmpSuffix

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, stateFilePerm)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	encodeErr := codec.Encode(file, state)
	if encodeErr != nil {
		file.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("encode state: %w", encodeErr)
	}

	syncErr := file.Sync()
	if syncErr != nil {
		file.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("sync state file: %w", syncErr)
	}

	closeErr := file.Close()
	if closeErr != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("close state file: %w", closeErr)
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("replace state file: %w", renameErr)
	}

	return nil
}

// Load reads state from path using the codec. The state parameter must be
// a pointer to the target value. A missing file returns fs.ErrNotExist.
func Load(path string, codec Codec, state any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	decodeErr := codec.Decode(file, state)
	if decodeErr != nil {
		return fmt.Errorf("decode state: %w", decodeErr)
	}

	return nil
}

// IsNotExist reports whether err indicates a missing state file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
