package logging

import (
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults: 10 MB per file, three files in total.
const (
	DefaultMaxSizeMB = 10
	DefaultBackups   = 2
)

// newFileSink returns a size-rotated writer for opts.File. Backups are
// renamed with a timestamp next to the active file. The file is opened once
// up front so an unusable path fails here rather than on the first record.
func newFileSink(opts Options) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.Close()

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	backups := opts.Backups
	if backups <= 0 {
		backups = DefaultBackups
	}
	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: backups,
		LocalTime:  true,
	}, nil
}
