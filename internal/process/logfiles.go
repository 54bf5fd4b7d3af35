package process

import (
	"fmt"
	"os"
	"path/filepath"
)

// LogFiles holds the stdout and stderr files a worker writes to.
type LogFiles struct {
	stdout *os.File
	stderr *os.File
	dir    string
	name   string
}

// OpenLogFiles creates <dir>/<name>-stdout.log and <dir>/<name>-stderr.log,
// truncating existing files. Either both files are opened or neither is.
func OpenLogFiles(dir, name string) (LogFiles, error) {
	l := LogFiles{dir: dir, name: name}
	stdout, err := os.Create(l.StdoutPath())
	if err != nil {
		return LogFiles{}, fmt.Errorf("create stdout log: %w", err)
	}
	stderr, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdout.Close()
		return LogFiles{}, fmt.Errorf("create stderr log: %w", err)
	}
	l.stdout = stdout
	l.stderr = stderr
	return l, nil
}

// StdoutPath returns the stdout log path.
func (l *LogFiles) StdoutPath() string {
	return filepath.Join(l.dir, l.name+"-stdout.log")
}

// StderrPath returns the stderr log path.
func (l *LogFiles) StderrPath() string {
	return filepath.Join(l.dir, l.name+"-stderr.log")
}

// Close closes both files. Safe to call more than once.
func (l *LogFiles) Close() {
	if l.stdout != nil {
		_ = l.stdout.Close()
		l.stdout = nil
	}
	if l.stderr != nil {
		_ = l.stderr.Close()
		l.stderr = nil
	}
}
