// Package git keeps the generated credentials and data directories out of
// version control.
package git

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/flanksource/commons/logger"
)

// IsRepository reports whether the working directory sits inside a git work
// tree. A missing git binary counts as not a repository.
func IsRepository() bool {
	return exec.Command("git", "rev-parse", "--is-inside-work-tree").Run() == nil
}

// UpdateGitignore appends the entries missing from the repository's
// .gitignore. Outside a repository it only reminds the operator what to
// ignore.
func UpdateGitignore(entries []string) error {
	if !IsRepository() {
		logger.Infof("not inside a git repository; remember to ignore %s", strings.Join(entries, ", "))
		return nil
	}
	added, err := appendMissing(".gitignore", entries)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		logger.Infof(".gitignore already covers %s", strings.Join(entries, ", "))
		return nil
	}
	logger.Infof("added %s to .gitignore", strings.Join(added, ", "))
	return nil
}

// appendMissing adds the entries not already listed in the file, creating the
// file when absent, and returns what was appended.
func appendMissing(path string, entries []string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	existing := map[string]bool{}
	for _, line := range strings.Split(string(raw), "\n") {
		existing[strings.TrimSpace(line)] = true
	}

	var pending []string
	for _, entry := range entries {
		if !existing[entry] {
			pending = append(pending, entry)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	block := strings.Join(pending, "\n") + "\n"
	if len(raw) > 0 && raw[len(raw)-1] != '\n' {
		block = "\n" + block
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(block); err != nil {
		return nil, fmt.Errorf("appending to %s: %w", path, err)
	}
	return pending, nil
}
