package common

import (
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// CommitHash is the short HEAD hash of the git checkout holding the working
// directory or, failing that, the executable. It is "unknown" outside a
// checkout.
func CommitHash() string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if exePath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exePath))
	}
	for _, dir := range dirs {
		if hash := headHash(dir); hash != "" {
			if len(hash) >= 8 {
				return hash[:8]
			}
			return hash
		}
	}
	return "unknown"
}

func headHash(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}
