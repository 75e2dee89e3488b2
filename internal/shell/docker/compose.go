package docker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/artpar/orbit-raas/internal/core/compose"
)

// composeFileNames are tried in the compose tool's lookup order.
var composeFileNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yml",
	"docker-compose.yaml",
}

// FindComposeFile returns the compose file the compose tool would pick in dir.
func FindComposeFile(dir string) (string, error) {
	for _, name := range composeFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", NewDockerError("FindComposeFile", "compose", path, err.Error(), err)
		}
	}
	return "", NewDockerError("FindComposeFile", "compose", dir, "no compose file in directory", ErrComposeFileNotFound)
}

// LoadComposeProject reads the compose file in dir and resolves the project
// name the compose tool will label containers with.
func LoadComposeProject(dir string) (*compose.Project, error) {
	path, err := FindComposeFile(dir)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDockerError("LoadComposeProject", "compose", path, err.Error(), err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return compose.ParseProject(string(content), filepath.Base(abs))
}
