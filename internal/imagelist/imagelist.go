// Package imagelist builds the list of wallpapers an output cycles through.
package imagelist

import (
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
)

// Build returns the images under root. A file yields itself, a directory is walked
// recursively and every regular file detected as image/* is kept, in random order.
func Build(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("wallpaper path %s: %w", root, err)
	}

	if !info.IsDir() {
		return []string{root}, nil
	}

	var images []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warnf("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if IsImage(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	Shuffle(images)
	return images, nil
}

// IsImage sniffs the file content, the extension is not trusted.
func IsImage(path string) bool {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		log.Debugf("mime detection failed for %s: %v", path, err)
		return false
	}
	return strings.HasPrefix(mtype.String(), "image/")
}

func Shuffle(list []string) {
	rand.Shuffle(len(list), func(i, j int) {
		list[i], list[j] = list[j], list[i]
	})
}
