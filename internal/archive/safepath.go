package archive

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"repack/internal/services"
)

var errEscapes = errors.New("path escapes root")

// entryPath maps an archive entry name onto a path below root. Names are
// treated as slash separated; absolute names, drive letters, and any name that
// climbs above root are rejected. An empty name (or ".") maps to root itself
// and reports ok=false so callers can skip it.
func entryPath(root, name string) (string, bool, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if slashed == "" {
		return root, false, nil
	}
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(name) != "" || hasDriveLetter(slashed) {
		return "", false, errEscapes
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return root, false, nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", false, errEscapes
	}
	return filepath.Join(root, filepath.FromSlash(cleaned)), true, nil
}

func hasDriveLetter(name string) bool {
	return len(name) >= 2 && name[1] == ':' && ((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z'))
}

// maxLinkHops bounds symlink expansion during resolution, matching the
// usual kernel limit.
const maxLinkHops = 40

// linkInside reports whether a symlink stored at linkPath with the given
// target stays below root once every link already on disk along the way is
// followed. Absolute and empty targets are rejected outright.
func linkInside(root, linkPath, target string) bool {
	if target == "" {
		return false
	}
	slashed := strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(slashed, "/") || hasDriveLetter(slashed) {
		return false
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, filepath.Dir(linkPath))
	if err != nil || !within(root, filepath.Dir(linkPath)) {
		return false
	}
	hops := 0
	parent, err := resolvePath(realRoot, filepath.ToSlash(rel), &hops)
	if err != nil || !within(realRoot, parent) {
		return false
	}
	resolved, err := resolvePath(parent, slashed, &hops)
	if err != nil {
		return false
	}
	return within(realRoot, resolved)
}

// resolvePath walks the slash separated rel from dir one component at a time,
// expanding symlinks that exist on disk. Components that do not exist yet are
// taken literally.
func resolvePath(dir, rel string, hops *int) (string, error) {
	cur := dir
	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				cur = next
				continue
			}
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		*hops++
		if *hops > maxLinkHops {
			return "", errEscapes
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		base := cur
		if filepath.IsAbs(target) {
			base = string(filepath.Separator)
		}
		if cur, err = resolvePath(base, filepath.ToSlash(target), hops); err != nil {
			return "", err
		}
	}
	return cur, nil
}

// verifyLinks re-checks every symlink under root once extraction finished, so
// a link accepted early cannot be redirected by entries that came after it.
func verifyLinks(root, format string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return extractErr(services.ErrIO, format, "scan extracted tree", err)
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		target, err := os.Readlink(p)
		if err != nil {
			return extractErr(services.ErrIO, format, "read link", err)
		}
		if !linkInside(root, p, target) {
			rel, _ := filepath.Rel(root, p)
			return escapeErr(format, filepath.ToSlash(rel))
		}
		return nil
	})
}

func within(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// prepareParent creates the parent directory of target after confirming that
// the nearest existing ancestor, with symlinks resolved, still lies below
// root. This stops a previously extracted link from redirecting later writes.
func prepareParent(root, target string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	probe := dir
	for {
		if _, err := os.Lstat(probe); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	realProbe, err := filepath.EvalSymlinks(probe)
	if err != nil {
		return err
	}
	if !within(realRoot, realProbe) {
		return errEscapes
	}
	return os.MkdirAll(dir, 0o755)
}

// clearTarget removes a non-directory left at target by an earlier entry so a
// later write replaces it instead of following it.
func clearTarget(target string) error {
	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return os.Remove(target)
}
