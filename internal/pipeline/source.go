package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source locates and reads the files behind request paths.
type Source interface {
	// Locate maps a slash-separated name to an absolute file, or ErrNotFound.
	Locate(name string) (string, error)
	ReadFile(ctx context.Context, file string) ([]byte, error)
}

// deniedExts are key and certificate files that are never served.
var deniedExts = map[string]bool{
	".pem": true,
	".crt": true,
	".key": true,
}

// DirSource serves files from the project root and public directory. Names
// that are already absolute paths, as produced by alias substitution, are
// served only when they fall under one of the allowed directories.
//
// Dotfiles and anything under a dot directory (.env, .env.local, .git/...)
// are never served, nor are key and certificate files or files passed to Deny.
type DirSource struct {
	root    string
	public  string
	allowed []string
	denied  map[string]bool
}

// NewDirSource creates a source rooted at root. publicDir may be empty.
// extra lists additional directories (alias targets) absolute names may be
// read from; root is always allowed.
func NewDirSource(root, publicDir string, extra ...string) *DirSource {
	allowed := make([]string, 0, len(extra)+1)
	allowed = append(allowed, filepath.Clean(root))
	for _, dir := range extra {
		allowed = append(allowed, filepath.Clean(dir))
	}
	return &DirSource{
		root:    filepath.Clean(root),
		public:  publicDir,
		allowed: allowed,
		denied:  make(map[string]bool),
	}
}

// Deny hides the given files, such as the config file, from Locate. It must
// be called before the source is shared.
func (s *DirSource) Deny(files ...string) *DirSource {
	for _, f := range files {
		if f != "" {
			s.denied[filepath.Clean(f)] = true
		}
	}
	return s
}

// Dirs returns every directory the source reads from.
func (s *DirSource) Dirs() []string {
	dirs := append([]string(nil), s.allowed...)
	if s.public != "" {
		dirs = append(dirs, s.public)
	}
	return dirs
}

func (s *DirSource) Locate(name string) (string, error) {
	if name == "" {
		return "", ErrNotFound
	}

	candidate := filepath.FromSlash(path.Clean(name))
	if filepath.IsAbs(candidate) {
		for _, dir := range s.allowed {
			if within(dir, candidate) {
				if f, ok := fileAt(candidate); ok && !s.hidden(dir, f) {
					return f, nil
				}
				break
			}
		}
	}

	// Root-relative lookup: public dir first, then the project root.
	rel := filepath.FromSlash(path.Clean("/" + name))
	for _, dir := range []string{s.public, s.root} {
		if dir == "" {
			continue
		}
		if f, ok := fileAt(filepath.Join(dir, rel)); ok {
			if s.hidden(dir, f) {
				return "", ErrNotFound
			}
			return f, nil
		}
	}
	return "", ErrNotFound
}

// hidden reports whether file, found under dir, must not be served.
func (s *DirSource) hidden(dir, file string) bool {
	if s.denied[file] || deniedExts[strings.ToLower(filepath.Ext(file))] {
		return true
	}
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return true
	}
	for seg := range strings.SplitSeq(rel, string(filepath.Separator)) {
		if len(seg) > 1 && seg[0] == '.' && seg != ".." {
			return true
		}
	}
	return false
}

func (s *DirSource) ReadFile(ctx context.Context, file string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// fileAt resolves p to a regular file, descending into index.html for
// directories.
func fileAt(p string) (string, bool) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if !fi.IsDir() {
		return p, true
	}
	index := filepath.Join(p, "index.html")
	if fi, err := os.Stat(index); err == nil && !fi.IsDir() {
		return index, true
	}
	return "", false
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
