package serving

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/webstart/internal/config"
	"github.com/jfoltran/webstart/internal/pipeline"
)

// Static serves prebuilt assets and falls back to a single index document for
// every other GET or HEAD path so client-side routing can take over.
type Static struct {
	fsys    fs.FS
	files   http.Handler
	index   string
	exclude []string
	logger  zerolog.Logger

	// The fallback document is cached only while a watcher keeps it fresh.
	cache   bool
	mu      sync.RWMutex
	doc     []byte
	docMod  time.Time
	gen     uint64
	watcher *watcher
}

// NewStatic creates a Static serving fsys.
func NewStatic(fsys fs.FS, cfg config.StaticConfig, logger zerolog.Logger) *Static {
	index := strings.TrimPrefix(path.Clean("/"+cfg.Index), "/")
	return &Static{
		fsys:    fsys,
		files:   http.FileServerFS(fsys),
		index:   index,
		exclude: cfg.FallbackExclude,
		logger:  logger,
	}
}

func (s *Static) Handle(x *pipeline.Exchange) (pipeline.Result, error) {
	r := x.Request
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return pipeline.Continue, nil
	}

	switch name, kind := s.resolve(r.URL.Path); kind {
	case regularFile:
		return pipeline.Handled, s.serveFile(x, name)
	case indexDir:
		s.files.ServeHTTP(x.Response, r)
		return pipeline.Handled, nil
	}
	if s.excluded(r.URL.Path) {
		return pipeline.Continue, nil
	}
	return pipeline.Handled, s.serveFallback(x)
}

type match int

const (
	noMatch match = iota
	regularFile
	indexDir
)

// resolve maps a URL path to a name in fsys. Directories match only when they
// hold an index.html. Dotfiles never match.
func (s *Static) resolve(p string) (string, match) {
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		name = "."
	}
	for _, seg := range strings.Split(name, "/") {
		if len(seg) > 1 && seg[0] == '.' {
			return name, noMatch
		}
	}

	fi, err := fs.Stat(s.fsys, name)
	if err != nil {
		return name, noMatch
	}
	if fi.IsDir() {
		idx, err := fs.Stat(s.fsys, path.Join(name, "index.html"))
		if err == nil && idx.Mode().IsRegular() {
			return name, indexDir
		}
		return name, noMatch
	}
	if fi.Mode().IsRegular() {
		return name, regularFile
	}
	return name, noMatch
}

// serveFile writes a regular file with ServeContent. http.FileServerFS and
// http.ServeFileFS both redirect ".../index.html" to the directory, which
// would turn an exact file request into a 301.
func (s *Static) serveFile(x *pipeline.Exchange, name string) error {
	f, err := s.fsys.Open(name)
	if err != nil {
		return pipeline.NewError(http.StatusNotFound, fmt.Errorf("open %s: %w", name, err))
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return pipeline.NewError(http.StatusInternalServerError, fmt.Errorf("stat %s: %w", name, err))
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			return pipeline.NewError(http.StatusInternalServerError, fmt.Errorf("read %s: %w", name, err))
		}
		content = bytes.NewReader(data)
	}
	http.ServeContent(x.Response, x.Request, fi.Name(), fi.ModTime(), content)
	return nil
}

func (s *Static) excluded(p string) bool {
	for _, prefix := range s.exclude {
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (s *Static) serveFallback(x *pipeline.Exchange) error {
	doc, mod, err := s.document()
	if err != nil {
		return pipeline.NewError(http.StatusNotFound, fmt.Errorf("fallback document %s: %w", s.index, err))
	}
	x.Response.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(x.Response, x.Request, s.index, mod, bytes.NewReader(doc))
	return nil
}

func (s *Static) document() ([]byte, time.Time, error) {
	var gen uint64
	if s.cache {
		s.mu.RLock()
		doc, mod := s.doc, s.docMod
		gen = s.gen
		s.mu.RUnlock()
		if doc != nil {
			return doc, mod, nil
		}
	}

	doc, err := fs.ReadFile(s.fsys, s.index)
	if err != nil {
		return nil, time.Time{}, err
	}
	var mod time.Time
	if fi, err := fs.Stat(s.fsys, s.index); err == nil {
		mod = fi.ModTime()
	}

	if s.cache {
		s.mu.Lock()
		// A change seen while reading means doc may be stale; serve it but
		// leave the cache empty for the next request.
		if s.gen == gen {
			s.doc, s.docMod = doc, mod
		}
		s.mu.Unlock()
	}
	return doc, mod, nil
}

func (s *Static) invalidate() {
	s.mu.Lock()
	s.gen++
	s.doc, s.docMod = nil, time.Time{}
	s.mu.Unlock()
}

// Close stops the watcher, if any.
func (s *Static) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.close()
}
