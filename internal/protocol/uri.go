package protocol

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// FilePathToURI converts a file path to a file:// DocumentURI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)

	// Windows drive letters need a leading slash
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// DocumentURI to a file path. Other
// schemes are returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	if uri == "" {
		return ""
	}
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// Scheme returns the URI scheme, or "" when the URI has none.
func (u DocumentURI) Scheme() string {
	s := string(u)
	if i := strings.Index(s, ":"); i > 0 {
		return s[:i]
	}
	return ""
}

// Path returns the slash-separated path component of the URI.
func (u DocumentURI) Path() string {
	parsed, err := url.Parse(string(u))
	if err != nil || parsed.Path == "" {
		return string(u)
	}
	return parsed.Path
}

var languageByExt = map[string]string{
	".go": "go", ".rs": "rust", ".ts": "typescript", ".tsx": "typescriptreact",
	".js": "javascript", ".jsx": "javascriptreact", ".py": "python", ".rb": "ruby",
	".java": "java", ".c": "c", ".cpp": "cpp", ".cc": "cpp", ".cxx": "cpp",
	".h": "cpp", ".hpp": "cpp", ".cs": "csharp", ".swift": "swift", ".kt": "kotlin",
	".scala": "scala", ".php": "php", ".lua": "lua", ".sh": "shellscript",
	".bash": "shellscript", ".json": "json", ".yaml": "yaml", ".yml": "yaml",
	".toml": "toml", ".xml": "xml", ".html": "html", ".css": "css",
	".md": "markdown", ".sql": "sql", ".proto": "protobuf", ".zig": "zig",
	".ex": "elixir", ".exs": "elixir", ".hs": "haskell",
}

// DetectLanguageID returns the language identifier for a path or URI.
func DetectLanguageID(path string) string {
	if id, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return id
	}
	switch strings.ToLower(filepath.Base(path)) {
	case "dockerfile":
		return "dockerfile"
	case "makefile", "gnumakefile":
		return "makefile"
	}
	return "plaintext"
}
