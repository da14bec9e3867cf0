package report

import (
	"path"
	"sort"
	"strings"

	"github.com/justapithecus/gitbrag/gh"
)

// extensionLanguages maps file extensions to language names for the
// breakdown aggregate. Lookup is case-insensitive.
var extensionLanguages = map[string]string{
	".py":  "Python",
	".pyx": "Python",
	".pyi": "Python",

	".js":  "JavaScript",
	".jsx": "JavaScript",
	".mjs": "JavaScript",
	".cjs": "JavaScript",
	".ts":  "TypeScript",
	".tsx": "TypeScript",

	".java":   "Java",
	".kt":     "Kotlin",
	".kts":    "Kotlin",
	".scala":  "Scala",
	".groovy": "Groovy",
	".clj":    "Clojure",
	".cljs":   "Clojure",

	".c":   "C",
	".h":   "C",
	".cpp": "C++",
	".cc":  "C++",
	".cxx": "C++",
	".hpp": "C++",
	".hh":  "C++",

	".cs": "C#",
	".fs": "F#",

	".go": "Go",
	".rs": "Rust",

	".rb":      "Ruby",
	".rake":    "Ruby",
	".gemspec": "Ruby",
	".erb":     "Ruby",

	".php":   "PHP",
	".swift": "Swift",
	".m":     "Objective-C",
	".mm":    "Objective-C",
	".r":     "R",
	".rmd":   "R",

	".sh":   "Shell",
	".bash": "Bash",
	".zsh":  "Zsh",
	".fish": "Fish",
	".ps1":  "PowerShell",
	".psm1": "PowerShell",
	".bat":  "Batch",
	".cmd":  "Batch",

	".pl":   "Perl",
	".pm":   "Perl",
	".lua":  "Lua",
	".jl":   "Julia",
	".hs":   "Haskell",
	".ml":   "OCaml",
	".mli":  "OCaml",
	".ex":   "Elixir",
	".exs":  "Elixir",
	".erl":  "Erlang",
	".elm":  "Elm",
	".dart": "Dart",
	".zig":  "Zig",
	".nim":  "Nim",
	".cr":   "Crystal",
	".d":    "D",

	".html": "HTML",
	".htm":  "HTML",
	".css":  "CSS",
	".scss": "SCSS",
	".sass": "Sass",
	".less": "Less",

	".vue":    "Vue",
	".svelte": "Svelte",
	".astro":  "Astro",

	".sql":     "SQL",
	".graphql": "GraphQL",
	".gql":     "GraphQL",
	".proto":   "Protocol Buffers",

	".md":       "Markdown",
	".markdown": "Markdown",
	".rst":      "reStructuredText",
	".txt":      "Text",
	".tex":      "LaTeX",
	".adoc":     "AsciiDoc",

	".json":  "JSON",
	".yaml":  "YAML",
	".yml":   "YAML",
	".toml":  "TOML",
	".xml":   "XML",
	".ini":   "INI",
	".cfg":   "Config",
	".conf":  "Config",
	".env":   "Environment",
	".tf":    "Terraform",
	".bicep": "Bicep",

	".mk":    "Makefile",
	".cmake": "CMake",
	".bzl":   "Bazel",

	".asm":  "Assembly",
	".s":    "Assembly",
	".wasm": "WebAssembly",

	".vhd":  "VHDL",
	".glsl": "GLSL",
	".hlsl": "HLSL",

	".ipynb": "Jupyter",
	".vim":   "Vim Script",
	".el":    "Emacs Lisp",
	".scm":   "Scheme",
	".rkt":   "Racket",
}

// specialFilenames covers well-known files without a telling extension.
var specialFilenames = map[string]string{
	"dockerfile":     "Dockerfile",
	"containerfile":  "Containerfile",
	"makefile":       "Makefile",
	"rakefile":       "Ruby",
	"gemfile":        "Ruby",
	"podfile":        "Ruby",
	"vagrantfile":    "Ruby",
	"brewfile":       "Ruby",
	"procfile":       "Procfile",
	"justfile":       "Just",
	"cmakelists.txt": "CMake",
	"build.gradle":   "Gradle",
	".bashrc":        "Bash",
	".zshrc":         "Zsh",
	".gitignore":     "Git",
	".gitattributes": "Git",
	".dockerignore":  "Docker",
	".editorconfig":  "EditorConfig",
}

// DetectLanguage maps a filename onto a language, or "" when unknown.
func DetectLanguage(filename string) string {
	base := strings.ToLower(path.Base(filename))
	if lang, ok := specialFilenames[base]; ok {
		return lang
	}
	ext := strings.ToLower(path.Ext(base))
	if ext == "" {
		return ""
	}
	return extensionLanguages[ext]
}

// LanguageShare is one language's slice of the breakdown.
type LanguageShare struct {
	Language   string  `json:"language" msgpack:"language"`
	Percentage float64 `json:"percentage" msgpack:"percentage"`
}

// CalculateLanguagePercentages derives the language breakdown from the
// enriched file lists, weighted by changed-file count, keeping the top n
// languages sorted by share descending (name ascending on ties).
func CalculateLanguagePercentages(prs []gh.PullRequest, n int) []LanguageShare {
	counts := make(map[string]int)
	total := 0
	for i := range prs {
		for _, filename := range prs[i].Files {
			lang := DetectLanguage(filename)
			if lang == "" {
				continue
			}
			counts[lang]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	shares := make([]LanguageShare, 0, len(counts))
	for lang, count := range counts {
		shares = append(shares, LanguageShare{
			Language:   lang,
			Percentage: float64(count) / float64(total) * 100,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Percentage != shares[j].Percentage {
			return shares[i].Percentage > shares[j].Percentage
		}
		return shares[i].Language < shares[j].Language
	})
	if len(shares) > n {
		shares = shares[:n]
	}
	return shares
}
