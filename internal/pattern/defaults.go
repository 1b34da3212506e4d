package pattern

// Defaults returns the built-in residual pattern set. Users edit the
// materialized CSV to add their own rules or disable these.
func Defaults() []Pattern {
	return []Pattern{
		{ID: "ds-store", OS: "macOS", Kind: KindExact, Expression: ".DS_Store", Description: "Finder folder metadata", Enabled: true},
		{ID: "appledouble", OS: "macOS", Kind: KindGlob, Expression: "._*", Description: "AppleDouble resource fork sidecar", Enabled: true},
		{ID: "spotlight", OS: "macOS", Kind: KindExact, Expression: ".Spotlight-V100", Description: "Spotlight index directory", Enabled: true},
		{ID: "fseventsd", OS: "macOS", Kind: KindExact, Expression: ".fseventsd", Description: "Filesystem events journal", Enabled: true},
		{ID: "trashes", OS: "macOS", Kind: KindExact, Expression: ".Trashes", Description: "Volume trash directory", Enabled: true},
		{ID: "thumbs-db", OS: "Windows", Kind: KindExact, Expression: "Thumbs.db", Description: "Explorer thumbnail cache", Enabled: true},
		{ID: "desktop-ini", OS: "Windows", Kind: KindExact, Expression: "desktop.ini", Description: "Explorer folder settings", Enabled: true},
		{ID: "office-lock", OS: "Windows", Kind: KindGlob, Expression: "~$*", Description: "Office lock file", Enabled: true},
		{ID: "kde-directory", OS: "Linux", Kind: KindExact, Expression: ".directory", Description: "KDE folder settings", Enabled: true},
		{ID: "pycache", OS: "any", Kind: KindExact, Expression: "__pycache__", Description: "Python bytecode cache directory", Enabled: true},
		{ID: "pyc", OS: "any", Kind: KindGlob, Expression: "*.pyc", Description: "Python compiled bytecode", Enabled: false},
		{ID: "swap", OS: "any", Kind: KindRegex, Expression: `\.sw[a-p]$`, Description: "Vim swap file", Enabled: false},
	}
}
