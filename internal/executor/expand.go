package executor

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

var percentToken = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// Expander substitutes special folder tokens and environment variables in
// command paths and arguments. Both %Name% and $Name / ${Name} are accepted.
// Special folders take precedence over variables of the same name.
type Expander struct {
	folders map[string]string
	lookup  func(string) (string, bool)
}

// NewExpander resolves the special folders of the current user
func NewExpander() *Expander {
	return &Expander{
		folders: SpecialFolders(),
		lookup:  os.LookupEnv,
	}
}

// Expand returns s with every known token replaced. Unknown %Name% tokens are
// left as they are, unknown $Name expand to the empty string.
func (e *Expander) Expand(s string) string {
	s = percentToken.ReplaceAllStringFunc(s, func(token string) string {
		value, ok := e.resolve(token[1 : len(token)-1])
		if !ok {
			return token
		}
		return value
	})

	return os.Expand(s, func(name string) string {
		value, _ := e.resolve(name)
		return value
	})
}

func (e *Expander) resolve(name string) (string, bool) {
	if value, ok := e.folders[name]; ok {
		return value, true
	}
	return e.lookup(name)
}

// SpecialFolders returns the well known user and system locations that can
// be used as tokens. Folders that cannot be determined are omitted.
func SpecialFolders() map[string]string {
	folders := make(map[string]string)

	set := func(name, path string, err error) {
		if err == nil && path != "" {
			folders[name] = path
		}
	}

	home, err := os.UserHomeDir()
	set("UserProfile", home, err)
	if err == nil {
		set("MyDocuments", filepath.Join(home, "Documents"), nil)
	}

	config, err := os.UserConfigDir()
	set("ApplicationData", config, err)

	cache, err := os.UserCacheDir()
	set("LocalApplicationData", cache, err)

	set("Temp", os.TempDir(), nil)

	if runtime.GOOS == "windows" {
		set("ProgramFiles", os.Getenv("ProgramFiles"), nil)
		set("ProgramFilesX86", os.Getenv("ProgramFiles(x86)"), nil)
		set("Windows", os.Getenv("SystemRoot"), nil)
		if root := os.Getenv("SystemRoot"); root != "" {
			set("System", filepath.Join(root, "System32"), nil)
			set("SystemX86", filepath.Join(root, "SysWOW64"), nil)
		}
		if appData := folders["ApplicationData"]; appData != "" {
			set("Programs", filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs"), nil)
		}
	}

	return folders
}
