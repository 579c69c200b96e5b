// Package discover locates VS Code-family installations and their stores.
package discover

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/logger"
	"github.com/maloquacious/telesync/internal/store"
)

// Env carries the platform facts discovery depends on.
type Env struct {
	GOOS    string
	Home    string
	AppData string // %APPDATA% on Windows
}

// CurrentEnv describes the running process.
func CurrentEnv() Env {
	home, _ := os.UserHomeDir()
	return Env{GOOS: runtime.GOOS, Home: home, AppData: os.Getenv("APPDATA")}
}

// AppDataDir returns the OS-specific directory editors keep their user data under.
func (e Env) AppDataDir() string {
	switch e.GOOS {
	case "darwin":
		if e.Home == "" {
			return ""
		}
		return filepath.Join(e.Home, "Library", "Application Support")
	case "windows":
		if e.AppData != "" {
			return e.AppData
		}
		if e.Home == "" {
			return ""
		}
		return filepath.Join(e.Home, "AppData", "Roaming")
	default:
		if e.Home == "" {
			return ""
		}
		return filepath.Join(e.Home, ".config")
	}
}

// Installation is one editor's user-data root and the stores found under it.
type Installation struct {
	Product      string
	Root         string
	StorageJSON  string   // "" when absent
	StateDB      string   // "" when absent
	WorkspaceDBs []string // sorted
}

// GlobalStores returns the paths of the stores that carry identity fields,
// JSON first.
func (i Installation) GlobalStores() []string {
	return lo.Compact([]string{i.StorageJSON, i.StateDB})
}

// AllStores returns every store path of the installation.
func (i Installation) AllStores() []string {
	return append(i.GlobalStores(), i.WorkspaceDBs...)
}

// Find inspects each product directory under the app data dir and each extra
// root, in order, and returns the installations that hold at least one store.
func Find(env Env, products, extraRoots []string, log logger.Logger) []Installation {
	if log == nil {
		log = logger.Nop
	}

	type candidate struct{ product, root string }
	var candidates []candidate
	if base := env.AppDataDir(); base != "" {
		for _, p := range products {
			candidates = append(candidates, candidate{p, filepath.Join(base, p)})
		}
	}
	for _, r := range extraRoots {
		candidates = append(candidates, candidate{filepath.Base(r), r})
	}
	candidates = lo.UniqBy(candidates, func(c candidate) string { return filepath.Clean(c.root) })

	var found []Installation
	for _, c := range candidates {
		inst, ok := inspect(c.product, c.root)
		if !ok {
			log.Debug("no stores under %s", c.root)
			continue
		}
		log.Info("found %s at %s (%d store(s))", inst.Product, inst.Root, len(inst.AllStores()))
		found = append(found, inst)
	}
	return found
}

func inspect(product, root string) (Installation, bool) {
	inst := Installation{Product: product, Root: root}
	global := filepath.Join(root, "User", "globalStorage")

	if p := filepath.Join(global, store.StorageJSONFile); fileExists(p) {
		inst.StorageJSON = p
	}
	if p := filepath.Join(global, store.StateDBFile); fileExists(p) {
		inst.StateDB = p
	}

	matches, _ := filepath.Glob(filepath.Join(root, "User", "workspaceStorage", "*", store.StateDBFile))
	inst.WorkspaceDBs = lo.Filter(matches, func(p string, _ int) bool { return fileExists(p) })
	sort.Strings(inst.WorkspaceDBs)

	return inst, len(inst.AllStores()) > 0
}

// fileExists checks if a regular file exists.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
