package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logpkg "github.com/haukened/exfil-watch/internal/dns/common/log"
	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// hostsExt marks files parsed as hosts format; everything else is a plain list.
const hostsExt = ".hosts"

// LoadDir parses every regular, non-hidden file in dir in lexical order.
// Files named "hosts" or ending in ".hosts" use the hosts format. Each rule's
// source is its file path. Duplicates across files keep the first occurrence.
func LoadDir(dir string, logger logpkg.Logger, now time.Time) ([]domain.AllowRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	seen := make(map[string]struct{})
	var out []domain.AllowRule
	for _, name := range names {
		path := filepath.Join(dir, name)
		rules, err := loadFile(path, name, logger, now)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			if _, ok := seen[r.Name]; ok {
				continue
			}
			seen[r.Name] = struct{}{}
			out = append(out, r)
		}
		logger.Info(map[string]any{"file": path, "entries": len(rules)}, "loaded whitelist file")
	}
	return out, nil
}

func loadFile(path, name string, logger logpkg.Logger, now time.Time) ([]domain.AllowRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open whitelist file %s: %w", path, err)
	}
	defer f.Close()

	var rules []domain.AllowRule
	if name == "hosts" || strings.HasSuffix(name, hostsExt) {
		rules, err = ParseHostsFile(f, path, logger, now)
	} else {
		rules, err = ParsePlainList(f, path, logger, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse whitelist file %s: %w", path, err)
	}
	return rules, nil
}
