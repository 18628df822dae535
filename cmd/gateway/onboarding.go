package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"

	"github.com/docuquery/llm-gateway/internal/config"
	"github.com/docuquery/llm-gateway/internal/utils"
)

// ensureProviderKeys prompts for any missing provider API keys when running
// interactively. Non-interactive runs keep going; the dispatcher will surface
// a config error if the key is actually needed.
func ensureProviderKeys(cfg *config.Config) {
	var missing []string
	for name, p := range cfg.Providers {
		if strings.TrimSpace(p.APIKey) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return
	}
	sort.Strings(missing)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "Warning: no API key configured for: %s\n",
			strings.Join(missing, ", "))
		return
	}

	for _, name := range missing {
		key := promptSecret(fmt.Sprintf("Enter API key for %q (leave empty to skip): ", name))
		if key == "" {
			continue
		}
		p := cfg.Providers[name]
		p.APIKey = key
		cfg.Providers[name] = p
		fmt.Fprintf(os.Stderr, "  using key %s for %s\n", utils.MaskKey(key), name)
	}
}

// promptSecret reads a line without echoing it.
func promptSecret(label string) string {
	fmt.Fprint(os.Stderr, label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
