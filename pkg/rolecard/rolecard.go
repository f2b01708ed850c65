// Package rolecard loads and enforces per-bot behavioral contracts (spec
// §3 RoleCard, §4.5, L7): six declarative layers checked before any
// side-effecting tool call, with a three-tier override chain.
package rolecard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/crewcore/crew/pkg/logger"
)

// HardBan is one forbidden action rule.
type HardBan struct {
	Rule        string `yaml:"rule"`
	Severity    string `yaml:"severity"`
	Consequence string `yaml:"consequence"`
}

// EscalationTrigger is a situation pattern with a confidence threshold below
// which the AgentLoop must escalate rather than act autonomously.
type EscalationTrigger struct {
	Pattern   string  `yaml:"pattern"`
	Threshold float64 `yaml:"threshold"`
}

// RoleCard is the six-layer per-bot contract (spec §3).
type RoleCard struct {
	Bot               string              `yaml:"bot"`
	Domain            string              `yaml:"domain"`
	Inputs            []string            `yaml:"inputs"`
	Outputs           []string            `yaml:"outputs"`
	DefinitionOfDone  []string            `yaml:"definition_of_done"`
	HardBans          []HardBan           `yaml:"hard_bans"`
	EscalationTriggers []EscalationTrigger `yaml:"escalation_triggers"`
	Metrics           []string            `yaml:"metrics"`
}

// Registry loads RoleCards with the workspace override → user-global
// override → built-in default lookup chain (spec §3, §6 file layout).
type Registry struct {
	workspaceDir string // <workspace>/.crew/role_cards
	globalDir    string // ~/.config/crew/role_cards
	defaults     map[string]RoleCard

	mu      sync.RWMutex
	cache   map[string]RoleCard
	watcher *fsnotify.Watcher
}

// NewRegistry builds a Registry rooted at workspace, using defaults as the
// compiled-in fallback tier.
func NewRegistry(workspace string, defaults map[string]RoleCard) *Registry {
	home, _ := os.UserHomeDir()
	return &Registry{
		workspaceDir: filepath.Join(workspace, ".crew", "role_cards"),
		globalDir:    filepath.Join(home, ".config", "crew", "role_cards"),
		defaults:     defaults,
		cache:        map[string]RoleCard{},
	}
}

// Get loads a bot's RoleCard, applying the override chain: fields present in
// a higher-priority tier win; missing fields fall back to the next tier
// (spec §6: "unknown fields are ignored; missing fields fall back to the
// next override tier"). Resolved cards are cached until Watch invalidates
// one after an on-disk override changes.
func (r *Registry) Get(bot string) (RoleCard, error) {
	r.mu.RLock()
	cached, ok := r.cache[bot]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	base, ok := r.defaults[bot]
	if !ok {
		base = RoleCard{Bot: bot}
	}

	for _, dir := range []string{r.globalDir, r.workspaceDir} {
		path := filepath.Join(dir, bot+".yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var override RoleCard
		if err := yaml.Unmarshal(data, &override); err != nil {
			return base, fmt.Errorf("parse role card %s: %w", path, err)
		}
		base = mergeRoleCard(base, override)
	}

	r.mu.Lock()
	r.cache[bot] = base
	r.mu.Unlock()
	return base, nil
}

// Watch starts an fsnotify watch on the workspace and global override
// directories, evicting a bot's cached RoleCard the moment its override file
// changes so the next Get re-reads from disk (spec §6: role cards are
// "live-editable"). Returns immediately; the watch loop runs until Close is
// called.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start role card watcher: %w", err)
	}
	for _, dir := range []string{r.workspaceDir, r.globalDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			logger.WarnCF("rolecard", "failed to watch role card dir", map[string]interface{}{"dir": dir, "error": err.Error()})
		}
	}
	r.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				bot := strings.TrimSuffix(filepath.Base(ev.Name), ".yaml")
				if bot == "" {
					continue
				}
				r.mu.Lock()
				delete(r.cache, bot)
				r.mu.Unlock()
				logger.InfoCF("rolecard", "role card override changed, cache invalidated", map[string]interface{}{"bot": bot, "op": ev.Op.String()})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.WarnCF("rolecard", "role card watcher error", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
	return nil
}

// Close stops the watcher started by Watch, if any.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}

// Save writes card to the workspace override tier (the tier a bot-proposed
// or user-edited change activates into).
func (r *Registry) Save(card RoleCard) error {
	if err := os.MkdirAll(r.workspaceDir, 0755); err != nil {
		return fmt.Errorf("create role card dir: %w", err)
	}
	data, err := yaml.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal role card: %w", err)
	}
	path := filepath.Join(r.workspaceDir, card.Bot+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write role card: %w", err)
	}
	r.mu.Lock()
	delete(r.cache, card.Bot)
	r.mu.Unlock()
	logger.InfoCF("rolecard", "role card saved", map[string]interface{}{"bot": card.Bot, "path": path})
	return nil
}

// mergeRoleCard overlays override's non-zero fields onto base.
func mergeRoleCard(base, override RoleCard) RoleCard {
	if override.Domain != "" {
		base.Domain = override.Domain
	}
	if len(override.Inputs) > 0 {
		base.Inputs = override.Inputs
	}
	if len(override.Outputs) > 0 {
		base.Outputs = override.Outputs
	}
	if len(override.DefinitionOfDone) > 0 {
		base.DefinitionOfDone = override.DefinitionOfDone
	}
	if len(override.HardBans) > 0 {
		base.HardBans = override.HardBans
	}
	if len(override.EscalationTriggers) > 0 {
		base.EscalationTriggers = override.EscalationTriggers
	}
	if len(override.Metrics) > 0 {
		base.Metrics = override.Metrics
	}
	return base
}
