// Package taxonomy holds the registered (context, action) vocabulary that
// connectors use to tag records.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Context is one subsystem tag and the actions it may log.
type Context struct {
	Name    string            `yaml:"name" json:"name"`
	Label   string            `yaml:"label" json:"label"`
	Actions map[string]string `yaml:"actions" json:"actions"` // action -> label
}

// file is the on-disk YAML layout.
type file struct {
	Contexts []Context `yaml:"contexts"`
}

// Registry is a concurrency-safe table of contexts and their actions.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*Context)}
}

// Default returns a registry pre-populated with the built-in connector
// vocabulary.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range builtin {
		r.Add(c)
	}
	return r
}

// Add registers a context, merging its actions into any existing entry.
// Names are stored as given, minus surrounding whitespace; lookups are
// exact.
func (r *Registry) Add(c Context) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.contexts[name]
	if !ok {
		existing = &Context{Name: name, Actions: make(map[string]string)}
		r.contexts[name] = existing
	}
	if c.Label != "" {
		existing.Label = c.Label
	}
	if existing.Label == "" {
		existing.Label = name
	}
	for action, label := range c.Actions {
		action = strings.TrimSpace(action)
		if action == "" {
			continue
		}
		if label == "" {
			label = action
		}
		existing.Actions[action] = label
	}
}

// Known reports whether action is registered under context.
func (r *Registry) Known(context, action string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[context]
	if !ok {
		return false
	}
	_, ok = c.Actions[action]
	return ok
}

// Contexts returns a copy of every registered context, sorted by name.
func (r *Registry) Contexts() []Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Context, 0, len(r.contexts))
	for _, c := range r.contexts {
		actions := make(map[string]string, len(c.Actions))
		for k, v := range c.Actions {
			actions[k] = v
		}
		out = append(out, Context{Name: c.Name, Label: c.Label, Actions: actions})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered contexts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

// Parse merges a YAML document into the registry.
func (r *Registry) Parse(data []byte) error {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	for i, c := range f.Contexts {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("taxonomy context %d: name cannot be empty", i)
		}
		r.Add(c)
	}
	return nil
}

// Load reads a YAML taxonomy file and merges it into the registry.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read taxonomy file %s: %w", path, err)
	}
	return r.Parse(data)
}

var builtin = []Context{
	{Name: "posts", Label: "Posts", Actions: map[string]string{
		"created": "Created", "updated": "Updated", "trashed": "Trashed",
		"untrashed": "Restored", "deleted": "Deleted",
	}},
	{Name: "comments", Label: "Comments", Actions: map[string]string{
		"created": "Created", "edited": "Edited", "replied": "Replied",
		"approved": "Approved", "unapproved": "Unapproved", "trashed": "Trashed",
		"untrashed": "Restored", "spammed": "Marked as Spam", "unspammed": "Unmarked as Spam",
		"deleted": "Deleted", "duplicate": "Duplicate", "flood": "Throttled",
	}},
	{Name: "users", Label: "Users", Actions: map[string]string{
		"created": "Created", "updated": "Updated", "deleted": "Deleted",
		"login": "Log In", "logout": "Log Out", "forgot-password": "Lost Password",
		"password-reset": "Password Reset",
	}},
	{Name: "sites", Label: "Sites", Actions: map[string]string{
		"created": "Created", "updated": "Updated", "archive_blog": "Archived", "deleted": "Deleted",
	}},
	{Name: "settings", Label: "Settings", Actions: map[string]string{
		"updated": "Updated",
	}},
	{Name: "plugins", Label: "Plugins", Actions: map[string]string{
		"installed": "Installed", "activated": "Activated", "deactivated": "Deactivated",
		"updated": "Updated", "deleted": "Deleted", "edited": "Edited",
	}},
	{Name: "themes", Label: "Themes", Actions: map[string]string{
		"installed": "Installed", "activated": "Activated", "updated": "Updated",
		"deleted": "Deleted", "edited": "Edited",
	}},
	{Name: "media", Label: "Media", Actions: map[string]string{
		"attached": "Attached", "uploaded": "Uploaded", "updated": "Updated",
		"deleted": "Deleted", "assigned": "Assigned", "unassigned": "Unassigned",
	}},
	{Name: "menus", Label: "Menus", Actions: map[string]string{
		"created": "Created", "updated": "Updated", "deleted": "Deleted",
		"assigned": "Assigned", "unassigned": "Unassigned",
	}},
	{Name: "widgets", Label: "Widgets", Actions: map[string]string{
		"added": "Added", "removed": "Removed", "moved": "Moved",
		"sorted": "Sorted", "updated": "Updated", "deactivated": "Deactivated",
	}},
	{Name: "taxonomies", Label: "Taxonomies", Actions: map[string]string{
		"created": "Created", "updated": "Updated", "deleted": "Deleted",
	}},
	{Name: "editor", Label: "Editor", Actions: map[string]string{
		"updated": "Updated",
	}},
	{Name: "installer", Label: "Installer", Actions: map[string]string{
		"installed": "Installed", "activated": "Activated", "deactivated": "Deactivated",
		"deleted": "Deleted", "updated": "Updated",
	}},
}
