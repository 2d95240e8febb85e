package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goplugin "plugin"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

// Descriptor file names probed in each plugin directory, first match wins.
var descriptorNames = []string{"manifest.json", "manifest.yaml"}

// soEntryName is the compiled entry module probed before falling back to the
// builtin factory registered under the descriptor's name.
const soEntryName = "plugin.so"

// descriptorSchema validates the structural shape of a descriptor before it
// is decoded; name and version are additionally required to be non-empty.
const descriptorSchema = `{
	"type": "object",
	"required": ["name", "version"],
	"properties": {
		"name":        {"type": "string", "minLength": 1},
		"version":     {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"author":      {"type": "string"},
		"enabled":     {"type": "boolean"}
	}
}`

// Factory constructs a builtin (compiled-in) plugin value.
type Factory func() pkgplugin.Plugin

// Result is the per-directory outcome of a discovery sweep.
type Result struct {
	Plugin string `json:"plugin"`
	OK     bool   `json:"ok"`
	Err    error  `json:"error,omitempty"`
}

// Loader turns a directory of plugin packages into live registry instances
// and mounted routes.
//
// An entry module is resolved in one of two ways, first match wins: a
// plugin.so shared object opened with the standard library plugin facility,
// or a builtin factory registered under the descriptor's name before
// discovery runs.
type Loader struct {
	dir        string
	mgr        *Manager
	autoEnable bool
	builtins   map[string]Factory
	schema     *gojsonschema.Schema
	log        *slog.Logger
}

// NewLoader creates a loader scanning dir. When autoEnable is set, every
// successfully loaded plugin is also enabled. If logger is nil, slog.Default
// is used.
func NewLoader(dir string, mgr *Manager, autoEnable bool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(descriptorSchema))
	if err != nil {
		// The schema is a compile-time constant; failing to parse it is a
		// programming error.
		panic(fmt.Sprintf("descriptor schema: %v", err))
	}
	return &Loader{
		dir:        dir,
		mgr:        mgr,
		autoEnable: autoEnable,
		builtins:   make(map[string]Factory),
		schema:     schema,
		log:        logger.With("component", "plugin-loader"),
	}
}

// Dir returns the plugins root this loader scans.
func (l *Loader) Dir() string { return l.dir }

// RegisterBuiltin makes a compiled-in plugin constructor available to
// discovery under the given descriptor name. Call before LoadAll.
func (l *Loader) RegisterBuiltin(name string, f Factory) {
	l.builtins[name] = f
}

// LoadAll enumerates the immediate subdirectories of the plugins root and
// loads each valid, enabled plugin package. One result is returned per
// directory that had a valid, enabled descriptor; a failing plugin never
// aborts the scan of the remaining directories. A missing root yields zero
// results.
func (l *Loader) LoadAll(ctx context.Context) []Result {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.log.Info("plugins directory does not exist, nothing to load", "dir", l.dir)
			return nil
		}
		l.log.Error("reading plugins directory", "dir", l.dir, "error", err)
		return nil
	}

	var results []Result
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(l.dir, entry.Name())

		meta, found, err := l.readDescriptor(dir)
		if !found {
			l.log.Warn("skipping directory without descriptor", "dir", dir)
			continue
		}
		if err != nil {
			l.log.Error("descriptor rejected", "dir", dir, "error", err)
			results = append(results, Result{Plugin: entry.Name(), OK: false, Err: err})
			continue
		}
		if !meta.IsEnabled() {
			l.log.Info("plugin disabled by descriptor, skipping", "name", meta.Name)
			continue
		}

		if err := l.loadOne(ctx, dir, meta, l.autoEnable); err != nil {
			l.log.Error("plugin failed to load", "name", meta.Name, "error", err)
			results = append(results, Result{Plugin: meta.Name, OK: false, Err: err})
			continue
		}
		results = append(results, Result{Plugin: meta.Name, OK: true})
	}
	return results
}

// loadOne resolves the entry module for one descriptor and drives the
// lifecycle manager through load (and enable, when requested).
func (l *Loader) loadOne(ctx context.Context, dir string, meta pkgplugin.Metadata, enable bool) error {
	p, err := l.resolve(dir, meta.Name)
	if err != nil {
		return err
	}

	manifest := p.Manifest()
	if manifest.Name != meta.Name {
		return &ModuleError{Dir: dir, Err: fmt.Errorf(
			"plugin name %q does not match descriptor name %q", manifest.Name, meta.Name)}
	}
	if manifest.Version != meta.Version {
		return &ModuleError{Dir: dir, Err: fmt.Errorf(
			"plugin version %q does not match descriptor version %q", manifest.Version, meta.Version)}
	}

	if _, err := l.mgr.Load(ctx, p, meta, dir); err != nil {
		return err
	}
	if enable {
		if err := l.mgr.Enable(ctx, meta.Name); err != nil {
			return err
		}
	}
	return nil
}

// readDescriptor probes dir for a descriptor file. found is false when no
// descriptor exists (skip with a warning, not an error).
func (l *Loader) readDescriptor(dir string) (meta pkgplugin.Metadata, found bool, err error) {
	for _, name := range descriptorNames {
		path := filepath.Join(dir, name)
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			if os.IsNotExist(readErr) {
				continue
			}
			return meta, true, &DescriptorError{Dir: dir, Err: readErr}
		}
		meta, err = l.parseDescriptor(raw, strings.HasSuffix(name, ".yaml"))
		if err != nil {
			return meta, true, &DescriptorError{Dir: dir, Err: err}
		}
		return meta, true, nil
	}
	return meta, false, nil
}

func (l *Loader) parseDescriptor(raw []byte, isYAML bool) (pkgplugin.Metadata, error) {
	var meta pkgplugin.Metadata
	var doc gojsonschema.JSONLoader
	if isYAML {
		var generic map[string]any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return meta, fmt.Errorf("parse yaml: %w", err)
		}
		doc = gojsonschema.NewGoLoader(generic)
		if err := yaml.Unmarshal(raw, &meta); err != nil {
			return meta, fmt.Errorf("decode yaml: %w", err)
		}
	} else {
		doc = gojsonschema.NewBytesLoader(raw)
		if err := json.Unmarshal(raw, &meta); err != nil {
			return meta, fmt.Errorf("parse json: %w", err)
		}
	}

	res, err := l.schema.Validate(doc)
	if err != nil {
		return meta, fmt.Errorf("validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return meta, errors.New(strings.Join(msgs, "; "))
	}
	return meta, nil
}

// resolve produces the Plugin value for a package directory: a plugin.so
// entry module when present, otherwise the builtin factory registered under
// the descriptor name.
func (l *Loader) resolve(dir, name string) (pkgplugin.Plugin, error) {
	soPath := filepath.Join(dir, soEntryName)
	if _, err := os.Stat(soPath); err == nil {
		p, err := openSharedObject(soPath)
		if err != nil {
			return nil, &ModuleError{Dir: dir, Err: err}
		}
		return p, nil
	}

	if f, ok := l.builtins[name]; ok {
		p := f()
		if p == nil {
			return nil, &ModuleError{Dir: dir, Err: fmt.Errorf("builtin factory for %q returned nil", name)}
		}
		return p, nil
	}
	return nil, &ModuleError{Dir: dir, Err: fmt.Errorf("no entry module: neither %s nor a builtin factory for %q", soEntryName, name)}
}

// openSharedObject loads a compiled plugin and looks up its Plugin symbol.
func openSharedObject(path string) (pkgplugin.Plugin, error) {
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	symbol, err := so.Lookup("Plugin")
	if err != nil {
		return nil, err
	}
	switch p := symbol.(type) {
	case pkgplugin.Plugin:
		return p, nil
	case *pkgplugin.Plugin:
		if p == nil || *p == nil {
			return nil, errors.New("plugin symbol is nil")
		}
		return *p, nil
	case func() pkgplugin.Plugin:
		return p(), nil
	default:
		return nil, errors.New("plugin symbol does not implement plugin.Plugin")
	}
}

// MountRoutes creates a fresh sub-router for every currently enabled plugin
// that provides routes, and mounts it under the plugin's name. api is the
// fixed /api/v1 group, so plugin handlers land at /api/v1/<plugin-name>/...
//
// Known limitation: Reload does not re-run this, so routes mounted before a
// reload are not replaced until the next restart.
func (l *Loader) MountRoutes(api gin.IRouter) {
	for _, inst := range l.mgr.Registry().Enabled() {
		rp, ok := inst.Plugin.(pkgplugin.RouteProvider)
		if !ok {
			continue
		}
		group := api.Group("/" + inst.Meta.Name)
		rp.Routes(group)
		l.log.Info("mounted plugin routes", "name", inst.Meta.Name)
	}
}

// Reload unloads a plugin (running its hooks), re-reads its descriptor from
// the original source path, re-resolves its entry module and loads and
// enables it again. It fails with *NotFoundError when the name is unknown.
func (l *Loader) Reload(ctx context.Context, name string) error {
	inst := l.mgr.Registry().Get(name)
	if inst == nil {
		return &NotFoundError{Plugin: name}
	}
	dir := inst.Path

	if err := l.mgr.Unload(ctx, name); err != nil {
		return err
	}

	meta, found, err := l.readDescriptor(dir)
	if !found {
		return &DescriptorError{Dir: dir, Err: errors.New("descriptor disappeared")}
	}
	if err != nil {
		return err
	}
	if !meta.IsEnabled() {
		l.log.Info("plugin disabled by descriptor, not reloading", "name", name)
		return nil
	}

	return l.loadOne(ctx, dir, meta, true)
}
