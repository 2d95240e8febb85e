package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

// newPluginCmd scaffolds a new shared-object plugin package under the
// plugins directory: a manifest, an entry module exporting the Plugin
// symbol, and a build script.
func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Plugin development helpers",
	}

	var dir string
	initCmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new plugin package from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.ToLower(strings.ReplaceAll(args[0], " ", "-"))
			if name == "" {
				return fmt.Errorf("plugin name is required")
			}
			return scaffoldPlugin(filepath.Join(dir, name), name)
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", "plugins", "plugins root directory")

	cmd.AddCommand(initCmd)
	return cmd
}

func scaffoldPlugin(dir, name string) error {
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	data := map[string]string{
		"Name":      name,
		"NameTitle": toTitle(name),
	}
	for file, tmpl := range scaffoldTemplates {
		if err := writeTemplate(filepath.Join(dir, file), tmpl, data); err != nil {
			return err
		}
	}
	if err := os.Chmod(filepath.Join(dir, "build.sh"), 0o755); err != nil {
		return err
	}

	fmt.Printf("Created plugin package %s/\n\n", dir)
	fmt.Println("Next steps:")
	fmt.Printf("  cd %s\n", dir)
	fmt.Println("  ./build.sh")
	fmt.Println()
	fmt.Println("The plugin.so file is built in place, ready for discovery.")
	return nil
}

func writeTemplate(path, tmpl string, data any) error {
	t, err := template.New(filepath.Base(path)).Parse(tmpl)
	if err != nil {
		return fmt.Errorf("parse template for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return t.Execute(f, data)
}

func toTitle(s string) string {
	words := strings.Split(s, "-")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, "")
}

var scaffoldTemplates = map[string]string{
	"manifest.json": `{
  "name": "{{.Name}}",
  "version": "0.1.0",
  "description": "A ForgeFlow plugin",
  "enabled": true
}
`,

	"main.go": `package main

import (
	"context"

	plugin "github.com/forgekit/forgeflow/pkg/plugin"
)

type {{.NameTitle}}Plugin struct{}

func (p *{{.NameTitle}}Plugin) Manifest() plugin.Metadata {
	return plugin.Metadata{
		Name:        "{{.Name}}",
		Version:     "0.1.0",
		Description: "A ForgeFlow plugin",
	}
}

func (p *{{.NameTitle}}Plugin) OnEnable(ctx context.Context, pc *plugin.Context) error {
	pc.Log.Info("{{.Name}} enabled")
	return nil
}

// Plugin is the symbol the loader looks up in plugin.so.
var Plugin plugin.Plugin = &{{.NameTitle}}Plugin{}
`,

	"build.sh": `#!/bin/sh
set -e
go build -buildmode=plugin -o plugin.so .
echo "built plugin.so"
`,
}
