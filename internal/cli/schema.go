// Package cli implements the docrag command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/docrag/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envAnnotation marks a flag whose zero value defers to a RAG_* setting.
const envAnnotation = "docrag_env"

// FlagSchema describes one flag. Env and Default are set when the flag
// falls back to a RAG_* setting while unset.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Env         string `json:"env,omitempty"`
	Description string `json:"description,omitempty"`
}

// CommandSchema is the --help-json document. Environment is only filled on
// the root command.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Environment []config.EnvVar `json:"environment,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// envFlag records that flag falls back to the RAG_<key> setting and appends
// the setting to its usage line.
func envFlag(cmd *cobra.Command, flag, key string) {
	v, ok := config.LookupEnvVar(key)
	if !ok {
		panic(fmt.Sprintf("cli: flag --%s bound to unknown setting %s", flag, key))
	}
	f := cmd.Flags().Lookup(flag)
	f.Usage = fmt.Sprintf("%s (default $%s", f.Usage, v.Name)
	if v.Default != "" {
		f.Usage += fmt.Sprintf(", %s", v.Default)
	}
	f.Usage += ")"
	_ = cmd.Flags().SetAnnotation(flag, envAnnotation, []string{v.Name})
}

// GenerateSchema describes cmd and its visible subcommands.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		Flags:       extractFlags(cmd),
	}
	if !cmd.HasParent() {
		schema.Environment = config.EnvVars()
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}
	return schema
}

func extractFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help-json" || f.Name == "help" || f.Name == "version" {
			return
		}
		flags = append(flags, flagSchema(f))
	})
	return flags
}

func flagSchema(f *pflag.Flag) FlagSchema {
	schema := FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
	}
	if env := f.Annotations[envAnnotation]; len(env) == 1 {
		schema.Env = env[0]
		if v, ok := config.LookupEnvVar(env[0]); ok {
			schema.Default = v.Default
		}
	}
	return schema
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// CheckHelpJSON writes the schema of the command args select when they
// contain --help-json. It runs before cobra so required args are not checked.
func CheckHelpJSON(rootCmd *cobra.Command, args []string, w io.Writer) (bool, error) {
	for i, arg := range args {
		if arg != "--help-json" {
			continue
		}
		output, err := json.MarshalIndent(GenerateSchema(findTargetCommand(rootCmd, args[:i])), "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to generate schema: %w", err)
		}
		_, err = fmt.Fprintln(w, string(output))
		return true, err
	}
	return false, nil
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}
	return cmd
}
