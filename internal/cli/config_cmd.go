package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"keyrelay/internal/config"
)

// ConfigOptions holds options for the config command.
type ConfigOptions struct {
	ConfigSource
	Action string // "get", "set", "unset" or "schema"
	Key    string // dot notation (e.g. "gateway.port")
	Value  string // value to set (for set action)
}

// RunConfig runs the config subcommand: non-interactive get/set/unset on the
// config file, plus schema output. Edits are validated before they are written.
// Returns exit code (0 for success, 1 for error).
func RunConfig(opts ConfigOptions, stdout, stderr io.Writer) int {
	if opts.Action == "schema" {
		fmt.Fprintln(stdout, config.Schema())
		return 0
	}

	configPath := opts.ConfigPath()
	doc, err := configReadDocument(configPath)
	if err != nil {
		if isMissing(err) {
			fmt.Fprintf(stderr, "Error: no configuration found at %s\n", configPath)
			fmt.Fprintf(stderr, "Run 'keyrelay check --fix' first to create one.\n")
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.Key == "" {
		fmt.Fprintln(stderr, "Error: a config key is required (e.g. gateway.port)")
		return 1
	}
	parts := strings.Split(opts.Key, ".")

	switch opts.Action {
	case "get":
		return runConfigGet(doc, parts, stdout, stderr)
	case "set":
		if err := setValueAtPath(doc, parts, parseValue(opts.Value)); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case "unset":
		if err := unsetValueAtPath(doc, parts); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Error: unknown action %q (use 'get', 'set', 'unset' or 'schema')\n", opts.Action)
		return 1
	}

	if err := configWriteDocument(configPath, doc); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runConfigGet(doc map[string]any, parts []string, stdout, stderr io.Writer) int {
	value := getValueAtPath(doc, parts)
	if value == nil {
		fmt.Fprintf(stderr, "Error: path %q not found in config\n", strings.Join(parts, "."))
		return 1
	}
	switch v := value.(type) {
	case string:
		fmt.Fprintln(stdout, v)
	case float64:
		if v == float64(int64(v)) {
			fmt.Fprintf(stdout, "%d\n", int64(v))
		} else {
			fmt.Fprintf(stdout, "%g\n", v)
		}
	case bool:
		fmt.Fprintf(stdout, "%t\n", v)
	default:
		b, _ := json.Marshal(v)
		fmt.Fprintln(stdout, string(b))
	}
	return 0
}

// parseValue reads value as a number or bool when it parses as one, else as a string.
func parseValue(value string) any {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return float64(i)
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

func getValueAtPath(data map[string]any, path []string) any {
	if len(path) == 0 {
		return nil
	}
	value, exists := data[path[0]]
	if !exists || len(path) == 1 {
		return value
	}
	next, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return getValueAtPath(next, path[1:])
}

// setValueAtPath sets value, creating intermediate objects. A scalar in the
// way is replaced by an object.
func setValueAtPath(data map[string]any, path []string, value any) error {
	if len(path) == 0 || path[0] == "" {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		data[path[0]] = value
		return nil
	}
	next, ok := data[path[0]].(map[string]any)
	if !ok {
		next = make(map[string]any)
		data[path[0]] = next
	}
	return setValueAtPath(next, path[1:], value)
}

func unsetValueAtPath(data map[string]any, path []string) error {
	if len(path) == 0 || path[0] == "" {
		return fmt.Errorf("empty path")
	}
	if len(path) == 1 {
		delete(data, path[0])
		return nil
	}
	nextValue, exists := data[path[0]]
	if !exists {
		return fmt.Errorf("path %q not found", strings.Join(path, "."))
	}
	next, ok := nextValue.(map[string]any)
	if !ok {
		return fmt.Errorf("path %q is not an object", path[0])
	}
	return unsetValueAtPath(next, path[1:])
}
