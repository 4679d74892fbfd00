package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"keyrelay/internal/llm"
	"keyrelay/internal/secrets"
)

// SecretsOptions holds options for the secrets command.
type SecretsOptions struct {
	Action string    // "set", "get", "delete" or "list"
	Name   string    // e.g. llm.DefaultSecretName
	Value  string    // for set; "-" or empty reads Stdin
	Reveal bool      // get prints the raw value instead of masked keys
	Stdin  io.Reader // source for set when Value is "-" or empty
}

// RunSecrets manages the encrypted secrets store. get masks each key in a
// comma-delimited value unless Reveal is set. Returns exit code.
func RunSecrets(opts SecretsOptions, stdout, stderr io.Writer) int {
	if opts.Action != "list" && strings.TrimSpace(opts.Name) == "" {
		fmt.Fprintln(stderr, "Error: a secret name is required")
		return 1
	}
	store, err := openSecrets()
	if err != nil {
		fmt.Fprintf(stderr, "Error: open secrets store: %v\n", err)
		return 1
	}

	switch opts.Action {
	case "set":
		value := opts.Value
		if (value == "" || value == "-") && opts.Stdin != nil {
			b, err := io.ReadAll(opts.Stdin)
			if err != nil {
				fmt.Fprintf(stderr, "Error: read value: %v\n", err)
				return 1
			}
			value = string(b)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			fmt.Fprintln(stderr, "Error: secret value must not be empty")
			return 1
		}
		if err := store.Set(opts.Name, value); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "ok")
	case "get":
		value, err := store.Get(opts.Name)
		if errors.Is(err, secrets.ErrNotFound) {
			fmt.Fprintf(stderr, "Error: secret %q not found\n", opts.Name)
			return 1
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if opts.Reveal {
			fmt.Fprintln(stdout, value)
			return 0
		}
		keys := llm.SplitKeys(value)
		masked := make([]string, len(keys))
		for i, k := range keys {
			masked[i] = llm.MaskKey(k)
		}
		fmt.Fprintln(stdout, strings.Join(masked, ","))
	case "delete":
		if err := store.Delete(opts.Name); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "ok")
	case "list":
		names, err := store.List()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, n := range names {
			fmt.Fprintln(stdout, n)
		}
	default:
		fmt.Fprintf(stderr, "Error: unknown action %q (use 'set', 'get', 'delete' or 'list')\n", opts.Action)
		return 1
	}
	return 0
}
