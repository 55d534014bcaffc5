// Package flagx splits a single argv between several independent flag sets
// and the positional command words that follow them.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// splitFlag reports whether arg is written as "-name=value" and returns the
// name part.
func splitFlag(arg string) (string, bool) {
	if !strings.HasPrefix(arg, "-") || !strings.Contains(arg, "=") {
		return "", false
	}
	return strings.SplitN(arg, "=", 2)[0], true
}

// takesValue reports whether the token after a bare flag is its value.
func takesValue(args []string, i int) bool {
	return i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
}

// FilterArgs keeps only the flags listed in allowedFlags together with their
// values, so each flag set can parse its own subset of os.Args without
// failing on flags it does not define. Both "-f value" and "-f=value" are
// recognised. The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, ok := splitFlag(arg); ok {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if takesValue(args, i) {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// Positional returns the arguments that are neither flags nor values of
// flags. boolFlags names flags that never consume the following token.
//
//	Positional([]string{"-b", "team", "push", "Acme"}, nil) // ["push", "Acme"]
func Positional(args []string, boolFlags []string) []string {
	isBool := make(map[string]struct{}, len(boolFlags))
	for _, f := range boolFlags {
		isBool[f] = struct{}{}
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i+1:]...)
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			out = append(out, arg)
			continue
		}
		if _, ok := splitFlag(arg); ok {
			continue
		}
		if _, ok := isBool[arg]; ok {
			continue
		}
		if takesValue(args, i) {
			i++
		}
	}
	return out
}

// JsonConfigFlags returns the path given with -c or -config, or "" when
// neither is present. Other arguments are ignored.
func JsonConfigFlags() string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "path to JSON config file")
	fs.StringVar(&config, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(FilterArgs(os.Args[1:], []string{"-c", "-config"}))

	return config
}
