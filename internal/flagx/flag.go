// Package flagx lets several configuration loaders share os.Args without
// tripping over each other's flags.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Both "-c conf.json" and "-config=conf.json" forms are recognised. A value
// following a separate flag is kept only when it does not itself look like a
// flag.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// lookupPath parses a single string flag, registered under each of names,
// out of os.Args. Missing flag yields "".
func lookupPath(setName string, names ...string) string {
	var value string

	allowed := make([]string, 0, len(names))
	fs := flag.NewFlagSet(setName, flag.ContinueOnError)
	fs.SetOutput(nopWriter{})
	for _, n := range names {
		fs.StringVar(&value, n, "", "path")
		allowed = append(allowed, "-"+n)
	}
	_ = fs.Parse(FilterArgs(os.Args[1:], allowed))

	return value
}

// JsonConfigFlags returns the JSON config path given via -c or -config.
func JsonConfigFlags() string {
	return lookupPath("json", "config", "c")
}

// EnvFileFlags returns the dotenv file path given via -env.
func EnvFileFlags() string {
	return lookupPath("dotenv", "env")
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
