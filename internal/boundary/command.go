package boundary

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Command represents one simple command extracted from a shell command line.
type Command struct {
	Name string   // command name (e.g. "rm", "git")
	Args []string // arguments, flags included
}

// ParseCommand parses a shell command line into the simple commands it runs,
// including commands behind pipes, chains, subshells and substitutions.
func ParseCommand(command string) ([]Command, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []Command
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *Command {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &Command{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		cmd.Args = append(cmd.Args, wordToString(arg))
	}
	return cmd
}

// wordToString flattens a syntax.Word to a literal string. Dynamic parts are
// kept as placeholders so callers can still see a token exists.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// fsModifyingCommands create, move, remove or re-permission filesystem
// entries, or change the working directory. Their target paths must stay
// inside the approved root.
var fsModifyingCommands = map[string]bool{
	"cd":      true,
	"rm":      true,
	"rmdir":   true,
	"cp":      true,
	"mv":      true,
	"mkdir":   true,
	"touch":   true,
	"chmod":   true,
	"chown":   true,
	"ln":      true,
	"install": true,
	"tee":     true,
	"dd":      true,
}

// readOnlyCommands never modify the filesystem and are exempt from path
// checks.
var readOnlyCommands = map[string]bool{
	"cat": true, "ls": true, "head": true, "tail": true, "less": true,
	"more": true, "which": true, "whoami": true, "pwd": true, "echo": true,
	"printf": true, "env": true, "printenv": true, "date": true, "wc": true,
	"sort": true, "uniq": true, "diff": true, "file": true, "stat": true,
	"du": true, "df": true, "tree": true, "grep": true, "rg": true,
	"realpath": true, "dirname": true, "basename": true,
}

// findMutatingActions turn a find invocation into a filesystem-modifying
// command.
var findMutatingActions = map[string]bool{
	"-delete":  true,
	"-exec":    true,
	"-execdir": true,
	"-ok":      true,
	"-okdir":   true,
}

// ModifiesFilesystem reports whether cmd has filesystem-modifying semantics
// and therefore needs its target paths checked.
func ModifiesFilesystem(cmd Command) bool {
	name := baseName(cmd.Name)
	if readOnlyCommands[name] {
		return false
	}
	if name == "find" {
		for _, arg := range cmd.Args {
			if findMutatingActions[arg] {
				return true
			}
		}
		return false
	}
	return fsModifyingCommands[name]
}

// TargetPaths extracts the filesystem targets of a command, skipping flags
// and chmod mode arguments.
func TargetPaths(cmd Command) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if baseName(cmd.Name) == "chmod" && isChmodMode(arg) {
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}

func isChmodMode(arg string) bool {
	if arg == "" {
		return false
	}
	c := arg[0]
	return (c >= '0' && c <= '9') ||
		c == 'u' || c == 'g' || c == 'o' || c == 'a' || c == '+' || c == '='
}

// Dangerous reports whether cmd matches a categorically dangerous shape:
// privilege elevation, recursive force-delete, world-writable permission
// changes, or raw network listeners. The strict command policy denies these
// regardless of path targets.
func Dangerous(cmd Command) (bool, string) {
	switch baseName(cmd.Name) {
	case "sudo", "su", "doas":
		return true, "privilege elevation"
	case "rm":
		var recursive, force bool
		for _, arg := range cmd.Args {
			switch {
			case arg == "--recursive":
				recursive = true
			case arg == "--force":
				force = true
			case strings.HasPrefix(arg, "--"):
			case strings.HasPrefix(arg, "-"):
				if strings.ContainsAny(arg, "rR") {
					recursive = true
				}
				if strings.Contains(arg, "f") {
					force = true
				}
			}
		}
		if recursive && force {
			return true, "recursive force delete"
		}
	case "chmod":
		for _, arg := range cmd.Args {
			if arg == "777" || strings.HasSuffix(arg, "=777") || arg == "a+rwx" {
				return true, "world-writable permissions"
			}
		}
	case "nc", "ncat", "netcat":
		for _, arg := range cmd.Args {
			if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.Contains(arg, "l") {
				return true, "raw network listener"
			}
		}
	}
	return false, ""
}

func baseName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
