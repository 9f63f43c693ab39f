package dockerfile

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/cruciblehq/buildplan/internal/plan"
	"github.com/moby/buildkit/frontend/dockerfile/command"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Configures [Parse].
type Option func(*converter)

// Rejects instructions and commands that have no step equivalent instead of
// skipping them.
func WithStrict() Option {
	return func(c *converter) { c.strict = true }
}

// Reads a Dockerfile and returns the equivalent plan named name.
//
// The resulting plan is validated but not checked for ordering; that happens
// when it is executed.
func Parse(r io.Reader, name string, opts ...Option) (plan.Plan, error) {
	result, err := parser.Parse(r)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("%w: %w", ErrParse, err)
	}
	for _, w := range result.Warnings {
		slog.Warn("dockerfile", "warning", w.Short)
	}

	c := &converter{virtual: make(map[string][]string)}
	for _, opt := range opts {
		opt(c)
	}

	for _, node := range result.AST.Children {
		c.line = node.StartLine
		if err := c.instruction(node); err != nil {
			return plan.Plan{}, fmt.Errorf("line %d: %w", node.StartLine, err)
		}
	}

	p := plan.Plan{Name: name, Steps: classifyTransient(c.steps)}
	if err := p.Validate(); err != nil {
		return plan.Plan{}, err
	}
	return p, nil
}

// Accumulates steps while walking the instructions of a Dockerfile.
type converter struct {
	strict  bool                // Reject unsupported input.
	steps   []plan.Step         // Steps converted so far.
	virtual map[string][]string // Packages grouped under apk virtual names.
	based   bool                // Whether FROM was seen.
	line    int                 // Line of the instruction being converted.
}

func (c *converter) add(s plan.Step) {
	c.steps = append(c.steps, s)
}

// Skips unsupported input, or rejects it in strict mode.
func (c *converter) unsupported(what string) error {
	if c.strict {
		return fmt.Errorf("%w: %s", ErrUnsupported, what)
	}
	slog.Warn("skipping unsupported input", "line", c.line, "input", what)
	return nil
}

// Converts one instruction node.
func (c *converter) instruction(node *parser.Node) error {
	args := values(node)

	switch strings.ToLower(node.Value) {
	case command.From:
		if c.based {
			return ErrMultiStage
		}
		if len(args) == 0 {
			return fmt.Errorf("%w: FROM without image", ErrParse)
		}
		c.based = true
		c.add(plan.Step{Kind: plan.SetBase, Image: args[0]})

	case command.Env:
		if len(args) == 0 || len(args)%3 != 0 {
			return fmt.Errorf("%w: malformed ENV", ErrParse)
		}
		env := make(map[string]string, len(args)/3)
		for i := 0; i < len(args); i += 3 {
			env[args[i]] = unquote(args[i+1])
		}
		c.add(plan.Step{Kind: plan.SetEnv, Env: env})

	case command.Workdir:
		if len(args) != 1 {
			return fmt.Errorf("%w: malformed WORKDIR", ErrParse)
		}
		c.add(plan.Step{Kind: plan.SetWorkdir, Path: unquote(args[0])})

	case command.Run:
		if len(node.Heredocs) > 0 {
			return c.unsupported("RUN with heredoc")
		}
		if node.Attributes["json"] {
			return c.command(args)
		}
		return c.shell(strings.Join(args, " "))

	case command.Copy:
		if len(node.Flags) > 0 {
			if err := c.unsupported("COPY " + strings.Join(node.Flags, " ")); err != nil {
				return err
			}
		}
		if len(args) < 2 {
			return fmt.Errorf("%w: COPY needs a source and a destination", ErrParse)
		}
		srcs, dest := args[:len(args)-1], unquote(args[len(args)-1])
		for _, src := range srcs {
			src = unquote(src)
			d := dest
			if len(srcs) > 1 {
				d = path.Join(dest, path.Base(src))
			}
			c.add(plan.Step{Kind: plan.CopyFiles, Source: src, Dest: d})
		}

	case command.User:
		if len(args) != 1 {
			return fmt.Errorf("%w: malformed USER", ErrParse)
		}
		name, _, _ := strings.Cut(args[0], ":")
		c.add(plan.Step{Kind: plan.SetUser, Name: name})

	case command.Expose:
		for _, a := range args {
			step, err := exposeStep(a)
			if err != nil {
				return err
			}
			c.add(step)
		}

	case command.Entrypoint:
		cmd := args
		if !node.Attributes["json"] {
			cmd = fields(strings.Join(args, " "))
		}
		if len(cmd) != 1 {
			return c.unsupported("ENTRYPOINT with arguments")
		}
		c.add(plan.Step{Kind: plan.SetEntrypoint, Entrypoint: cmd[0]})

	default:
		return c.unsupported(node.Original)
	}

	return nil
}

// Converts the shell form of a RUN instruction.
//
// Commands joined by "&&" or ";" are converted in order. Commands after "||"
// and commands using pipes, redirections or background jobs have no step
// equivalent.
func (c *converter) shell(script string) error {
	for _, sc := range splitShell(script) {
		switch {
		case sc.after == "||":
			if err := c.unsupported("|| " + strings.Join(sc.words, " ")); err != nil {
				return err
			}
		case sc.operator != "":
			if err := c.unsupported(fmt.Sprintf("%q in %s", sc.operator, strings.Join(sc.words, " "))); err != nil {
				return err
			}
		default:
			if err := c.command(sc.words); err != nil {
				return err
			}
		}
	}
	return nil
}

// Converts one shell command of a RUN instruction.
func (c *converter) command(words []string) error {
	if len(words) == 0 {
		return nil
	}

	var (
		handled bool
		err     error
	)

	switch words[0] {
	case "apk":
		handled, err = c.apk(words[1:])
	case "pip", "pip3":
		handled, err = c.pip(words[1:])
	case "ln":
		handled = c.ln(words[1:])
	case "addgroup":
		handled = c.addgroup(words[1:])
	case "adduser":
		handled = c.adduser(words[1:])
	case "chown":
		handled = c.chown(words[1:])
	}

	if err != nil {
		return err
	}
	if !handled {
		return c.unsupported(strings.Join(words, " "))
	}
	return nil
}

func (c *converter) apk(args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}

	flags, pkgs := splitArgs(args[1:], "--virtual", "-t", "--repository", "-X")

	switch args[0] {
	case "add":
		if len(pkgs) == 0 {
			return false, nil
		}
		if name := flags["--virtual"] + flags["-t"]; name != "" {
			c.virtual[name] = append(c.virtual[name], pkgs...)
			c.add(plan.Step{Kind: plan.InstallTransientDeps, Packages: pkgs})
			return true, nil
		}
		// Reclassified by classifyTransient once removals are known.
		c.add(plan.Step{Kind: plan.InstallPersistentDeps, Packages: pkgs})
		return true, nil

	case "del":
		var expanded []string
		for _, p := range pkgs {
			if v, ok := c.virtual[p]; ok {
				expanded = append(expanded, v...)
				continue
			}
			expanded = append(expanded, p)
		}
		if len(expanded) == 0 {
			return false, nil
		}
		c.add(plan.Step{Kind: plan.RemoveTransientDeps, Packages: expanded})
		return true, nil
	}

	return false, nil
}

func (c *converter) pip(args []string) (bool, error) {
	if len(args) == 0 || args[0] != "install" {
		return false, nil
	}

	flags, specs := splitArgs(args[1:], "-i", "--index-url", "--extra-index-url", "-c", "--constraint", "-r", "--requirement", "-t", "--target")
	if flags["-r"] != "" || flags["--requirement"] != "" {
		return false, nil
	}
	if len(specs) == 0 {
		return false, nil
	}

	var steps []plan.Step
	for _, spec := range specs {
		name, version, ok := strings.Cut(spec, "==")
		if !ok || name == "" || version == "" {
			if c.strict {
				return true, fmt.Errorf("%w: %s", ErrUnpinned, spec)
			}
			slog.Warn("skipping unpinned package", "line", c.line, "package", spec)
			continue
		}
		steps = append(steps, plan.Step{Kind: plan.InstallPackage, Name: name, Version: version})
	}

	for _, s := range steps {
		c.add(s)
	}
	return true, nil
}

func (c *converter) ln(args []string) bool {
	symbolic := false
	var operands []string
	for _, a := range args {
		switch {
		case a == "-s" || a == "-sf" || a == "-fs" || a == "--symbolic":
			symbolic = true
		case strings.HasPrefix(a, "-"):
		default:
			operands = append(operands, a)
		}
	}
	if !symbolic || len(operands) != 2 {
		return false
	}
	c.add(plan.Step{Kind: plan.Symlink, Target: operands[0], Link: operands[1]})
	return true
}

func (c *converter) addgroup(args []string) bool {
	_, names := splitArgs(args, "-g")
	if len(names) != 1 {
		return false
	}
	c.add(plan.Step{Kind: plan.CreateGroup, Name: names[0]})
	return true
}

func (c *converter) adduser(args []string) bool {
	flags, names := splitArgs(args, "-G", "-h", "-s", "-u", "-g", "-k")
	if len(names) != 1 || flags["-G"] == "" {
		return false
	}
	c.add(plan.Step{Kind: plan.CreateUser, Name: names[0], Group: flags["-G"]})
	return true
}

func (c *converter) chown(args []string) bool {
	_, operands := splitArgs(args)
	if len(operands) < 2 {
		return false
	}
	user, group, ok := strings.Cut(operands[0], ":")
	if !ok || user == "" || group == "" {
		return false
	}
	for _, p := range operands[1:] {
		if p == "." {
			p = ""
		}
		c.add(plan.Step{Kind: plan.SetOwner, User: user, Group: group, Path: p})
	}
	return true
}

// Separates flags from operands.
//
// Flags named in valued take the following word as their value; other words
// starting with "-" are boolean flags and are dropped.
func splitArgs(args []string, valued ...string) (map[string]string, []string) {
	flags := make(map[string]string)
	var operands []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			operands = append(operands, a)
			continue
		}
		if k, v, ok := strings.Cut(a, "="); ok && slices.Contains(valued, k) {
			flags[k] = v
			continue
		}
		if slices.Contains(valued, a) && i+1 < len(args) {
			flags[a] = args[i+1]
			i++
		}
	}

	return flags, operands
}

// Splits install steps whose packages are removed later into transient and
// persistent parts.
func classifyTransient(steps []plan.Step) []plan.Step {
	out := make([]plan.Step, 0, len(steps))

	for i, s := range steps {
		if s.Kind != plan.InstallPersistentDeps {
			out = append(out, s)
			continue
		}

		removed := make(map[string]bool)
		for _, later := range steps[i+1:] {
			if later.Kind == plan.RemoveTransientDeps {
				for _, p := range later.Packages {
					removed[p] = true
				}
			}
		}

		var transient, persistent []string
		for _, p := range s.Packages {
			if removed[p] {
				transient = append(transient, p)
			} else {
				persistent = append(persistent, p)
			}
		}

		if len(transient) > 0 {
			out = append(out, plan.Step{Kind: plan.InstallTransientDeps, Packages: transient})
		}
		if len(persistent) > 0 {
			out = append(out, plan.Step{Kind: plan.InstallPersistentDeps, Packages: persistent})
		}
	}

	return out
}

// Parses an EXPOSE argument such as "8080" or "8125/udp".
func exposeStep(arg string) (plan.Step, error) {
	number, protocol, _ := strings.Cut(arg, "/")
	port, err := strconv.ParseUint(number, 10, 16)
	if err != nil || port == 0 {
		return plan.Step{}, fmt.Errorf("%w: invalid port %q", ErrParse, arg)
	}
	return plan.Step{Kind: plan.DeclarePort, Port: uint16(port), Protocol: strings.ToLower(protocol)}, nil
}

// Returns the argument values of an instruction node.
func values(node *parser.Node) []string {
	var out []string
	for n := node.Next; n != nil; n = n.Next {
		out = append(out, n.Value)
	}
	return out
}

// A simple command of a shell script.
type shellCommand struct {
	words    []string // Words with quotes and escapes removed.
	after    string   // Operator preceding the command: "", "&&", ";" or "||".
	operator string   // First unquoted "|", "&", "<" or ">" within the command.
}

// Splits a shell script on unquoted "&&", "||" and ";".
//
// Quotes and backslash escapes are removed from the words. Expansions are
// left in place.
func splitShell(script string) []shellCommand {
	var (
		cmds   []shellCommand
		cur    shellCommand
		word   strings.Builder
		inWord bool
		quote  rune
	)

	endWord := func() {
		if inWord {
			cur.words = append(cur.words, word.String())
			word.Reset()
			inWord = false
		}
	}
	endCommand := func(op string) {
		endWord()
		cmds = append(cmds, cur)
		cur = shellCommand{after: op}
	}

	rs := []rune(script)
	peek := func(i int) rune {
		if i+1 < len(rs) {
			return rs[i+1]
		}
		return 0
	}

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case quote == '"':
			switch {
			case r == '"':
				quote = 0
			case r == '\\' && strings.ContainsRune("\"\\$`", peek(i)):
				i++
				word.WriteRune(rs[i])
			default:
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == '\\' && peek(i) == '\n':
			i++
		case r == '\\' && peek(i) != 0:
			i++
			word.WriteRune(rs[i])
			inWord = true
		case unicode.IsSpace(r):
			endWord()
		case r == ';':
			endCommand(";")
		case r == '&' && peek(i) == '&':
			i++
			endCommand("&&")
		case r == '|' && peek(i) == '|':
			i++
			endCommand("||")
		case strings.ContainsRune("|&<>", r):
			endWord()
			if cur.operator == "" {
				cur.operator = string(r)
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}
	endCommand("")

	return cmds
}

// Splits a shell command into unquoted words.
func fields(cmd string) []string {
	words := strings.Fields(cmd)
	for i, w := range words {
		words[i] = unquote(w)
	}
	return words
}

// Removes one level of surrounding quotes.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return s[1 : len(s)-1]
	}
	return s
}
