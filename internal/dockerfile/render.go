package dockerfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/cruciblehq/buildplan/internal/plan"
)

var dockerfileTemplate = template.Must(template.New("Dockerfile").Funcs(template.FuncMap{
	"instruction": instruction,
}).Parse(`# Plan: {{.Name}}
{{range .Steps}}{{instruction .}}
{{end}}`))

// Renders a plan as a Dockerfile.
//
// Each step becomes exactly one instruction. Variable references are kept
// verbatim for the Dockerfile frontend to expand.
func Render(p plan.Plan) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dockerfileTemplate.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}

// Returns the Dockerfile instruction for a step.
func instruction(s plan.Step) (string, error) {
	switch s.Kind {
	case plan.SetBase:
		return "FROM " + s.Image, nil

	case plan.SetEnv:
		var pairs []string
		for _, k := range slices.Sorted(maps.Keys(s.Env)) {
			pairs = append(pairs, k+"="+strconv.Quote(s.Env[k]))
		}
		return "ENV " + strings.Join(pairs, " "), nil

	case plan.SetWorkdir:
		return "WORKDIR " + s.Path, nil

	case plan.InstallTransientDeps, plan.InstallPersistentDeps:
		return run(append([]string{"apk", "add", "--no-cache"}, s.Packages...)...), nil

	case plan.RemoveTransientDeps:
		return run(append([]string{"apk", "del", "--purge"}, s.Packages...)...), nil

	case plan.Symlink:
		return run("ln", "-s", s.Target, s.Link), nil

	case plan.InstallPackage:
		return run("pip", "install", "--no-cache-dir", s.Name+"=="+s.Version), nil

	case plan.CreateGroup:
		return run("addgroup", "-S", s.Name), nil

	case plan.CreateUser:
		return run("adduser", "-S", "-D", "-G", s.Group, s.Name), nil

	case plan.SetOwner:
		target := s.Path
		if target == "" {
			target = "."
		}
		return run("chown", "-R", s.User+":"+s.Group, target), nil

	case plan.DeclarePort:
		port := strconv.Itoa(int(s.Port))
		if s.Protocol != "" {
			port += "/" + strings.ToLower(s.Protocol)
		}
		return "EXPOSE " + port, nil

	case plan.CopyFiles:
		return "COPY " + word(s.Source) + " " + word(s.Dest), nil

	case plan.SetUser:
		return "USER " + s.Name, nil

	case plan.SetEntrypoint:
		b, err := json.Marshal([]string{s.Entrypoint})
		if err != nil {
			return "", err
		}
		return "ENTRYPOINT " + string(b), nil
	}

	return "", fmt.Errorf("%w: %s", ErrRender, s.Kind)
}

// Returns a shell-form RUN instruction.
func run(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = word(w)
	}
	return "RUN " + strings.Join(quoted, " ")
}

// Quotes w when it contains whitespace or quote characters.
func word(w string) string {
	if w == "" || strings.ContainsAny(w, " \t\"'\\") {
		return strconv.Quote(w)
	}
	return w
}
