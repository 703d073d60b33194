package analyzer

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var embedded embed.FS

// ErrPromptNotFound is returned for a prompt name with no YAML file.
var ErrPromptNotFound = errors.New("prompt not found")

// Prompt is a system/user pair. User contains a {content} placeholder.
type Prompt struct {
	System string
	User   string
}

// Render substitutes content into the user template.
func (p Prompt) Render(content string) string {
	return strings.ReplaceAll(p.User, "{content}", content)
}

type promptMessage struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// LoadPrompt reads name.yaml from the built-in prompt set.
func LoadPrompt(name string) (Prompt, error) {
	sub, err := fs.Sub(embedded, "prompts")
	if err != nil {
		return Prompt{}, err
	}
	return LoadPromptFS(sub, name)
}

// LoadPromptFS reads name.yaml from fsys. The file is a list of
// {role, content} messages; doubled braces are unescaped.
func LoadPromptFS(fsys fs.FS, name string) (Prompt, error) {
	raw, err := fs.ReadFile(fsys, name+".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return Prompt{}, fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}
	if err != nil {
		return Prompt{}, err
	}
	var msgs []promptMessage
	if err := yaml.Unmarshal(raw, &msgs); err != nil {
		return Prompt{}, fmt.Errorf("prompt %s: %w", name, err)
	}
	var p Prompt
	for _, m := range msgs {
		text := strings.NewReplacer("{{", "{", "}}", "}").Replace(m.Content)
		switch m.Role {
		case "system":
			p.System = text
		case "user":
			p.User = text
		}
	}
	if p.User == "" {
		return Prompt{}, fmt.Errorf("prompt %s: no user message", name)
	}
	return p, nil
}
