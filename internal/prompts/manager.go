package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// embeds all .yaml files in the templates folder into Go program at compile time
//
//go:embed templates/*.yaml
var templateFS embed.FS

// ModeGenerate is the template used for room code generation.
const ModeGenerate = "generate"

// loaded prompt template
type Template struct {
	SystemInstruction string   `yaml:"system_instruction"`
	Temperature       *float32 `yaml:"temperature"`
	Prompt            string   `yaml:"prompt"`
}

// Prompt is a template with its placeholders filled in.
type Prompt struct {
	SystemInstruction string
	Temperature       *float32
	Text              string
}

type PromptManager struct {
	templates map[string]Template
}

// creates a new prompt manager and loads templates
func NewPromptManager() (*PromptManager, error) {
	pm := &PromptManager{
		templates: make(map[string]Template),
	}

	if err := pm.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	return pm, nil
}

// builds a prompt for the given mode, replacing {{.Key}} with data[Key]
func (pm *PromptManager) BuildPrompt(mode string, data map[string]string) (*Prompt, error) {
	tmpl, exists := pm.templates[mode]
	if !exists {
		return nil, fmt.Errorf("template not found for mode: %s", mode)
	}

	text := tmpl.Prompt
	for key, value := range data {
		text = strings.ReplaceAll(text, "{{."+key+"}}", value)
	}

	return &Prompt{
		SystemInstruction: strings.TrimSpace(tmpl.SystemInstruction),
		Temperature:       tmpl.Temperature,
		Text:              text,
	}, nil
}

// Modes lists the loaded template names.
func (pm *PromptManager) Modes() []string {
	modes := make([]string, 0, len(pm.templates))
	for mode := range pm.templates {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

func (pm *PromptManager) loadTemplates() error {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read templates directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := templateFS.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template file %s: %w", entry.Name(), err)
		}

		var tmpl Template
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return fmt.Errorf("failed to parse template file %s: %w", entry.Name(), err)
		}
		if tmpl.Prompt == "" {
			return fmt.Errorf("template file %s has no prompt", entry.Name())
		}

		pm.templates[strings.TrimSuffix(entry.Name(), ".yaml")] = tmpl
	}

	return nil
}
