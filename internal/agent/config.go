package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt frames the model as the review assistant.
const DefaultSystemPrompt = `You are the assistant of a bank regulatory report review team.
You answer questions about banks, regulatory reports, their validation errors and the comments on those errors, and you carry out review actions when asked.
Use the tools to read or change data; never invent ids, codes or counts.
Report statuses: accepted (is_accepted is true), rejected (is_accepted is false and the report has errors), pending (no decision yet).
Before accepting or rejecting a report, or deleting a bank, make sure you have the right id.
For questions the other tools cannot answer, call get_database_schema and then execute_sql_query with a single SELECT statement.
Answer concisely. Use markdown tables for lists.`

// Config tunes the agent.  Fields left zero in a YAML file keep the value
// from the environment.
type Config struct {
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	MaxSteps     int      `yaml:"max_steps"`
	MaxHistory   int      `yaml:"max_history"`
	Temperature  *float64 `yaml:"temperature"`
}

// LoadConfig overlays the YAML file at path on base.  An empty path
// returns base with defaults applied.
func LoadConfig(path string, base Config) (Config, error) {
	cfg := base
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read agent config: %w", err)
		}
		var file Config
		if err := yaml.Unmarshal(b, &file); err != nil {
			return cfg, fmt.Errorf("parse agent config %s: %w", path, err)
		}
		if file.Model != "" {
			cfg.Model = file.Model
		}
		if file.SystemPrompt != "" {
			cfg.SystemPrompt = file.SystemPrompt
		}
		if file.MaxSteps > 0 {
			cfg.MaxSteps = file.MaxSteps
		}
		if file.MaxHistory > 0 {
			cfg.MaxHistory = file.MaxHistory
		}
		if file.Temperature != nil {
			cfg.Temperature = file.Temperature
		}
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxSteps < 1 {
		cfg.MaxSteps = 1
	}
	return cfg, nil
}
