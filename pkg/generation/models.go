package generation

import (
	"fmt"
	"os"
	"time"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/bothub/pkg/configuration"
)

const (
	KindStub   = "stub"
	KindRemote = "remote"
	KindOpenAI = "openai"
)

// ModelSpec describes one generation_model key in the models file.
type ModelSpec struct {
	Key     string        `yaml:"key"`
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type modelsFile struct {
	Models []ModelSpec `yaml:"models"`
}

func ParseModels(data []byte) ([]ModelSpec, error) {
	var f modelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse models file")
	}
	seen := make(map[string]struct{}, len(f.Models))
	for i, m := range f.Models {
		if m.Key == "" {
			return nil, fmt.Errorf("models[%d]: key is required", i)
		}
		if _, dup := seen[m.Key]; dup {
			return nil, fmt.Errorf("models[%d]: duplicate key %q", i, m.Key)
		}
		seen[m.Key] = struct{}{}
		switch m.Kind {
		case KindStub:
		case KindRemote:
			if m.URL == "" {
				return nil, fmt.Errorf("models[%d]: url is required for %s", i, m.Kind)
			}
		case KindOpenAI:
			if m.Model == "" {
				return nil, fmt.Errorf("models[%d]: model is required for %s", i, m.Kind)
			}
		default:
			return nil, fmt.Errorf("models[%d]: unknown kind %q", i, m.Kind)
		}
	}
	return f.Models, nil
}

// BuildRegistry registers the built-in "stub" and "remote" keys, an "openai"
// key when an API key is configured, then everything from the models file.
// Entries from the file override built-ins with the same key.
func BuildRegistry(opts configuration.GenerationOptions) (*Registry, error) {
	adapters := map[string]Adapter{
		KindStub: NewStub(),
		KindRemote: NewRemote(RemoteConfig{
			URL:     opts.RemoteURL,
			Model:   opts.RemoteModel,
			Timeout: opts.Timeout,
		}),
	}
	if opts.OpenAIKey != "" {
		adapters[KindOpenAI] = NewOpenAI(OpenAIConfig{
			APIKey:  opts.OpenAIKey,
			BaseURL: opts.OpenAIBaseURL,
			Model:   opts.OpenAIModel,
			Timeout: opts.Timeout,
		})
	}

	if opts.ModelsFile != "" {
		data, err := os.ReadFile(opts.ModelsFile)
		if err != nil {
			return nil, errors.Wrap(err, "read models file")
		}
		specs, err := ParseModels(data)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			adapters[s.Key] = fromSpec(s, opts)
		}
	}
	return NewRegistry(adapters), nil
}

func fromSpec(s ModelSpec, opts configuration.GenerationOptions) Adapter {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = opts.Timeout
	}
	switch s.Kind {
	case KindRemote:
		return NewRemote(RemoteConfig{URL: s.URL, Model: s.Model, Timeout: timeout})
	case KindOpenAI:
		key := s.APIKey
		if key == "" {
			key = opts.OpenAIKey
		}
		return NewOpenAI(OpenAIConfig{APIKey: key, BaseURL: s.URL, Model: s.Model, Timeout: timeout})
	default:
		return NewStub()
	}
}
