package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/curatorhq/curator/internal/config"
	"github.com/curatorhq/curator/internal/models"
)

// Search identifies one fetch query against a source platform.
type Search struct {
	ID     string
	FeedID string
}

// Plugin fetches raw items from one source platform. Implementations are
// registered once at startup; the pipeline polls every registered plugin
// each cycle.
type Plugin interface {
	Name() string
	Platform() string
	Fetch(ctx context.Context, search Search) ([]models.SourceItem, error)
}

// Registry holds the configured source plugins keyed by name.
type Registry struct {
	plugins map[string]Plugin
	configs map[string]config.SourceConfig
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		configs: make(map[string]config.SourceConfig),
		logger:  logger,
	}
}

func (r *Registry) Register(plugin Plugin, cfg config.SourceConfig) error {
	name := plugin.Name()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("source plugin %s already registered", name)
	}

	r.plugins[name] = plugin
	r.configs[name] = cfg
	r.logger.Info("Source plugin registered",
		zap.String("source", name),
		zap.String("platform", plugin.Platform()))
	return nil
}

func (r *Registry) Get(name string) (Plugin, error) {
	plugin, exists := r.plugins[name]
	if !exists {
		return nil, fmt.Errorf("source plugin %s not found", name)
	}
	return plugin, nil
}

func (r *Registry) Config(name string) (config.SourceConfig, error) {
	cfg, exists := r.configs[name]
	if !exists {
		return config.SourceConfig{}, fmt.Errorf("config for source plugin %s not found", name)
	}
	return cfg, nil
}

// All returns every registered plugin, in no particular order. Batches from
// independent plugins carry no ordering guarantee.
func (r *Registry) All() []Plugin {
	plugins := make([]Plugin, 0, len(r.plugins))
	for _, plugin := range r.plugins {
		plugins = append(plugins, plugin)
	}
	return plugins
}
