package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanSpec is one quota bundle from the plan catalog. -1 means unlimited.
type PlanSpec struct {
	Name           string   `mapstructure:"name"`
	MaxUsers       int      `mapstructure:"maxUsers"`
	MaxDeals       int      `mapstructure:"maxDeals"`
	MaxPipelines   int      `mapstructure:"maxPipelines"`
	MaxContacts    int      `mapstructure:"maxContacts"`
	MaxAutomations int      `mapstructure:"maxAutomations"`
	Features       []string `mapstructure:"features"`
}

type PlanCatalog struct {
	DefaultPlan string     `mapstructure:"defaultPlan"`
	Plans       []PlanSpec `mapstructure:"plans"`
}

// DefaultPlanName is assigned to new organizations unless the catalog names another.
const DefaultPlanName = "start"

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		DefaultPlan: DefaultPlanName,
		Plans: []PlanSpec{
			{
				Name:           "start",
				MaxUsers:       2,
				MaxDeals:       50,
				MaxPipelines:   1,
				MaxContacts:    500,
				MaxAutomations: 5,
				Features:       []string{"basic_crm"},
			},
			{
				Name:           "pro",
				MaxUsers:       10,
				MaxDeals:       500,
				MaxPipelines:   5,
				MaxContacts:    5000,
				MaxAutomations: 25,
				Features:       []string{"basic_crm", "automation", "reports"},
			},
			{
				Name:           "enterprise",
				MaxUsers:       999,
				MaxDeals:       9999,
				MaxPipelines:   50,
				MaxContacts:    100000,
				MaxAutomations: 999,
				Features:       []string{"basic_crm", "automation", "reports", "sso", "priority_support"},
			},
		},
	}
}

// Find returns the plan spec by name.
func (c PlanCatalog) Find(name string) (PlanSpec, bool) {
	for _, p := range c.Plans {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return PlanSpec{}, false
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder reads plans.yml when present and watches it for changes.
// The built-in catalog is used when no file exists.
func NewPlanCatalogHolder(log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/dealflow")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DEALFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	catalog := DefaultPlanCatalog()
	if fromFile {
		if err := v.UnmarshalKey("catalog", &catalog); err != nil {
			return nil, err
		}
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PlanCatalog
			if err := v.UnmarshalKey("catalog", &updated); err != nil {
				log.Warn("plan catalog reload failed", zap.Error(err))
				return
			}
			if err := validatePlanCatalog(updated); err != nil {
				log.Warn("invalid plan catalog ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("plan catalog reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticPlanCatalogHolder wraps a fixed catalog.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(cfg PlanCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("catalog.plans cannot be empty")
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for _, p := range cfg.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return errors.New("catalog.plans[].name is required")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate plan %q", p.Name)
		}
		seen[name] = struct{}{}
		for _, quota := range []int{p.MaxUsers, p.MaxDeals, p.MaxPipelines, p.MaxContacts, p.MaxAutomations} {
			if quota < -1 {
				return fmt.Errorf("plan %q has invalid quota %d", p.Name, quota)
			}
		}
	}
	if _, ok := cfg.Find(cfg.DefaultPlan); !ok {
		return fmt.Errorf("default plan %q not in catalog", cfg.DefaultPlan)
	}
	return nil
}
