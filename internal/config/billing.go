package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the operator-tunable billing policy: invoice due terms,
// gateway reap threshold and reminder escalation profiles per obligation type.
type BillingConfig struct {
	DueDays              int               `mapstructure:"dueDays"`
	ReapThresholdMinutes int               `mapstructure:"reapThresholdMinutes"`
	Reminders            []ReminderProfile `mapstructure:"reminders"`
}

// ReminderProfile configures the escalation cadence for one obligation type.
// Stage 1 fires LeadDays before the due date; later stages fire at
// StageOffsetDays after the previous reminder (the last offset repeats).
type ReminderProfile struct {
	EntityType      string `mapstructure:"entityType"`
	LeadDays        int    `mapstructure:"leadDays"`
	StageOffsetDays []int  `mapstructure:"stageOffsetDays"`
	MaxReminders    int    `mapstructure:"maxReminders"`
	GraceDays       int    `mapstructure:"graceDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueDays:              7,
		ReapThresholdMinutes: 10,
		Reminders: []ReminderProfile{
			{EntityType: "lease_renewal", LeadDays: 7, StageOffsetDays: []int{13}, MaxReminders: 2, GraceDays: 10},
			{EntityType: "card_fee", LeadDays: 0, StageOffsetDays: []int{1}, MaxReminders: 6, GraceDays: 6},
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/ledgerline/config") // Volume-mounted config
	v.AddConfigPath("/etc/ledgerline")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("LEDGERLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.dueDays", defaults.DueDays)
		v.SetDefault("billing.reapThresholdMinutes", defaults.ReapThresholdMinutes)
		v.SetDefault("billing.reminders", defaults.Reminders)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

// Profile returns the reminder profile for an obligation type, false when
// the type is not configured.
func (c BillingConfig) Profile(entityType string) (ReminderProfile, bool) {
	for _, p := range c.Reminders {
		if strings.EqualFold(p.EntityType, entityType) {
			return p, true
		}
	}
	return ReminderProfile{}, false
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DueDays <= 0 {
		return errors.New("billing.dueDays must be positive")
	}
	if cfg.ReapThresholdMinutes <= 0 {
		return errors.New("billing.reapThresholdMinutes must be positive")
	}
	for _, p := range cfg.Reminders {
		if p.EntityType == "" {
			return errors.New("billing.reminders entityType cannot be empty")
		}
		if p.MaxReminders <= 0 {
			return errors.New("billing.reminders maxReminders must be positive")
		}
		if len(p.StageOffsetDays) == 0 {
			return errors.New("billing.reminders stageOffsetDays cannot be empty")
		}
		for _, off := range p.StageOffsetDays {
			if off <= 0 {
				return errors.New("billing.reminders stage offsets must be positive")
			}
		}
	}
	return nil
}
