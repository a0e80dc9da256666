package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DefaultSMSTemplate renders the text message sent for the sms channel.
// The fields come from the receipt and its issuing organization.
const DefaultSMSTemplate = "{{.OrganizationName}}: Official Receipt {{.ReceiptNumber}} for PHP {{.Amount}} issued to {{.PayerName}}. Thank you."

// DispatchPolicy tunes the notification dispatch adapter at runtime. It
// reloads from the dispatch config file without a restart.
type DispatchPolicy struct {
	DisabledChannels []string `mapstructure:"disabledChannels"`
	TimeoutSeconds   int      `mapstructure:"timeoutSeconds"`
	SMSTemplate      string   `mapstructure:"smsTemplate"`
}

func DefaultDispatchPolicy() DispatchPolicy {
	return DispatchPolicy{
		TimeoutSeconds: 10,
		SMSTemplate:    DefaultSMSTemplate,
	}
}

// ChannelEnabled reports whether dispatch may call out on a channel.
func (p DispatchPolicy) ChannelEnabled(channel string) bool {
	for _, name := range p.DisabledChannels {
		if strings.EqualFold(strings.TrimSpace(name), channel) {
			return false
		}
	}
	return true
}

// Timeout bounds one provider call. A dispatch that outlives it seals
// the channel as failed.
func (p DispatchPolicy) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MessageTemplate returns the sms template, defaulted when unset.
func (p DispatchPolicy) MessageTemplate() string {
	if strings.TrimSpace(p.SMSTemplate) == "" {
		return DefaultSMSTemplate
	}
	return p.SMSTemplate
}

type DispatchPolicyHolder struct {
	current atomic.Value // holds DispatchPolicy
}

// Get returns the live policy. A holder that has never stored a value
// yields the defaults, so zero-value holders are usable as-is.
func (h *DispatchPolicyHolder) Get() DispatchPolicy {
	if h == nil {
		return DefaultDispatchPolicy()
	}
	if policy, ok := h.current.Load().(DispatchPolicy); ok {
		return policy
	}
	return DefaultDispatchPolicy()
}

// Store validates and pins a policy value. Hot reload goes through the
// same path, so callers and the file watcher cannot disagree on what is
// acceptable.
func (h *DispatchPolicyHolder) Store(policy DispatchPolicy) error {
	if err := validateDispatchPolicy(policy); err != nil {
		return err
	}
	h.current.Store(policy)
	return nil
}

func NewDispatchPolicyHolder(cfg Config) (*DispatchPolicyHolder, error) {
	v := viper.New()

	if cfg.DispatchConfigPath != "" {
		v.SetConfigFile(cfg.DispatchConfigPath)
	} else {
		v.SetConfigName("dispatch")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/resibo")
		v.AddConfigPath(".")
	}

	// env only for key overrides (optional)
	v.SetEnvPrefix("RESIBO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// An explicitly configured file must exist; the search paths are
	// optional and fall back to defaults.
	policy := DefaultDispatchPolicy()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	} else {
		if err := v.UnmarshalKey("dispatch", &policy); err != nil {
			return nil, err
		}
	}

	holder := &DispatchPolicyHolder{}
	if err := holder.Store(policy); err != nil {
		return nil, err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultDispatchPolicy()
		if err := v.UnmarshalKey("dispatch", &updated); err != nil {
			log.Printf("[dispatch-config] reload failed: %v", err)
			return
		}
		if err := holder.Store(updated); err != nil {
			log.Printf("[dispatch-config] invalid config ignored: %v", err)
			return
		}
		log.Printf("[dispatch-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func validateDispatchPolicy(policy DispatchPolicy) error {
	if policy.TimeoutSeconds < 0 || policy.TimeoutSeconds > 120 {
		return errors.New("dispatch.timeoutSeconds must be between 0 and 120")
	}
	for _, name := range policy.DisabledChannels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "payment", "email", "sms":
		default:
			return fmt.Errorf("dispatch.disabledChannels: unknown channel %q", name)
		}
	}
	if strings.TrimSpace(policy.SMSTemplate) != "" {
		if _, err := template.New("sms").Parse(policy.SMSTemplate); err != nil {
			return fmt.Errorf("dispatch.smsTemplate: %w", err)
		}
	}
	return nil
}
