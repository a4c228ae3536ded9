package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Rejected join requests are either kept as history or deleted once a
// replacement request is created. The observed behavior differs per caller,
// so the choice is an explicit policy instead of a hardcoded default.
const (
	RejectedRequestRetain = "retain"
	RejectedRequestPurge  = "purge"
)

// MembershipPolicy holds tunable membership lifecycle behavior.
type MembershipPolicy struct {
	RejectedRequestPolicy string `mapstructure:"rejectedRequestPolicy"`
}

func DefaultMembershipPolicy() MembershipPolicy {
	return MembershipPolicy{
		RejectedRequestPolicy: RejectedRequestRetain,
	}
}

// MembershipPolicyHolder serves the current policy and hot-reloads it from disk.
type MembershipPolicyHolder struct {
	current atomic.Value // holds MembershipPolicy
}

func NewMembershipPolicyHolder() (*MembershipPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("membership")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/joblane/config") // Volume-mounted config
	v.AddConfigPath("/etc/joblane")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("JOBLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultMembershipPolicy()
		v.SetDefault("membership.rejectedRequestPolicy", defaults.RejectedRequestPolicy)
	}

	var policy MembershipPolicy
	if err := v.UnmarshalKey("membership", &policy); err != nil {
		return nil, err
	}
	if policy.RejectedRequestPolicy == "" {
		policy.RejectedRequestPolicy = RejectedRequestRetain
	}
	if err := validateMembershipPolicy(policy); err != nil {
		return nil, err
	}

	holder := &MembershipPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MembershipPolicy
		if err := v.UnmarshalKey("membership", &updated); err != nil {
			log.Printf("[membership-config] reload failed: %v", err)
			return
		}
		if err := validateMembershipPolicy(updated); err != nil {
			log.Printf("[membership-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[membership-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// StaticMembershipPolicyHolder returns a holder pinned to the given policy,
// with no file watching. Used by tests.
func StaticMembershipPolicyHolder(policy MembershipPolicy) *MembershipPolicyHolder {
	holder := &MembershipPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *MembershipPolicyHolder) Get() MembershipPolicy {
	if h == nil {
		return DefaultMembershipPolicy()
	}
	value := h.current.Load()
	policy, ok := value.(MembershipPolicy)
	if !ok {
		return DefaultMembershipPolicy()
	}
	return policy
}

func validateMembershipPolicy(policy MembershipPolicy) error {
	switch policy.RejectedRequestPolicy {
	case RejectedRequestRetain, RejectedRequestPurge:
		return nil
	default:
		return errors.New("membership.rejectedRequestPolicy must be retain or purge")
	}
}
