package config

import (
	"strings"
	"time"

	pairtopology "github.com/octu0/pair-topology"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "PAIRTOPOLOGY"

var (
	ErrUnknownDeviceType = errors.New("unknown device type")
)

// Config is the root configuration of pairtopologyd
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Behaviour BehaviourConfig `mapstructure:"behaviour"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	Store     StoreConfig     `mapstructure:"store"`
}

type NodeConfig struct {
	Name     string `mapstructure:"name"`
	BindAddr string `mapstructure:"bindAddr"`
	BindPort int    `mapstructure:"bindPort"`
	Join     string `mapstructure:"join"`
	Paired   bool   `mapstructure:"paired"`
}

type BehaviourConfig struct {
	DeviceType      string `mapstructure:"deviceType"`
	SupportRoleSwap bool   `mapstructure:"supportRoleSwap"`
}

type TimeoutsConfig struct {
	StopCommand                     time.Duration `mapstructure:"stopCommand"`
	PeerFindRole                    time.Duration `mapstructure:"peerFindRole"`
	PrimaryWaitForSecondary         time.Duration `mapstructure:"primaryWaitForSecondary"`
	SecondaryWaitForPrimary         time.Duration `mapstructure:"secondaryWaitForPrimary"`
	PostIdleStaticHandover          time.Duration `mapstructure:"postIdleStaticHandover"`
	PostIdleSecondaryWaitForPrimary time.Duration `mapstructure:"postIdleSecondaryWaitForPrimary"`
	MaxHandoverWindow               time.Duration `mapstructure:"maxHandoverWindow"`
	ResetDevice                     time.Duration `mapstructure:"resetDevice"`
	HandoverRetry                   time.Duration `mapstructure:"handoverRetry"`
}

// StoreConfig selects where the preserved role lives. An empty path keeps
// it in memory.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

func (c *Config) ToBehaviour() (pairtopology.Behaviour, error) {
	b := pairtopology.DefaultBehaviour()

	switch strings.ToLower(c.Behaviour.DeviceType) {
	case pairtopology.DeviceTypeEarbud.String():
		b.DeviceType = pairtopology.DeviceTypeEarbud
	case pairtopology.DeviceTypeStandalone.String():
		b.DeviceType = pairtopology.DeviceTypeStandalone
	default:
		return pairtopology.Behaviour{}, errors.Wrapf(ErrUnknownDeviceType, "%q", c.Behaviour.DeviceType)
	}
	b.SupportRoleSwap = c.Behaviour.SupportRoleSwap
	b.Timeouts = pairtopology.Timeouts{
		StopCommand:                     c.Timeouts.StopCommand,
		PeerFindRole:                    c.Timeouts.PeerFindRole,
		PrimaryWaitForSecondary:         c.Timeouts.PrimaryWaitForSecondary,
		SecondaryWaitForPrimary:         c.Timeouts.SecondaryWaitForPrimary,
		PostIdleStaticHandover:          c.Timeouts.PostIdleStaticHandover,
		PostIdleSecondaryWaitForPrimary: c.Timeouts.PostIdleSecondaryWaitForPrimary,
		MaxHandoverWindow:               c.Timeouts.MaxHandoverWindow,
		ResetDevice:                     c.Timeouts.ResetDevice,
		HandoverRetry:                   c.Timeouts.HandoverRetry,
	}
	return b, nil
}

func setDefaults(v *viper.Viper) {
	t := pairtopology.DefaultTimeouts()

	v.SetDefault("node.name", "")
	v.SetDefault("node.bindAddr", "127.0.0.1")
	v.SetDefault("node.bindPort", 7234)
	v.SetDefault("node.join", "")
	v.SetDefault("node.paired", true)
	v.SetDefault("behaviour.deviceType", pairtopology.DeviceTypeEarbud.String())
	v.SetDefault("behaviour.supportRoleSwap", true)
	v.SetDefault("timeouts.stopCommand", t.StopCommand)
	v.SetDefault("timeouts.peerFindRole", t.PeerFindRole)
	v.SetDefault("timeouts.primaryWaitForSecondary", t.PrimaryWaitForSecondary)
	v.SetDefault("timeouts.secondaryWaitForPrimary", t.SecondaryWaitForPrimary)
	v.SetDefault("timeouts.postIdleStaticHandover", t.PostIdleStaticHandover)
	v.SetDefault("timeouts.postIdleSecondaryWaitForPrimary", t.PostIdleSecondaryWaitForPrimary)
	v.SetDefault("timeouts.maxHandoverWindow", t.MaxHandoverWindow)
	v.SetDefault("timeouts.resetDevice", t.ResetDevice)
	v.SetDefault("timeouts.handoverRetry", t.HandoverRetry)
	v.SetDefault("store.path", "")
}

// Load reads configuration from file and environment.
// Environment keys use EnvPrefix, e.g. PAIRTOPOLOGY_NODE_JOIN.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok != true {
			return nil, errors.WithStack(err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	return cfg, nil
}
