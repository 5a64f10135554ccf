package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量统一前缀，例如 PREDEX_HTTP_ADDR 覆盖 http.addr
const EnvPrefix = "PREDEX"

type Options struct {
	// Name 约定：config/{Name}.yaml
	Name string
	// Paths 额外的查找目录，默认 ./config 和 .
	Paths []string
	// File 指定具体文件时忽略 Name/Paths
	File     string
	Defaults map[string]any
	// Watch 打开后文件变更会重新 Unmarshal 到 out
	Watch    bool
	OnChange func()
}

func newViper(opt Options) *viper.Viper {
	v := viper.New()
	for k, val := range opt.Defaults {
		v.SetDefault(k, val)
	}
	if opt.File != "" {
		v.SetConfigFile(opt.File)
	} else {
		v.SetConfigName(opt.Name)
		v.SetConfigType("yaml")
		paths := opt.Paths
		if len(paths) == 0 {
			paths = []string{"./config", "."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 读取一次配置，不监听
func Load(opt Options, out any) (*viper.Viper, error) {
	v := newViper(opt)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	log.Printf("[%s] config loaded from %s", opt.Name, v.ConfigFileUsed())

	if opt.Watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Printf("[%s] config file changed: %s", opt.Name, e.Name)
			if err := v.Unmarshal(out); err != nil {
				log.Printf("[%s] reload config error: %v", opt.Name, err)
				return
			}
			if opt.OnChange != nil {
				opt.OnChange()
			}
			log.Printf("[%s] config reloaded OK", opt.Name)
		})
		v.WatchConfig()
	}
	return v, nil
}

// LoadAndWatch 按服务名加载并热更新
func LoadAndWatch(service string, out any) (*viper.Viper, error) {
	return Load(Options{Name: service, Watch: true}, out)
}
