package configure

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func checkErr(err error) {
	if err != nil {
		zap.S().Fatalw("config",
			"error", err,
		)
	}
}

func New() *Config {
	initLogging("info")

	config := viper.New()

	// Default config
	b, _ := json.Marshal(Config{
		ConfigFile: "config.yaml",
	})
	tmp := viper.New()
	defaultConfig := bytes.NewReader(b)

	tmp.SetConfigType("json")
	checkErr(tmp.ReadConfig(defaultConfig))
	checkErr(config.MergeConfigMap(viper.AllSettings()))

	pflag.String("config", "config.yaml", "Config file location")
	pflag.Bool("noheader", false, "Disable the startup header")

	pflag.Parse()
	checkErr(config.BindPFlags(pflag.CommandLine))

	// File
	config.SetConfigFile(config.GetString("config"))
	config.AddConfigPath(".")

	if err := config.ReadInConfig(); err == nil {
		checkErr(config.MergeInConfig())
	}

	bindEnvs(config, Config{})

	// Environment
	config.AutomaticEnv()
	config.SetEnvPrefix("WC")
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AllowEmptyEnv(true)

	c := &Config{}
	checkErr(config.Unmarshal(&c))

	initLogging(c.Level)

	return c
}

func bindEnvs(config *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)

	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)

		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			bindEnvs(config, v.Interface(), append(parts, tv)...)
		default:
			_ = config.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}

// BusMode selects the fanout bus driver.
type BusMode string

const (
	BusModeRedis  BusMode = "REDIS"
	BusModeNats   BusMode = "NATS"
	BusModeMemory BusMode = "MEMORY"
)

// RegistryMode selects the presence registry driver.
type RegistryMode string

const (
	RegistryModeRedis  RegistryMode = "REDIS"
	RegistryModeMemory RegistryMode = "MEMORY"
)

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	ConfigFile string `mapstructure:"config" json:"config"`
	NoHeader   bool   `mapstructure:"noheader" json:"noheader"`

	K8S struct {
		NodeName string `mapstructure:"node_name" json:"node_name"`
		PodName  string `mapstructure:"pod_name" json:"pod_name"`
	} `mapstructure:"k8s" json:"k8s"`

	Redis struct {
		Username   string   `mapstructure:"username" json:"username"`
		Password   string   `mapstructure:"password" json:"password"`
		Database   int      `mapstructure:"db" json:"db"`
		Sentinel   bool     `mapstructure:"sentinel" json:"sentinel"`
		Addresses  []string `mapstructure:"addresses" json:"addresses"`
		MasterName string   `mapstructure:"master_name" json:"master_name"`
	} `mapstructure:"redis" json:"redis"`

	Mongo struct {
		URI      string `mapstructure:"uri" json:"uri"`
		Username string `mapstructure:"username" json:"username"`
		Password string `mapstructure:"password" json:"password"`
		DB       string `mapstructure:"db" json:"db"`
	} `mapstructure:"mongo" json:"mongo"`

	Nats struct {
		URI           string `mapstructure:"uri" json:"uri"`
		SubjectPrefix string `mapstructure:"subject_prefix" json:"subject_prefix"`
	} `mapstructure:"nats" json:"nats"`

	Bus struct {
		Mode BusMode `mapstructure:"mode" json:"mode"`
	} `mapstructure:"bus" json:"bus"`

	Registry struct {
		Mode RegistryMode `mapstructure:"mode" json:"mode"`
	} `mapstructure:"registry" json:"registry"`

	Gateway struct {
		Bind string `mapstructure:"bind" json:"bind"`

		// HeartbeatIntervalMs is advertised in HELLO; the server's timeout
		// allows one missed beat on top of it.
		HeartbeatIntervalMs int `mapstructure:"heartbeat_interval_ms" json:"heartbeat_interval_ms"`
		// IdentifyTimeoutMs bounds how long a connection may stay
		// unauthenticated.
		IdentifyTimeoutMs int `mapstructure:"identify_timeout_ms" json:"identify_timeout_ms"`

		JWTSecret string `mapstructure:"jwt_secret" json:"jwt_secret"`

		Voice struct {
			Endpoint string `mapstructure:"endpoint" json:"endpoint"`
		} `mapstructure:"voice" json:"voice"`
	} `mapstructure:"gateway" json:"gateway"`

	Snowflake struct {
		Datacenter int64 `mapstructure:"datacenter" json:"datacenter"`
		Worker     int64 `mapstructure:"worker" json:"worker"`
	} `mapstructure:"snowflake" json:"snowflake"`

	Health struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
	} `mapstructure:"health" json:"health"`

	PProf struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
	} `mapstructure:"pprof" json:"pprof"`

	Monitoring struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Bind    string `mapstructure:"bind" json:"bind"`
		Labels  Labels `mapstructure:"labels" json:"labels"`
	} `mapstructure:"monitoring" json:"monitoring"`

	Limits struct {
		// Buckets are [limit, window seconds] pairs.
		Buckets struct {
			MessageCreate [2]int64 `mapstructure:"message_create" json:"message_create"`
			TypingStart   [2]int64 `mapstructure:"typing_start" json:"typing_start"`
		} `mapstructure:"buckets" json:"buckets"`
	} `mapstructure:"limits" json:"limits"`
}

type Labels []struct {
	Key   string `mapstructure:"key" json:"key"`
	Value string `mapstructure:"value" json:"value"`
}

func (l Labels) ToPrometheus() map[string]string {
	m := map[string]string{}

	for _, v := range l {
		m[v.Key] = v.Value
	}

	return m
}
