// internal/pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration 包装 time.Duration，让 yaml 里可以写 "30m"、"500ms" 这样的值。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换回标准库的 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 是进程级配置。通过 yaml 文件加载，个别字段允许环境变量覆盖。
// 不存在任何模块级可变全局：配置在启动时加载一次，之后以值的方式
// 注入到各个构造函数。
type Config struct {
	Infra     Infra           `yaml:"infra"`
	Inventory InventoryConfig `yaml:"inventory"`
	Order     OrderConfig     `yaml:"order"`
	Client    ClientConfig    `yaml:"client"`
}

type Infra struct {
	JaegerEndpoint string   `yaml:"jaeger_endpoint"`
	KafkaBrokers   []string `yaml:"kafka_brokers"`
	RedisAddrs     string   `yaml:"redis_addrs"`
	MysqlDSN       string   `yaml:"mysql_dsn"`
	NacosAddrs     string   `yaml:"nacos_addrs"`
	NacosNamespace string   `yaml:"nacos_namespace"`
	NacosGroup     string   `yaml:"nacos_group"`
	ZkServers      []string `yaml:"zk_servers"`
}

type InventoryConfig struct {
	// DefaultQuantity 是一个资产首次被访问时的初始可用量。
	DefaultQuantity int64 `yaml:"default_quantity"`
	// EarmarkExpiry 是预留(earmark)未被释放时的自动过期时长。
	EarmarkExpiry Duration `yaml:"earmark_expiry"`
	// EarmarkPolicy 是一条 CEL 表达式，在预留前评估；
	// 可用变量: asset(string), quantity(int), available(int)。
	EarmarkPolicy string `yaml:"earmark_policy"`
}

type OrderConfig struct {
	// InventoryBaseURL 是库存服务的地址，供订单服务的出站适配器使用。
	InventoryBaseURL string `yaml:"inventory_base_url"`
	// SagaStepRetries 是 booking saga 单步瞬时错误的重试上限。
	SagaStepRetries int `yaml:"saga_step_retries"`
	// SagaRetryDelay 是 saga 单步重试之间的间隔。
	SagaRetryDelay Duration `yaml:"saga_retry_delay"`
}

// Endpoint 是失败转移客户端的一个候选服务入口。
type Endpoint struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type ClientConfig struct {
	Endpoints   []Endpoint    `yaml:"endpoints"`
	Timeout     Duration      `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  Duration      `yaml:"retry_delay"`
	// Selection 是端点选择策略:
	// sticky | sticky-by-name | random-sticky | random-switching。
	Selection string `yaml:"selection"`
	// Preferred 是 sticky-by-name 策略的起始端点名。
	Preferred string `yaml:"preferred"`
}

// Load 读取 yaml 配置文件并应用默认值。path 为空时只返回默认配置。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Infra: Infra{
			JaegerEndpoint: "http://localhost:14268/api/traces",
			KafkaBrokers:   []string{"localhost:9092"},
			RedisAddrs:     "localhost:6379",
			NacosGroup:     "DEFAULT_GROUP",
		},
		Inventory: InventoryConfig{
			DefaultQuantity: 1_000_000,
			EarmarkExpiry:   Duration(30 * time.Minute),
			EarmarkPolicy:   "quantity > 0 && quantity <= available",
		},
		Order: OrderConfig{
			InventoryBaseURL: "http://localhost:18080",
			SagaStepRetries:  3,
			SagaRetryDelay:   Duration(500 * time.Millisecond),
		},
		Client: ClientConfig{
			Timeout:     Duration(10 * time.Second),
			MaxAttempts: 20,
			RetryDelay:  Duration(500 * time.Millisecond),
			Selection:   "sticky",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.JaegerEndpoint = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.KafkaBrokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("REDIS_ADDRS"); ok {
		cfg.Infra.RedisAddrs = v
	}
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.MysqlDSN = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.NacosAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.NacosNamespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.NacosGroup = v
	}
	if v, ok := os.LookupEnv("INVENTORY_BASE_URL"); ok {
		cfg.Order.InventoryBaseURL = v
	}
}
