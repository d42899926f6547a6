package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Redis      RedisConfig      `yaml:"redis"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Queue      QueueConfig      `yaml:"queue"`
	Retry      RetryConfig      `yaml:"retry"`
	Activation ActivationConfig `yaml:"activation"`
	Moderation ModerationConfig `yaml:"moderation"`
	Vendors    VendorsConfig    `yaml:"vendors"`
	Payment    PaymentConfig    `yaml:"payment"`
	Styles     []StyleConfig    `yaml:"styles"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `yaml:"port"`         // 服务器监听端口
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读取超时时间
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 写入超时时间
	IdleTimeout  time.Duration `yaml:"idleTimeout"`  // 空闲超时时间
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`   // 数据库驱动类型
	Host     string `yaml:"host"`     // 数据库主机地址
	Port     int    `yaml:"port"`     // 数据库端口
	Username string `yaml:"username"` // 数据库用户名
	Password string `yaml:"password"` // 数据库密码
	Database string `yaml:"database"` // 数据库名称
	Charset  string `yaml:"charset"`  // 字符集
	MaxIdle  int    `yaml:"maxIdle"`  // 最大空闲连接数
	MaxOpen  int    `yaml:"maxOpen"`  // 最大打开连接数
	LogSQL   bool   `yaml:"logSQL"`   // 是否打印SQL
}

// JWTConfig JWT配置（会话令牌由外部签发，这里只做校验）
type JWTConfig struct {
	Secret     string        `yaml:"secret"`     // JWT密钥
	ExpireTime time.Duration `yaml:"expireTime"` // JWT过期时间（测试工具签发时使用）
	Issuer     string        `yaml:"issuer"`     // JWT签发者
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`      // 日志级别
	Filename   string `yaml:"filename"`   // 日志文件名
	MaxSize    int    `yaml:"maxSize"`    // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"maxBackups"` // 最大备份文件数
	MaxAge     int    `yaml:"maxAge"`     // 最大保存天数
	Compress   bool   `yaml:"compress"`   // 是否压缩
	Console    bool   `yaml:"console"`    // 是否同时输出到控制台
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host        string        `yaml:"host"`        // Redis主机地址
	Port        int           `yaml:"port"`        // Redis端口
	Password    string        `yaml:"password"`    // Redis密码
	DB          int           `yaml:"db"`          // Redis数据库编号
	ProgressTTL time.Duration `yaml:"progressTTL"` // 进度文档保留时间
}

// WebSocketConfig WebSocket 心跳配置
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"pingInterval"` // 发送ping的间隔
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读超时时间（未收到任何数据则断开）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	URL             string        `yaml:"url"`             // NATS地址
	Stream          string        `yaml:"stream"`          // JetStream流名称
	Durable         string        `yaml:"durable"`         // 持久消费者名称
	MaxDeliver      int           `yaml:"maxDeliver"`      // 最大投递次数（队列自身的重试预算）
	AckWait         time.Duration `yaml:"ackWait"`         // 等待ACK的时间
	NakDelay        time.Duration `yaml:"nakDelay"`        // 失败后重新投递的延迟
	Concurrency     int           `yaml:"concurrency"`     // 同时处理的任务数
	Consume         bool          `yaml:"consume"`         // 本进程是否消费队列
	Local           bool          `yaml:"local"`           // 本地模式：不连接NATS，进程内直接分发
	SigningKey      string        `yaml:"signingKey"`      // 推送签名密钥
	VerifySignature bool          `yaml:"verifySignature"` // 是否校验推送签名
}

// RetryConfig 存储操作重试配置
type RetryConfig struct {
	MaxAttempts int           `yaml:"maxAttempts"` // 最大尝试次数
	Delay       time.Duration `yaml:"delay"`       // 固定间隔
}

// ActivationConfig 激活流程配置
type ActivationConfig struct {
	StaleAfter time.Duration `yaml:"staleAfter"` // GENERATING 状态超过该时间视为中断，可被接管
	JobTimeout time.Duration `yaml:"jobTimeout"` // 单次激活任务的总超时
}

// ModerationConfig 内容审核配置
type ModerationConfig struct {
	PassScore     int `yaml:"passScore"`     // 小于等于该分数视为通过
	BanThreshold  int `yaml:"banThreshold"`  // 累计警告达到该值即封禁
	MaxBodyLength int `yaml:"maxBodyLength"` // 评论最大长度
}

// VendorsConfig 外部服务配置
type VendorsConfig struct {
	Timeout time.Duration `yaml:"timeout"` // 单次外部调用超时
	Avatar  AvatarConfig  `yaml:"avatar"`
	Face    FaceConfig    `yaml:"face"`
	LLM     LLMConfig     `yaml:"llm"`
}

// AvatarConfig 头像生成服务配置
type AvatarConfig struct {
	Mock      bool          `yaml:"mock"`      // 模拟模式
	MockDelay time.Duration `yaml:"mockDelay"` // 模拟延迟
	Endpoint  string        `yaml:"endpoint"`  // 生成接口地址
	APIKey    string        `yaml:"apiKey"`    // 接口密钥
}

// FaceConfig 人脸识别服务配置
type FaceConfig struct {
	Mock          bool          `yaml:"mock"`          // 模拟模式
	MockDelay     time.Duration `yaml:"mockDelay"`     // 模拟延迟
	Region        string        `yaml:"region"`        // AWS区域
	CollectionID  string        `yaml:"collectionId"`  // 人脸集合ID
	Threshold     float32       `yaml:"threshold"`     // 相似度阈值
	MaxImageBytes int           `yaml:"maxImageBytes"` // 归一化后图片上限
}

// LLMConfig 语言模型配置
type LLMConfig struct {
	Mock    bool   `yaml:"mock"`    // 模拟模式
	APIKey  string `yaml:"apiKey"`  // 接口密钥
	BaseURL string `yaml:"baseURL"` // 自定义网关地址
	Model   string `yaml:"model"`   // 模型名称
}

// PaymentConfig 支付回调配置
type PaymentConfig struct {
	Fee           string `yaml:"fee"`           // 入会费用（十进制字符串）
	Currency      string `yaml:"currency"`      // 币种
	WebhookSecret string `yaml:"webhookSecret"` // 回调签名密钥
}

// StyleConfig 头像风格，与原型（archetype）一一对应
type StyleConfig struct {
	ID           string `yaml:"id"`
	Archetype    string `yaml:"archetype"`
	ReferenceURL string `yaml:"referenceUrl"`
}

// LoadConfig 加载配置（混合方式：.env + YAML文件 + 环境变量）
func LoadConfig() *Config {
	// 0. 加载 .env（不存在时忽略）
	_ = godotenv.Load()

	// 1. 首先从YAML文件加载默认配置
	config := loadFromYAML(getEnv("CONFIG_FILE", "config/config.yaml"))

	// 2. 用环境变量覆盖配置（环境变量优先级更高）
	overrideWithEnvVars(config)

	return config
}

// Validate 检查激活接管相关的时间配置。
// 单次任务必须在 staleAfter 之前结束，否则仍在执行的流程会被接管；
// NATS 模式下，进程崩溃后的最后一次重投必须晚于 staleAfter，否则中断的流程永远没有机会被接管：
// 第 k 次投递（k>=2）发生在 ackWait + (k-2)*nakDelay。
func (c *Config) Validate() error {
	a, q := c.Activation, c.Queue
	if a.StaleAfter <= 0 {
		return errors.New("activation.staleAfter 必须大于0")
	}
	if a.JobTimeout > 0 && a.JobTimeout >= a.StaleAfter {
		return fmt.Errorf("activation.jobTimeout(%s) 必须小于 activation.staleAfter(%s)", a.JobTimeout, a.StaleAfter)
	}
	if q.Local {
		return nil
	}
	if q.MaxDeliver < 2 {
		return fmt.Errorf("queue.maxDeliver(%d) 至少为2", q.MaxDeliver)
	}
	last := q.AckWait + time.Duration(q.MaxDeliver-2)*q.NakDelay
	if last < a.StaleAfter {
		return fmt.Errorf("最后一次重投在 %s 后，早于 activation.staleAfter(%s)：调大 queue.ackWait/nakDelay/maxDeliver", last, a.StaleAfter)
	}
	return nil
}

// loadFromYAML 从YAML文件加载配置
func loadFromYAML(filePath string) *Config {
	// 先填充默认值，YAML中缺失的字段保留默认
	config := getDefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		// 如果文件不存在，返回默认配置
		return config
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		// 如果解析失败，返回默认配置
		return getDefaultConfig()
	}

	return config
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_READ_TIMEOUT", 0); timeout > 0 {
		config.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}

	// 数据库配置
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}
	config.Database.LogSQL = getEnvBool("DB_LOG_SQL", config.Database.LogSQL)

	// JWT配置
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if issuer := getEnv("JWT_ISSUER", ""); issuer != "" {
		config.JWT.Issuer = issuer
	}

	// 日志配置
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}
	config.Log.Console = getEnvBool("LOG_CONSOLE", config.Log.Console)

	// Redis配置
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// 队列配置
	if url := getEnv("NATS_URL", ""); url != "" {
		config.Queue.URL = url
	}
	if key := getEnv("QUEUE_SIGNING_KEY", ""); key != "" {
		config.Queue.SigningKey = key
	}
	if n := getEnvInt("QUEUE_MAX_DELIVER", 0); n > 0 {
		config.Queue.MaxDeliver = n
	}
	if n := getEnvInt("QUEUE_CONCURRENCY", 0); n > 0 {
		config.Queue.Concurrency = n
	}
	config.Queue.Consume = getEnvBool("QUEUE_CONSUME", config.Queue.Consume)
	config.Queue.Local = getEnvBool("QUEUE_LOCAL", config.Queue.Local)
	config.Queue.VerifySignature = getEnvBool("QUEUE_VERIFY_SIGNATURE", config.Queue.VerifySignature)

	// 重试配置
	if n := getEnvInt("RETRY_MAX_ATTEMPTS", 0); n > 0 {
		config.Retry.MaxAttempts = n
	}
	if d := getEnvDuration("RETRY_DELAY", 0); d > 0 {
		config.Retry.Delay = d
	}

	// 外部服务配置
	if d := getEnvDuration("VENDOR_TIMEOUT", 0); d > 0 {
		config.Vendors.Timeout = d
	}
	config.Vendors.Avatar.Mock = getEnvBool("MOCK_AVATAR", config.Vendors.Avatar.Mock)
	config.Vendors.Face.Mock = getEnvBool("MOCK_FACE", config.Vendors.Face.Mock)
	config.Vendors.LLM.Mock = getEnvBool("MOCK_LLM", config.Vendors.LLM.Mock)
	if endpoint := getEnv("AVATAR_ENDPOINT", ""); endpoint != "" {
		config.Vendors.Avatar.Endpoint = endpoint
	}
	if key := getEnv("AVATAR_API_KEY", ""); key != "" {
		config.Vendors.Avatar.APIKey = key
	}
	if region := getEnv("AWS_REGION", ""); region != "" {
		config.Vendors.Face.Region = region
	}
	if collection := getEnv("FACE_COLLECTION_ID", ""); collection != "" {
		config.Vendors.Face.CollectionID = collection
	}
	if key := getEnv("OPENAI_API_KEY", ""); key != "" {
		config.Vendors.LLM.APIKey = key
	}
	if model := getEnv("OPENAI_MODEL", ""); model != "" {
		config.Vendors.LLM.Model = model
	}

	// 支付配置
	if secret := getEnv("PAYMENT_WEBHOOK_SECRET", ""); secret != "" {
		config.Payment.WebhookSecret = secret
	}
	if fee := getEnv("PAYMENT_FEE", ""); fee != "" {
		config.Payment.Fee = fee
	}
}

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Username: "citizen",
			Password: "",
			Database: "citizen_system",
			Charset:  "utf8mb4",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		JWT: JWTConfig{
			Secret:     "your-secret-key",
			ExpireTime: 24 * time.Hour,
			Issuer:     "citizen-system",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			ProgressTTL: 24 * time.Hour,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  90 * time.Second,
		},
		Queue: QueueConfig{
			URL:         "nats://localhost:4222",
			Stream:      "CITIZEN_JOBS",
			Durable:     "citizen-worker",
			MaxDeliver:  5,
			AckWait:     11 * time.Minute,
			NakDelay:    time.Minute,
			Concurrency: 8,
			Consume:     true,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delay:       1500 * time.Millisecond,
		},
		Activation: ActivationConfig{
			StaleAfter: 12 * time.Minute,
			JobTimeout: 10 * time.Minute,
		},
		Moderation: ModerationConfig{
			PassScore:     4,
			BanThreshold:  2,
			MaxBodyLength: 5000,
		},
		Vendors: VendorsConfig{
			Timeout: 60 * time.Second,
			Avatar: AvatarConfig{
				MockDelay: 2 * time.Second,
			},
			Face: FaceConfig{
				MockDelay:     500 * time.Millisecond,
				Region:        "us-east-1",
				CollectionID:  "citizens",
				Threshold:     95,
				MaxImageBytes: 5 * 1024 * 1024,
			},
			LLM: LLMConfig{
				Model: "gpt-4o-mini",
			},
		},
		Payment: PaymentConfig{
			Fee:      "9.99",
			Currency: "USD",
		},
	}
}

// 辅助函数：获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 辅助函数：获取整数环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 辅助函数：获取布尔环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// 辅助函数：获取时间环境变量
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// StyleByID 按ID查找风格
func (c *Config) StyleByID(id string) (StyleConfig, bool) {
	for _, s := range c.Styles {
		if s.ID == id {
			return s, true
		}
	}
	return StyleConfig{}, false
}
