package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Registry and NER backend names accepted by the flags.
const (
	RegistryCSV      = "csv"
	RegistryPostgres = "postgres"

	NERNone        = "none"
	NERHuggingFace = "huggingface"
	NERClaude      = "claude"
)

// Config adds service-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	MemstoreCapacity      int

	LexiconFile     string
	RegistryBackend string
	ResourcesFile   string

	NERBackend   string
	NERTimeoutMS int
	HFAPIToken   string
	HFModel      string
	HFEndpoint   string
	ClaudeAPIKey string
	ClaudeModel  string

	FanoutPushTimeoutMS int
	SlackWebhookURL     string
	KafkaBrokers        string
	KafkaTopic          string
	RedisAddr           string
	RedisChannel        string
	SNSTopicARN         string
	AWSRegion           string

	ReplayFile            string
	ReplayIntervalSeconds int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory verdict store)")
	fs.IntVar(&c.MemstoreCapacity, "memstore-capacity", 10000, "verdicts kept by the in-memory store before the oldest are evicted (1..1000000)")

	fs.StringVar(&c.LexiconFile, "lexicon-file", "", "YAML lexicon overriding the built-in keyword tables")
	fs.StringVar(&c.RegistryBackend, "registry-backend", RegistryCSV, "resource registry backend (csv|postgres)")
	fs.StringVar(&c.ResourcesFile, "resources-file", "data/resources.csv", "resource registry CSV; with the postgres backend it is imported at startup when set")

	fs.StringVar(&c.NERBackend, "ner-backend", NERNone, "named-entity recognition backend (none|huggingface|claude)")
	fs.IntVar(&c.NERTimeoutMS, "ner-timeout-ms", 2000, "per-message NER timeout in milliseconds (1..60000)")
	fs.StringVar(&c.HFAPIToken, "hf-api-token", "", "Hugging Face inference API token")
	fs.StringVar(&c.HFModel, "hf-model", "dslim/bert-base-NER", "Hugging Face token-classification model")
	fs.StringVar(&c.HFEndpoint, "hf-endpoint", "https://api-inference.huggingface.co/models/", "Hugging Face inference API base URL")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude NER backend")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5", "Claude model for the Claude NER backend")

	fs.IntVar(&c.FanoutPushTimeoutMS, "fanout-push-timeout-ms", 2000, "per-listener alert push timeout in milliseconds (1..60000)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for alert notifications")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for alert notifications")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "lifeline.alerts", "Kafka topic for alert notifications")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for alert pub/sub notifications")
	fs.StringVar(&c.RedisChannel, "redis-channel", "lifeline:alerts", "Redis pub/sub channel for alert notifications")
	fs.StringVar(&c.SNSTopicARN, "sns-topic-arn", "", "SNS topic ARN for alert notifications")
	fs.StringVar(&c.AWSRegion, "aws-region", "us-east-1", "AWS region for SNS")

	fs.StringVar(&c.ReplayFile, "replay-file", "", "CSV of messages (text column) to replay through triage")
	fs.IntVar(&c.ReplayIntervalSeconds, "replay-interval-seconds", 5, "seconds between replayed messages (1..3600)")
}

// Brokers splits KafkaBrokers on commas, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.DatabaseURL == "" && (c.MemstoreCapacity <= 0 || c.MemstoreCapacity > 1_000_000) {
		errs = append(errs, fmt.Errorf("invalid MEMSTORE_CAPACITY %d (must be 1..1000000)", c.MemstoreCapacity))
	}

	switch c.RegistryBackend {
	case RegistryCSV:
		if c.ResourcesFile == "" {
			errs = append(errs, errors.New("RESOURCES_FILE is required with REGISTRY_BACKEND csv"))
		}
	case RegistryPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required with REGISTRY_BACKEND postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid REGISTRY_BACKEND %q (must be csv or postgres)", c.RegistryBackend))
	}

	switch c.NERBackend {
	case NERNone:
	case NERHuggingFace:
		if c.HFModel == "" {
			errs = append(errs, errors.New("HF_MODEL is required with NER_BACKEND huggingface"))
		}
	case NERClaude:
		if c.ClaudeAPIKey == "" {
			errs = append(errs, errors.New("CLAUDE_API_KEY is required with NER_BACKEND claude"))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, errors.New("CLAUDE_MODEL is required with NER_BACKEND claude"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid NER_BACKEND %q (must be none, huggingface or claude)", c.NERBackend))
	}

	if c.NERTimeoutMS <= 0 || c.NERTimeoutMS > 60000 {
		errs = append(errs, fmt.Errorf("invalid NER_TIMEOUT_MS %d (must be 1..60000)", c.NERTimeoutMS))
	}
	if c.FanoutPushTimeoutMS <= 0 || c.FanoutPushTimeoutMS > 60000 {
		errs = append(errs, fmt.Errorf("invalid FANOUT_PUSH_TIMEOUT_MS %d (must be 1..60000)", c.FanoutPushTimeoutMS))
	}

	// Optional notifiers need their companion settings
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.SNSTopicARN != "" && c.AWSRegion == "" {
		errs = append(errs, errors.New("AWS_REGION is required when SNS_TOPIC_ARN is set"))
	}

	if c.ReplayFile != "" && (c.ReplayIntervalSeconds <= 0 || c.ReplayIntervalSeconds > 3600) {
		errs = append(errs, fmt.Errorf("invalid REPLAY_INTERVAL_SECONDS %d (must be 1..3600)", c.ReplayIntervalSeconds))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
