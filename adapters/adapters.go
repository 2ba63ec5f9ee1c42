package adapters

import (
	"fmt"
	"os"

	"github.com/FrenchMajesty/classifier-results/adapters/mysql"
	"github.com/FrenchMajesty/classifier-results/adapters/onnx"
	"github.com/FrenchMajesty/classifier-results/adapters/openai"
	"github.com/FrenchMajesty/classifier-results/adapters/pinecone"
	"github.com/FrenchMajesty/classifier-results/adapters/voyage"
)

// NewOpenAIVisionModel creates a remote image classifier with the API key from the environment if not provided
func NewOpenAIVisionModel(apiKey *string, baseURL string, cfg openai.VisionConfig) (*openai.VisionModel, error) {
	key, err := loadEnvVar(apiKey, "OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}

	client := openai.NewClient(*key)
	if baseURL != "" {
		client.SetBaseURL(baseURL)
	}

	return openai.NewVisionModel(client, cfg)
}

// NewONNXModel loads an ONNX classifier. The runtime library path falls back to ONNXRUNTIME_LIB.
func NewONNXModel(libraryPath *string, cfg onnx.Config) (*onnx.Model, error) {
	if libraryPath == nil {
		if lib := os.Getenv("ONNXRUNTIME_LIB"); lib != "" {
			libraryPath = &lib
		}
	}
	if libraryPath != nil {
		cfg.LibraryPath = *libraryPath
	}
	return onnx.NewModel(cfg)
}

// NewPineconeRecordSink creates a record sink on a Pinecone index namespace
func NewPineconeRecordSink(apiKey *string, host *string, namespace string, cfg pinecone.Config) (*pinecone.RecordSink, error) {
	key, err := loadEnvVar(apiKey, "PINECONE_API_KEY")
	if err != nil {
		return nil, err
	}

	h, err := loadEnvVar(host, "PINECONE_HOST")
	if err != nil {
		return nil, err
	}

	index, err := pinecone.Connect(*key, *h, namespace)
	if err != nil {
		return nil, err
	}

	return pinecone.NewRecordSink(index, cfg), nil
}

// NewVoyageImageEmbedder creates a multimodal image embedder with the API key from the environment if not provided
func NewVoyageImageEmbedder(apiKey *string, cfg voyage.Config) (*voyage.ImageEmbedder, error) {
	key, err := loadEnvVar(apiKey, "VOYAGEAI_API_KEY")
	if err != nil {
		return nil, err
	}
	return voyage.NewImageEmbedder(*key, cfg)
}

// MySQLConfigFromEnv fills a MySQL config from DB_USER, DB_PASSWORD, DB_HOST, DB_PORT and DB_NAME
func MySQLConfigFromEnv(table string) (mysql.Config, error) {
	cfg := mysql.Config{Table: table, Port: "3306"}

	required := map[string]*string{
		"DB_USER": &cfg.User,
		"DB_HOST": &cfg.Host,
		"DB_NAME": &cfg.Database,
	}
	for key, target := range required {
		v, err := loadEnvVar(nil, key)
		if err != nil {
			return mysql.Config{}, err
		}
		*target = *v
	}

	cfg.Password = os.Getenv("DB_PASSWORD")
	if port := os.Getenv("DB_PORT"); port != "" {
		cfg.Port = port
	}
	return cfg, nil
}

// NewMySQLSummaryStore opens a summary store configured from the environment
func NewMySQLSummaryStore(table string) (*mysql.SummaryStore, error) {
	cfg, err := MySQLConfigFromEnv(table)
	if err != nil {
		return nil, err
	}
	return mysql.Open(cfg)
}

// loadEnvVar loads an environment variable into a pointer if no value is provided
func loadEnvVar(target *string, envKey string) (*string, error) {
	if target == nil {
		envVar := os.Getenv(envKey)
		if envVar == "" {
			return nil, fmt.Errorf("%s environment variable not set and no value provided", envKey)
		}
		return &envVar, nil
	}
	return target, nil
}
