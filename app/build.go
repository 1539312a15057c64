package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/smallnest/docrag/config"
	"github.com/smallnest/docrag/log"
	"github.com/smallnest/docrag/rag"
	"github.com/smallnest/docrag/rag/engine"
	"github.com/smallnest/docrag/rag/extract"
	"github.com/smallnest/docrag/rag/ingest"
	"github.com/smallnest/docrag/rag/kg"
	"github.com/smallnest/docrag/rag/loader"
	"github.com/smallnest/docrag/rag/retriever"
	"github.com/smallnest/docrag/rag/splitter"
	ragstore "github.com/smallnest/docrag/rag/store"
	"github.com/smallnest/docrag/store/backend"
	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// DefaultGeminiModel replaces OpenAI model names when the provider is gemini.
const DefaultGeminiModel = "gemini-1.5-flash"

// models are the three language model roles of the pipeline.
type models struct {
	chat   rag.LLM         // answers, at the configured temperature
	strict rag.LLM         // triples, entities and relevance filtering, at temperature 0
	vision rag.VisionModel // page transcription and image captions
}

// Build wires every component from cfg. The caller owns the returned App and
// must Close it.
func Build(ctx context.Context, cfg *config.Config, logger log.Logger) (app *App, err error) {
	logger = log.OrDefault(logger)

	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()

	m, mc, err := buildModels(ctx, cfg)
	closers = append(closers, mc...)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	vectors, err := ragstore.NewVectorStore(ctx, cfg.VectorURL, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	closers = append(closers, vectors)
	index := retriever.NewVectorIndex(vectors, embedder, retriever.WithLogger(logger))

	graphClient := kg.NewGraphClient(kg.URLDialer(cfg.GraphURL), kg.WithClientLogger(logger))
	closers = append(closers, graphClient)

	kgPacing := cfg.KGPacing.Std()
	if kgPacing == 0 {
		kgPacing = -1
	}
	facts := kg.NewStore(graphClient,
		kg.NewTripleExtractor(m.strict, kg.WithExtractorLogger(logger)),
		m.strict,
		kg.WithConfig(kg.Config{SampleEvery: cfg.KGSampleEvery, Pacing: kgPacing}),
		kg.WithStoreLogger(logger),
	)

	pages := extract.NewPageExtractor(
		extract.NewDescriber(m.vision, extract.WithLogger(logger)),
		extract.NewImageStore(cfg.StaticDir),
		extract.WithPageLogger(logger),
	)

	pipeline := ingest.NewPipeline(
		func(fileName string) rag.DocumentOpener { return loader.ForFile(fileName) },
		pages,
		splitter.NewRecursiveCharacterTextSplitter(),
		index,
		ingest.WithBatchSize(cfg.BatchSize),
		ingest.WithDeepPacing(cfg.DeepPacing.Std()),
		ingest.WithGraph(facts),
		ingest.WithLogger(logger),
	)

	qa := engine.NewQAEngine(index, facts, engine.NewSynthesizer(m.chat, logger), engine.WithLogger(logger))

	catalog, err := backend.Open(ctx, cfg.CatalogURL)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	closers = append(closers, catalog)

	return New(Components{
		Ingester:  pipeline,
		Asker:     qa,
		Facts:     facts,
		Vectors:   index,
		Catalog:   catalog,
		StaticDir: cfg.StaticDir,
		Language:  cfg.AnswerLanguage,
		Closers:   closers,
		Logger:    logger,
	}), nil
}

func buildModels(ctx context.Context, cfg *config.Config) (models, []io.Closer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client := rag.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		return models{
			chat:   rag.NewOpenAIModel(client, cfg.ChatModel, cfg.ChatTemperature),
			strict: rag.NewOpenAIModel(client, cfg.ChatModel, 0),
			vision: rag.NewOpenAIModel(client, cfg.VisionModel, 0),
		}, nil, nil

	case config.ProviderLangChain:
		chat, err := newLangChainOpenAI(cfg, lcopenai.WithModel(cfg.ChatModel))
		if err != nil {
			return models{}, nil, err
		}
		vision, err := newLangChainOpenAI(cfg, lcopenai.WithModel(cfg.VisionModel))
		if err != nil {
			return models{}, nil, err
		}
		return models{
			chat:   rag.NewLangChainModel(chat, cfg.ChatTemperature),
			strict: rag.NewLangChainModel(chat, 0),
			vision: rag.NewLangChainModel(vision, 0),
		}, nil, nil

	case config.ProviderGemini:
		var closers []io.Closer
		open := func(name string, temperature float64) (*rag.GeminiModel, error) {
			m, err := rag.NewGeminiModel(ctx, cfg.GeminiAPIKey, geminiModel(name), temperature)
			if err != nil {
				return nil, err
			}
			closers = append(closers, m)
			return m, nil
		}
		chat, err := open(cfg.ChatModel, cfg.ChatTemperature)
		if err != nil {
			return models{}, closers, err
		}
		strict, err := open(cfg.ChatModel, 0)
		if err != nil {
			return models{}, closers, err
		}
		vision, err := open(cfg.VisionModel, 0)
		if err != nil {
			return models{}, closers, err
		}
		return models{chat: chat, strict: strict, vision: vision}, closers, nil

	default:
		return models{}, nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

func geminiModel(name string) string {
	if name == "" || strings.HasPrefix(name, "gpt-") {
		return DefaultGeminiModel
	}
	return name
}

func buildEmbedder(cfg *config.Config) (rag.Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderHash:
		return ragstore.NewHashEmbedder(cfg.EmbeddingDim), nil
	case config.EmbedderOpenAI:
		client, err := newLangChainOpenAI(cfg,
			lcopenai.WithEmbeddingModel(cfg.EmbeddingModel),
			lcopenai.WithEmbeddingDimensions(cfg.EmbeddingDim),
		)
		if err != nil {
			return nil, err
		}
		e, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		return rag.NewLangChainEmbedder(e, cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
	}
}

func newLangChainOpenAI(cfg *config.Config, opts ...lcopenai.Option) (*lcopenai.LLM, error) {
	opts = append([]lcopenai.Option{lcopenai.WithToken(cfg.OpenAIAPIKey)}, opts...)
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain openai client: %w", err)
	}
	return llm, nil
}
