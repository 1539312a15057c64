// Package rag holds the shared model of the document question-answering
// pipeline: content units, chunks, triples and conversation turns, and the
// capability interfaces the pipeline is written against.
//
// The subpackages build on it:
//
//   - loader opens PDF, HTML and plain-text documents as page sources
//   - extract turns pages into text and image content units
//   - splitter cuts units into overlapping chunks
//   - store provides vector stores (memory, pgvector, chromem) and triple
//     graphs (memory, FalkorDB)
//   - retriever embeds and searches chunks
//   - kg extracts triples and queries the knowledge graph
//   - ingest drives a document through all of the above
//   - engine synthesizes grounded answers within a session
//
// # Capabilities
//
// Language models are reached through LLM and VisionModel. Adapters exist for
// go-openai (OpenAIModel), langchaingo (LangChainModel) and Gemini
// (GeminiModel). Every adapter reports failures as *CapabilityError, so
// throttling can be detected with IsRateLimited rather than by inspecting
// error text:
//
//	model := rag.NewOpenAIModel(rag.NewOpenAIClient(key, ""), "gpt-4o-mini", 0.2)
//	out, err := rag.NewRetrier(rag.DefaultRetryConfig()).Do(ctx, func(ctx context.Context) (string, error) {
//		return model.Generate(ctx, system, user)
//	})
//
// The default retry policy makes 12 attempts and waits 2^attempt + 2 seconds
// between throttled attempts. Waits end early when ctx is cancelled.
package rag
