package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsLLMCallsSucceeded is base for counter metric for chat calls succeeded
	StatsLLMCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_succeeded",
		Help:         "stats_llm_calls_succeeded provides total chat calls succeeded",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total chat calls failed",
		RequiredTags: []string{"deployment"},
	}

	// StatsLLMMessagesSent is base for counter metric for total messages sent to LLM
	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMBytesReceived = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_received",
		Help:         "stats_llm_bytes_received provides total bytes received from LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMInputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_input_tokens",
		Help:         "stats_llm_input_tokens provides total input tokens sent to LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMOutputTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_output_tokens",
		Help:         "stats_llm_output_tokens provides total output tokens received from LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsLLMTotalTokens = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_total_tokens",
		Help:         "stats_llm_total_tokens provides total tokens sent and received from LLM",
		RequiredTags: []string{"deployment"},
	}

	StatsEmbeddingCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_embedding_calls_succeeded",
		Help:         "stats_embedding_calls_succeeded provides total embedding calls succeeded",
		RequiredTags: []string{"deployment"},
	}

	StatsEmbeddingCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_embedding_calls_failed",
		Help:         "stats_embedding_calls_failed provides total embedding calls failed",
		RequiredTags: []string{"deployment"},
	}

	StatsEmbeddingVectors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_embedding_vectors",
		Help:         "stats_embedding_vectors provides total vectors received from embedding model",
		RequiredTags: []string{"deployment"},
	}

	StatsTracingFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tracing_failed",
		Help:         "stats_tracing_failed provides total trace batches failed to deliver",
		RequiredTags: []string{"sink"},
	}
)

// Perf
var (
	PerfChatCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_chat_call",
		Help:         "perf_chat_call provides duration of chat call",
		RequiredTags: []string{"deployment"},
	}

	PerfEmbeddingCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_embedding_call",
		Help:         "perf_embedding_call provides duration of embedding call",
		RequiredTags: []string{"deployment"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfChatCall,
	&PerfEmbeddingCall,
	&StatsEmbeddingCallsFailed,
	&StatsEmbeddingCallsSucceeded,
	&StatsEmbeddingVectors,
	&StatsLLMBytesReceived,
	&StatsLLMBytesSent,
	&StatsLLMCallsFailed,
	&StatsLLMCallsSucceeded,
	&StatsLLMInputTokens,
	&StatsLLMMessagesSent,
	&StatsLLMOutputTokens,
	&StatsLLMTotalTokens,
	&StatsTracingFailed,
}
