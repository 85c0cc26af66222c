// Package llmfactory creates Azure OpenAI chat and embedding handles from
// configuration, with an optional tracing sink attached to every handle.
//
// Default returns a process-wide Factory constructed on first use:
//
//	chat, err := llmfactory.ChatModel()
//	if err != nil {
//		return err
//	}
//	answer, err := chat.Invoke(ctx, "What is the capital of France?")
package llmfactory
