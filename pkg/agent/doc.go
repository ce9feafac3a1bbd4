// Package agent implements role-bound LLM agents that answer a query,
// optionally consulting augmentation backends first.
//
// Invariants:
// - The model provider always renders the final answer; augmentation
//   results only feed the prompt.
// - An augmentation failure degrades the prompt; it never aborts a run.
// - Trace events are emitted in execution order to the caller's sink.
//
// Usage:
//
//	a, _ := agent.New(agent.Config{
//		Name:  "Web Agent",
//		Role:  "Search the web for information",
//		Model: "gpt-4o",
//	}, provider, []backend.Invoker{searchClient}, logger)
//	answer, _ := a.Run(ctx, "market outlook for semiconductors", recorder)
package agent
