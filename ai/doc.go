// Package ai defines the interfaces for the AI services the support
// center depends on: text embedding for semantic document search and
// prompt completion for answer generation. Concrete implementations
// live in the openai (production, OpenAI-compatible APIs) and mock
// (testing) subpackages.
package ai
