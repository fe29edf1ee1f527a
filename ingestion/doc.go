// Package ingestion feeds the document store through the task
// orchestrator. The pipeline fetches support pages over HTTP, skips
// content it has already stored (by content hash), persists new
// documents and chains embedding tasks for them. A bulk re-embed path
// refreshes vectors for the whole corpus as Maintenance-category work.
package ingestion
