package models

// ResultKind is the closed set of per-file task outcomes.
type ResultKind int

const (
	ResultTokenized ResultKind = iota
	ResultSkipped
	ResultErrored
)

// TaskResult is the self-contained outcome of processing one cache-miss file.
// A worker produces exactly one per task and never touches shared state.
type TaskResult struct {
	Path        string
	Kind        ResultKind
	Tokens      int
	ContentHash string
	SkipReason  string
	Err         string
}
