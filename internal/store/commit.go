package store

// Commit describes one successful local write
type Commit struct {
	ID         uint64
	Collection string
	Documents  []Document
	Removed    []string
}
