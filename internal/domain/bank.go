package domain

// BankNote is a note of the shared reference question bank.
type BankNote struct {
	ID       int64
	Hash     string
	Title    string
	Content  string
	Quiz     *Quiz
	Tags     []string
	SourceID int64
}
