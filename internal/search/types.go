package search

// Match is one ranked catalog entity.
type Match struct {
	Name  string
	Score float64
	Why   string
}
