package index

// Document is one embedding input: the entity name and the text to encode.
type Document struct {
	Name string
	Text string
}

// Index is an embedding matrix with a parallel list of entity names.
// Row i of Vectors (Dim floats) belongs to Names[i].
type Index struct {
	Model   string
	Dim     int
	Vectors []float32
	Names   []string
}

// Empty returns an index with no rows for model.
func Empty(model string) *Index {
	return &Index{Model: model}
}

// Len returns the number of rows.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.Names)
}

// Valid reports whether the vector and name counts agree and are non-empty.
func (x *Index) Valid() bool {
	if x == nil || x.Dim <= 0 || len(x.Names) == 0 {
		return false
	}
	return len(x.Vectors) == len(x.Names)*x.Dim
}

// Vector returns row i. It shares memory with the index.
func (x *Index) Vector(i int) []float32 {
	return x.Vectors[i*x.Dim : (i+1)*x.Dim]
}

// Truncate returns a view of the first n rows. n <= 0 or n >= Len returns x.
func (x *Index) Truncate(n int) *Index {
	if x == nil || n <= 0 || n >= x.Len() {
		return x
	}
	return &Index{
		Model:   x.Model,
		Dim:     x.Dim,
		Vectors: x.Vectors[:n*x.Dim],
		Names:   x.Names[:n],
	}
}
