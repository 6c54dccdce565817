// Package search finds student results by name: Meilisearch when available,
// Postgres full-text search as the fallback.
package search

// ResultRecord is the data indexed for one persisted result row.
type ResultRecord struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	SchoolID  int      `json:"schoolId"`
	ClassName string   `json:"className"`
	ExamName  string   `json:"examName"`
	Grade     string   `json:"grade"`
	Rank      *int     `json:"rank,omitempty"`
	RollNo    *int     `json:"rollNo,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text      string
	SchoolID  int // 0 = all schools
	ClassName string
	ExamName  string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []ResultRecord `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
}

// Searcher can execute a search over indexed results.
type Searcher interface {
	Search(q Query) ([]ResultRecord, int, error)
	Healthy() bool
}
