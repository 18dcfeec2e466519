// Package proto defines the messages exchanged with ProximityService over
// the JSON-over-TCP RPC layer (see pkg/rpc).
package proto

const (
	MethodSearch    = "ProximityService.Search"
	MethodPositions = "ProximityService.Positions"
	MethodStats     = "ProximityService.Stats"
)

// SearchRequest carries a raw query such as "united 1 states 5 then". An
// empty Mode uses the server's default.
type SearchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// Match is one document's matched positions.
type Match struct {
	DocID     uint32 `json:"doc_id"`
	Path      string `json:"path,omitempty"`
	Positions []int  `json:"positions"`
}

// PairResult holds the matches for one term pair, or for the whole chain in
// chained mode.
type PairResult struct {
	Terms   []string `json:"terms"`
	Gaps    []int    `json:"gaps"`
	Matches []Match  `json:"matches"`
}

type SearchResponse struct {
	Query       string       `json:"query"`
	Mode        string       `json:"mode"`
	Rule        string       `json:"rule"`
	Generation  uint64       `json:"generation"`
	Results     []PairResult `json:"results"`
	CacheStatus string       `json:"cache_status"`
	TookMicros  int64        `json:"took_us"`
}

type PositionsRequest struct {
	Term  string `json:"term"`
	DocID uint32 `json:"doc_id"`
}

type PositionsResponse struct {
	Term      string `json:"term"`
	DocID     uint32 `json:"doc_id"`
	Positions []int  `json:"positions"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Generation  uint64 `json:"generation"`
	BuildID     string `json:"build_id"`
	Documents   int    `json:"documents"`
	Terms       int    `json:"terms"`
	Postings    int    `json:"postings"`
	Occurrences int    `json:"occurrences"`
	Skipped     int    `json:"skipped"`
	BuiltAt     string `json:"built_at"`
}
