package domain

// CandidateSource identifies which retrieval path produced a candidate.
type CandidateSource string

const (
	SourceSection  CandidateSource = "section"
	SourceLexical  CandidateSource = "lexical"
	SourceSemantic CandidateSource = "semantic"
)

// Chunk is an immutable fragment of an ingested document. Chunks are written
// by the ingestion pipeline and only read here; IDs are stable across
// re-ingests of the same content hash.
type Chunk struct {
	ID             string `json:"id"`
	DocID          string `json:"doc_id"`
	Method         string `json:"method,omitempty"`
	SectionID      string `json:"section_id,omitempty"`
	SectionIDAlias string `json:"section_id_alias,omitempty"`
	PageFrom       *int   `json:"page_from,omitempty"`
	PageTo         *int   `json:"page_to,omitempty"`
	Text           string `json:"text"`
	Hash           string `json:"hash,omitempty"`
}

// IndexHit is one raw hit from a lexical or vector index query.
type IndexHit struct {
	ChunkID  string
	RawScore float64
}

// SearchCandidate is a transient per-query scoring record. RawScore is on the
// backing index's native scale; NormalizedScore is always in [0,1].
type SearchCandidate struct {
	ChunkID         string
	Source          CandidateSource
	RawScore        float64
	NormalizedScore float64
}

// FusedResult is a candidate after weighted fusion, carrying the denormalized
// chunk fields needed for display. SemanticScore and LexicalScore keep the
// per-source normalized scores used for deterministic tie-breaking.
type FusedResult struct {
	ChunkID       string            `json:"chunk_id"`
	FusedScore    float64           `json:"fused_score"`
	Sources       []CandidateSource `json:"sources"`
	SemanticScore float64           `json:"-"`
	LexicalScore  float64           `json:"-"`

	DocID     string `json:"doc_id,omitempty"`
	Method    string `json:"method,omitempty"`
	SectionID string `json:"section_id,omitempty"`
	PageFrom  *int   `json:"page_from,omitempty"`
	PageTo    *int   `json:"page_to,omitempty"`
	Snippet   string `json:"snippet,omitempty"`
	Text      string `json:"-"`
}

// HasSource reports whether src contributed to this result.
func (f FusedResult) HasSource(src CandidateSource) bool {
	for _, s := range f.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// RerankedResult is a fused result after the second-pass relevance scoring.
// RerankScore is the scorer's output and is not bounded to [0,1].
type RerankedResult struct {
	FusedResult
	RerankScore float64 `json:"rerank_score"`
}

// Citation points at a chunk that was supplied to the model as context.
type Citation struct {
	ChunkID   string  `json:"chunk_id"`
	DocID     string  `json:"doc_id"`
	SectionID string  `json:"section_id,omitempty"`
	PageFrom  *int    `json:"page_from,omitempty"`
	PageTo    *int    `json:"page_to,omitempty"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// RetrievalMode says which path answered the query.
type RetrievalMode string

const (
	RetrievalModeSection RetrievalMode = "section"
	RetrievalModeHybrid  RetrievalMode = "hybrid"
)

// RetrievalOutcome is the tagged result of the retrieval pipeline. Callers
// distinguish a full-quality result (no degraded reasons), a best-effort one
// (Degraded lists what fell back), and the section-not-found case
// (SectionToken set, SectionNotFound true, empty Results) without inspecting
// errors.
type RetrievalOutcome struct {
	Mode            RetrievalMode    `json:"mode"`
	Results         []RerankedResult `json:"results"`
	SectionToken    string           `json:"section_token,omitempty"`
	SectionNotFound bool             `json:"section_not_found,omitempty"`
	Degraded        []string         `json:"degraded,omitempty"`
}

// IsDegraded reports whether any retrieval path fell back.
func (o RetrievalOutcome) IsDegraded() bool {
	return len(o.Degraded) > 0
}

// SearchResult is the non-conversational search response.
type SearchResult struct {
	Results   []RerankedResult `json:"results"`
	Mode      RetrievalMode    `json:"mode,omitempty"`
	LatencyMS int64            `json:"latency_ms"`
	Degraded  bool             `json:"degraded,omitempty"`
}

// ChatResult is one completed conversational turn.
type ChatResult struct {
	Answer        string        `json:"answer"`
	Citations     []Citation    `json:"citations"`
	SessionID     string        `json:"session_id"`
	LatencyMS     int64         `json:"latency_ms"`
	Degraded      bool          `json:"degraded,omitempty"`
	RetrievalMode RetrievalMode `json:"retrieval_mode,omitempty"`
}
