package analyzer

// Content types accepted for attribution.
const (
	ContentMarketing = "marketing"
	ContentTechnical = "technical"
	ContentBlog      = "blog"
	ContentGeneral   = "general"
)

// MaxContentLength bounds analyzed content, in characters.
const MaxContentLength = 10_000

type ContentIssue struct {
	Type        string  `json:"type" jsonschema:"enum=hyperbole|bias|unsourced|unclear|grammar|other,description=Category of the quality issue identified"`
	Description string  `json:"description" jsonschema:"description=Specific explanation of the issue"`
	Location    *string `json:"location" jsonschema:"description=Quote of the problematic text"`
	Severity    string  `json:"severity" jsonschema:"enum=low|medium|high,description=Impact: low=style; medium=credibility; high=factual"`
}

type ReviewResult struct {
	Issues         []ContentIssue `json:"issues,omitempty" jsonschema:"description=List of quality issues found in the content"`
	Summary        string         `json:"summary" jsonschema:"description=Brief overview of the content quality assessment"`
	OverallQuality string         `json:"overall_quality" jsonschema:"enum=poor|fair|good|excellent,description=Overall quality rating of the content"`
}

type ImprovementSuggestion struct {
	Original string `json:"original" jsonschema:"description=The original text that needs improvement"`
	Improved string `json:"improved" jsonschema:"description=The suggested improved version of the text"`
	Reason   string `json:"reason" jsonschema:"description=Explanation of why this change improves the content"`
}

type ImproveResult struct {
	Suggestions []ImprovementSuggestion `json:"suggestions,omitempty" jsonschema:"description=List of specific improvement suggestions"`
	Summary     string                  `json:"summary" jsonschema:"description=Brief overview of suggested improvements"`
}

type ScoreBreakdown struct {
	Clarity     int `json:"clarity" jsonschema:"minimum=0,maximum=100"`
	Accuracy    int `json:"accuracy" jsonschema:"minimum=0,maximum=100"`
	Engagement  int `json:"engagement" jsonschema:"minimum=0,maximum=100"`
	Originality int `json:"originality" jsonschema:"minimum=0,maximum=100"`
}

type ScoreResult struct {
	Score     int            `json:"score" jsonschema:"minimum=0,maximum=100,description=Overall content quality score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Summary   string         `json:"summary" jsonschema:"description=Brief explanation of the scoring rationale"`
}
