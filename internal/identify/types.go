package identify

// PageType classifies what a drawing sheet shows
type PageType string

const (
	PageTypeFloorPlan      PageType = "floor-plan"
	PageTypeFinishSchedule PageType = "finish-schedule"
	PageTypeDetailDrawing  PageType = "detail-drawing"
	PageTypeElevation      PageType = "elevation"
	PageTypeOther          PageType = "other"
)

// IdentifiedPage is the model's verdict on one page's relevance to the scope.
// Every returned page starts selected so a human deselects rather than
// re-selects.
type IdentifiedPage struct {
	DocumentID     string   `json:"documentId"`
	PageNumber     int      `json:"pageNumber"`
	Confidence     float64  `json:"confidence"`
	RelevanceScore float64  `json:"relevanceScore,omitempty"`
	PageType       PageType `json:"pageType"`
	Reason         string   `json:"reason"`
	Indicators     []string `json:"indicators,omitempty"`
	Selected       bool     `json:"selected"`
}
