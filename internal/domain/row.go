package domain

// RowID identifies a row inside the sink that stored it.
type RowID string

// FlatRow is the denormalized projection of one Citation. Journal fields live
// directly on the row. Every pointer field is nil when its source was absent.
type FlatRow struct {
	PMID        int64         `json:"pmid"`
	CreatedOn   *CalendarDate `json:"created_on"`
	CompletedOn *CalendarDate `json:"completed_on"`
	RevisedOn   *CalendarDate `json:"revised_on"`

	JournalTitle    string  `json:"journal_title"`
	ISOAbbreviation *string `json:"iso_abbreviation"`
	Volume          *string `json:"volume"`
	Issue           *string `json:"issue"`
	PublicationDate *string `json:"publication_date"`

	Pages        *string `json:"pages"`
	ArticleTitle string  `json:"article_title"`
	Abstract     *string `json:"abstract"`
	Objective    *string `json:"objective"`
	Methods      *string `json:"methods"`
	Results      *string `json:"results"`
	Conclusions  *string `json:"conclusions"`
}
