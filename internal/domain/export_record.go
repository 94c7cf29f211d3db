package domain

// ExportRecord is a resolved record with its category assignment, ready for
// serialization. Created by the category mapper, never mutated afterwards.
type ExportRecord struct {
	RecordID    string      `json:"record_id"`
	ListName    string      `json:"list_name"`
	DisplayName string      `json:"display_name"`
	Coordinates Coordinates `json:"coordinates"`
	CategoryID  string      `json:"category_id"`
	IconID      string      `json:"icon_id"`
	Notes       string      `json:"notes,omitempty"`
	Address     string      `json:"address,omitempty"`
	Outcome     OutcomeKind `json:"outcome"`
	Score       float64     `json:"score"`
	Source      string      `json:"source,omitempty"`
	Seq         int         `json:"seq"`
}
