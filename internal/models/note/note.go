package note

// Note — заметка: без дедлайнов и без связки с календарём
type Note struct {
	ID      int64  `json:"id" db:"id"`
	UserID  int64  `json:"user_id" db:"user_id"`
	Text    string `json:"text" db:"text"`
	RawText string `json:"raw_text,omitempty" db:"raw_text"`

	CreatedAt int64 `json:"created_at" db:"created_at"`
	UpdatedAt int64 `json:"updated_at" db:"updated_at"`

	Source      string `json:"source,omitempty" db:"source"`
	SourceAgent string `json:"source_agent,omitempty" db:"source_agent"`
}
