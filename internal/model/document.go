package model

const (
	DocumentFormatText     = "text"
	DocumentFormatMarkdown = "markdown"
)

type Document struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  string `json:"format"`
	Ctime   int64  `json:"ctime"`
	Mtime   int64  `json:"mtime"`
}
