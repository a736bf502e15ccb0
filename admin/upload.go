package admin

import (
	"io"
	"time"
)

// Upload is a file picked locally and not yet sent. Body is consumed once.
type Upload struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
	Body        io.Reader
}
