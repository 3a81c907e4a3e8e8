package handlers

import (
	"errors"
	"net/http"

	"github.com/devroad/mentorchat/internal/media"
	apperrors "github.com/devroad/mentorchat/pkg/errors"
	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form fields and part headers on top of
// the file itself.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	uploader *media.Uploader
	maxSize  int64
}

func NewUploadHandler(uploader *media.Uploader, maxSize int64) *UploadHandler {
	if maxSize <= 0 {
		maxSize = media.DefaultMaxSize
	}
	return &UploadHandler{uploader: uploader, maxSize: maxSize}
}

// Upload stores a media file for a later message. Form fields: file, kind
// (image, voice or video; image when omitted).
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize+multipartOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperrors.ErrFileTooLarge)
			return
		}
		respondError(c, apperrors.ErrFileRequired)
		return
	}

	kindName := c.PostForm("kind")
	if kindName == "" {
		kindName = "image"
	}
	kind, err := media.ParseKind(kindName, h.maxSize)
	if err != nil {
		respondError(c, err)
		return
	}
	if header.Size > kind.MaxSize() {
		respondError(c, apperrors.ErrFileTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, apperrors.ErrFileRequired)
		return
	}
	defer file.Close()

	result, err := h.uploader.Upload(c.Request.Context(), kind, media.File{
		Name:         header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}
