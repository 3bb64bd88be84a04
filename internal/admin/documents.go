package admin

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoDocument marks a document that was never uploaded.
var ErrNoDocument = errors.New("document not uploaded")

// DocumentImage is one KYC image prepared for display. When Err is set the
// image is not available and a placeholder should be shown instead.
type DocumentImage struct {
	Type        models.DocumentType
	ContentType string
	Data        []byte
	Err         error
}

// Available reports whether the image was loaded.
func (d DocumentImage) Available() bool {
	return d.Err == nil && len(d.Data) > 0
}

// DataURL returns the image as a data: URL, or "" when it is not available.
func (d DocumentImage) DataURL() string {
	if !d.Available() {
		return ""
	}
	return "data:" + d.ContentType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

// LoadDocuments fetches the profile, Aadhaar and PAN images of app in
// parallel. Each fetch fails independently; the result always has one entry
// per document type, in models.DocumentTypes order.
func (r *Reviewer) LoadDocuments(ctx context.Context, app models.ApplicationRecord) []DocumentImage {
	out := make([]DocumentImage, len(models.DocumentTypes))

	var g errgroup.Group
	for i, d := range models.DocumentTypes {
		out[i].Type = d
		path := app.Documents.Path(d)
		if path == "" {
			out[i].Err = ErrNoDocument
			continue
		}
		g.Go(func() error {
			img, err := r.backend.ViewImage(ctx, path)
			if err != nil {
				r.log.Warn("document image unavailable",
					zap.Int64("application_id", app.ID),
					zap.String("document", string(d)),
					zap.Error(err))
				out[i].Err = err
				return nil
			}
			out[i].ContentType = img.ContentType
			out[i].Data = img.Data
			return nil
		})
	}
	_ = g.Wait()
	return out
}
