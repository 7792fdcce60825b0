package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/geocoder89/dinutri/internal/domain/prescription"
	"github.com/gin-gonic/gin"
)

// noRevisionETag tags the null answer of the latest lookup.
const noRevisionETag = `"none"`

// revisionETag names one stored revision. Every write moves updatedAt, and a
// published edit gets a new id, so the tag changes whenever the body does.
func revisionETag(p prescription.Prescription) string {
	return `"` + p.ID + "-" + strconv.FormatInt(p.UpdatedAt.UnixMicro(), 36) + `"`
}

// respondRevision answers 304 when the client already holds etag. Bodies
// depend on who asks, so caches must revalidate.
func respondRevision(ctx *gin.Context, etag string, payload interface{}) {
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")

	if etagMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(http.StatusOK, payload)
}

func respondPrescription(ctx *gin.Context, p prescription.Prescription) {
	respondRevision(ctx, revisionETag(p), p)
}

// respondLatest keeps the JSON null for a patient with nothing published.
func respondLatest(ctx *gin.Context, p *prescription.Prescription) {
	if p == nil {
		respondRevision(ctx, noRevisionETag, nil)
		return
	}
	respondRevision(ctx, revisionETag(*p), p)
}

// etagMatches uses the weak comparison If-None-Match calls for.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == want {
			return true
		}
	}
	return false
}
