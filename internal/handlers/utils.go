package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxchat/internal/domains/history"
)

// attachment sends data as a file download named filename.
func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, contentType, data)
}

// exportHistory renders the snapshot as the downloadable document.
func exportHistory(c *gin.Context, snap history.Snapshot) error {
	doc, err := snap.JSON()
	if err != nil {
		return err
	}
	attachment(c, snap.Filename(), "application/json; charset=utf-8", doc)
	return nil
}
