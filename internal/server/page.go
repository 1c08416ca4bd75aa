package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxchat/internal/domains/presentation"
	"github.com/xpanvictor/voxchat/internal/domains/session"
	"github.com/xpanvictor/voxchat/pkg/Logger"
)

//go:embed web/index.html.tmpl web/client.js
var webFS embed.FS

type pageData struct {
	presentation.View
	Script template.JS
}

// PageHandler serves the single page; later updates arrive over /ws.
type PageHandler struct {
	session *session.Session
	logger  *Logger.Logger
	tmpl    *template.Template
	script  template.JS
}

func NewPageHandler(sess *session.Session, logger *Logger.Logger) (*PageHandler, error) {
	tmpl, err := template.ParseFS(webFS, "web/index.html.tmpl")
	if err != nil {
		return nil, err
	}
	js, err := webFS.ReadFile("web/client.js")
	if err != nil {
		return nil, err
	}
	return &PageHandler{
		session: sess,
		logger:  logger,
		tmpl:    tmpl,
		script:  template.JS(js),
	}, nil
}

func (p *PageHandler) Index(c *gin.Context) {
	var buf bytes.Buffer
	data := pageData{View: presentation.Render(p.session.State()), Script: p.script}
	if err := p.tmpl.Execute(&buf, data); err != nil {
		p.logger.Errorf("render page: %v", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
