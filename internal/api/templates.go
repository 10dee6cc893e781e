package api

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/hs-CN/remote-servo-controllor/internal/blemux"
	"github.com/hs-CN/remote-servo-controllor/internal/version"
)

//go:embed templates/*
var panelTemplateFS embed.FS

var controlPanelTemplate = template.Must(template.ParseFS(panelTemplateFS, "templates/control.html.tmpl"))

type controlPanelData struct {
	DeviceName string
	Version    string
	RestDegree int
}

// showControlPanel serves the built-in control page: a command form, a
// status readout, and a live event tail fed from /events.
func (s *Server) showControlPanel(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := controlPanelData{
		DeviceName: blemux.DeviceName,
		Version:    version.String(),
		RestDegree: int(s.cfg.GetRestDegree()),
	}

	buf := bytes.NewBuffer(nil)
	if err := controlPanelTemplate.Execute(buf, data); err != nil {
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
	io.Copy(w, buf)
}

// AttachAdminRoutes mounts the control panel on the debug index so
// operators browsing /debug/ can reach it next to the database tools.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a command to the lock", func(w http.ResponseWriter, r *http.Request) {
		data := controlPanelData{
			DeviceName: blemux.DeviceName,
			Version:    version.String(),
			RestDegree: int(s.cfg.GetRestDegree()),
		}
		buf := bytes.NewBuffer(nil)
		if err := controlPanelTemplate.Execute(buf, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})
}
